package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tails-lang/tails/vm"
)

// parseExpr compiles expression-syntax source.
func parseExpr(t *testing.T, source string) *vm.Word {
	t.Helper()
	w, err := NewParser().Parse(source)
	require.NoError(t, err, "parsing %q", source)
	return w
}

func TestParserCodegen(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"3+4", "INT:<3> INT:<4> + RETURN"},
		{"-(3-4)", "0 INT:<3> INT:<4> - - RETURN"},
		{"3+4*5", "INT:<3> INT:<4> INT:<5> * + RETURN"},
		{"3*4+5", "INT:<3> INT:<4> * INT:<5> + RETURN"},
		{"3*(4+5)", "INT:<3> INT:<4> INT:<5> + * RETURN"},
		{"3*4 == 5", "INT:<3> INT:<4> * INT:<5> = RETURN"},
		{`"foo"+"bar"`, `LITERAL:<"foo"> LITERAL:<"bar"> + RETURN`},
	}
	for _, tt := range tests {
		w := parseExpr(t, tt.source)
		assert.Equal(t, tt.want, vm.DisassembleString(w.Code), "source %q", tt.source)
	}
}

func TestParserEvaluation(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"3+4*5", 23},
		{"(3+4)*5", 35},
		{"10-2-3", 5}, // left-associative
		{"-(3-4)", 1},
		{"7 < 8", 1},
		{"7 >= 8", 0},
		{"3*4 == 12", 1},
		{"17 if: 1 else: 2", 1},
		{"0 if: 1 else: 2", 2},
		{"1; 2; 3", 3},
		{"let x = 3; x + 1", 4},
		{"let x = 2; let y = 3; x * y", 6},
		{"let x = 1; x := x + 1; x", 2},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := runOn(t, parseExpr(t, tt.source))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].AsFloat())
		})
	}
}

func TestParserSequenceDropsLeft(t *testing.T) {
	// ';' discards the left side's values; a trailing ';' keeps them.
	got := runOn(t, parseExpr(t, "1; 2"))
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].AsFloat())

	got = runOn(t, parseExpr(t, "7;"))
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].AsFloat())
}

func TestParserConditionalArms(t *testing.T) {
	// An if: with no else: may not leave a value.
	_, err := NewParser().Parse("17 if: 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot return a value")
}

func TestParserFunctionParams(t *testing.T) {
	w := parseExpr(t, "( a# b# -- # ) a + b")
	require.Len(t, w.Effect.Inputs, 2)
	require.Len(t, w.Effect.Outputs, 1)

	got := runOn(t, w, vm.FromInt(3), vm.FromInt(4))
	require.Len(t, got, 1)
	assert.Equal(t, 7.0, got[0].AsFloat())
}

func TestParserParamAssignment(t *testing.T) {
	w := parseExpr(t, "( x# -- # ) x := x + 1; x")
	got := runOn(t, w, vm.FromInt(5))
	require.Len(t, got, 1)
	assert.Equal(t, 6.0, got[0].AsFloat())
}

func TestParserParamsPreserveDeepStack(t *testing.T) {
	// Values below the declared inputs stay untouched.
	w := parseExpr(t, "( n# -- # ) n * 2")
	got := runOn(t, w, vm.FromInt(99), vm.FromInt(21))
	require.Len(t, got, 2)
	assert.Equal(t, 99.0, got[0].AsFloat())
	assert.Equal(t, 42.0, got[1].AsFloat())
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		source string
		msg    string
	}{
		{"", "unexpected end of input"},
		{"3 4", "expected an operator"},
		{"+", "cannot begin an expression"},
		{"foo", "unknown symbol"},
		{"(3+4", `expected ")"`},
		{"3)", "expected input to end here"},
		{"3 := 4", "cannot be used here"},
		{"17 if: 1", "cannot return a value"},
		{"0 if: 1 else: let x = 2", "same number of values"},
		{"let x = 1; let x = 2", "already a local variable"},
		{"let 3 = 4", "expected a local variable name"},
		{"let x", `expected "="`},
		{"( # -- # ) 1", "unnamed parameter"},
	}
	for _, tt := range tests {
		_, err := NewParser().Parse(tt.source)
		require.Error(t, err, "%q should not parse", tt.source)
		assert.Contains(t, err.Error(), tt.msg, "%q", tt.source)
	}
}

func TestParserErrorPosition(t *testing.T) {
	_, err := NewParser().Parse("3 + foo")
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.Pos)
}

func TestParserLocalsCleanup(t *testing.T) {
	// Locals are removed before returning: only the result remains, and
	// the code carries the LOCALS/DROPARGS bracket.
	w := parseExpr(t, "let x = 10; x * x")
	dis := vm.DisassembleString(w.Code)
	assert.Contains(t, dis, "LOCALS:<1>")
	assert.Contains(t, dis, "DROPARGS:")
	got := runOn(t, w)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].AsFloat())
}
