package vm

import (
	"bytes"
	"strings"
	"testing"
)

// testWord hand-assembles a body and wraps it in a compiled word. Max is
// set generously; these tests exercise the dispatch loop, not the checker.
func testWord(t *testing.T, effect string, refs ...WordRef) *Word {
	t.Helper()
	e := MustEffect(effect).WithMax(8)
	refs = append(refs, WordRef{Word: WordFor(OpReturn)})
	return NewCompiledWord("", 0, e, assembleRefs(refs))
}

// runWord executes the word on the given starting stack.
func runWord(t *testing.T, w *Word, stack ...Value) []Value {
	t.Helper()
	in := NewInterp()
	in.Stack = stack
	if err := in.Run(w); err != nil {
		t.Fatal(err)
	}
	return in.Stack
}

func numbers(vals ...float64) []Value {
	out := make([]Value, len(vals))
	for i, f := range vals {
		out[i] = FromFloat(f)
	}
	return out
}

func wantStack(t *testing.T, got []Value, want ...Value) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("stack depth %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("stack[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunArithmetic(t *testing.T) {
	w := testWord(t, "-- #",
		WordRef{Word: WordFor(OpInt), Int: 4},
		WordRef{Word: WordFor(OpInt), Int: 3},
		WordRef{Word: WordFor(OpPlus)},
		WordRef{Word: WordFor(OpDup)},
		WordRef{Word: WordFor(OpPlus)},
		WordRef{Word: WordFor(OpAbs)},
	)
	wantStack(t, runWord(t, w), FromInt(14))
}

func TestRunStackGymnastics(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		in   []float64
		want []float64
	}{
		{"DROP", OpDrop, []float64{1, 2}, []float64{1}},
		{"DUP", OpDup, []float64{1, 2}, []float64{1, 2, 2}},
		{"OVER", OpOver, []float64{1, 2}, []float64{1, 2, 1}},
		{"SWAP", OpSwap, []float64{1, 2}, []float64{2, 1}},
		{"ROT", OpRot, []float64{1, 2, 3}, []float64{2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewCompiledWord("", 0, WordFor(tt.op).Effect.WithMax(4),
				assembleRefs([]WordRef{
					{Word: WordFor(tt.op)},
					{Word: WordFor(OpReturn)},
				}))
			wantStack(t, runWord(t, w, numbers(tt.in...)...), numbers(tt.want...)...)
		})
	}
}

func TestRunRotN(t *testing.T) {
	rot := func(n int) *Word {
		return NewCompiledWord("", 0, MustEffect("a b c -- c a b").WithMax(4),
			assembleRefs([]WordRef{
				{Word: WordFor(OpRotN), Int: n},
				{Word: WordFor(OpReturn)},
			}))
	}
	// Positive n lifts the item at depth n to the top.
	wantStack(t, runWord(t, rot(2), numbers(1, 2, 3)...), numbers(2, 3, 1)...)
	// Negative n buries the top at depth -n.
	wantStack(t, runWord(t, rot(-2), numbers(1, 2, 3)...), numbers(3, 1, 2)...)
}

func TestRunComparisons(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b float64
		want float64
	}{
		{OpEq, 3, 3, 1},
		{OpEq, 3, 4, 0},
		{OpNe, 3, 4, 1},
		{OpLt, 3, 4, 1},
		{OpLe, 4, 4, 1},
		{OpGt, 4, 3, 1},
		{OpGe, 3, 4, 0},
	}
	for _, tt := range tests {
		w := testWord(t, "# # -- #", WordRef{Word: WordFor(tt.op)})
		wantStack(t, runWord(t, w, numbers(tt.a, tt.b)...), FromFloat(tt.want))
	}
}

func TestRunBranches(t *testing.T) {
	// The conditional skeleton assembled by hand:
	// INT:<cond> 0BRANCH:<6> INT:<123> BRANCH:<3> INT:<666> RETURN
	build := func(cond int) *Word {
		return testWord(t, "-- #",
			WordRef{Word: WordFor(OpInt), Int: cond},
			WordRef{Word: WordFor(OpZBranch), Int: 6},
			WordRef{Word: WordFor(OpInt), Int: 123},
			WordRef{Word: WordFor(OpBranch), Int: 3},
			WordRef{Word: WordFor(OpInt), Int: 666},
		)
	}
	wantStack(t, runWord(t, build(1)), FromInt(123))
	wantStack(t, runWord(t, build(0)), FromInt(666))
}

func TestRunCall(t *testing.T) {
	double := testWord(t, "# -- #",
		WordRef{Word: WordFor(OpDup)},
		WordRef{Word: WordFor(OpPlus)},
	)
	// Call through INTERP.
	w := testWord(t, "-- #",
		WordRef{Word: WordFor(OpInt), Int: 21},
		WordRef{Word: double},
	)
	wantStack(t, runWord(t, w), FromInt(42))

	// Call through a quotation value and CALL.
	q := testWord(t, "-- #",
		WordRef{Word: WordFor(OpLiteral), Val: FromQuote(double)},
		WordRef{Word: WordFor(OpInt), Int: 10},
		WordRef{Word: WordFor(OpSwap)},
		WordRef{Word: WordFor(OpCall)},
	)
	wantStack(t, runWord(t, q), FromInt(20))
}

func TestRunTailInterp(t *testing.T) {
	double := testWord(t, "# -- #",
		WordRef{Word: WordFor(OpDup)},
		WordRef{Word: WordFor(OpPlus)},
	)
	w := testWord(t, "-- #",
		WordRef{Word: WordFor(OpInt), Int: 5},
		WordRef{Word: WordFor(OpTailInterp), Target: double},
	)
	wantStack(t, runWord(t, w), FromInt(10))
}

func TestRunIfElse(t *testing.T) {
	mult := testWord(t, "# # -- #", WordRef{Word: WordFor(OpMult)})
	plus := testWord(t, "# # -- #", WordRef{Word: WordFor(OpPlus)})
	build := func(cond int) *Word {
		return testWord(t, "-- #",
			WordRef{Word: WordFor(OpInt), Int: 3},
			WordRef{Word: WordFor(OpInt), Int: 4},
			WordRef{Word: WordFor(OpInt), Int: cond},
			WordRef{Word: WordFor(OpLiteral), Val: FromQuote(mult)},
			WordRef{Word: WordFor(OpLiteral), Val: FromQuote(plus)},
			WordRef{Word: WordFor(OpIfElse)},
		)
	}
	wantStack(t, runWord(t, build(1)), FromInt(12))
	wantStack(t, runWord(t, build(0)), FromInt(7))
}

func TestRunDefine(t *testing.T) {
	answer := testWord(t, "-- #", WordRef{Word: WordFor(OpInt), Int: 42})
	w := testWord(t, "--",
		WordRef{Word: WordFor(OpLiteral), Val: FromQuote(answer)},
		WordRef{Word: WordFor(OpLiteral), Val: FromString("THE-ANSWER")},
		WordRef{Word: WordFor(OpDefine)},
	)
	runWord(t, w)
	defined := ActiveVocabularies.Lookup("the-answer")
	if defined == nil {
		t.Fatal("DEFINE did not register the word")
	}
	wantStack(t, runWord(t, defined), FromInt(42))
}

func TestRunArgsAndDropArgs(t *testing.T) {
	// (a b -- b a) via GETARG, with DROPARGS removing the args.
	swap := testWord(t, "a b -- b a",
		WordRef{Word: WordFor(OpGetArg), Int: 0},  // push b (top arg)
		WordRef{Word: WordFor(OpGetArg), Int: -2}, // push a, now two deeper
		WordRef{Word: WordFor(OpDropArgs), Int: PackDropCount(2, 2)},
	)
	wantStack(t, runWord(t, swap, FromInt(1), FromInt(2)), FromInt(2), FromInt(1))
}

func TestRunLocals(t *testing.T) {
	// Reserve one local, store 7 in it, read it back, drop the slot.
	w := testWord(t, "-- #",
		WordRef{Word: WordFor(OpLocals), Int: 1},
		WordRef{Word: WordFor(OpInt), Int: 7},
		WordRef{Word: WordFor(OpSetArg), Int: -1},
		WordRef{Word: WordFor(OpGetArg), Int: 0},
		WordRef{Word: WordFor(OpDropArgs), Int: PackDropCount(1, 1)},
	)
	wantStack(t, runWord(t, w), FromInt(7))
}

func TestRunPrinting(t *testing.T) {
	w := testWord(t, "--",
		WordRef{Word: WordFor(OpInt), Int: 42},
		WordRef{Word: WordFor(OpPrint)},
		WordRef{Word: WordFor(OpSpace)},
		WordRef{Word: WordFor(OpLiteral), Val: FromString("hi")},
		WordRef{Word: WordFor(OpPrint)},
		WordRef{Word: WordFor(OpNewlineQ)},
		WordRef{Word: WordFor(OpNewlineQ)}, // already at the margin; no-op
	)
	var buf bytes.Buffer
	in := NewInterp()
	in.Out = &buf
	if err := in.Run(w); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "42 hi\n" {
		t.Errorf("printed %q, want %q", got, "42 hi\n")
	}
}

func TestRunUnderflowRejected(t *testing.T) {
	w := testWord(t, "# # -- #", WordRef{Word: WordFor(OpPlus)})
	in := NewInterp()
	in.Stack = numbers(1)
	err := in.Run(w)
	if err == nil || !strings.Contains(err.Error(), "underflow") {
		t.Fatalf("Run = %v, want underflow error", err)
	}
}

func TestRunNativeRejected(t *testing.T) {
	in := NewInterp()
	if err := in.Run(WordFor(OpDup)); err == nil {
		t.Error("running a native word directly should fail")
	}
}

func TestTraceHook(t *testing.T) {
	w := testWord(t, "-- #", WordRef{Word: WordFor(OpInt), Int: 1})
	var ops []Opcode
	in := NewInterp()
	in.Trace = func(op Opcode, depth int) { ops = append(ops, op) }
	if err := in.Run(w); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 || ops[0] != OpInt || ops[1] != OpReturn {
		t.Errorf("traced %v", ops)
	}
}
