package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// NaN-boxing tests
// ---------------------------------------------------------------------------

func TestFloatRoundTrip(t *testing.T) {
	tests := []float64{
		0.0,
		-0.0,
		1.0,
		-1.0,
		3.14159265358979,
		-3.14159265358979,
		math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		-math.MaxFloat64,
		math.Inf(1),
		math.Inf(-1),
	}

	for _, f := range tests {
		v := FromFloat(f)
		if !v.IsNumber() {
			t.Errorf("FromFloat(%v).IsNumber() = false, want true", f)
			continue
		}
		if got := v.AsFloat(); got != f {
			t.Errorf("FromFloat(%v).AsFloat() = %v, want %v", f, got, f)
		}
	}
}

func TestFloatNaN(t *testing.T) {
	// A real NaN must stay a number and never alias a tagged value.
	v := FromFloat(math.NaN())
	if !v.IsNumber() {
		t.Error("NaN should be a number")
	}
	if !math.IsNaN(v.AsFloat()) {
		t.Error("NaN roundtrip failed")
	}
	if v.IsNull() || v.IsString() || v.IsArray() || v.IsMap() || v.IsQuote() {
		t.Error("NaN misread as a tagged value")
	}
}

func TestNull(t *testing.T) {
	if !Null.IsNull() {
		t.Error("Null.IsNull() = false")
	}
	if Null.Type() != TypeNull {
		t.Errorf("Null.Type() = %v, want null", Null.Type())
	}
	if Null.Truthy() {
		t.Error("Null should be falsy")
	}
}

func TestTypes(t *testing.T) {
	tests := []struct {
		v    Value
		want Type
	}{
		{FromInt(42), TypeNumber},
		{FromFloat(-1.5), TypeNumber},
		{FromString("hi"), TypeString},
		{FromString(""), TypeString},
		{FromArray(nil), TypeArray},
		{FromMap(map[Value]Value{}), TypeMap},
		{FromQuote(&Word{}), TypeQuote},
		{Null, TypeNull},
	}
	for _, tt := range tests {
		if got := tt.v.Type(); got != tt.want {
			t.Errorf("Type() of %s = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "hello world", "日本語"} {
		v := FromString(s)
		if !v.IsString() {
			t.Errorf("FromString(%q).IsString() = false", s)
		}
		if got := v.AsString(); got != s {
			t.Errorf("FromString(%q).AsString() = %q", s, got)
		}
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{FromInt(0), false},
		{FromFloat(-0.0), false},
		{Null, false},
		{FromInt(1), true},
		{FromInt(-1), true},
		{FromString(""), true},
		{FromArray(nil), true},
		{FromQuote(&Word{}), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("Truthy() of %s = %v, want %v", tt.v, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Comparison tests
// ---------------------------------------------------------------------------

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{FromInt(3), FromInt(3), true},
		{FromInt(3), FromFloat(3.0), true},
		{FromInt(3), FromInt(4), false},
		{FromString("abc"), FromString("abc"), true}, // separate handles, same content
		{FromString("abc"), FromString("abd"), false},
		{FromString("3"), FromInt(3), false},
		{Null, Null, true},
		{Null, FromInt(0), false},
		{FromArray([]Value{FromInt(1)}), FromArray([]Value{FromInt(1)}), true},
		{FromArray([]Value{FromInt(1)}), FromArray([]Value{FromInt(2)}), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s Equal %s = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCmpOrdering(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{FromInt(1), FromInt(2), -1},
		{FromInt(2), FromInt(1), 1},
		{FromInt(2), FromInt(2), 0},
		{FromString("a"), FromString("b"), -1},
		{FromString("b"), FromString("a"), 1},
		{FromArray([]Value{FromInt(1)}), FromArray([]Value{FromInt(1), FromInt(2)}), -1},
	}
	for _, tt := range tests {
		got := tt.a.Cmp(tt.b)
		if (got < 0) != (tt.want < 0) || (got > 0) != (tt.want > 0) {
			t.Errorf("%s Cmp %s = %d, want sign of %d", tt.a, tt.b, got, tt.want)
		}
	}
	// Different types order by type tag, consistently.
	if FromInt(99).Cmp(FromString("a")) >= 0 {
		t.Error("numbers should order before strings")
	}
}

// ---------------------------------------------------------------------------
// Operation tests
// ---------------------------------------------------------------------------

func TestAdd(t *testing.T) {
	sum := FromInt(3).Add(FromInt(4))
	if sum.AsFloat() != 7 {
		t.Errorf("3 + 4 = %s", sum)
	}

	cat := FromString("Hi").Add(FromString("There"))
	if cat.AsString() != "HiThere" {
		t.Errorf(`"Hi" + "There" = %s`, cat)
	}

	// Adding to an array appends without mutating the original.
	arr := FromArray([]Value{FromInt(1)})
	arr2 := arr.Add(FromInt(2))
	if len(arr.AsArray()) != 1 || len(arr2.AsArray()) != 2 {
		t.Errorf("array append mutated the original: %s / %s", arr, arr2)
	}

	if !FromString("a").Add(FromInt(1)).IsNull() {
		t.Error("string + number should be null")
	}
}

func TestArithmetic(t *testing.T) {
	if got := FromInt(7).Sub(FromInt(3)); got.AsFloat() != 4 {
		t.Errorf("7 - 3 = %s", got)
	}
	if got := FromInt(6).Mul(FromInt(7)); got.AsFloat() != 42 {
		t.Errorf("6 * 7 = %s", got)
	}
	if got := FromInt(7).Div(FromInt(2)); got.AsFloat() != 3.5 {
		t.Errorf("7 / 2 = %s", got)
	}
	if got := FromInt(7).Mod(FromInt(3)); got.AsFloat() != 1 {
		t.Errorf("7 MOD 3 = %s", got)
	}
	if !FromInt(7).Mod(FromInt(0)).IsNull() {
		t.Error("x MOD 0 should be null")
	}
}

func TestLength(t *testing.T) {
	tests := []struct {
		v    Value
		want Value
	}{
		{FromString("hello"), FromInt(5)},
		{FromArray([]Value{FromInt(1), FromInt(2)}), FromInt(2)},
		{FromMap(map[Value]Value{FromInt(1): FromInt(2)}), FromInt(1)},
		{FromInt(3), Null},
	}
	for _, tt := range tests {
		if got := tt.v.Length(); !got.Equal(tt.want) {
			t.Errorf("Length() of %s = %s, want %s", tt.v, got, tt.want)
		}
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{FromInt(42), "42"},
		{FromFloat(2.5), "2.5"},
		{FromString("hi"), `"hi"`},
		{Null, "null"},
		{FromArray([]Value{FromInt(1), FromString("x")}), `{1, "x"}`},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if got := FromString("hi").DisplayString(); got != "hi" {
		t.Errorf("DisplayString() = %q, want %q", got, "hi")
	}
}
