package vm

import "testing"

func TestParseEffect(t *testing.T) {
	tests := []struct {
		src          string
		nIn, nOut    int
		max          int
		topInputType Type
	}{
		{"--", 0, 0, 0, 0},
		{"a -- a a", 1, 2, 2, 0},
		{"# # -- #", 2, 1, 2, TypeNumber},
		{"a b -- b a", 2, 2, 2, 0},
		{"x$[]{} -- #", 1, 1, 1, TypeString},
	}
	for _, tt := range tests {
		e, err := ParseEffect(tt.src)
		if err != nil {
			t.Errorf("ParseEffect(%q): %v", tt.src, err)
			continue
		}
		if len(e.Inputs) != tt.nIn || len(e.Outputs) != tt.nOut || e.Max != tt.max {
			t.Errorf("ParseEffect(%q) = %d in, %d out, max %d; want %d/%d/%d",
				tt.src, len(e.Inputs), len(e.Outputs), e.Max, tt.nIn, tt.nOut, tt.max)
		}
		if tt.nIn > 0 && tt.src != "a b -- b a" {
			if !e.Inputs[0].CanBe(tt.topInputType) {
				t.Errorf("ParseEffect(%q) top input = %s", tt.src, e.Inputs[0])
			}
		}
	}
}

func TestParseEffectSlotOrder(t *testing.T) {
	// Slots read bottom-first: in "a b# -- b# a", b is the top input.
	e, names, err := ParseEffectNamed("a b# -- b# a")
	if err != nil {
		t.Fatal(err)
	}
	if names[0] != "b" || names[1] != "a" {
		t.Fatalf("input names = %v, want [b a]", names)
	}
	if !e.Inputs[0].CanBe(TypeNumber) || e.Inputs[0].CanBe(TypeString) {
		t.Errorf("top input = %s, want number", e.Inputs[0])
	}
	if !e.Inputs[1].CanBeAny() {
		t.Errorf("bottom input = %s, want any", e.Inputs[1])
	}
	// Outputs mirror the same-named inputs: top output is a (slot 1).
	if e.Outputs[0].InputMatch() != 1 {
		t.Errorf("top output match = %d, want 1", e.Outputs[0].InputMatch())
	}
	if e.Outputs[1].InputMatch() != 0 {
		t.Errorf("second output match = %d, want 0", e.Outputs[1].InputMatch())
	}
}

func TestParseEffectExplicitMatch(t *testing.T) {
	e := MustEffect("a b -- x/1")
	if e.Outputs[0].InputMatch() != 1 {
		t.Errorf("explicit match index = %d, want 1", e.Outputs[0].InputMatch())
	}
}

func TestParseEffectNullMarker(t *testing.T) {
	// Trailing '?' means null-allowed; a '?' before other characters is
	// the quote typechar.
	e := MustEffect("x#? -- q?#")
	if !e.Inputs[0].CanBe(TypeNumber) || !e.Inputs[0].CanBeNull() {
		t.Errorf("input = %s, want number-or-null", e.Inputs[0])
	}
	if !e.Outputs[0].CanBe(TypeQuote) || e.Outputs[0].CanBeNull() {
		t.Errorf("output = %s, want quote|number without null", e.Outputs[0])
	}
}

func TestParseEffectErrors(t *testing.T) {
	bad := []string{
		"",
		"a b",           // no separator
		"a -- b -- c",   // extra separator
		"a/0 -- a",      // match on an input
		"a -- b/5",      // match out of range
		"a! -- a",       // unknown type char
		"x[ -- x",       // unterminated array char
		"a -- b{",       // unterminated map char
	}
	for _, src := range bad {
		if _, err := ParseEffect(src); err == nil {
			t.Errorf("ParseEffect(%q) should fail", src)
		}
	}
}

func TestEffectThen(t *testing.T) {
	push := MustEffect("-- #")  // pushes a number
	add := MustEffect("# # -- #")

	two, err := push.Then(push)
	if err != nil {
		t.Fatal(err)
	}
	if len(two.Inputs) != 0 || len(two.Outputs) != 2 || two.Max != 2 {
		t.Fatalf("push.Then(push) = %s max %d", two, two.Max)
	}

	sum, err := two.Then(add)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Inputs) != 0 || len(sum.Outputs) != 1 || sum.Max != 2 {
		t.Fatalf("then add = %s max %d", sum, sum.Max)
	}
}

func TestEffectThenErrors(t *testing.T) {
	pushStr := MustEffect("-- $")
	add := MustEffect("# # -- #")
	if _, err := pushStr.Then(add); err == nil {
		t.Error("composing string into numeric input should fail")
	}
	if _, err := MustEffect("--").Then(MustEffect("a --")); err == nil {
		t.Error("underflow composition should fail")
	}
	if _, err := WeirdEffect().Then(add); err == nil {
		t.Error("weird effects cannot compose")
	}
}

func TestEffectThenInputMatch(t *testing.T) {
	// DUP's outputs both mirror its input; composing after a push of a
	// known single type resolves them to that type.
	pushNum := MustEffect("-- #")
	dup := MustEffect("a -- a a")
	e, err := pushNum.Then(dup)
	if err != nil {
		t.Fatal(err)
	}
	for i, out := range e.Outputs {
		if !out.CanBe(TypeNumber) || out.MultiType() {
			t.Errorf("output %d = %s, want number", i, out)
		}
	}
}

func TestEffectMaxBookkeeping(t *testing.T) {
	e := MustEffect("# -- #")
	if e.WithMax(5).Max != 5 {
		t.Error("WithMax(5) lost")
	}
	if e.WithMax(0).Max != 1 {
		t.Error("Max must not drop below the arity")
	}
	u := e.WithUnknownMax()
	if !u.MaxIsUnknown() {
		t.Error("unknown max lost")
	}
	seq, err := u.Then(e)
	if err != nil {
		t.Fatal(err)
	}
	if !seq.MaxIsUnknown() {
		t.Error("unknown max should propagate through Then")
	}
}

func TestEffectString(t *testing.T) {
	e := MustEffect("a# b$ -- #")
	if got := e.String(); got != "number string -- number" {
		t.Errorf("String() = %q", got)
	}
}
