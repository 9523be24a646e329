package vm

import (
	"fmt"
	"math"
	"strings"
)

// UnknownMax marks a stack effect whose peak depth is not known at compile
// time (e.g. non-tail recursion).
const UnknownMax = math.MaxUint16

// StackEffect describes the API of a word:
//   - how many inputs it pops from the stack, and their allowed types;
//   - how many outputs it pushes, and their potential types;
//   - the greatest stack depth reached while it runs, counting its inputs.
//
// The compiler's stack checker uses it to verify stack and type safety, and
// the interpreter uses Max to reserve a sufficiently large stack at runtime.
//
// Inputs and Outputs are indexed from the top of the stack: slot 0 is the
// top, slot 1 is below it, and so on.
type StackEffect struct {
	Inputs  []TypeSet
	Outputs []TypeSet
	Max     int

	weird bool
}

// NewEffect builds a StackEffect from input and output entries listed
// top-of-stack first. Max defaults to the larger arity.
func NewEffect(inputs, outputs []TypeSet) StackEffect {
	e := StackEffect{Inputs: inputs, Outputs: outputs}
	e.Max = e.defaultMax(0)
	return e
}

// WeirdEffect returns a StackEffect whose behavior is not fixed at compile
// time; only magic opcodes carry one, and each gets special handling in the
// stack checker.
func WeirdEffect() StackEffect { return StackEffect{weird: true} }

// IsWeird reports whether the effect is not fixed at compile time.
func (e StackEffect) IsWeird() bool { return e.weird }

func (e StackEffect) defaultMax(m int) int {
	if m == UnknownMax {
		return m
	}
	if n := len(e.Inputs); n > m {
		m = n
	}
	if n := len(e.Outputs); n > m {
		m = n
	}
	return m
}

// Net is the change in stack depth from entry to exit.
func (e StackEffect) Net() int { return len(e.Outputs) - len(e.Inputs) }

// MaxIsUnknown reports whether the peak depth is unknown at compile time.
func (e StackEffect) MaxIsUnknown() bool { return e.Max == UnknownMax }

// WithMax returns a copy with Max raised to at least m. Max never drops
// below either arity.
func (e StackEffect) WithMax(m int) StackEffect {
	e2 := e
	e2.Inputs = append([]TypeSet(nil), e.Inputs...)
	e2.Outputs = append([]TypeSet(nil), e.Outputs...)
	e2.Max = e2.defaultMax(m)
	return e2
}

// WithUnknownMax returns a copy whose peak depth is unknown.
func (e StackEffect) WithUnknownMax() StackEffect { return e.WithMax(UnknownMax) }

// AddInput prepends an input at the top of the stack.
func (e *StackEffect) AddInput(ts TypeSet) {
	e.Inputs = append([]TypeSet{ts}, e.Inputs...)
	e.Max = e.defaultMax(e.Max)
}

// AddInputAtBottom appends an input at the bottom of the stack. Used when
// the checker discovers that extensible code reaches deeper than declared.
func (e *StackEffect) AddInputAtBottom(ts TypeSet) {
	e.Inputs = append(e.Inputs, ts)
	e.Max = e.defaultMax(e.Max)
}

// AddOutput prepends an output at the top of the stack.
func (e *StackEffect) AddOutput(ts TypeSet) {
	e.Outputs = append([]TypeSet{ts}, e.Outputs...)
	e.Max = e.defaultMax(e.Max)
}

// AddOutputAtBottom appends an output at the bottom of the stack.
func (e *StackEffect) AddOutputAtBottom(ts TypeSet) {
	e.Outputs = append(e.Outputs, ts)
	e.Max = e.defaultMax(e.Max)
}

// Equal compares arities, per-slot types and Max.
func (e StackEffect) Equal(o StackEffect) bool {
	if e.weird || o.weird || e.Max != o.Max ||
		len(e.Inputs) != len(o.Inputs) || len(e.Outputs) != len(o.Outputs) {
		return false
	}
	for i := range e.Inputs {
		if !e.Inputs[i].SameTypes(o.Inputs[i]) {
			return false
		}
	}
	for i := range e.Outputs {
		if !e.Outputs[i].SameTypes(o.Outputs[i]) {
			return false
		}
	}
	return true
}

// Then returns the effect of running e and then b: b's inputs are fed by
// e's outputs. Fails if e leaves too few values or the wrong types.
func (e StackEffect) Then(b StackEffect) (StackEffect, error) {
	if e.weird || b.weird {
		return StackEffect{}, fmt.Errorf("cannot compose an unknown stack effect")
	}
	if len(e.Outputs) < len(b.Inputs) {
		return StackEffect{}, fmt.Errorf("stack underflow composing effects")
	}
	for i := range b.Inputs {
		if bad := e.Outputs[i].Minus(b.Inputs[i]); bad.Exists() {
			return StackEffect{}, fmt.Errorf("type mismatch composing effects (slot %d: %s)", i, bad)
		}
	}

	result := NewEffect(append([]TypeSet(nil), e.Inputs...),
		append([]TypeSet(nil), b.Outputs...))

	// Unconsumed outputs of e remain below b's outputs.
	for i := len(b.Inputs); i < len(e.Outputs); i++ {
		result.AddOutputAtBottom(e.Outputs[i])
	}

	// Resolve input matches: b's inputs were e's outputs.
	for i, out := range result.Outputs {
		if k := out.InputMatch(); k >= 0 && k < len(e.Outputs) {
			in := e.Outputs[k]
			if in.MultiType() {
				result.Outputs[i] = out.WithInputMatch(in, k)
			} else {
				result.Outputs[i] = in
			}
		}
	}

	// Peak depth: e's own peak, or the depth after e plus b's growth.
	m := e.Max
	if e.MaxIsUnknown() || b.MaxIsUnknown() {
		m = UnknownMax
	} else if peak := len(e.Inputs) + e.Net() + b.Max - len(b.Inputs); peak > m {
		m = peak
	}
	result.Max = result.defaultMax(m)
	return result, nil
}

// String renders the effect in its textual form, types only.
func (e StackEffect) String() string {
	var sb strings.Builder
	for i := len(e.Inputs) - 1; i >= 0; i-- {
		sb.WriteString(e.Inputs[i].String())
		sb.WriteByte(' ')
	}
	sb.WriteString("--")
	for i := len(e.Outputs) - 1; i >= 0; i-- {
		sb.WriteByte(' ')
		sb.WriteString(e.Outputs[i].String())
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Textual form
// ---------------------------------------------------------------------------

// ParseEffect parses the textual stack-effect form. See ParseEffectNamed.
func ParseEffect(s string) (StackEffect, error) {
	e, _, err := ParseEffectNamed(s)
	return e, err
}

// ParseEffectNamed parses the textual stack-effect form:
//
//	effect   := inputs "--" outputs
//	slot     := name? typechar* nullq? ('/' index)?
//	typechar := '#' number | '$' string | '[]' array | '{}' map | '?' quote
//	nullq    := '?'  (trailing: null allowed)
//
// Slots are whitespace-separated and listed bottom-of-stack first. A slot
// with no type characters admits any type. An output whose name matches an
// input's name denotes the same value, so its type mirrors that input at
// the call site. A '?' in final position means null-allowed; elsewhere it
// is the quote typechar.
//
// The returned names are the input slot names, top of stack first, aligned
// with Inputs; unnamed slots are "". Function-parameter headers use them.
func ParseEffectNamed(s string) (StackEffect, []string, error) {
	var effect StackEffect
	var inputNames []string
	inputs := true
	sawSep := false

	for _, token := range strings.Fields(s) {
		if token == "--" {
			if !inputs {
				return StackEffect{}, nil, fmt.Errorf("invalid stack effect %q: extra separator", s)
			}
			inputs = false
			sawSep = true
			continue
		}
		name, ts, match, err := parseEffectSlot(token)
		if err != nil {
			return StackEffect{}, nil, fmt.Errorf("invalid stack effect %q: %w", s, err)
		}
		if inputs {
			if match >= 0 {
				return StackEffect{}, nil, fmt.Errorf("invalid stack effect %q: input slot with match index", s)
			}
			effect.AddInput(ts)
			inputNames = append([]string{name}, inputNames...)
		} else {
			if match < 0 && name != "" {
				for k, in := range inputNames {
					if in == name {
						match = k
						break
					}
				}
			}
			if match >= 0 {
				if match >= len(effect.Inputs) {
					return StackEffect{}, nil, fmt.Errorf("invalid stack effect %q: match index %d out of range", s, match)
				}
				ts = ts.WithInputMatch(effect.Inputs[match], match)
			}
			effect.AddOutput(ts)
		}
	}
	if !sawSep {
		return StackEffect{}, nil, fmt.Errorf("invalid stack effect %q: missing separator", s)
	}
	effect.Max = effect.defaultMax(0)
	return effect, inputNames, nil
}

// MustEffect is ParseEffect for static declarations; it panics on error.
func MustEffect(s string) StackEffect {
	e, err := ParseEffect(s)
	if err != nil {
		panic(err)
	}
	return e
}

func parseEffectSlot(token string) (name string, ts TypeSet, match int, err error) {
	match = -1
	runes := []rune(token)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '#':
			ts = ts.With(TypeNumber)
		case c == '$':
			ts = ts.With(TypeString)
		case c == '[':
			if i+1 >= len(runes) || runes[i+1] != ']' {
				return "", ts, 0, fmt.Errorf("expected ']' after '[' in %q", token)
			}
			ts = ts.With(TypeArray)
			i++
		case c == '{':
			if i+1 >= len(runes) || runes[i+1] != '}' {
				return "", ts, 0, fmt.Errorf("expected '}' after '{' in %q", token)
			}
			ts = ts.With(TypeMap)
			i++
		case c == '?':
			if i == len(runes)-1 {
				ts = ts.With(TypeNull)
			} else {
				ts = ts.With(TypeQuote)
			}
		case c == '/':
			if i+1 >= len(runes) || runes[i+1] < '0' || runes[i+1] > '9' {
				return "", ts, 0, fmt.Errorf("expected digit after '/' in %q", token)
			}
			match = 0
			for i++; i < len(runes) && runes[i] >= '0' && runes[i] <= '9'; i++ {
				match = match*10 + int(runes[i]-'0')
			}
			i--
		case c == '_' || c >= '0' && c <= '9' ||
			c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
			name += string(c)
		default:
			return "", ts, 0, fmt.Errorf("unknown type symbol %q in %q", c, token)
		}
	}
	// No concrete type means any type is allowed, null included.
	if ts.typeFlags() == 0 {
		ts.flags |= typeFlagsMask | nullFlag
	}
	return name, ts, match, nil
}
