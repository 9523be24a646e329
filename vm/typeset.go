package vm

import "strings"

// TypeSet is a set of Value types. It describes one item, an input or
// output, in a word's stack effect. Besides the five type bits it can carry
// a null-allowed bit and, on outputs, an input-match index meaning "same
// concrete type as input slot k at the call site". A quote-typed entry can
// additionally carry the quote's known stack effect, which the checker uses
// for CALL and IFELSE.
type TypeSet struct {
	flags uint16
	quote *StackEffect
}

const (
	numTypeBits   = 5
	typeFlagsMask = 1<<numTypeBits - 1 // number..quote
	nullFlag      = 1 << numTypeBits
	matchShift    = numTypeBits + 1 // input-match index+1 lives above the flags
)

// NoType is the empty TypeSet.
var NoType = TypeSet{}

// AnyType returns a TypeSet admitting every type.
func AnyType() TypeSet { return TypeSet{flags: typeFlagsMask} }

// TypeSetOf returns a TypeSet admitting exactly the given types.
func TypeSetOf(types ...Type) TypeSet {
	var ts TypeSet
	for _, t := range types {
		ts = ts.With(t)
	}
	return ts
}

// With returns a copy that also admits type t.
func (ts TypeSet) With(t Type) TypeSet {
	if t == TypeNull {
		ts.flags |= nullFlag
	} else {
		ts.flags |= 1 << uint(t)
	}
	return ts
}

func (ts TypeSet) typeFlags() uint16 { return ts.flags & typeFlagsMask }

// Exists reports whether any type is admitted.
func (ts TypeSet) Exists() bool { return ts.flags&(typeFlagsMask|nullFlag) != 0 }

// CanBe reports whether type t is admitted.
func (ts TypeSet) CanBe(t Type) bool {
	if t == TypeNull {
		return ts.flags&nullFlag != 0
	}
	return ts.flags&(1<<uint(t)) != 0
}

// CanBeAny reports whether every (non-null) type is admitted.
func (ts TypeSet) CanBeAny() bool { return ts.typeFlags() == typeFlagsMask }

// CanBeNull reports whether null is admitted.
func (ts TypeSet) CanBeNull() bool { return ts.flags&nullFlag != 0 }

// MultiType reports whether more than one type is admitted.
func (ts TypeSet) MultiType() bool {
	t := ts.typeFlags()
	return t != 0 && t&(t-1) != 0
}

// FirstType returns the lowest admitted type.
func (ts TypeSet) FirstType() (Type, bool) {
	for i := Type(0); i < numTypeBits; i++ {
		if ts.flags&(1<<uint(i)) != 0 {
			return i, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Set algebra. These operate on the type bits (including null) and drop any
// input-match index, since a combined entry no longer mirrors one input.
// ---------------------------------------------------------------------------

const setMask = typeFlagsMask | nullFlag

// Union returns the types admitted by either set.
func (ts TypeSet) Union(o TypeSet) TypeSet {
	return TypeSet{flags: (ts.flags | o.flags) & setMask}
}

// Intersect returns the types admitted by both sets.
func (ts TypeSet) Intersect(o TypeSet) TypeSet {
	return TypeSet{flags: ts.flags & o.flags & setMask}
}

// Minus returns the types admitted by ts but not by o.
func (ts TypeSet) Minus(o TypeSet) TypeSet {
	return TypeSet{flags: ts.flags &^ o.flags & setMask}
}

// SameTypes reports whether both sets admit exactly the same types,
// ignoring input-match indexes and quote effects.
func (ts TypeSet) SameTypes(o TypeSet) bool {
	return ts.flags&setMask == o.flags&setMask
}

// ---------------------------------------------------------------------------
// Input matching
// ---------------------------------------------------------------------------

// InputMatch returns the input slot index this output entry mirrors,
// or -1 if none.
func (ts TypeSet) InputMatch() int {
	return int(ts.flags>>matchShift) - 1
}

// Match returns a copy declaring that this entry mirrors input slot k.
// Used when declaring built-in words, e.g. DUP's outputs.
func (ts TypeSet) Match(k int) TypeSet {
	ts.flags = ts.flags&setMask | uint16(k+1)<<matchShift
	return ts
}

// WithInputMatch returns a copy taking its types from the given input entry
// while remembering that it mirrors input slot k.
func (ts TypeSet) WithInputMatch(input TypeSet, k int) TypeSet {
	return TypeSet{flags: input.flags&setMask | uint16(k+1)<<matchShift, quote: input.quote}
}

// ---------------------------------------------------------------------------
// Quote effects
// ---------------------------------------------------------------------------

// WithQuoteEffect returns a copy carrying the known stack effect of the
// quotation this entry holds.
func (ts TypeSet) WithQuoteEffect(e StackEffect) TypeSet {
	ts.quote = &e
	return ts
}

// QuoteEffect returns the known effect of the quotation this entry holds,
// or nil.
func (ts TypeSet) QuoteEffect() *StackEffect { return ts.quote }

// String describes the admitted types, for error messages.
func (ts TypeSet) String() string {
	if ts.CanBeAny() {
		if ts.CanBeNull() {
			return "any?"
		}
		return "any"
	}
	var parts []string
	for i := Type(0); i < numTypeBits; i++ {
		if ts.CanBe(i) {
			parts = append(parts, i.String())
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	s := strings.Join(parts, "|")
	if ts.CanBeNull() {
		s += "?"
	}
	return s
}
