package vm

import (
	"math"
	"strconv"
	"strings"
)

// Value represents a Tails value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-number values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Number: Native IEEE 754 double (if not a tagged NaN, it's a number)
//   - Null:   Quiet NaN + tagNull
//   - String: Quiet NaN + tagString + 48-bit handle
//   - Array:  Quiet NaN + tagArray + 48-bit handle
//   - Map:    Quiet NaN + tagMap + 48-bit handle
//   - Quote:  Quiet NaN + tagQuote + 48-bit handle
//
// Handles index process-wide object tables. There is no garbage collector;
// objects live for the life of the process, which matches the lifetime of
// the vocabulary entries that reference them.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	tagBitsMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for the object handle
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagNull   uint64 = 0x0001000000000000
	tagString uint64 = 0x0002000000000000
	tagArray  uint64 = 0x0003000000000000
	tagMap    uint64 = 0x0004000000000000
	tagQuote  uint64 = 0x0005000000000000
)

// Null is the distinguished null value.
const Null = Value(nanBits | tagNull)

// Type is the dynamic type of a Value.
type Type uint8

const (
	TypeNumber Type = iota
	TypeString
	TypeArray
	TypeMap
	TypeQuote
	TypeNull
)

var typeNames = [...]string{"number", "string", "array", "map", "quote", "null"}

func (t Type) String() string { return typeNames[t] }

// Object tables backing string/array/map/quote handles. Single-threaded by
// contract: callers must serialize compilation and execution.
var heap struct {
	strings []string
	arrays  [][]Value
	maps    []map[Value]Value
	quotes  []*Word
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromFloat boxes a float64. A real NaN is canonicalized so it cannot alias
// a tagged value.
func FromFloat(f float64) Value {
	if math.IsNaN(f) {
		return Value(nanBits)
	}
	return Value(math.Float64bits(f))
}

// FromInt boxes an integer.
func FromInt(i int) Value { return FromFloat(float64(i)) }

// FromBool boxes a truth value as the number 1 or 0.
func FromBool(b bool) Value {
	if b {
		return FromInt(1)
	}
	return FromInt(0)
}

// FromString boxes a string, allocating a new handle.
func FromString(s string) Value {
	heap.strings = append(heap.strings, s)
	return Value(nanBits | tagString | uint64(len(heap.strings)-1))
}

// FromArray boxes an array, allocating a new handle. The slice is not copied.
func FromArray(items []Value) Value {
	heap.arrays = append(heap.arrays, items)
	return Value(nanBits | tagArray | uint64(len(heap.arrays)-1))
}

// FromMap boxes a map, allocating a new handle. The map is not copied.
func FromMap(m map[Value]Value) Value {
	heap.maps = append(heap.maps, m)
	return Value(nanBits | tagMap | uint64(len(heap.maps)-1))
}

// FromQuote boxes a word as a quotation value.
func FromQuote(w *Word) Value {
	heap.quotes = append(heap.quotes, w)
	return Value(nanBits | tagQuote | uint64(len(heap.quotes)-1))
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

func (v Value) tag() uint64 {
	bits := uint64(v)
	if bits&nanBits != nanBits {
		return 0
	}
	return bits & tagBitsMask
}

// IsNumber returns true if v holds a double (including ±Inf and real NaN).
func (v Value) IsNumber() bool { return v.tag() == 0 }

// IsNull returns true if v is the null value.
func (v Value) IsNull() bool { return v.tag() == tagNull }

func (v Value) IsString() bool { return v.tag() == tagString }
func (v Value) IsArray() bool  { return v.tag() == tagArray }
func (v Value) IsMap() bool    { return v.tag() == tagMap }
func (v Value) IsQuote() bool  { return v.tag() == tagQuote }

// Type returns the dynamic type of v.
func (v Value) Type() Type {
	switch v.tag() {
	case tagNull:
		return TypeNull
	case tagString:
		return TypeString
	case tagArray:
		return TypeArray
	case tagMap:
		return TypeMap
	case tagQuote:
		return TypeQuote
	default:
		return TypeNumber
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Value) handle() int { return int(uint64(v) & payloadMask) }

// AsFloat returns the numeric value, or 0 for non-numbers.
func (v Value) AsFloat() float64 {
	if !v.IsNumber() {
		return 0
	}
	return math.Float64frombits(uint64(v))
}

// AsInt returns the numeric value truncated to an int.
func (v Value) AsInt() int { return int(v.AsFloat()) }

// AsString returns the string contents, or "" for non-strings.
func (v Value) AsString() string {
	if !v.IsString() {
		return ""
	}
	return heap.strings[v.handle()]
}

// AsArray returns the array contents, or nil for non-arrays.
func (v Value) AsArray() []Value {
	if !v.IsArray() {
		return nil
	}
	return heap.arrays[v.handle()]
}

// AsMap returns the map contents, or nil for non-maps.
func (v Value) AsMap() map[Value]Value {
	if !v.IsMap() {
		return nil
	}
	return heap.maps[v.handle()]
}

// AsQuote returns the quoted word, or nil for non-quotes.
func (v Value) AsQuote() *Word {
	if !v.IsQuote() {
		return nil
	}
	return heap.quotes[v.handle()]
}

// Truthy reports the truth value: false iff v is numerically zero or null.
func (v Value) Truthy() bool {
	if v.IsNull() {
		return false
	}
	if v.IsNumber() {
		return v.AsFloat() != 0
	}
	return true
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// Equal reports deep equality. Strings and arrays compare by content,
// quotes by identity.
func (v Value) Equal(o Value) bool { return v.Cmp(o) == 0 }

func cmpFloat(a, b float64) int {
	switch {
	case a == b:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

// Cmp returns -1, 0 or 1. Ordering is total: values of different types
// order by type tag; within a type the ordering is the natural one
// (quotes and maps order arbitrarily but consistently by handle).
func (v Value) Cmp(o Value) int {
	t, ot := v.Type(), o.Type()
	if t != ot {
		return int(t) - int(ot)
	}
	switch t {
	case TypeNull:
		return 0
	case TypeNumber:
		return cmpFloat(v.AsFloat(), o.AsFloat())
	case TypeString:
		return strings.Compare(v.AsString(), o.AsString())
	case TypeArray:
		a, b := v.AsArray(), o.AsArray()
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		for i := 0; i < n; i++ {
			if c := a[i].Cmp(b[i]); c != 0 {
				return c
			}
		}
		return len(a) - len(b)
	default:
		return v.handle() - o.handle()
	}
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Length returns the length of a string, array or map; null otherwise.
func (v Value) Length() Value {
	switch v.Type() {
	case TypeString:
		return FromInt(len(v.AsString()))
	case TypeArray:
		return FromInt(len(v.AsArray()))
	case TypeMap:
		return FromInt(len(v.AsMap()))
	default:
		return Null
	}
}

// Add implements `+`: numeric addition, string concatenation, or appending
// an item to an array. Anything else yields null.
func (v Value) Add(o Value) Value {
	switch {
	case v.IsNumber() && o.IsNumber():
		return FromFloat(v.AsFloat() + o.AsFloat())
	case v.IsString() && o.IsString():
		s1, s2 := v.AsString(), o.AsString()
		if s1 == "" {
			return o
		}
		if s2 == "" {
			return v
		}
		return FromString(s1 + s2)
	case v.IsArray():
		old := v.AsArray()
		items := make([]Value, len(old), len(old)+1)
		copy(items, old)
		return FromArray(append(items, o))
	default:
		return Null
	}
}

func (v Value) Sub(o Value) Value { return FromFloat(v.AsFloat() - o.AsFloat()) }
func (v Value) Mul(o Value) Value { return FromFloat(v.AsFloat() * o.AsFloat()) }
func (v Value) Div(o Value) Value { return FromFloat(v.AsFloat() / o.AsFloat()) }

// Mod implements integer modulo; modulo by zero yields null.
func (v Value) Mod(o Value) Value {
	d := o.AsInt()
	if d == 0 {
		return Null
	}
	return FromInt(v.AsInt() % d)
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// String renders the value the way the REPL prints it.
func (v Value) String() string {
	switch v.Type() {
	case TypeNull:
		return "null"
	case TypeNumber:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case TypeString:
		return `"` + v.AsString() + `"`
	case TypeArray:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, item := range v.AsArray() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(item.String())
		}
		sb.WriteByte('}')
		return sb.String()
	case TypeMap:
		return "{map of " + strconv.Itoa(len(v.AsMap())) + "}"
	default:
		w := v.AsQuote()
		if w != nil && w.Name != "" {
			return "[" + w.Name + "]"
		}
		return "[quote]"
	}
}

// DisplayString renders the value for the PRINT word: like String, but
// strings print their raw contents without quotes.
func (v Value) DisplayString() string {
	if v.IsString() {
		return v.AsString()
	}
	return v.String()
}
