package vm

import "strings"

// Flags describe a Word's calling convention and compile-time behavior.
type Flags uint8

const (
	FlagNative    Flags = 1 << iota // implemented by a native opcode
	FlagIntParam                    // followed by a 16-bit integer operand
	FlagValParam                    // followed by a boxed Value operand
	FlagWordParam                   // followed by a word-handle operand
	FlagMagic                       // compiler-emitted only; rejected in source
	FlagInline                      // body is expanded at the call site
	FlagRecursive                   // calls itself (set during compilation)
)

// Word is an immutable word definition: name, flags, stack effect, and
// either a native opcode or a compiled body. Named compiled words register
// themselves in the current vocabulary and live for the process lifetime.
type Word struct {
	Name   string
	Flags  Flags
	Effect StackEffect
	Op     Opcode // dispatch target when native
	Code   []byte // compiled body, ending in RETURN; nil when native
}

func (w *Word) Is(f Flags) bool   { return w.Flags&f != 0 }
func (w *Word) IsNative() bool    { return w.Is(FlagNative) }
func (w *Word) IsMagic() bool     { return w.Is(FlagMagic) }
func (w *Word) IsInline() bool    { return w.Is(FlagInline) }
func (w *Word) IsRecursive() bool { return w.Is(FlagRecursive) }

// ParamKind returns the kind of operand that follows this word's opcode.
func (w *Word) ParamKind() ParamKind {
	switch {
	case w.Is(FlagIntParam):
		return ParamInt
	case w.Is(FlagValParam):
		return ParamValue
	case w.Is(FlagWordParam):
		return ParamWord
	default:
		return ParamNone
	}
}

// HasParam reports whether the word's instruction carries an operand.
func (w *Word) HasParam() bool { return w.ParamKind() != ParamNone }

// NewCompiledWord constructs a compiled word and, if it has a name,
// registers it in the current vocabulary. Word names are case-insensitive
// and stored uppercased.
func NewCompiledWord(name string, flags Flags, effect StackEffect, code []byte) *Word {
	w := &Word{
		Name:   strings.ToUpper(name),
		Flags:  flags &^ FlagNative,
		Effect: effect,
		Code:   code,
	}
	if w.Name != "" {
		ActiveVocabularies.Current().Add(w)
	}
	return w
}

// NamedCopy returns a named registration of an existing compiled word,
// sharing its code and effect. Used by DEFINE.
func (w *Word) NamedCopy(name string) *Word {
	return NewCompiledWord(name, w.Flags, w.Effect, w.Code)
}

// ---------------------------------------------------------------------------
// Word handles
// ---------------------------------------------------------------------------

// Compiled code refers to words through stable 32-bit handles, so a body is
// a flat byte vector with no pointers. Handles are interned per *Word.
var (
	wordTable   []*Word
	wordHandles = map[*Word]uint32{}
)

// Handle interns the word and returns its handle.
func (w *Word) Handle() uint32 {
	if h, ok := wordHandles[w]; ok {
		return h
	}
	wordTable = append(wordTable, w)
	h := uint32(len(wordTable) - 1)
	wordHandles[w] = h
	return h
}

// WordAt resolves a handle back to its word; nil if out of range.
func WordAt(h uint32) *Word {
	if int(h) >= len(wordTable) {
		return nil
	}
	return wordTable[h]
}
