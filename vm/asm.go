package vm

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction encoding
// ---------------------------------------------------------------------------

// Compiled code is a flat byte vector: each instruction is an opcode byte
// followed by its operand, if any (int16, Value or word handle, little
// endian). Calls to interpreted words are encoded as INTERP plus the
// callee's handle.

// WordRef is one decoded instruction: a word plus its operand. It is the
// unit the compiler's IR deals in and the unit the disassembler yields.
type WordRef struct {
	Word   *Word
	Int    int   // ParamInt operand
	Val    Value // ParamValue operand
	Target *Word // ParamWord operand
}

// HasParam reports whether the reference carries an operand (native words
// with operands, or a call to an interpreted word).
func (r WordRef) HasParam() bool {
	return r.Word.HasParam() || !r.Word.IsNative()
}

// instrSize returns the encoded size of an instruction in bytes.
func instrSize(op Opcode) int { return 1 + op.Param().OperandBytes() }

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// Assembler packs word references into flat code.
type Assembler struct {
	code []byte
}

// CodeSize returns the number of bytes emitted so far.
func (a *Assembler) CodeSize() int { return len(a.code) }

// Add appends one instruction. Interpreted words become INTERP plus the
// callee's handle.
func (a *Assembler) Add(ref WordRef) {
	w := ref.Word
	if !w.IsNative() {
		a.code = append(a.code, byte(OpInterp))
		a.addUint32(w.Handle())
		return
	}
	a.code = append(a.code, byte(w.Op))
	switch w.ParamKind() {
	case ParamInt:
		a.addUint16(uint16(int16(ref.Int)))
	case ParamValue:
		a.addUint64(uint64(ref.Val))
	case ParamWord:
		a.addUint32(ref.Target.Handle())
	}
}

func (a *Assembler) addUint16(v uint16) {
	a.code = binary.LittleEndian.AppendUint16(a.code, v)
}

func (a *Assembler) addUint32(v uint32) {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
}

func (a *Assembler) addUint64(v uint64) {
	a.code = binary.LittleEndian.AppendUint64(a.code, v)
}

// Finish returns the assembled code.
func (a *Assembler) Finish() []byte { return a.code }

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// Disassembler decodes flat code back into word references.
type Disassembler struct {
	code    []byte
	pc      int
	literal bool
}

func NewDisassembler(code []byte) *Disassembler {
	return &Disassembler{code: code}
}

// SetLiteral controls INTERP decoding: in literal mode an INTERP decodes as
// the INTERP word itself with its handle operand; otherwise it decodes as a
// reference to the callee.
func (d *Disassembler) SetLiteral(literal bool) { d.literal = literal }

// AtEnd reports whether the whole code vector has been decoded.
func (d *Disassembler) AtEnd() bool { return d.pc >= len(d.code) }

// Next decodes one instruction.
func (d *Disassembler) Next() (WordRef, error) {
	if d.AtEnd() {
		return WordRef{}, fmt.Errorf("disassembler ran off the end of the code")
	}
	op := Opcode(d.code[d.pc])
	if int(op) >= NumOpcodes {
		return WordRef{}, fmt.Errorf("invalid opcode %d at pc %d", op, d.pc)
	}
	w := OpWords[op]
	if d.pc+instrSize(op) > len(d.code) {
		return WordRef{}, fmt.Errorf("truncated operand for %s at pc %d", w.Name, d.pc)
	}
	ref := WordRef{Word: w}
	operand := d.code[d.pc+1:]
	switch w.ParamKind() {
	case ParamInt:
		ref.Int = int(int16(binary.LittleEndian.Uint16(operand)))
	case ParamValue:
		ref.Val = Value(binary.LittleEndian.Uint64(operand))
	case ParamWord:
		target := WordAt(binary.LittleEndian.Uint32(operand))
		if target == nil {
			return WordRef{}, fmt.Errorf("unknown word handle at pc %d", d.pc)
		}
		if op == OpInterp && !d.literal {
			ref = WordRef{Word: target}
		} else {
			ref.Target = target
		}
	}
	d.pc += instrSize(op)
	return ref, nil
}

// Disassemble decodes a whole body, including its trailing RETURN.
func Disassemble(code []byte) ([]WordRef, error) {
	d := NewDisassembler(code)
	var refs []WordRef
	for !d.AtEnd() {
		ref, err := d.Next()
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// DisassembleString renders a body as a readable one-liner, e.g.
// "INT:<3> INT:<4> + RETURN".
func DisassembleString(code []byte) string {
	refs, err := Disassemble(code)
	if err != nil {
		return "(" + err.Error() + ")"
	}
	var sb strings.Builder
	for i, ref := range refs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(ref.Word.Name)
		switch {
		case !ref.Word.IsNative():
			// call to an interpreted word; name says it all
		case ref.Word.ParamKind() == ParamInt:
			sb.WriteString(":<" + strconv.Itoa(ref.Int) + ">")
		case ref.Word.ParamKind() == ParamValue:
			sb.WriteString(":<" + ref.Val.String() + ">")
		case ref.Word.ParamKind() == ParamWord:
			name := ref.Target.Name
			if name == "" {
				name = "quote"
			}
			sb.WriteString(":<" + name + ">")
		}
	}
	return sb.String()
}
