package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ---------------------------------------------------------------------------
// Interpreter: threaded-code execution engine
// ---------------------------------------------------------------------------

// Interp executes compiled words against a value stack. The stack is owned
// by the caller and persists across runs, which is what a REPL wants.
//
// The compiler guarantees every word it produces has a consistent stack
// effect, so the dispatch loop performs no per-instruction checks; running
// a hand-built or corrupted body may panic, which is treated as a bug in
// the code's producer.
type Interp struct {
	Stack []Value

	// Out receives the output of the printing words. Defaults to stdout.
	Out io.Writer

	// Trace, if set, is called before each instruction with the opcode and
	// the current stack depth.
	Trace func(op Opcode, depth int)

	atLeftMargin bool
}

// NewInterp returns an interpreter with an empty stack.
func NewInterp() *Interp {
	return &Interp{Out: os.Stdout, atLeftMargin: true}
}

// reserve when a word's peak depth is unknown (non-tail recursion).
const unknownMaxReserve = 1 << 16

// Run executes a compiled word against the interpreter's stack.
func (in *Interp) Run(w *Word) error {
	if w.IsNative() {
		return fmt.Errorf("cannot run native word %s directly", w.Name)
	}
	if need := len(w.Effect.Inputs); len(in.Stack) < need {
		return fmt.Errorf("stack underflow: %s needs %d values, have %d",
			w.Name, need, len(in.Stack))
	}
	slack := w.Effect.Max
	if w.Effect.MaxIsUnknown() {
		slack = unknownMaxReserve
	}
	depth := len(in.Stack)
	st := make([]Value, depth+slack)
	copy(st, in.Stack)
	sp := in.exec(w.Code, 0, st, depth)
	in.Stack = st[:sp]
	return nil
}

// exec is the dispatch loop. It starts decoding code at pc with the stack
// pointer at sp and returns the stack pointer when the word RETURNs.
// Branches adjust pc; the operand of a branch is relative to the first byte
// after the operand itself.
func (in *Interp) exec(code []byte, pc int, st []Value, sp int) int {
	for {
		op := Opcode(code[pc])
		if in.Trace != nil {
			in.Trace(op, sp)
		}
		pc++
		switch op {

		// The absolute core
		case OpInterp:
			target := WordAt(binary.LittleEndian.Uint32(code[pc:]))
			pc += 4
			sp = in.exec(target.Code, 0, st, sp)
		case OpTailInterp:
			target := WordAt(binary.LittleEndian.Uint32(code[pc:]))
			code, pc = target.Code, 0
		case OpLiteral:
			st[sp] = Value(binary.LittleEndian.Uint64(code[pc:]))
			pc += 8
			sp++
		case OpInt:
			st[sp] = FromInt(int(int16(binary.LittleEndian.Uint16(code[pc:]))))
			pc += 2
			sp++
		case OpReturn:
			return sp
		case OpBranch:
			off := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2 + off
		case OpZBranch:
			off := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			sp--
			if !st[sp].Truthy() {
				pc += off
			}
		case OpNop:
			// placeholder only
		case OpRecurse:
			off := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			sp = in.exec(code, pc+off, st, sp)

		// Stack gymnastics
		case OpDrop:
			sp--
		case OpDup:
			st[sp] = st[sp-1]
			sp++
		case OpOver:
			st[sp] = st[sp-2]
			sp++
		case OpRot:
			st[sp-3], st[sp-2], st[sp-1] = st[sp-2], st[sp-1], st[sp-3]
		case OpRotN:
			n := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			if n > 0 {
				newTop := st[sp-1-n]
				copy(st[sp-1-n:sp-1], st[sp-n:sp])
				st[sp-1] = newTop
			} else if n < 0 {
				m := -n
				oldTop := st[sp-1]
				copy(st[sp-m:sp], st[sp-1-m:sp-1])
				st[sp-1-m] = oldTop
			}
		case OpSwap:
			st[sp-2], st[sp-1] = st[sp-1], st[sp-2]

		// Constants
		case OpZero:
			st[sp] = FromInt(0)
			sp++
		case OpOne:
			st[sp] = FromInt(1)
			sp++

		// Relational
		case OpEq:
			st[sp-2] = FromBool(st[sp-2].Equal(st[sp-1]))
			sp--
		case OpNe:
			st[sp-2] = FromBool(!st[sp-2].Equal(st[sp-1]))
			sp--
		case OpEqZero:
			st[sp-1] = FromBool(st[sp-1].Equal(FromInt(0)))
		case OpNeZero:
			st[sp-1] = FromBool(!st[sp-1].Equal(FromInt(0)))
		case OpGe:
			st[sp-2] = FromBool(st[sp-2].Cmp(st[sp-1]) >= 0)
			sp--
		case OpGt:
			st[sp-2] = FromBool(st[sp-2].Cmp(st[sp-1]) > 0)
			sp--
		case OpGtZero:
			st[sp-1] = FromBool(st[sp-1].Cmp(FromInt(0)) > 0)
		case OpLe:
			st[sp-2] = FromBool(st[sp-2].Cmp(st[sp-1]) <= 0)
			sp--
		case OpLt:
			st[sp-2] = FromBool(st[sp-2].Cmp(st[sp-1]) < 0)
			sp--
		case OpLtZero:
			st[sp-1] = FromBool(st[sp-1].Cmp(FromInt(0)) < 0)

		// Arithmetic
		case OpAbs:
			f := st[sp-1].AsFloat()
			if f < 0 {
				st[sp-1] = FromFloat(-f)
			}
		case OpMax:
			if st[sp-1].Cmp(st[sp-2]) > 0 {
				st[sp-2] = st[sp-1]
			}
			sp--
		case OpMin:
			if st[sp-1].Cmp(st[sp-2]) < 0 {
				st[sp-2] = st[sp-1]
			}
			sp--
		case OpDiv:
			st[sp-2] = st[sp-2].Div(st[sp-1])
			sp--
		case OpMod:
			st[sp-2] = st[sp-2].Mod(st[sp-1])
			sp--
		case OpMinus:
			st[sp-2] = st[sp-2].Sub(st[sp-1])
			sp--
		case OpMult:
			st[sp-2] = st[sp-2].Mul(st[sp-1])
			sp--
		case OpPlus:
			st[sp-2] = st[sp-2].Add(st[sp-1])
			sp--

		// Values, quotations, definitions
		case OpCall:
			quote := st[sp-1].AsQuote()
			sp--
			sp = in.exec(quote.Code, 0, st, sp)
		case OpNull:
			st[sp] = Null
			sp++
		case OpLength:
			st[sp-1] = st[sp-1].Length()
		case OpIfElse:
			chosen := st[sp-1] // else-quote
			if st[sp-3].Truthy() {
				chosen = st[sp-2]
			}
			sp -= 3
			sp = in.exec(chosen.AsQuote().Code, 0, st, sp)
		case OpDefine:
			name := st[sp-1].AsString()
			quote := st[sp-2].AsQuote()
			sp -= 2
			quote.NamedCopy(name)

		// Named function arguments and locals
		case OpGetArg:
			n := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			st[sp] = st[sp-1+n]
			sp++
		case OpSetArg:
			n := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			st[sp-1+n] = st[sp-1]
			sp--
		case OpLocals:
			n := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			for ; n > 0; n-- {
				st[sp] = Null
				sp++
			}
		case OpDropArgs:
			param := int(int16(binary.LittleEndian.Uint16(code[pc:])))
			pc += 2
			locals, results := UnpackDropCount(param)
			copy(st[sp-results-locals:], st[sp-results:sp])
			sp -= locals

		// I/O
		case OpPrint:
			sp--
			fmt.Fprint(in.Out, st[sp].DisplayString())
			in.atLeftMargin = false
		case OpSpace:
			fmt.Fprint(in.Out, " ")
			in.atLeftMargin = false
		case OpNewline:
			fmt.Fprintln(in.Out)
			in.atLeftMargin = true
		case OpNewlineQ:
			if !in.atLeftMargin {
				fmt.Fprintln(in.Out)
				in.atLeftMargin = true
			}

		default:
			panic(fmt.Sprintf("invalid opcode %d at pc %d", op, pc-1))
		}
	}
}
