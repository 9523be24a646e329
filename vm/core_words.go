package vm

// ---------------------------------------------------------------------------
// Core word registry
// ---------------------------------------------------------------------------

// Reference: <https://forth-standard.org/standard/core>

// coreWordDefs is the single source of truth for the native words: one
// record per opcode, in opcode order. The OpWords table, the core
// vocabulary and the disassembler's names are derived from it; the Opcode
// constants in opcodes.go must list the opcodes in the same order, which
// buildCore checks at startup. The run-time behavior of each opcode lives in the interpreter's
// dispatch loop.
var coreWordDefs = []struct {
	op     Opcode
	name   string
	effect StackEffect
	flags  Flags
}{
	// The absolute core. All but NOP are magic: the compiler emits them,
	// source code cannot name them.
	{OpInterp, "INTERP", WeirdEffect(), FlagMagic | FlagWordParam},
	{OpTailInterp, "TAILINTERP", WeirdEffect(), FlagMagic | FlagWordParam},
	{OpLiteral, "LITERAL", MustEffect("-- a"), FlagMagic | FlagValParam},
	{OpInt, "INT", MustEffect("-- #"), FlagMagic | FlagIntParam},
	{OpReturn, "RETURN", MustEffect("--"), FlagMagic},
	{OpBranch, "BRANCH", MustEffect("--"), FlagMagic | FlagIntParam},
	{OpZBranch, "0BRANCH", MustEffect("a --"), FlagMagic | FlagIntParam},
	{OpNop, "NOP", MustEffect("--"), 0},
	{OpRecurse, "RECURSE", WeirdEffect(), FlagMagic | FlagIntParam},

	// Stack gymnastics
	{OpDrop, "DROP", MustEffect("a --"), 0},
	{OpDup, "DUP", MustEffect("a -- a a"), 0},
	{OpOver, "OVER", MustEffect("a b -- a b a"), 0},
	{OpRot, "ROT", MustEffect("a b c -- b c a"), 0},
	{OpRotN, "ROTN", WeirdEffect(), FlagMagic | FlagIntParam},
	{OpSwap, "SWAP", MustEffect("a b -- b a"), 0},

	// Constants
	{OpZero, "0", MustEffect("-- #"), 0},
	{OpOne, "1", MustEffect("-- #"), 0},

	// Relational. Comparisons produce the number 1 or 0.
	{OpEq, "=", MustEffect("a b -- #"), 0},
	{OpNe, "<>", MustEffect("a b -- #"), 0},
	{OpEqZero, "0=", MustEffect("a -- #"), 0},
	{OpNeZero, "0<>", MustEffect("a -- #"), 0},
	{OpGe, ">=", MustEffect("a b -- #"), 0},
	{OpGt, ">", MustEffect("a b -- #"), 0},
	{OpGtZero, "0>", MustEffect("a -- #"), 0},
	{OpLe, "<=", MustEffect("a b -- #"), 0},
	{OpLt, "<", MustEffect("a b -- #"), 0},
	{OpLtZero, "0<", MustEffect("a -- #"), 0},

	// Arithmetic
	{OpAbs, "ABS", MustEffect("# -- #"), 0},
	{OpMax, "MAX", MustEffect("a b -- a"), 0},
	{OpMin, "MIN", MustEffect("a b -- a"), 0},
	{OpDiv, "/", MustEffect("# # -- #"), 0},
	{OpMod, "MOD", MustEffect("# # -- #"), 0},
	{OpMinus, "-", MustEffect("# # -- #"), 0},
	{OpMult, "*", MustEffect("# # -- #"), 0},
	{OpPlus, "+", MustEffect("a#$[] b#$[] -- a"), 0},

	// Values, quotations, definitions. The real effects of CALL and IFELSE
	// are those of the quotations they run; the checker special-cases them
	// and accepts only quotations whose effects it knows.
	{OpCall, "CALL", WeirdEffect(), 0},
	{OpNull, "NULL", MustEffect("-- ?"), 0},
	{OpLength, "LENGTH", MustEffect("x$[]{} -- #"), 0},
	{OpIfElse, "IFELSE", WeirdEffect(), 0},
	{OpDefine, "DEFINE", defineEffect(), 0},

	// Named function arguments and locals
	{OpGetArg, "GETARG", WeirdEffect(), FlagMagic | FlagIntParam},
	{OpSetArg, "SETARG", WeirdEffect(), FlagMagic | FlagIntParam},
	{OpLocals, "LOCALS", WeirdEffect(), FlagMagic | FlagIntParam},
	{OpDropArgs, "DROPARGS", WeirdEffect(), FlagMagic | FlagIntParam},

	// I/O
	{OpPrint, ".", MustEffect("a --"), 0},
	{OpSpace, "SP.", MustEffect("--"), 0},
	{OpNewline, "NL.", MustEffect("--"), 0},
	{OpNewlineQ, "NL?", MustEffect("--"), 0},
}

// DEFINE pops a name string from the top and the quotation below it.
func defineEffect() StackEffect {
	return NewEffect([]TypeSet{TypeSetOf(TypeString), TypeSetOf(TypeQuote)}, nil)
}

// OpWords maps each opcode to the Word that implements it; used by the
// assembler, disassembler and stack checker.
var OpWords [NumOpcodes]*Word

// Core is the vocabulary of built-in words.
var Core = buildCore()

func buildCore() *Vocabulary {
	voc := NewVocabulary()
	for i, def := range coreWordDefs {
		if int(def.op) != i {
			// registry order must mirror the opcode enumeration
			panic("core word registry out of order: " + def.name)
		}
		w := &Word{
			Name:   def.name,
			Flags:  def.flags | FlagNative,
			Effect: def.effect,
			Op:     def.op,
		}
		OpWords[def.op] = w
		voc.Add(w)
	}
	return voc
}

// WordFor returns the native Word implementing an opcode.
func WordFor(op Opcode) *Word { return OpWords[op] }
