package compiler

import (
	"github.com/tails-lang/tails/vm"
)

// ---------------------------------------------------------------------------
// Linear code builder
// ---------------------------------------------------------------------------

// Pos identifies an instruction added to a Compiler. Positions are indices
// into the compiler's arena and stay valid as instructions are added,
// inserted or erased around them.
type Pos int

const noPos Pos = -1

// sourceWord is one IR node: a word reference plus the bookkeeping the
// branch resolver and the stack checker need. Nodes live in the compiler's
// arena and link into a doubly linked sequence through index fields, so
// the graph carries no Go pointers between nodes.
type sourceWord struct {
	ref          vm.WordRef
	srcPos       int // byte offset into the source text, or -1
	branchTo     Pos // branch destination, or noPos
	isBranchDest bool
	tailCall     bool         // non-native call rewritten to TAILINTERP
	rtInt        int          // operand resolved by the checker (GETARG, SETARG, DROPARGS)
	rtIntSet     bool
	known        *effectStack // checker state memoized at branch destinations
	pc           int          // byte offset in the assembled code
	prev, next   Pos
}

type branchMark struct {
	tag byte
	pos Pos
}

// Compiler assembles one interpreted word from a stream of word references.
// It resolves branches, inlines eligible callees, verifies and infers the
// word's stack effect, optimizes, and packs the result into flat code.
// A Compiler is single-use: build, Finish, discard.
type Compiler struct {
	name   string
	flags  vm.Flags
	effect vm.StackEffect

	// Whether the stack checker may extend the declared effect when the
	// code reaches deeper, or leaves more, than declared.
	canAddInputs  bool
	canAddOutputs bool

	arena      []sourceWord
	head, tail Pos // tail is the trailing NOP placeholder

	controlStack []branchMark
	localsTypes  []vm.TypeSet
	usesArgs     bool
	curToken     int // source offset used for control-stack errors
}

// NewCompiler returns an empty compiler for an unnamed word. The effect is
// fully extensible until SetStackEffect declares otherwise.
func NewCompiler() *Compiler {
	c := &Compiler{head: noPos, tail: noPos, canAddInputs: true, canAddOutputs: true}
	// The trailing placeholder: "next instruction" is always a real position.
	c.appendNode(sourceWord{ref: vm.WordRef{Word: vm.WordFor(vm.OpNop)}, srcPos: -1})
	return c
}

// NewNamedCompiler returns an empty compiler for a word that will register
// under the given name.
func NewNamedCompiler(name string) *Compiler {
	c := NewCompiler()
	c.name = name
	return c
}

// SetStackEffect declares what the word's stack effect must be. The checker
// reports a compile error if the code disagrees.
func (c *Compiler) SetStackEffect(e vm.StackEffect) {
	c.effect = e
	c.canAddInputs = false
	c.canAddOutputs = false
}

// SetExtensibleStackEffect declares a partial stack effect that the checker
// may grow: missing inputs or outputs are added instead of reported.
func (c *Compiler) SetExtensibleStackEffect(e vm.StackEffect, canAddInputs, canAddOutputs bool) {
	c.effect = e
	c.canAddInputs = canAddInputs
	c.canAddOutputs = canAddOutputs
}

// SetInputStack declares the inputs from an actual stack's contents, the
// way the REPL compiles against its persistent stack. Outputs stay open.
func (c *Compiler) SetInputStack(stack []vm.Value) {
	c.effect = vm.StackEffect{}
	for i := len(stack) - 1; i >= 0; i-- {
		c.effect.AddInputAtBottom(vm.TypeSetOf(stack[i].Type()))
	}
	c.canAddInputs = false
	c.canAddOutputs = true
}

// SetInline marks the word as expandable at its call sites.
func (c *Compiler) SetInline() { c.flags |= vm.FlagInline }

// PreserveArgs marks the word as reading its inputs in place rather than
// popping them; Finish appends the cleanup that removes them.
func (c *Compiler) PreserveArgs() { c.usesArgs = true }

// SetTokenPos records the source offset of the token being compiled, used
// for control-stack error messages.
func (c *Compiler) SetTokenPos(pos int) { c.curToken = pos }

// appendNode links a fresh node at the end of the sequence.
func (c *Compiler) appendNode(sw sourceWord) Pos {
	sw.branchTo = noPos
	sw.prev, sw.next = c.tail, noPos
	c.arena = append(c.arena, sw)
	p := Pos(len(c.arena) - 1)
	if c.tail != noPos {
		c.arena[c.tail].next = p
	} else {
		c.head = p
	}
	c.tail = p
	return p
}

func (c *Compiler) at(p Pos) *sourceWord { return &c.arena[p] }

// addRef writes the reference into the current placeholder and appends a
// fresh placeholder, so earlier positions captured at the end now denote
// this instruction.
func (c *Compiler) addRef(ref vm.WordRef, srcPos int) Pos {
	p := c.tail
	node := c.at(p)
	wasDest := node.isBranchDest
	node.ref = ref
	node.srcPos = srcPos
	node.isBranchDest = wasDest
	c.appendNode(sourceWord{ref: vm.WordRef{Word: vm.WordFor(vm.OpNop)}, srcPos: -1})
	return p
}

// Add compiles a call to a word. Inline words are expanded in place; magic
// words are rejected, since only the compiler itself may emit them.
func (c *Compiler) Add(w *vm.Word, srcPos int) (Pos, error) {
	if w.IsMagic() {
		return noPos, errAt(srcPos, "word %s is reserved for the compiler", w.Name)
	}
	if w.IsInline() {
		return c.AddInline(w, srcPos)
	}
	return c.addRef(vm.WordRef{Word: w}, srcPos), nil
}

// AddInline expands an inline word's body at the current position. Native
// words emit their single opcode; interpreted ones are walked through the
// disassembler with the trailing RETURN stripped.
func (c *Compiler) AddInline(w *vm.Word, srcPos int) (Pos, error) {
	if w.IsNative() {
		return c.addRef(vm.WordRef{Word: w}, srcPos), nil
	}
	if w.IsRecursive() {
		return noPos, errAt(srcPos, "cannot inline recursive word %s", w.Name)
	}
	start := c.tail
	refs, err := vm.Disassemble(w.Code)
	if err != nil {
		return noPos, errAt(srcPos, "cannot inline %s: %s", w.Name, err.Error())
	}
	for _, ref := range refs {
		switch {
		case ref.Word == vm.WordFor(vm.OpReturn):
			return start, nil
		case ref.Word.Op == vm.OpBranch || ref.Word.Op == vm.OpZBranch || ref.Word.Op == vm.OpRecurse:
			return noPos, errAt(srcPos, "cannot inline %s: body contains a branch", w.Name)
		}
		c.addRef(ref, srcPos)
	}
	return start, nil
}

// AddWithIntParam compiles a native word that takes an integer operand.
func (c *Compiler) AddWithIntParam(w *vm.Word, param int, srcPos int) Pos {
	return c.addRef(vm.WordRef{Word: w, Int: param}, srcPos)
}

// AddLiteral compiles an instruction pushing v. Small whole numbers pack
// into the INT opcode's inline operand; everything else rides in LITERAL.
func (c *Compiler) AddLiteral(v vm.Value, srcPos int) Pos {
	if v.IsNumber() {
		f := v.AsFloat()
		if n := int(f); float64(n) == f && n >= -32768 && n <= 32767 {
			return c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpInt), Int: n}, srcPos)
		}
	}
	return c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpLiteral), Val: v}, srcPos)
}

// AddGetArg compiles a read of a function argument (offset <= 0) or local
// variable (offset >= 1).
func (c *Compiler) AddGetArg(offset int, srcPos int) Pos {
	if offset <= 0 {
		c.usesArgs = true
	}
	return c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpGetArg), Int: offset}, srcPos)
}

// AddSetArg compiles a write of a function argument or local variable.
func (c *Compiler) AddSetArg(offset int, srcPos int) Pos {
	if offset <= 0 {
		c.usesArgs = true
	}
	return c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpSetArg), Int: offset}, srcPos)
}

// ReserveLocal allocates a local variable slot of the given type and
// returns its 1-based offset. The LOCALS instruction that reserves stack
// space at entry is inserted, or updated, at position 0.
func (c *Compiler) ReserveLocal(t vm.TypeSet) int {
	var locals *sourceWord
	if first := c.at(c.head); first.ref.Word.Op == vm.OpLocals && first.ref.Word.IsNative() {
		locals = first
	} else {
		// Insert LOCALS at the front of the sequence.
		c.arena = append(c.arena, sourceWord{
			ref:      vm.WordRef{Word: vm.WordFor(vm.OpLocals)},
			srcPos:   -1,
			branchTo: noPos,
			prev:     noPos,
			next:     c.head,
		})
		p := Pos(len(c.arena) - 1)
		c.at(c.head).prev = p
		c.head = p
		locals = c.at(p)
	}
	c.localsTypes = append(c.localsTypes, t)
	offset := len(c.localsTypes)
	locals.ref.Int = offset
	return offset
}

// AddRecurse compiles a recursive call to the word being compiled.
func (c *Compiler) AddRecurse(srcPos int) Pos {
	p := c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpRecurse), Int: -1}, srcPos)
	c.branchesTo(p, c.head)
	return p
}

// AddBranchBackTo compiles an unconditional branch to an earlier position.
func (c *Compiler) AddBranchBackTo(pos Pos, srcPos int) {
	p := c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpBranch), Int: -1}, srcPos)
	c.branchesTo(p, pos)
}

// PushBranch adds a branch instruction (or, with a nil word, marks the next
// position) and pushes it on the control stack under the given tag.
func (c *Compiler) PushBranch(tag byte, branch *vm.Word) Pos {
	var p Pos
	if branch != nil {
		p = c.addRef(vm.WordRef{Word: branch, Int: -1}, c.curToken)
	} else {
		p = c.tail // will denote the next instruction added
	}
	c.controlStack = append(c.controlStack, branchMark{tag, p})
	return p
}

// PopBranch pops the control stack, requiring the top tag to be one of the
// allowed characters, and returns the saved position.
func (c *Compiler) PopBranch(allowed string) (Pos, error) {
	if n := len(c.controlStack); n > 0 {
		top := c.controlStack[n-1]
		for i := 0; i < len(allowed); i++ {
			if allowed[i] == top.tag {
				c.controlStack = c.controlStack[:n-1]
				return top.pos, nil
			}
		}
	}
	return noPos, errAt(c.curToken, "no matching IF or WHILE")
}

// FixBranch retargets an earlier branch at the next instruction to be
// added, creating a forward branch.
func (c *Compiler) FixBranch(src Pos) {
	c.branchesTo(src, c.tail)
}

func (c *Compiler) branchesTo(src, dst Pos) {
	c.at(src).branchTo = dst
	c.at(dst).isBranchDest = true
}

// returnsImmediately reports whether execution at pos returns without
// further effect: a RETURN, or a BRANCH chain ending in one.
func (c *Compiler) returnsImmediately(pos Pos) bool {
	for {
		sw := c.at(pos)
		switch sw.ref.Word.Op {
		case vm.OpReturn:
			return sw.ref.Word.IsNative()
		case vm.OpBranch:
			if !sw.ref.Word.IsNative() {
				return false
			}
			pos = sw.branchTo
		default:
			return false
		}
	}
}

// Finish terminates the word, runs the stack checker, optimizes, assembles,
// and returns the finished word. Named words register in the current
// vocabulary. The compiler must not be used afterwards.
func (c *Compiler) Finish() (*vm.Word, error) {
	code, err := c.generateInstructions()
	if err != nil {
		return nil, err
	}
	w := vm.NewCompiledWord(c.name, c.flags, c.effect, code)
	return w, nil
}

func (c *Compiler) generateInstructions() ([]byte, error) {
	if len(c.controlStack) > 0 {
		return nil, errAt(c.curToken, "unfinished IF-ELSE-THEN or BEGIN-WHILE-REPEAT")
	}

	// A word that reads args in place, or has locals, must remove them
	// before returning; the checker fills in the result count.
	if c.usesArgs || len(c.localsTypes) > 0 {
		if n := len(c.effect.Inputs) + len(c.localsTypes); n > 0 {
			c.addRef(vm.WordRef{Word: vm.WordFor(vm.OpDropArgs), Int: n}, -1)
		}
	}

	// The trailing placeholder becomes the single RETURN.
	ret := c.at(c.tail)
	ret.ref = vm.WordRef{Word: vm.WordFor(vm.OpReturn)}

	// Verify typing and depth; infer the final stack effect.
	if err := c.checkStackEffect(); err != nil {
		return nil, err
	}

	// First pass: erase unreachable code, convert tail recursion, collapse
	// branch chains, and assign a pc offset to each survivor.
	{
		var sim vm.Assembler
		afterBranch := false
		for p := c.head; p != noPos; {
			sw := c.at(p)
			next := sw.next
			if afterBranch && !sw.isBranchDest {
				c.erase(p)
				p = next
				continue
			}
			if sw.ref.Word.Op == vm.OpRecurse && sw.ref.Word.IsNative() {
				if c.returnsImmediately(next) {
					// Tail recursion: plain jump back to the start.
					sw.ref.Word = vm.WordFor(vm.OpBranch)
				} else {
					c.flags |= vm.FlagRecursive
				}
			}
			if !sw.ref.Word.IsNative() && c.returnsImmediately(next) {
				sw.tailCall = true
			}
			if sw.branchTo != noPos {
				dst := sw.branchTo
				for c.at(dst).ref.Word.Op == vm.OpBranch && c.at(dst).ref.Word.IsNative() {
					dst = c.at(dst).branchTo
				}
				sw.branchTo = dst
			}
			sw.pc = sim.CodeSize()
			sim.Add(c.assemblyRef(sw))
			afterBranch = sw.ref.Word.IsNative() && sw.ref.Word.Op == vm.OpBranch
			p = next
		}
	}

	// Second pass: emit, with branch offsets now computable.
	var asm vm.Assembler
	for p := c.head; p != noPos; p = c.at(p).next {
		sw := c.at(p)
		ref := c.assemblyRef(sw)
		if sw.branchTo != noPos {
			target := c.at(sw.branchTo)
			ref.Int = target.pc - (sw.pc + 3) // operand relative to the next instruction
		}
		asm.Add(ref)
	}
	return asm.Finish(), nil
}

// assemblyRef maps an IR node to the reference the assembler encodes.
// Non-native calls in tail position become TAILINTERP.
func (c *Compiler) assemblyRef(sw *sourceWord) vm.WordRef {
	if sw.tailCall {
		return vm.WordRef{Word: vm.WordFor(vm.OpTailInterp), Target: sw.ref.Word}
	}
	ref := sw.ref
	if sw.rtIntSet {
		ref.Int = sw.rtInt
	}
	return ref
}

// erase unlinks a node from the sequence. Its arena slot stays allocated;
// nothing refers to it any more.
func (c *Compiler) erase(p Pos) {
	sw := c.at(p)
	if sw.prev != noPos {
		c.at(sw.prev).next = sw.next
	} else {
		c.head = sw.next
	}
	if sw.next != noPos {
		c.at(sw.next).prev = sw.prev
	} else {
		c.tail = sw.prev
	}
}
