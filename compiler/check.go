package compiler

import (
	"github.com/tails-lang/tails/vm"
)

// ---------------------------------------------------------------------------
// Stack-effect checker
// ---------------------------------------------------------------------------

// The checker runs a forward abstract interpretation over the compiler's IR
// before assembly. It simulates the stack at every instruction: each item is
// a set of possible types or, when known, an exact literal value. Control
// flow is traced through branches; states are memoized at branch
// destinations and joined when paths meet. On completion the compiler's
// declared effect has been verified, or extended where it was extensible.

// typeItem is one simulated stack slot: a TypeSet, or a literal Value whose
// exact identity matters (IFELSE needs the quotations themselves).
type typeItem struct {
	ts      vm.TypeSet
	lit     vm.Value
	literal bool
}

func itemOf(ts vm.TypeSet) typeItem { return typeItem{ts: ts} }

func itemOfLiteral(v vm.Value) typeItem { return typeItem{lit: v, literal: true} }

// types returns the slot's TypeSet; a literal quotation carries its word's
// known effect for CALL and IFELSE.
func (it typeItem) types() vm.TypeSet {
	if !it.literal {
		return it.ts
	}
	ts := vm.TypeSetOf(it.lit.Type())
	if q := it.lit.AsQuote(); q != nil {
		ts = ts.WithQuoteEffect(q.Effect)
	}
	return ts
}

func (it typeItem) equal(o typeItem) bool {
	if it.literal != o.literal {
		return false
	}
	if it.literal {
		return it.lit.Equal(o.lit)
	}
	return it.ts.SameTypes(o.ts)
}

// union joins two slots from merging control paths.
func (it typeItem) union(o typeItem) typeItem {
	if it.equal(o) {
		return it
	}
	return itemOf(it.types().Union(o.types()))
}

// effectStack simulates the runtime stack at compile time.
type effectStack struct {
	items        []typeItem // bottom first
	initialDepth int
	maxDepth     int
}

func newEffectStack(initial vm.StackEffect) *effectStack {
	st := &effectStack{}
	for i := len(initial.Inputs) - 1; i >= 0; i-- {
		st.items = append(st.items, itemOf(initial.Inputs[i]))
	}
	st.initialDepth = len(st.items)
	st.maxDepth = len(st.items)
	return st
}

func (st *effectStack) clone() *effectStack {
	c := *st
	c.items = append([]typeItem(nil), st.items...)
	return &c
}

func (st *effectStack) depth() int { return len(st.items) }

// at returns the item at depth i: 0 is the top of the stack.
func (st *effectStack) at(i int) (typeItem, error) {
	if i >= len(st.items) {
		return typeItem{}, errAt(-1, "stack underflow")
	}
	return st.items[len(st.items)-1-i], nil
}

func (st *effectStack) setAt(i int, it typeItem) {
	st.items[len(st.items)-1-i] = it
}

func (st *effectStack) push(it typeItem) {
	st.items = append(st.items, it)
	if d := len(st.items); d > st.maxDepth {
		st.maxDepth = d
	}
}

func (st *effectStack) pop() (typeItem, error) {
	top, err := st.at(0)
	if err != nil {
		return typeItem{}, err
	}
	st.items = st.items[:len(st.items)-1]
	return top, nil
}

// rotate emulates ROTn: positive n lifts the item at depth n to the top,
// negative n buries the top at depth -n.
func (st *effectStack) rotate(n int) error {
	if m := n; m < 0 {
		m = -m
		if st.depth() <= m {
			return errAt(-1, "stack underflow")
		}
	} else if st.depth() <= n {
		return errAt(-1, "stack underflow")
	}
	d := len(st.items)
	if n > 0 {
		it := st.items[d-1-n]
		copy(st.items[d-1-n:d-1], st.items[d-n:d])
		st.items[d-1] = it
	} else if n < 0 {
		m := -n
		it := st.items[d-1]
		copy(st.items[d-m:d], st.items[d-1-m:d-1])
		st.items[d-1-m] = it
	}
	return nil
}

// addAtBottom inserts a new input below everything, when deducing inputs.
func (st *effectStack) addAtBottom(ts vm.TypeSet) {
	st.items = append([]typeItem{itemOf(ts)}, st.items...)
	st.initialDepth++
	st.maxDepth++
}

func (st *effectStack) equal(o *effectStack) bool {
	if len(st.items) != len(o.items) {
		return false
	}
	for i := range st.items {
		if !st.items[i].equal(o.items[i]) {
			return false
		}
	}
	return true
}

// mergeWith joins this stack with the state arriving on another control
// path. Depths must agree; slot types union.
func (st *effectStack) mergeWith(o *effectStack) error {
	if st.depth() != o.depth() {
		return errAt(-1, "inconsistent stack depth at branch merge")
	}
	for i := range st.items {
		st.items[i] = st.items[i].union(o.items[i])
	}
	if o.maxDepth > st.maxDepth {
		st.maxDepth = o.maxDepth
	}
	return nil
}

// typeCheck verifies the top of the stack against a slot list, top first.
// On mismatch it returns the offending types and slot index.
func (st *effectStack) typeCheck(slots []vm.TypeSet) (vm.TypeSet, int, error) {
	for i, want := range slots {
		it, err := st.at(i)
		if err != nil {
			return vm.NoType, i, err
		}
		if bad := it.types().Minus(want); bad.Exists() {
			return bad, i, nil
		}
	}
	return vm.NoType, 0, nil
}

// apply consumes and produces stack items per a word's fixed effect.
func (st *effectStack) apply(w *vm.Word, effect vm.StackEffect) error {
	nIn := len(effect.Inputs)
	if nIn > st.depth() {
		return errAt(-1, "calling %s would underflow (%d needed, %d available)",
			w.Name, nIn, st.depth())
	}
	if bad, i, err := st.typeCheck(effect.Inputs); err != nil {
		return err
	} else if bad.Exists() {
		return errAt(-1, "type mismatch passing %s to %s (depth %d)", bad, w.Name, i)
	}

	inputs := make([]typeItem, nIn)
	for i := range inputs {
		inputs[i], _ = st.at(i)
	}

	// Peak depth while the word runs, then its net effect.
	if !effect.MaxIsUnknown() {
		if peak := st.depth() - nIn + effect.Max; peak > st.maxDepth {
			st.maxDepth = peak
		}
	} else {
		st.maxDepth = vm.UnknownMax
	}
	st.items = st.items[:st.depth()-nIn]
	for i := len(effect.Outputs) - 1; i >= 0; i-- {
		out := effect.Outputs[i]
		if k := out.InputMatch(); k >= 0 && k < nIn {
			st.push(inputs[k])
		} else {
			st.push(itemOf(out))
		}
	}
	return nil
}

// checkOutputs verifies the state reaching RETURN against the declared
// outputs, extending them where the effect is extensible.
func (st *effectStack) checkOutputs(effect *vm.StackEffect, canAddOutputs bool) error {
	nOut := len(effect.Outputs)
	if nOut > st.depth() {
		return errAt(-1, "insufficient outputs: have %d, declared %d", st.depth(), nOut)
	}
	if canAddOutputs {
		for i := 0; i < nOut; i++ {
			it, _ := st.at(i)
			effect.Outputs[i] = effect.Outputs[i].Union(it.types())
		}
	} else if bad, i, err := st.typeCheck(effect.Outputs); err != nil {
		return err
	} else if bad.Exists() {
		return errAt(-1, "output type mismatch: cannot return %s as %s (depth %d)",
			bad, effect.Outputs[i], i)
	}
	for i := nOut; i < st.depth(); i++ {
		if !canAddOutputs {
			return errAt(-1, "too many outputs: have %d, declared %d", st.depth(), nOut)
		}
		it, _ := st.at(i)
		effect.AddOutputAtBottom(it.types())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

// checkStackEffect traces every control path through the IR, verifying each
// instruction's typing and depth and inferring the word's overall effect.
func (c *Compiler) checkStackEffect() error {
	return c.checkFrom(c.head, newEffectStack(c.effect))
}

func (c *Compiler) checkFrom(p Pos, st *effectStack) error {
	for {
		sw := c.at(p)

		// Merge flows of control at branch destinations.
		if sw.isBranchDest {
			if sw.known != nil {
				if sw.known.equal(st) {
					return nil // this path already checked with this state
				}
				if err := withPos(st.mergeWith(sw.known), sw.srcPos); err != nil {
					return err
				}
				sw.known = st.clone()
			} else {
				sw.known = st.clone()
			}
		}

		if err := withPos(c.checkInstruction(sw, st), sw.srcPos); err != nil {
			return err
		}

		op, native := sw.ref.Word.Op, sw.ref.Word.IsNative()
		switch {
		case native && op == vm.OpReturn:
			return nil
		case native && op == vm.OpBranch:
			p = sw.branchTo
		case native && op == vm.OpZBranch:
			// Follow the fall-through case, then the branch.
			if err := c.checkFrom(sw.next, st.clone()); err != nil {
				return err
			}
			p = sw.branchTo
		default:
			p = sw.next
		}
	}
}

// checkInstruction applies one instruction's compile-time behavior to the
// simulated stack. Opcodes with fixed effects share the default path; the
// magic ones each get their own handling.
func (c *Compiler) checkInstruction(sw *sourceWord, st *effectStack) error {
	w := sw.ref.Word
	if !w.IsNative() {
		return c.defaultCheck(sw, st, w.Effect)
	}
	switch w.Op {
	case vm.OpLiteral:
		st.push(itemOfLiteral(sw.ref.Val))
		return nil
	case vm.OpInt:
		st.push(itemOfLiteral(vm.FromInt(sw.ref.Int)))
		return nil
	case vm.OpRotN:
		return st.rotate(sw.ref.Int)
	case vm.OpGetArg, vm.OpSetArg:
		return c.checkArgAccess(sw, st)
	case vm.OpLocals:
		for n := sw.ref.Int; n > 0; n-- {
			st.push(itemOf(vm.NoType)) // typed on first assignment
		}
		return nil
	case vm.OpDropArgs:
		return c.checkDropArgs(sw, st)
	case vm.OpCall:
		return c.checkCall(sw, st)
	case vm.OpIfElse:
		return c.checkIfElse(sw, st)
	case vm.OpReturn:
		if err := st.checkOutputs(&c.effect, c.canAddOutputs); err != nil {
			return err
		}
		c.canAddOutputs = false
		if st.maxDepth > c.effect.Max {
			c.effect = c.effect.WithMax(st.maxDepth)
		}
		return nil
	case vm.OpRecurse:
		return c.checkRecurse(sw, st)
	default:
		if w.Effect.IsWeird() {
			return errAt(sw.srcPos, "stack effect of %s is not known here", w.Name)
		}
		return c.defaultCheck(sw, st, w.Effect)
	}
}

// defaultCheck applies a fixed effect. If the word's inputs reach deeper
// than the stack and the compiled word's inputs are extensible, the missing
// slots become inputs of the word being compiled.
func (c *Compiler) defaultCheck(sw *sourceWord, st *effectStack, effect vm.StackEffect) error {
	if effect.IsWeird() {
		return errAt(sw.srcPos, "stack effect of %s is not known here", sw.ref.Word.Name)
	}
	if c.canAddInputs {
		for i := st.depth(); i < len(effect.Inputs); i++ {
			entry := effect.Inputs[i]
			st.addAtBottom(entry)
			c.effect.AddInputAtBottom(entry)
		}
	}
	return st.apply(sw.ref.Word, effect)
}

// checkArgAccess types a GETARG or SETARG and resolves its operand from an
// argument or local index into a runtime stack offset.
func (c *Compiler) checkArgAccess(sw *sourceWord, st *effectStack) error {
	isGet := sw.ref.Word.Op == vm.OpGetArg
	if offset := sw.ref.Int; offset <= 0 {
		// Function argument. Arguments sit below everything pushed since
		// entry, so the operand shifts by the depth gained.
		sw.rtInt = offset - (st.depth() - len(c.effect.Inputs))
		sw.rtIntSet = true
		argType := c.effect.Inputs[-offset]
		if isGet {
			st.push(itemOf(argType))
			return nil
		}
		return st.apply(sw.ref.Word, vm.NewEffect([]vm.TypeSet{argType}, nil))
	}

	// Local variable: 1-based slot above the arguments.
	slot := sw.ref.Int
	sw.rtInt = slot - (st.depth() - len(c.effect.Inputs))
	sw.rtIntSet = true
	depth := st.depth() - len(c.effect.Inputs) - slot
	local, err := st.at(depth)
	if err != nil {
		return err
	}
	if isGet {
		if !local.types().Exists() {
			return errAt(sw.srcPos, "reading local before it has a value")
		}
		st.push(local)
		return nil
	}
	value, err := st.pop()
	if err != nil {
		return err
	}
	if localType := local.types(); localType.Exists() {
		if bad := value.types().Minus(localType); bad.Exists() {
			return errAt(sw.srcPos, "type mismatch assigning to local (%s)", bad)
		}
	} else {
		st.setAt(depth-1, itemOf(value.types())) // one shallower now that the value is popped
	}
	return nil
}

// checkDropArgs verifies the cleanup that removes arguments and locals,
// filling in how many results slide down over them.
func (c *Compiler) checkDropArgs(sw *sourceWord, st *effectStack) error {
	locals := sw.ref.Int
	results := st.depth() - locals
	if results < 0 {
		return errAt(sw.srcPos, "stack underflow")
	}
	if !c.canAddOutputs && results != len(c.effect.Outputs) {
		return errAt(sw.srcPos, "should return %d values, not %d", len(c.effect.Outputs), results)
	}
	sw.rtInt = vm.PackDropCount(locals, results)
	sw.rtIntSet = true
	// Remove items at depths [results, results+locals).
	kept := append([]typeItem(nil), st.items[st.depth()-results:]...)
	st.items = append(st.items[:st.depth()-results-locals], kept...)
	return nil
}

// checkCall requires the callee on top of the stack to be a quotation with
// a known effect, and applies that effect.
func (c *Compiler) checkCall(sw *sourceWord, st *effectStack) error {
	callee, err := st.pop()
	if err != nil {
		return err
	}
	ts := callee.types()
	if bad := ts.Minus(vm.TypeSetOf(vm.TypeQuote)); bad.Exists() || !ts.Exists() {
		return errAt(sw.srcPos, "cannot call a value of type %s", ts)
	}
	qe := ts.QuoteEffect()
	if qe == nil {
		return errAt(sw.srcPos, "this quotation's stack effect is not known")
	}
	return st.apply(sw.ref.Word, *qe)
}

// checkRecurse treats the recursive call as a call to the declared effect.
// Only tail recursion keeps a bounded peak depth.
func (c *Compiler) checkRecurse(sw *sourceWord, st *effectStack) error {
	if c.canAddInputs || c.canAddOutputs {
		return errAt(sw.srcPos, "RECURSE requires an explicit stack effect declaration")
	}
	next := c.effect
	if !c.returnsImmediately(sw.next) {
		if c.flags&vm.FlagInline != 0 {
			return errAt(sw.srcPos, "illegal recursion in an inline word")
		}
		next = next.WithUnknownMax()
	}
	return c.defaultCheck(sw, st, next)
}

// checkIfElse merges the effects of the two quotations on top of the stack.
// Both must be literal quotes so their effects are known at compile time.
func (c *Compiler) checkIfElse(sw *sourceWord, st *effectStack) error {
	quoteEffect := func(depth int) (vm.StackEffect, error) {
		it, err := st.at(depth)
		if err != nil {
			return vm.StackEffect{}, err
		}
		if qe := it.types().QuoteEffect(); qe != nil {
			return *qe, nil
		}
		return vm.StackEffect{}, errAt(sw.srcPos, "IFELSE must be preceded by two quotations")
	}
	a, err := quoteEffect(1)
	if err != nil {
		return err
	}
	b, err := quoteEffect(0)
	if err != nil {
		return err
	}
	if a.Net() != b.Net() {
		return errAt(sw.srcPos, "IFELSE quotations have inconsistent stack depths")
	}

	op := a.WithMax(0)
	for i, entry := range b.Inputs {
		if i < len(op.Inputs) {
			merged := entry.Intersect(op.Inputs[i])
			if !merged.Exists() {
				return errAt(sw.srcPos, "IFELSE quotations have incompatible parameter %d", i)
			}
			op.Inputs[i] = merged
		} else {
			op.AddInputAtBottom(entry)
		}
	}
	for i, entry := range b.Outputs {
		if i < len(op.Outputs) {
			op.Outputs[i] = op.Outputs[i].Union(entry)
		} else {
			op.AddOutputAtBottom(entry)
		}
	}

	// IFELSE itself consumes the test value and the two quotes.
	op.AddInput(vm.AnyType().With(vm.TypeNull))
	op.AddInput(vm.TypeSetOf(vm.TypeQuote))
	op.AddInput(vm.TypeSetOf(vm.TypeQuote))

	m := a.Max
	if b.Max > m {
		m = b.Max
	}
	op = op.WithMax(m)
	return c.defaultCheck(sw, st, op)
}
