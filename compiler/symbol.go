package compiler

import (
	"math"
	"strings"

	"github.com/tails-lang/tails/vm"
)

// ---------------------------------------------------------------------------
// Grammar symbols
// ---------------------------------------------------------------------------

// Priority is the binding priority of an operator in the Pratt parser.
// Higher binds tighter. NoPriority means "not applicable in this position".
type Priority int

const NoPriority Priority = math.MinInt

// PrefixFn parses a symbol appearing in prefix position and returns the
// stack effect of the expression it compiled.
type PrefixFn func(*Parser) (vm.StackEffect, error)

// InfixFn parses a symbol appearing after a left-hand expression, given
// that expression's effect. Postfix parsing uses the same shape.
type InfixFn func(vm.StackEffect, *Parser) (vm.StackEffect, error)

// Symbol is one entry in the grammar: a token, the priorities it binds with
// in each position, and how to parse it there. The grammar is data, not
// code: default handlers compile a call to the symbol's word, and only the
// structured forms (if:, let, ';', parentheses) and prefix '-' carry custom
// handlers.
type Symbol struct {
	Token string

	Prefix  Priority
	Left    Priority
	Right   Priority
	Postfix Priority

	word       *vm.Word // compiled by the default handlers
	prefixWord *vm.Word // distinct word in prefix position, if any

	prefixFn  PrefixFn
	infixFn   InfixFn
	postfixFn InfixFn

	param    fnParam // set when the symbol names a function parameter or local
	hasParam bool
}

// fnParam locates a function parameter or local variable on the stack:
// non-positive offsets are arguments (0 = topmost), positive are locals.
type fnParam struct {
	types  vm.TypeSet
	offset int
}

func wordSymbol(w *vm.Word) *Symbol { return (&Symbol{Token: w.Name, word: w}).init() }

func plainSymbol(token string) *Symbol { return (&Symbol{Token: token}).init() }

func (s *Symbol) init() *Symbol {
	s.Prefix, s.Left, s.Right, s.Postfix = NoPriority, NoPriority, NoPriority, NoPriority
	return s
}

// asPrefix gives the symbol a prefix binding, optionally with a custom
// handler; without one the default handler compiles the symbol's word.
func (s *Symbol) asPrefix(p Priority, fn PrefixFn) *Symbol {
	s.Prefix = p
	s.prefixFn = fn
	return s
}

// asInfix gives the symbol an infix binding. A right priority above the
// left makes it left-associative; below, right-associative.
func (s *Symbol) asInfix(left, right Priority, fn InfixFn) *Symbol {
	s.Left, s.Right = left, right
	s.infixFn = fn
	return s
}

// asPostfix gives the symbol a postfix binding.
func (s *Symbol) asPostfix(p Priority, fn InfixFn) *Symbol {
	s.Postfix = p
	s.postfixFn = fn
	return s
}

func (s *Symbol) IsPrefix() bool  { return s.Prefix != NoPriority }
func (s *Symbol) IsInfix() bool   { return s.Left != NoPriority }
func (s *Symbol) IsPostfix() bool { return s.Postfix != NoPriority }

// paramSymbol makes a symbol for a named function parameter or local. It
// binds tighter than every operator and compiles to a GETARG, or to a
// SETARG when ':=' follows.
func paramSymbol(name string, types vm.TypeSet, offset int) *Symbol {
	s := plainSymbol(name)
	s.param = fnParam{types: types, offset: offset}
	s.hasParam = true
	s.Prefix = 99
	return s
}

// ---------------------------------------------------------------------------
// Symbol table
// ---------------------------------------------------------------------------

// SymbolTable maps tokens to grammar symbols. Tables chain: lookups fall
// through to the parent, so each parse gets a child table for its
// parameters and locals over the shared built-in grammar.
type SymbolTable struct {
	parent  *SymbolTable
	symbols map[string]*Symbol
}

// NewSymbolTable returns an empty table inheriting from parent (may be nil).
func NewSymbolTable(parent *SymbolTable) *SymbolTable {
	return &SymbolTable{parent: parent, symbols: map[string]*Symbol{}}
}

// Add registers a symbol. Tokens are case-insensitive.
func (t *SymbolTable) Add(s *Symbol) {
	t.symbols[strings.ToUpper(s.Token)] = s
}

// Get looks up a token here and in ancestor tables; nil if absent.
func (t *SymbolTable) Get(token string) *Symbol {
	for tab := t; tab != nil; tab = tab.parent {
		if s, ok := tab.symbols[strings.ToUpper(token)]; ok {
			return s
		}
	}
	return nil
}

// ItselfHas reports whether this table, not an ancestor, defines the token.
func (t *SymbolTable) ItselfHas(token string) bool {
	_, ok := t.symbols[strings.ToUpper(token)]
	return ok
}
