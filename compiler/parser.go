package compiler

import (
	"strings"
	"sync"

	"github.com/tails-lang/tails/vm"
)

// ---------------------------------------------------------------------------
// Pratt expression parser
// ---------------------------------------------------------------------------

// Parser compiles expression-syntax source ("3 + 4 * n") into a word,
// driving a Compiler as it goes. Most behavior lives in the Symbols of its
// table; the parser itself is the priority-driven core loop plus the
// services the symbol handlers call back into.
//
// A Parser is single-use, like the Compiler it wraps.
type Parser struct {
	symbols *SymbolTable // child of the built-in grammar; holds params and locals
	tokens  *Tokens
	comp    *Compiler
	effect  vm.StackEffect // the declared effect, from the parameter header
	source  string
}

// NewParser returns a parser over the built-in grammar.
func NewParser() *Parser {
	return &Parser{symbols: NewSymbolTable(grammar())}
}

// Parse compiles a top-level expression, with an optional leading
// parameter-list header "( a b# -- # )", into an anonymous word.
func (p *Parser) Parse(source string) (*vm.Word, error) {
	toks, err := LexExpression(source)
	if err != nil {
		return nil, err
	}
	p.tokens = toks
	p.source = source
	p.comp = NewCompiler()
	p.comp.SetExtensibleStackEffect(vm.StackEffect{}, false, true)

	if p.IfToken("(") {
		if looksLikeSignature(source[p.tokens.Pos():]) {
			if err := p.parseParamHeader(); err != nil {
				return nil, err
			}
		} else {
			p.tokens.BackUp() // an ordinary parenthesized expression
		}
	}

	if _, err := p.NextExpression(NoPriority); err != nil {
		return nil, err
	}
	if !p.tokens.AtEnd() {
		return nil, errAt(p.tokens.Pos(), "expected input to end here")
	}
	return p.comp.Finish()
}

// looksLikeSignature distinguishes a parameter header from a parenthesized
// expression: a header's parenthesis contains a "--" separator.
func looksLikeSignature(rest string) bool {
	if end := strings.IndexByte(rest, ')'); end >= 0 {
		return strings.Contains(rest[:end], "--")
	}
	return false
}

// parseParamHeader reads the signature between parentheses, declares the
// word's effect, and registers each named input as a parameter symbol.
func (p *Parser) parseParamHeader() error {
	start := p.tokens.Pos()
	end := strings.IndexByte(p.source[start:], ')')
	if end < 0 {
		return errAt(start, "missing ')' to end parameter list")
	}
	effect, names, err := vm.ParseEffectNamed(p.source[start : start+end])
	if err != nil {
		return errAt(start, "%s", err.Error())
	}
	// Skip tokens through the closing parenthesis.
	for {
		tok := p.tokens.Next()
		if !tok.Valid() {
			return errAt(start, "missing ')' to end parameter list")
		}
		if tok.Literal == ")" {
			break
		}
	}

	p.effect = effect
	p.comp.SetExtensibleStackEffect(effect, false, true)
	p.comp.PreserveArgs()
	for i, name := range names {
		if name == "" {
			return errAt(start, "unnamed parameter")
		}
		p.symbols.Add(paramSymbol(name, effect.Inputs[i], -i))
	}
	return nil
}

// NextExpression parses and compiles an expression, stopping before any
// operator binding looser than minPriority. Returns the expression's
// stack effect.
func (p *Parser) NextExpression(minPriority Priority) (vm.StackEffect, error) {
	var lhs vm.StackEffect
	var err error

	tok := p.tokens.Next()
	switch tok.Type {
	case TokenEOF:
		return lhs, errAt(tok.Pos, "unexpected end of input")
	case TokenNumber:
		lhs = p.CompileLiteral(vm.FromFloat(tok.Number))
	case TokenString:
		lhs = p.CompileLiteral(vm.FromString(tok.Str))
	default:
		sym := p.symbols.Get(tok.Literal)
		switch {
		case sym == nil:
			return lhs, errAt(tok.Pos, "unknown symbol %q", tok.Literal)
		case sym.hasParam:
			lhs, err = p.parseParam(sym, tok.Pos)
		case sym.IsPrefix():
			lhs, err = p.parsePrefix(sym)
		default:
			return lhs, errAt(tok.Pos, "%s cannot begin an expression", sym.Token)
		}
		if err != nil {
			return lhs, err
		}
	}

	for {
		tok := p.tokens.Peek()
		switch tok.Type {
		case TokenEOF:
			return lhs, nil
		case TokenNumber, TokenString:
			return lhs, errAt(tok.Pos, "expected an operator")
		}
		sym := p.symbols.Get(tok.Literal)
		if sym == nil {
			return lhs, errAt(tok.Pos, "unknown symbol %q", tok.Literal)
		}
		switch {
		case sym.IsPostfix() && sym.Postfix >= minPriority:
			p.tokens.Next()
			lhs, err = p.parsePostfix(sym, lhs)
		case sym.IsInfix() && sym.Left >= minPriority:
			p.tokens.Next()
			lhs, err = p.parseInfix(sym, lhs)
		default:
			return lhs, nil
		}
		if err != nil {
			return lhs, err
		}
	}
}

// ---------------------------------------------------------------------------
// Position handlers
// ---------------------------------------------------------------------------

func (p *Parser) parsePrefix(s *Symbol) (vm.StackEffect, error) {
	if s.prefixFn != nil {
		return s.prefixFn(p)
	}
	operand, err := p.NextExpression(s.Prefix)
	if err != nil {
		return vm.StackEffect{}, err
	}
	w := s.prefixWord
	if w == nil {
		w = s.word
	}
	return p.CompileCall(w, operand)
}

func (p *Parser) parseInfix(s *Symbol, lhs vm.StackEffect) (vm.StackEffect, error) {
	if s.infixFn != nil {
		return s.infixFn(lhs, p)
	}
	if s.word == nil {
		return vm.StackEffect{}, errAt(p.tokens.Pos(), "%s cannot be used here", s.Token)
	}
	rhs, err := p.NextExpression(s.Right)
	if err != nil {
		return vm.StackEffect{}, err
	}
	inputs, err := lhs.Then(rhs)
	if err != nil {
		return vm.StackEffect{}, errAt(p.tokens.Pos(), "%s", err.Error())
	}
	return p.CompileCall(s.word, inputs)
}

func (p *Parser) parsePostfix(s *Symbol, lhs vm.StackEffect) (vm.StackEffect, error) {
	if s.postfixFn != nil {
		return s.postfixFn(lhs, p)
	}
	return p.CompileCall(s.word, lhs)
}

// parseParam compiles a read of a parameter or local or, when an
// assignment operator follows, a write to it.
func (p *Parser) parseParam(s *Symbol, pos int) (vm.StackEffect, error) {
	if p.IfToken(":=") {
		rhs, err := p.NextExpression(10) // right priority of ':='
		if err != nil {
			return vm.StackEffect{}, err
		}
		if len(rhs.Inputs) != 0 || len(rhs.Outputs) != 1 {
			return vm.StackEffect{}, errAt(pos, "no value to assign to %s", s.Token)
		}
		p.comp.AddSetArg(s.param.offset, pos)
		return vm.StackEffect{}, nil
	}
	p.comp.AddGetArg(s.param.offset, pos)
	return vm.NewEffect(nil, []vm.TypeSet{s.param.types}), nil
}

// ---------------------------------------------------------------------------
// Services for symbol handlers
// ---------------------------------------------------------------------------

// Compiler exposes the underlying code builder to symbol handlers.
func (p *Parser) Compiler() *Compiler { return p.comp }

// Tokens exposes the token cursor to symbol handlers.
func (p *Parser) Tokens() *Tokens { return p.tokens }

// Symbols exposes the parse-local symbol table to symbol handlers.
func (p *Parser) Symbols() *SymbolTable { return p.symbols }

// IfToken consumes the next token if its text matches.
func (p *Parser) IfToken(literal string) bool {
	if p.tokens.Peek().Literal != literal {
		return false
	}
	p.tokens.Next()
	return true
}

// RequireToken consumes the next token, failing unless its text matches.
func (p *Parser) RequireToken(literal string) error {
	if p.IfToken(literal) {
		return nil
	}
	return errAt(p.tokens.Pos(), "expected %q", literal)
}

// CompileLiteral emits a push of the value and returns its effect.
func (p *Parser) CompileLiteral(v vm.Value) vm.StackEffect {
	p.comp.AddLiteral(v, p.tokens.Pos())
	return vm.NewEffect(nil, []vm.TypeSet{vm.TypeSetOf(v.Type())})
}

// CompileCall emits a call to the word and returns the combined effect of
// the operands followed by the call.
func (p *Parser) CompileCall(w *vm.Word, operands vm.StackEffect) (vm.StackEffect, error) {
	if len(w.Effect.Inputs) != len(operands.Outputs) {
		return vm.StackEffect{}, errAt(p.tokens.Pos(),
			"%s needs %d values, have %d", w.Name, len(w.Effect.Inputs), len(operands.Outputs))
	}
	if _, err := p.comp.Add(w, p.tokens.Pos()); err != nil {
		return vm.StackEffect{}, err
	}
	result, err := operands.Then(w.Effect)
	if err != nil {
		return vm.StackEffect{}, errAt(p.tokens.Pos(), "%s", err.Error())
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Built-in grammar
// ---------------------------------------------------------------------------

var (
	grammarOnce  sync.Once
	grammarTable *SymbolTable
)

// grammar returns the process-wide symbol table of built-in operators,
// built once on first use.
func grammar() *SymbolTable {
	grammarOnce.Do(initGrammar)
	return grammarTable
}

func initGrammar() {
	t := NewSymbolTable(nil)
	grammarTable = t

	// Grouping.
	t.Add(plainSymbol(")"))
	t.Add(plainSymbol("(").asPrefix(5, func(p *Parser) (vm.StackEffect, error) {
		x, err := p.NextExpression(5)
		if err != nil {
			return x, err
		}
		return x, p.RequireToken(")")
	}))

	// Sequencing: the left side's values are dropped.
	t.Add(plainSymbol(";").asInfix(0, 1, func(lhs vm.StackEffect, p *Parser) (vm.StackEffect, error) {
		if !p.tokens.Peek().Valid() {
			return lhs, nil // trailing ';' keeps the values
		}
		drop := vm.Core.Lookup("DROP")
		for i := len(lhs.Outputs); i > 0; i-- {
			if _, err := p.comp.Add(drop, p.tokens.Pos()); err != nil {
				return vm.StackEffect{}, err
			}
		}
		rhs, err := p.NextExpression(1)
		if err != nil {
			return vm.StackEffect{}, err
		}
		if len(rhs.Inputs) > 0 {
			return vm.StackEffect{}, errAt(p.tokens.Pos(), "stack underflow on right side of ';'")
		}
		return vm.NewEffect(lhs.Inputs, rhs.Outputs), nil
	}))

	// Conditional.
	t.Add(plainSymbol("else:"))
	t.Add(plainSymbol("if:").asInfix(5, 6, func(lhs vm.StackEffect, p *Parser) (vm.StackEffect, error) {
		if len(lhs.Outputs) != 1 {
			return vm.StackEffect{}, errAt(p.tokens.Pos(), "left side of 'if:' must have a value")
		}
		branch := p.comp.AddWithIntParam(vm.WordFor(vm.OpZBranch), -1, p.tokens.Pos())
		ifEffect, err := p.NextExpression(6)
		if err != nil {
			return vm.StackEffect{}, err
		}
		if p.IfToken("else:") {
			elsePos := p.comp.AddWithIntParam(vm.WordFor(vm.OpBranch), -1, p.tokens.Pos())
			p.comp.FixBranch(branch)
			branch = elsePos
			elseEffect, err := p.NextExpression(6)
			if err != nil {
				return vm.StackEffect{}, err
			}
			if len(elseEffect.Outputs) != len(ifEffect.Outputs) {
				return vm.StackEffect{}, errAt(p.tokens.Pos(),
					"'if:' and 'else:' clauses must return the same number of values")
			}
			for i := range ifEffect.Outputs {
				ifEffect.Outputs[i] = ifEffect.Outputs[i].Union(elseEffect.Outputs[i])
			}
		} else if len(ifEffect.Outputs) != 0 {
			return vm.StackEffect{}, errAt(p.tokens.Pos(), "'if:' without 'else:' cannot return a value")
		}
		p.comp.FixBranch(branch)
		return vm.NewEffect(lhs.Inputs, ifEffect.Outputs), nil
	}))

	// Local variable declaration.
	t.Add(plainSymbol("let").asPrefix(5, func(p *Parser) (vm.StackEffect, error) {
		tok := p.tokens.Next()
		if tok.Type != TokenIdentifier {
			return vm.StackEffect{}, errAt(tok.Pos, "expected a local variable name")
		}
		name := tok.Literal
		if p.symbols.ItselfHas(name) {
			return vm.StackEffect{}, errAt(tok.Pos, "%s is already a local variable", name)
		}
		if err := p.RequireToken("="); err != nil {
			return vm.StackEffect{}, err
		}
		rhs, err := p.NextExpression(1)
		if err != nil {
			return vm.StackEffect{}, err
		}
		if len(rhs.Inputs) != 0 || len(rhs.Outputs) != 1 {
			return vm.StackEffect{}, errAt(tok.Pos, "no value to assign to %s", name)
		}
		types := rhs.Outputs[0]
		offset := p.comp.ReserveLocal(types)
		p.symbols.Add(paramSymbol(name, types, offset))
		p.comp.AddSetArg(offset, tok.Pos)
		return vm.StackEffect{}, nil
	}))

	// Assignment operators. ':=' and '=' are parsed by the parameter
	// symbols themselves; registering them gives them priorities and
	// rejects them after anything that is not assignable.
	t.Add(plainSymbol(":=").asInfix(11, 10, nil))
	t.Add(plainSymbol("=").asInfix(21, 20, nil))

	// Operators, loosest first.
	eq := wordSymbol(vm.Core.Lookup("="))
	eq.Token = "=="
	t.Add(eq.asInfix(30, 31, nil))
	t.Add(comparison("<", "<"))
	t.Add(comparison("<=", "<="))
	t.Add(comparison(">", ">"))
	t.Add(comparison(">=", ">="))
	t.Add(wordSymbol(vm.Core.Lookup("+")).asInfix(50, 51, nil))
	minus := wordSymbol(vm.Core.Lookup("-")).asInfix(50, 51, nil)
	t.Add(minus.asPrefix(50, func(p *Parser) (vm.StackEffect, error) {
		// Unary negation compiles as 0 x -.
		zero := vm.Core.Lookup("0")
		if _, err := p.comp.Add(zero, p.tokens.Pos()); err != nil {
			return vm.StackEffect{}, err
		}
		operand, err := p.NextExpression(50)
		if err != nil {
			return vm.StackEffect{}, err
		}
		if len(operand.Inputs) != 0 || len(operand.Outputs) != 1 {
			return vm.StackEffect{}, errAt(p.tokens.Pos(), "invalid operand for prefix '-'")
		}
		lhs, err := zero.Effect.Then(operand)
		if err != nil {
			return vm.StackEffect{}, errAt(p.tokens.Pos(), "%s", err.Error())
		}
		return p.CompileCall(vm.Core.Lookup("-"), lhs)
	}))
	t.Add(wordSymbol(vm.Core.Lookup("*")).asInfix(60, 61, nil))
	t.Add(wordSymbol(vm.Core.Lookup("/")).asInfix(60, 61, nil))
}

func comparison(token, wordName string) *Symbol {
	s := wordSymbol(vm.Core.Lookup(wordName))
	s.Token = token
	return s.asInfix(40, 41, nil)
}
