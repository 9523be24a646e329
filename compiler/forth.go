package compiler

import (
	"strings"

	"github.com/tails-lang/tails/vm"
)

// ---------------------------------------------------------------------------
// Forth-style surface syntax
// ---------------------------------------------------------------------------

// The classic whitespace-separated surface: each token is a word name or a
// literal, with IF/ELSE/THEN and BEGIN/WHILE/REPEAT compiling to branches,
// "[ ... ]" quote literals and "{ ... }" array literals. This is the
// syntax the REPL reads.

// Control-stack tags for the pending constructs.
const (
	tagIf    = 'i'
	tagElse  = 'e'
	tagBegin = 'b'
	tagWhile = 'w'
)

// ParseForth compiles Forth-style source into an anonymous word whose
// stack effect is inferred from the code.
func ParseForth(source string) (*vm.Word, error) {
	return parseForthWith(source, func(c *Compiler) {})
}

// ParseForthOnStack compiles Forth-style source to run against an existing
// stack: the stack's contents type the word's inputs, so the code may
// consume them but cannot reach deeper. The REPL compiles every line this
// way against its persistent stack.
func ParseForthOnStack(source string, stack []vm.Value) (*vm.Word, error) {
	return parseForthWith(source, func(c *Compiler) { c.SetInputStack(stack) })
}

func parseForthWith(source string, setup func(*Compiler)) (*vm.Word, error) {
	toks, err := LexForth(source)
	if err != nil {
		return nil, err
	}
	f := &forthParser{toks: toks}
	c := NewCompiler()
	setup(c)
	if err := f.compileInto(c, false); err != nil {
		return nil, err
	}
	return c.Finish()
}

type forthParser struct {
	toks *Tokens
}

// compileInto compiles tokens into c until end of input or, inside a quote
// literal, the closing bracket.
func (f *forthParser) compileInto(c *Compiler, insideQuote bool) error {
	for {
		tok := f.toks.Next()
		c.SetTokenPos(tok.Pos)
		switch {
		case !tok.Valid():
			if insideQuote {
				return errAt(tok.Pos, "missing ']' to end quotation")
			}
			return nil
		case tok.Type == TokenNumber && vm.ActiveVocabularies.Lookup(tok.Literal) == nil:
			// Words are tried before numbers, so "0" and "1" compile to their opcodes.
			c.AddLiteral(vm.FromFloat(tok.Number), tok.Pos)
		case tok.Type == TokenString:
			c.AddLiteral(vm.FromString(tok.Str), tok.Pos)
		case tok.Literal == "[":
			quote, err := f.compileQuote(tok.Pos)
			if err != nil {
				return err
			}
			c.AddLiteral(vm.FromQuote(quote), tok.Pos)
		case tok.Literal == "]":
			if !insideQuote {
				return errAt(tok.Pos, "']' without a matching '['")
			}
			return nil
		case tok.Literal == "{":
			array, err := f.parseArray(tok.Pos)
			if err != nil {
				return err
			}
			c.AddLiteral(array, tok.Pos)
		case tok.Literal == "}":
			return errAt(tok.Pos, "'}' without a matching '{'")
		default:
			if err := f.compileWord(c, tok); err != nil {
				return err
			}
		}
	}
}

// compileWord handles a name token: a control word, RECURSE, or a
// vocabulary lookup.
func (f *forthParser) compileWord(c *Compiler, tok Token) error {
	switch strings.ToUpper(tok.Literal) {
	case "IF":
		c.PushBranch(tagIf, vm.WordFor(vm.OpZBranch))
	case "ELSE":
		ifPos, err := c.PopBranch("i")
		if err != nil {
			return err
		}
		c.PushBranch(tagElse, vm.WordFor(vm.OpBranch))
		c.FixBranch(ifPos)
	case "THEN":
		pos, err := c.PopBranch("ie")
		if err != nil {
			return err
		}
		c.FixBranch(pos)
	case "BEGIN":
		c.PushBranch(tagBegin, nil)
	case "WHILE":
		c.PushBranch(tagWhile, vm.WordFor(vm.OpZBranch))
	case "REPEAT":
		whilePos, err := c.PopBranch("w")
		if err != nil {
			return err
		}
		beginPos, err := c.PopBranch("b")
		if err != nil {
			return err
		}
		c.AddBranchBackTo(beginPos, tok.Pos)
		c.FixBranch(whilePos)
	case "RECURSE":
		c.AddRecurse(tok.Pos)
	default:
		w := vm.ActiveVocabularies.Lookup(tok.Literal)
		if w == nil {
			return errAt(tok.Pos, "unknown word %q", tok.Literal)
		}
		_, err := c.Add(w, tok.Pos)
		return err
	}
	return nil
}

// compileQuote compiles a bracketed quotation as a nested anonymous word
// with a fully inferred stack effect.
func (f *forthParser) compileQuote(pos int) (*vm.Word, error) {
	qc := NewCompiler()
	if err := f.compileInto(qc, true); err != nil {
		return nil, err
	}
	quote, err := qc.Finish()
	if err != nil {
		return nil, withPos(err, pos)
	}
	return quote, nil
}

// parseArray reads a braced array of literal values.
func (f *forthParser) parseArray(pos int) (vm.Value, error) {
	var items []vm.Value
	for {
		tok := f.toks.Next()
		switch {
		case !tok.Valid():
			return vm.Null, errAt(tok.Pos, "missing '}' to end array")
		case tok.Literal == "}":
			return vm.FromArray(items), nil
		case tok.Type == TokenNumber:
			items = append(items, vm.FromFloat(tok.Number))
		case tok.Type == TokenString:
			items = append(items, vm.FromString(tok.Str))
		case tok.Literal == "{":
			nested, err := f.parseArray(tok.Pos)
			if err != nil {
				return vm.Null, err
			}
			items = append(items, nested)
		case tok.Literal == "NULL":
			items = append(items, vm.Null)
		default:
			return vm.Null, errAt(tok.Pos, "array literals may only contain values, not %q", tok.Literal)
		}
	}
}
