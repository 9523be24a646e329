package compiler

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// ---------------------------------------------------------------------------
// Tokenizer
// ---------------------------------------------------------------------------

// TokenType classifies a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenIdentifier
	TokenOperator
	TokenPunct
)

var tokenTypeNames = [...]string{"end of input", "number", "string", "identifier", "operator", "punctuation"}

func (t TokenType) String() string { return tokenTypeNames[t] }

// Token is one lexical unit of source text.
type Token struct {
	Type    TokenType
	Literal string  // the token's source text
	Number  float64 // only for TokenNumber
	Str     string  // unescaped contents, only for TokenString
	Pos     int     // byte offset into the source
}

// Valid reports whether the token is not EOF.
func (t Token) Valid() bool { return t.Type != TokenEOF }

// The two lexical grammars are rule tables for participle's lexer.
//
// The expression grammar splits operators apart ("3+4" is three tokens) and
// lets identifiers end in a colon ("if:"). Multi-rune operators must be
// listed before the single-rune alternatives so the regexp prefers them.
var exprRules = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+(\.\d+)?([eE][-+]?\d+)?`},
	{Name: "Identifier", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*:?`},
	{Name: "Operator", Pattern: `:=|==|<=|>=|<>|--|[-+*/<>=;?#$.]`},
	{Name: "Punct", Pattern: `[()\[\]{}]`},
})

// The Forth grammar splits on whitespace only, except that brackets always
// stand alone so "[*]" reads as three tokens.
var forthRules = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Punct", Pattern: `[\[\]{}]`},
	{Name: "Word", Pattern: `[^ \t\r\n\[\]{}]+`},
})

// LexExpression tokenizes source for the expression (Pratt) grammar.
func LexExpression(src string) (*Tokens, error) {
	return lex(src, exprRules)
}

// LexForth tokenizes source for the Forth-style surface grammar.
func LexForth(src string) (*Tokens, error) {
	return lex(src, forthRules)
}

func lex(src string, rules *lexer.StatefulDefinition) (*Tokens, error) {
	l, err := rules.LexString("", src)
	if err != nil {
		return nil, errAt(0, "%s", err.Error())
	}
	symbols := rules.Symbols()
	var (
		whitespace = symbols["Whitespace"]
		stringSym  = symbols["String"]
		numberSym  = symbols["Number"]
		identSym   = symbols["Identifier"]
		punctSym   = symbols["Punct"]
		wordSym    = symbols["Word"]
	)

	toks := &Tokens{}
	for {
		raw, err := l.Next()
		if err != nil {
			return nil, errAt(int(raw.Pos.Offset), "%s", err.Error())
		}
		if raw.EOF() {
			toks.eofPos = len(src)
			return toks, nil
		}
		if raw.Type == whitespace {
			continue
		}
		tok := Token{Literal: raw.Value, Pos: int(raw.Pos.Offset)}
		switch raw.Type {
		case stringSym:
			tok.Type = TokenString
			tok.Str = unescape(raw.Value)
		case numberSym:
			tok.Type = TokenNumber
			tok.Number, _ = strconv.ParseFloat(raw.Value, 64)
		case identSym:
			tok.Type = TokenIdentifier
		case punctSym:
			tok.Type = TokenPunct
		case wordSym:
			// Forth grammar: classify by content.
			if n, err := strconv.ParseFloat(raw.Value, 64); err == nil {
				tok.Type = TokenNumber
				tok.Number = n
			} else {
				tok.Type = TokenIdentifier
			}
		default:
			tok.Type = TokenOperator
		}
		toks.toks = append(toks.toks, tok)
	}
}

// unescape strips the surrounding quotes and resolves backslash escapes.
// A backslash makes the next character literal; \n and \t mean newline/tab.
func unescape(lit string) string {
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(body[i])
			}
		} else {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Token cursor
// ---------------------------------------------------------------------------

// Tokens is a cursor over a tokenized source text, with one token of
// lookahead and pushback.
type Tokens struct {
	toks   []Token
	i      int
	eofPos int
}

// Peek returns the next token without consuming it.
func (t *Tokens) Peek() Token {
	if t.i >= len(t.toks) {
		return Token{Type: TokenEOF, Pos: t.eofPos}
	}
	return t.toks[t.i]
}

// Next consumes and returns the next token.
func (t *Tokens) Next() Token {
	tok := t.Peek()
	if tok.Valid() {
		t.i++
	}
	return tok
}

// BackUp un-consumes the last token.
func (t *Tokens) BackUp() {
	if t.i > 0 {
		t.i--
	}
}

// AtEnd reports whether all tokens are consumed.
func (t *Tokens) AtEnd() bool { return t.i >= len(t.toks) }

// Pos returns the byte offset of the next token.
func (t *Tokens) Pos() int { return t.Peek().Pos }
