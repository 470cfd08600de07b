// Package velesql implements VelesDB's component H: a hand-written
// recursive-descent/Pratt parser turning query text into a typed AST, per
// §4.H. It generalizes the structural idioms of the teacher's Cypher
// front end (pkg/cypher/parser.go, pattern_parser.go) — quote/bracket
// depth-tracked scanning, node/relationship pattern parsing — into a real
// token-stream lexer and precedence-climbing expression parser, since
// VelesQL's surface syntax (SQL SELECT plus Cypher-flavored MATCH) is
// considerably larger than the teacher's own (unfinished) Cypher grammar.
package velesql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a lexed token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenQuotedIdent // "col name" or `col name`
	TokenParam       // $name
	TokenNumber
	TokenString // 'literal'
	TokenSymbol // punctuation: ( ) [ ] { } , . : ;
	TokenOp     // operators: = != <> < <= > >= + - * / | -> <-
)

// Token is one lexed unit with its source position (rune offset), used
// for ParseError locations.
type Token struct {
	Kind Kind
	Text string
	Pos  int
}

// Kind is an alias kept distinct from TokenKind so callers that only care
// about classification can use either name; apart from Token.Kind's
// declared type, this package uses TokenKind internally.
type Kind = TokenKind

// Lexer turns VelesQL source text into a token stream. It keeps no
// lookahead buffer itself — Parser does that — each call to Next returns
// the next token and advances.
type Lexer struct {
	src []rune
	pos int
}

// NewLexer creates a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

func (l *Lexer) peekRune() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *Lexer) peekRuneAt(offset int) (rune, bool) {
	i := l.pos + offset
	if i >= len(l.src) {
		return 0, false
	}
	return l.src[i], true
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if unicode.IsSpace(c) {
			l.pos++
			continue
		}
		if c == '-' {
			if next, ok := l.peekRuneAt(1); ok && next == '-' {
				for l.pos < len(l.src) && l.src[l.pos] != '\n' {
					l.pos++
				}
				continue
			}
		}
		if c == '/' {
			if next, ok := l.peekRuneAt(1); ok && next == '*' {
				l.pos += 2
				for l.pos < len(l.src) {
					if l.src[l.pos] == '*' {
						if n, ok := l.peekRuneAt(1); ok && n == '/' {
							l.pos += 2
							break
						}
					}
					l.pos++
				}
				continue
			}
		}
		break
	}
}

const symbolChars = "()[]{},.:;"

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isIdentPart(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// Next returns the next token in the stream, or a TokenEOF token once the
// source is exhausted.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespaceAndComments()
	start := l.pos
	c, ok := l.peekRune()
	if !ok {
		return Token{Kind: TokenEOF, Pos: start}, nil
	}

	switch {
	case c == '\'':
		return l.lexQuoted(start, '\'', TokenString)
	case c == '"':
		return l.lexQuoted(start, '"', TokenQuotedIdent)
	case c == '`':
		return l.lexQuoted(start, '`', TokenQuotedIdent)
	case c == '$':
		l.pos++
		nameStart := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return Token{Kind: TokenParam, Text: string(l.src[nameStart:l.pos]), Pos: start}, nil
	case unicode.IsDigit(c):
		return l.lexNumber(start), nil
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return Token{Kind: TokenIdent, Text: string(l.src[start:l.pos]), Pos: start}, nil
	case strings.ContainsRune(symbolChars, c):
		l.pos++
		return Token{Kind: TokenSymbol, Text: string(c), Pos: start}, nil
	default:
		return l.lexOperator(start)
	}
}

func (l *Lexer) lexQuoted(start int, quote rune, kind TokenKind) (Token, error) {
	l.pos++ // opening quote
	var b strings.Builder
	for {
		c, ok := l.peekRune()
		if !ok {
			return Token{}, newParseError("unterminated quoted literal", start)
		}
		if c == quote {
			if next, ok := l.peekRuneAt(1); ok && next == quote {
				b.WriteRune(quote)
				l.pos += 2
				continue
			}
			l.pos++
			break
		}
		b.WriteRune(c)
		l.pos++
	}
	return Token{Kind: kind, Text: b.String(), Pos: start}, nil
}

func (l *Lexer) lexNumber(start int) Token {
	for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
		l.pos++
	}
	if c, ok := l.peekRune(); ok && c == '.' {
		if n, ok2 := l.peekRuneAt(1); ok2 && unicode.IsDigit(n) {
			l.pos++
			for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}
	return Token{Kind: TokenNumber, Text: string(l.src[start:l.pos]), Pos: start}
}

// multiCharOps lists the operators that must be matched before their
// single-char prefix (e.g. <= before <), longest first.
var multiCharOps = []string{"<=", ">=", "!=", "<>", "->", "<-"}

func (l *Lexer) lexOperator(start int) (Token, error) {
	rest := string(l.src[l.pos:])
	for _, op := range multiCharOps {
		if strings.HasPrefix(rest, op) {
			l.pos += utf8.RuneCountInString(op)
			return Token{Kind: TokenOp, Text: op, Pos: start}, nil
		}
	}
	c := l.src[l.pos]
	switch c {
	case '=', '<', '>', '+', '-', '/', '*', '|':
		l.pos++
		return Token{Kind: TokenOp, Text: string(c), Pos: start}, nil
	}
	return Token{}, newParseError("unexpected character '"+string(c)+"'", start)
}
