// Package lexer turns Fizz source text into a token stream.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fizzlang/fizz/internal/token"
)

// LexError reports an unexpected character or an unterminated literal.
type LexError struct {
	Line    int
	Column  int
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at %d:%d: %s", e.Line, e.Column, e.Message)
}

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int  // current line number
	column       int  // current column number

	err *LexError
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

// Tokenize scans the whole input and returns the token stream, terminated by
// an EOF token, or the first lexical error encountered.
func Tokenize(input string) ([]token.Token, *LexError) {
	l := New(input)
	var toks []token.Token
	for {
		tok := l.NextToken()
		if l.err != nil {
			return nil, l.err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		l.readPosition++
		l.column++
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) NextToken() token.Token {
	l.skipTrivia()
	if l.err != nil {
		return token.Token{Type: token.ILLEGAL, Line: l.line, Column: l.column}
	}

	tok := token.Token{Line: l.line, Column: l.column}

	switch l.ch {
	case 0:
		tok.Type = token.EOF
	case '+':
		tok = l.single(token.PLUS)
	case '-':
		if l.peekChar() == '>' {
			tok = l.double(token.ARROW)
		} else {
			tok = l.single(token.MINUS)
		}
	case '*':
		tok = l.single(token.STAR)
	case '/':
		tok = l.single(token.SLASH)
	case '%':
		tok = l.single(token.PERCENT)
	case '^':
		tok = l.single(token.CARET)
	case '=':
		tok = l.single(token.EQ)
	case '<':
		switch l.peekChar() {
		case '>':
			tok = l.double(token.NEQ)
		case '=':
			tok = l.double(token.LE)
		default:
			tok = l.single(token.LT)
		}
	case '>':
		if l.peekChar() == '=' {
			tok = l.double(token.GE)
		} else {
			tok = l.single(token.GT)
		}
	case '&':
		if l.peekChar() == '&' {
			tok = l.double(token.AND)
		} else {
			return l.fail("unexpected character '&' (did you mean '&&'?)")
		}
	case '|':
		switch l.peekChar() {
		case '|':
			tok = l.double(token.OR)
		case '>':
			tok = l.double(token.PIPE)
		default:
			tok = l.single(token.BAR)
		}
	case ':':
		if l.peekChar() == ':' {
			tok = l.double(token.CONS)
		} else {
			tok = l.single(token.COLON)
		}
	case '@':
		tok = l.single(token.AT)
	case '.':
		tok = l.single(token.DOT)
	case '(':
		tok = l.single(token.LPAREN)
	case ')':
		tok = l.single(token.RPAREN)
	case '[':
		tok = l.single(token.LBRACKET)
	case ']':
		tok = l.single(token.RBRACKET)
	case '{':
		tok = l.single(token.LBRACE)
	case '}':
		tok = l.single(token.RBRACE)
	case ',':
		tok = l.single(token.COMMA)
	case ';':
		tok = l.single(token.SEMICOLON)
	case '"':
		lit, ok := l.readString()
		if !ok {
			return token.Token{Type: token.ILLEGAL, Line: tok.Line, Column: tok.Column}
		}
		tok.Type = token.STRING
		tok.Literal = lit
		return tok
	default:
		switch {
		case l.ch == '_' && !isIdentPart(l.peekChar()):
			tok = l.single(token.UNDER)
		case isIdentStart(l.ch):
			lit := l.readIdentifier()
			tok.Literal = lit
			if unicode.IsUpper([]rune(lit)[0]) {
				tok.Type = token.CTOR
			} else {
				tok.Type = token.LookupIdent(lit)
			}
			return tok
		case unicode.IsDigit(l.ch):
			return l.readNumber()
		default:
			return l.fail(fmt.Sprintf("unexpected character %q", l.ch))
		}
	}

	return tok
}

func (l *Lexer) single(t token.Type) token.Token {
	tok := token.Token{Type: t, Literal: string(l.ch), Line: l.line, Column: l.column}
	l.readChar()
	return tok
}

func (l *Lexer) double(t token.Type) token.Token {
	tok := token.Token{Type: t, Literal: string(t), Line: l.line, Column: l.column}
	l.readChar()
	l.readChar()
	return tok
}

func (l *Lexer) fail(msg string) token.Token {
	l.err = &LexError{Line: l.line, Column: l.column, Message: msg}
	return token.Token{Type: token.ILLEGAL, Line: l.line, Column: l.column}
}

// skipTrivia consumes whitespace, line comments and (possibly nested) block
// comments. Position tracking must stay exact for downstream diagnostics.
func (l *Lexer) skipTrivia() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '(' && l.peekChar() == '*':
			startLine, startCol := l.line, l.column
			l.readChar()
			l.readChar()
			depth := 1
			for depth > 0 {
				if l.ch == 0 {
					l.err = &LexError{Line: startLine, Column: startCol, Message: "unterminated block comment"}
					return
				}
				if l.ch == '(' && l.peekChar() == '*' {
					depth++
					l.readChar()
					l.readChar()
					continue
				}
				if l.ch == '*' && l.peekChar() == ')' {
					depth--
					l.readChar()
					l.readChar()
					continue
				}
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber() token.Token {
	tok := token.Token{Line: l.line, Column: l.column}
	start := l.position
	for unicode.IsDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	isFloat := false
	if l.ch == '.' && unicode.IsDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for unicode.IsDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if unicode.IsDigit(next) || next == '+' || next == '-' {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for unicode.IsDigit(l.ch) {
				l.readChar()
			}
		}
	}
	tok.Literal = strings.ReplaceAll(l.input[start:l.position], "_", "")
	if isFloat {
		tok.Type = token.FLOAT
	} else {
		tok.Type = token.INT
	}
	return tok
}

func (l *Lexer) readString() (string, bool) {
	startLine, startCol := l.line, l.column
	l.readChar() // consume opening quote
	var sb strings.Builder
	for {
		switch l.ch {
		case '"':
			l.readChar()
			return sb.String(), true
		case 0, '\n':
			l.err = &LexError{Line: startLine, Column: startCol, Message: "unterminated string literal"}
			return "", false
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '0':
				sb.WriteByte(0)
			default:
				l.err = &LexError{Line: l.line, Column: l.column, Message: fmt.Sprintf("unknown escape sequence '\\%c'", l.ch)}
				return "", false
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return ch == '_' || ch == '\'' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}
