// Package token defines the lexical tokens of Fizz and their source positions.
package token

// Type identifies the lexical class of a token.
type Type string

// Token is a single lexeme with its position in the source text.
type Token struct {
	Type    Type
	Literal string
	Line    int // 1-based
	Column  int // 1-based, column of the first rune
}

const (
	ILLEGAL Type = "ILLEGAL"
	EOF     Type = "EOF"

	// Identifiers and literals
	IDENT  Type = "IDENT"  // lower-case identifier: add, xs
	CTOR   Type = "CTOR"   // capitalized identifier: Circle, Some
	INT    Type = "INT"    // 42
	FLOAT  Type = "FLOAT"  // 3.14
	STRING Type = "STRING" // "hello"

	// Operators
	PLUS    Type = "+"
	MINUS   Type = "-"
	STAR    Type = "*"
	SLASH   Type = "/"
	PERCENT Type = "%"
	CARET   Type = "^" // string concat
	EQ      Type = "="
	NEQ     Type = "<>"
	LT      Type = "<"
	GT      Type = ">"
	LE      Type = "<="
	GE      Type = ">="
	AND     Type = "&&"
	OR      Type = "||"
	NOT     Type = "not"
	ARROW   Type = "->"
	PIPE    Type = "|>"
	CONS    Type = "::"
	AT      Type = "@" // list append
	BAR     Type = "|"
	DOT     Type = "."
	UNDER   Type = "_"

	// Delimiters
	LPAREN    Type = "("
	RPAREN    Type = ")"
	LBRACKET  Type = "["
	RBRACKET  Type = "]"
	LBRACE    Type = "{"
	RBRACE    Type = "}"
	COMMA     Type = ","
	SEMICOLON Type = ";"
	COLON     Type = ":"

	// Keywords
	LET   Type = "let"
	REC   Type = "rec"
	IN    Type = "in"
	IF    Type = "if"
	THEN  Type = "then"
	ELSE  Type = "else"
	MATCH Type = "match"
	WITH  Type = "with"
	FUN   Type = "fun"
	TYPE  Type = "type"
	OF    Type = "of"
	TRUE  Type = "true"
	FALSE Type = "false"
)

var keywords = map[string]Type{
	"let":   LET,
	"rec":   REC,
	"in":    IN,
	"if":    IF,
	"then":  THEN,
	"else":  ELSE,
	"match": MATCH,
	"with":  WITH,
	"fun":   FUN,
	"type":  TYPE,
	"of":    OF,
	"true":  TRUE,
	"false": FALSE,
	"not":   NOT,
}

// LookupIdent maps an identifier spelling to its keyword type, or IDENT.
func LookupIdent(ident string) Type {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return IDENT
}
