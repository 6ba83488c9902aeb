package lexer

import (
	"testing"

	"github.com/fizzlang/fizz/internal/token"
)

func lex(t *testing.T, input string) []token.Token {
	t.Helper()
	toks, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q) failed: %v", input, err)
	}
	return toks
}

func TestNextTokenOperators(t *testing.T) {
	input := `let rec f x = x + 1 in f 2 |> g :: [] @ xs ^ "s" <> <=`
	expected := []struct {
		typ token.Type
		lit string
	}{
		{token.LET, "let"},
		{token.REC, "rec"},
		{token.IDENT, "f"},
		{token.IDENT, "x"},
		{token.EQ, "="},
		{token.IDENT, "x"},
		{token.PLUS, "+"},
		{token.INT, "1"},
		{token.IN, "in"},
		{token.IDENT, "f"},
		{token.INT, "2"},
		{token.PIPE, "|>"},
		{token.IDENT, "g"},
		{token.CONS, "::"},
		{token.LBRACKET, "["},
		{token.RBRACKET, "]"},
		{token.AT, "@"},
		{token.IDENT, "xs"},
		{token.CARET, "^"},
		{token.STRING, "s"},
		{token.NEQ, "<>"},
		{token.LE, "<="},
		{token.EOF, ""},
	}

	toks := lex(t, input)
	if len(toks) != len(expected) {
		t.Fatalf("token count: got %d, want %d", len(toks), len(expected))
	}
	for i, exp := range expected {
		if toks[i].Type != exp.typ {
			t.Errorf("token %d: type got %q, want %q", i, toks[i].Type, exp.typ)
		}
		if toks[i].Literal != exp.lit {
			t.Errorf("token %d: literal got %q, want %q", i, toks[i].Literal, exp.lit)
		}
	}
}

func TestCapitalizedIdentifiers(t *testing.T) {
	toks := lex(t, "Some 1 List.map Circle")
	want := []token.Type{token.CTOR, token.INT, token.CTOR, token.DOT, token.IDENT, token.CTOR, token.EOF}
	for i, typ := range want {
		if toks[i].Type != typ {
			t.Errorf("token %d: got %q, want %q", i, toks[i].Type, typ)
		}
	}
}

func TestComments(t *testing.T) {
	toks := lex(t, "1 // line comment\n(* block (* nested *) still *) 2")
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %v", len(toks), toks)
	}
	if toks[0].Literal != "1" || toks[1].Literal != "2" {
		t.Errorf("comments not skipped: %v", toks)
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	_, err := Tokenize("1 (* never closed")
	if err == nil {
		t.Fatal("expected error for unterminated block comment")
	}
}

func TestStringEscapes(t *testing.T) {
	toks := lex(t, `"a\n\t\"b\\"`)
	if toks[0].Literal != "a\n\t\"b\\" {
		t.Errorf("escape decoding: got %q", toks[0].Literal)
	}
}

func TestUnterminatedString(t *testing.T) {
	if _, err := Tokenize("\"abc\n\""); err == nil {
		t.Fatal("expected error for string broken by newline")
	}
	if _, err := Tokenize(`"abc`); err == nil {
		t.Fatal("expected error for string broken by EOF")
	}
}

func TestNumbers(t *testing.T) {
	toks := lex(t, "42 1_000_000 3.14 2.5e3")
	want := []struct {
		typ token.Type
		lit string
	}{
		{token.INT, "42"},
		{token.INT, "1000000"},
		{token.FLOAT, "3.14"},
		{token.FLOAT, "2.5e3"},
	}
	for i, exp := range want {
		if toks[i].Type != exp.typ || toks[i].Literal != exp.lit {
			t.Errorf("token %d: got {%q %q}, want {%q %q}", i, toks[i].Type, toks[i].Literal, exp.typ, exp.lit)
		}
	}
}

func TestPositions(t *testing.T) {
	toks := lex(t, "let\n  x = 1")
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Errorf("let position: got %d:%d", toks[0].Line, toks[0].Column)
	}
	if toks[1].Line != 2 || toks[1].Column != 3 {
		t.Errorf("x position: got %d:%d", toks[1].Line, toks[1].Column)
	}
}

func TestPrimeInIdentifier(t *testing.T) {
	toks := lex(t, "x' f'2")
	if toks[0].Literal != "x'" || toks[1].Literal != "f'2" {
		t.Errorf("prime identifiers: got %q %q", toks[0].Literal, toks[1].Literal)
	}
}

func TestIllegalRune(t *testing.T) {
	if _, err := Tokenize("let x = $"); err == nil {
		t.Fatal("expected error for illegal character")
	}
}
