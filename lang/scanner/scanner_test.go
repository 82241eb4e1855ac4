package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/embervm/lang/scanner"
	"github.com/mna/embervm/lang/token"
)

func scanAll(src string) []token.Token {
	s := scanner.New(src)
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks := scanAll("(){};,.-+*/! != = == < <= > >=")
	kinds := make([]token.Kind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	require.Equal(t, []token.Kind{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE, token.SEMICOLON,
		token.COMMA, token.DOT, token.MINUS, token.PLUS, token.STAR, token.SLASH,
		token.BANG, token.BANG_EQUAL, token.EQUAL, token.EQUAL_EQUAL, token.LESS,
		token.LESS_EQUAL, token.GREATER, token.GREATER_EQUAL, token.EOF,
	}, kinds)
}

func TestScanNumbers(t *testing.T) {
	toks := scanAll("123 1.5 1. .5")
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, token.NUMBER, toks[0].Kind)
	require.Equal(t, "1.5", toks[1].Lexeme)
	// "1." has no digit after the dot, so it scans as NUMBER("1") then DOT.
	require.Equal(t, "1", toks[2].Lexeme)
	require.Equal(t, token.DOT, toks[3].Kind)
	// ".5" is not a valid literal start (no leading digit before '.'), so it
	// scans as DOT then NUMBER("5").
	require.Equal(t, token.DOT, toks[4].Kind)
	require.Equal(t, "5", toks[5].Lexeme)
}

func TestScanStringsAndIdentifiersAndKeywords(t *testing.T) {
	toks := scanAll(`"hello world" var x = nil;`)
	require.Equal(t, token.STRING, toks[0].Kind)
	require.Equal(t, `"hello world"`, toks[0].Lexeme)
	require.Equal(t, token.VAR, toks[1].Kind)
	require.Equal(t, token.IDENT, toks[2].Kind)
	require.Equal(t, "x", toks[2].Lexeme)
	require.Equal(t, token.EQUAL, toks[3].Kind)
	require.Equal(t, token.NIL, toks[4].Kind)
	require.Equal(t, token.SEMICOLON, toks[5].Kind)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(`"unterminated`)
	require.Equal(t, token.ILLEGAL, toks[0].Kind)
	require.Equal(t, "unterminated string", toks[0].Lexeme)
}

func TestScanCommentsAndWhitespace(t *testing.T) {
	toks := scanAll("// a comment\nvar\n\t// trailing\nx")
	require.Equal(t, token.VAR, toks[0].Kind)
	require.Equal(t, 2, toks[0].Line)
	require.Equal(t, token.IDENT, toks[1].Kind)
	require.Equal(t, 4, toks[1].Line)
}

func TestScanUnexpectedCharacter(t *testing.T) {
	toks := scanAll("@")
	require.Equal(t, token.ILLEGAL, toks[0].Kind)
	require.Equal(t, "unexpected character", toks[0].Lexeme)
}
