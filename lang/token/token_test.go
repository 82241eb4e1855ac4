package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	for k := Kind(0); k < maxKind; k++ {
		require.NotEmpty(t, k.String())
	}
	require.Equal(t, "unknown token", Kind(127).String())
}

func TestLookup(t *testing.T) {
	cases := map[string]Kind{
		"and":     AND,
		"class":   CLASS,
		"else":    ELSE,
		"false":   FALSE,
		"for":     FOR,
		"fun":     FUN,
		"if":      IF,
		"nil":     NIL,
		"or":      OR,
		"print":   PRINT,
		"return":  RETURN,
		"super":   SUPER,
		"this":    THIS,
		"true":    TRUE,
		"var":     VAR,
		"while":   WHILE,
		"x":       IDENT,
		"":        IDENT,
		"classes": IDENT,
		"forever": IDENT,
		"thistle": IDENT,
	}
	for lexeme, want := range cases {
		require.Equalf(t, want, Lookup(lexeme), "lexeme %q", lexeme)
	}
}
