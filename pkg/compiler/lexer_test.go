package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coilc/pkg/diag"
)

func tokenTypes(t *testing.T, toks []Token) []TokenType {
	t.Helper()
	out := make([]TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestLexKeywordsAndIdentifiers(t *testing.T) {
	toks, err := Lex("t.c", "int x = foo;")
	require.NoError(t, err)
	require.Equal(t, []TokenType{INT, IDENTIFIER, ASSIGN, IDENTIFIER, SEMICOLON, EOF}, tokenTypes(t, toks))
	require.Equal(t, "x", toks[1].Lexeme)
	require.Equal(t, "foo", toks[3].Lexeme)
}

func TestLexIntegerLiterals(t *testing.T) {
	toks, err := Lex("t.c", "42 0x2A 10u 0xFFu")
	require.NoError(t, err)
	require.Equal(t, int64(42), toks[0].IntValue)
	require.Equal(t, INT_LITERAL, toks[0].Type)
	require.Equal(t, int64(42), toks[1].IntValue)
	require.Equal(t, INT_LITERAL, toks[1].Type)
	require.Equal(t, UNSIGNED_LIT, toks[2].Type)
	require.Equal(t, int64(10), toks[2].IntValue)
	require.Equal(t, UNSIGNED_LIT, toks[3].Type)
	require.Equal(t, int64(255), toks[3].IntValue)
}

func TestLexFloatLiterals(t *testing.T) {
	toks, err := Lex("t.c", "3.14 0.5")
	require.NoError(t, err)
	require.Equal(t, FLOAT_LITERAL, toks[0].Type)
	require.InDelta(t, 3.14, toks[0].FloatValue, 1e-9)
	require.Equal(t, FLOAT_LITERAL, toks[1].Type)
	require.InDelta(t, 0.5, toks[1].FloatValue, 1e-9)
}

func TestLexCharAndStringLiterals(t *testing.T) {
	toks, err := Lex("t.c", `'a' '\n' "hi\tthere"`)
	require.NoError(t, err)
	require.Equal(t, CHAR_LITERAL, toks[0].Type)
	require.Equal(t, int64('a'), toks[0].CharValue)
	require.Equal(t, int64('\n'), toks[1].CharValue)
	require.Equal(t, STRING_LITERAL, toks[2].Type)
	require.Equal(t, "hi\tthere", toks[2].StringValue)
}

func TestLexOperatorsMaximalMunch(t *testing.T) {
	toks, err := Lex("t.c", "<<= << <= < >>= >> >= > ++ -- -> += == !=")
	require.NoError(t, err)
	require.Equal(t, []TokenType{
		SHL_ASSIGN, SHL_OP, LESS_EQ, LESS,
		SHR_ASSIGN, SHR_OP, GREATER_EQ, GREATER,
		PLUS_PLUS, MINUS_MINUS, ARROW, PLUS_ASSIGN, EQUALS, NOT_EQ, EOF,
	}, tokenTypes(t, toks))
}

func TestLexSkipsComments(t *testing.T) {
	toks, err := Lex("t.c", "int /* block\ncomment */ x; // line comment\n")
	require.NoError(t, err)
	require.Equal(t, []TokenType{INT, IDENTIFIER, SEMICOLON, EOF}, tokenTypes(t, toks))
}

func TestLexTracksLineAndColumn(t *testing.T) {
	toks, err := Lex("t.c", "int\nx")
	require.NoError(t, err)
	require.Equal(t, 1, toks[0].Pos.Line)
	require.Equal(t, 1, toks[0].Pos.Col)
	require.Equal(t, 2, toks[1].Pos.Line)
	require.Equal(t, 1, toks[1].Pos.Col)
}

func TestLexUnterminatedStringReturnsLexError(t *testing.T) {
	_, err := Lex("t.c", `"oops`)
	require.Error(t, err)
	var de *diag.Error
	require.True(t, diag.As(err, &de))
	require.Equal(t, diag.KindLex, de.Kind)
}

func TestLexUnterminatedBlockComment(t *testing.T) {
	_, err := Lex("t.c", "/* never closes")
	require.Error(t, err)
}

func TestLexUnknownByteProducesUnknownToken(t *testing.T) {
	toks, err := Lex("t.c", "x @ y")
	require.NoError(t, err)
	require.Equal(t, []TokenType{IDENTIFIER, UNKNOWN, IDENTIFIER, EOF}, tokenTypes(t, toks))
	require.Equal(t, "@", toks[1].Lexeme)
}
