// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package lualex tokenizes Lua 5.1 source text.
//
// The compiler (package luacode) is the only consumer of this package; the
// runtime never sees source text, only the [luacode.Prototype] the compiler
// produces from these tokens. Lexing and parsing are external collaborators
// to the runtime in the same sense the C Lua "lparser.c"/"llex.c" are
// external to "lvm.c" — this package exists so the repository has a real
// front end to drive the VM with, not because lexing is the subject of this
// module.
package lualex

import "fmt"

// Token is a single lexical element together with its source position.
type Token struct {
	Kind     TokenKind
	Position Position
	// Value holds the identifier name, the parsed string contents, or the
	// numeral exactly as written, depending on Kind.
	Value string
}

func (tok Token) String() string {
	switch tok.Kind {
	case EOFToken:
		return "<eof>"
	case StringToken:
		return fmt.Sprintf("%q", tok.Value)
	case IdentifierToken, NumeralToken:
		return tok.Value
	default:
		return tok.Kind.String()
	}
}

// Position is a 1-based line/column pair within a chunk.
type Position struct {
	Line   int
	Column int
}

func (pos Position) String() string {
	if pos.Line <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d:%d", pos.Line, pos.Column)
}

// TokenKind enumerates the lexical element kinds of Lua 5.1.
// Notably absent relative to later Lua versions: goto/labels (5.2),
// bitwise operators and integer floor division (5.3).
type TokenKind int

const (
	ErrorToken TokenKind = iota
	EOFToken
	IdentifierToken
	StringToken
	NumeralToken

	AndToken
	BreakToken
	DoToken
	ElseToken
	ElseifToken
	EndToken
	FalseToken
	ForToken
	FunctionToken
	IfToken
	InToken
	LocalToken
	NilToken
	NotToken
	OrToken
	RepeatToken
	ReturnToken
	ThenToken
	TrueToken
	UntilToken
	WhileToken

	AddToken
	SubToken
	MulToken
	DivToken
	ModToken
	PowToken
	LenToken
	EqualToken
	NotEqualToken
	LessEqualToken
	GreaterEqualToken
	LessToken
	GreaterToken
	AssignToken
	LParenToken
	RParenToken
	LBraceToken
	RBraceToken
	LBracketToken
	RBracketToken
	SemiToken
	ColonToken
	CommaToken
	DotToken
	ConcatToken
	VarargToken
)

var tokenKindNames = map[TokenKind]string{
	ErrorToken:        "<error>",
	EOFToken:          "<eof>",
	IdentifierToken:   "<name>",
	StringToken:       "<string>",
	NumeralToken:      "<number>",
	AndToken:          "and",
	BreakToken:        "break",
	DoToken:           "do",
	ElseToken:         "else",
	ElseifToken:       "elseif",
	EndToken:          "end",
	FalseToken:        "false",
	ForToken:          "for",
	FunctionToken:     "function",
	IfToken:           "if",
	InToken:           "in",
	LocalToken:        "local",
	NilToken:          "nil",
	NotToken:          "not",
	OrToken:           "or",
	RepeatToken:       "repeat",
	ReturnToken:       "return",
	ThenToken:         "then",
	TrueToken:         "true",
	UntilToken:        "until",
	WhileToken:        "while",
	AddToken:          "+",
	SubToken:          "-",
	MulToken:          "*",
	DivToken:          "/",
	ModToken:          "%",
	PowToken:          "^",
	LenToken:          "#",
	EqualToken:        "==",
	NotEqualToken:     "~=",
	LessEqualToken:    "<=",
	GreaterEqualToken: ">=",
	LessToken:         "<",
	GreaterToken:      ">",
	AssignToken:       "=",
	LParenToken:       "(",
	RParenToken:       ")",
	LBraceToken:       "{",
	RBraceToken:       "}",
	LBracketToken:     "[",
	RBracketToken:     "]",
	SemiToken:         ";",
	ColonToken:        ":",
	CommaToken:        ",",
	DotToken:          ".",
	ConcatToken:       "..",
	VarargToken:       "...",
}

func (k TokenKind) String() string {
	if s, ok := tokenKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

var keywords = map[string]TokenKind{
	"and":      AndToken,
	"break":    BreakToken,
	"do":       DoToken,
	"else":     ElseToken,
	"elseif":   ElseifToken,
	"end":      EndToken,
	"false":    FalseToken,
	"for":      ForToken,
	"function": FunctionToken,
	"if":       IfToken,
	"in":       InToken,
	"local":    LocalToken,
	"nil":      NilToken,
	"not":      NotToken,
	"or":       OrToken,
	"repeat":   RepeatToken,
	"return":   ReturnToken,
	"then":     ThenToken,
	"true":     TrueToken,
	"until":    UntilToken,
	"while":    WhileToken,
}
