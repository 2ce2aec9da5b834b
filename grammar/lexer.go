package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var IRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		{"String", `"(\\.|[^"\\])*"`, nil},

		// Metadata references: !12
		{"MetaRef", `![0-9]+`, nil},

		// VM registers inside asm blocks: $zero, $r16
		{"Register", `\$[a-zA-Z0-9_]+`, nil},

		// Keywords and Identifiers (order matters)
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Integer literals
		{"Hex", `0x[0-9a-fA-F]+`, nil},
		{"Int", `[0-9]+`, nil},

		{"Arrow", `->`, nil},

		// Punctuation
		{"Punctuation", `[{}[\]():;,=|]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
