package lexer

import "fmt"

// Position is a zero-based (line, column) location within a file.
// Columns count bytes within the line; XDR sources are ASCII, so byte == char.
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Before reports whether p is strictly before q in source order.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// Span is a half-open range [Start, End) of positions within one file.
type Span struct {
	Start Position
	End   Position
}

func (s Span) String() string { return fmt.Sprintf("%s-%s", s.Start, s.End) }

// Contains reports whether the span covers pos. The end position is treated
// as inclusive so that a cursor sitting just after the last character of an
// identifier still hits it, matching editor behavior.
func (s Span) Contains(pos Position) bool {
	if pos.Before(s.Start) {
		return false
	}
	return pos.Before(s.End) || pos == s.End
}

// Kind identifies the lexical class of a token.
type Kind int

const (
	// Special
	EOF Kind = iota
	ILLEGAL
	PASSTHROUGH // a full '%' line, kept opaque

	// Literals & identifiers
	ID
	INTEGER
	QUOTED

	// Punctuation
	LCURLY   // "{"
	RCURLY   // "}"
	LROUND   // "("
	RROUND   // ")"
	LSQUARE  // "["
	RSQUARE  // "]"
	SEMI     // ";"
	COMMA    // ","
	COLON    // ":"
	LESS     // "<"
	GREATER  // ">"
	ASSIGN   // "="
	STAR     // "*"

	// Keywords
	STRUCT
	UNION
	ENUM
	TYPEDEF
	CONST
	PROGRAM
	VERSION
	NAMESPACE
	SWITCH
	CASE
	DEFAULT
	OPAQUE
	STRING
	VOID
	UNSIGNED
	INT
	HYPER
	FLOAT
	DOUBLE
	QUADRUPLE
	BOOL
)

// keywords maps reserved words to their token kinds. "namespace" is the
// syntax extension beyond plain RFC4506.
var keywords = map[string]Kind{
	"struct":    STRUCT,
	"union":     UNION,
	"enum":      ENUM,
	"typedef":   TYPEDEF,
	"const":     CONST,
	"program":   PROGRAM,
	"version":   VERSION,
	"namespace": NAMESPACE,
	"switch":    SWITCH,
	"case":      CASE,
	"default":   DEFAULT,
	"opaque":    OPAQUE,
	"string":    STRING,
	"void":      VOID,
	"unsigned":  UNSIGNED,
	"int":       INT,
	"hyper":     HYPER,
	"float":     FLOAT,
	"double":    DOUBLE,
	"quadruple": QUADRUPLE,
	"bool":      BOOL,
}

// Token is a lexical token with its raw text and exact source span.
type Token struct {
	Kind Kind
	Text string
	Span Span
}

// IsBuiltinType reports whether the token is one of the built-in XDR type
// keywords. Built-in types never produce uses; there is nothing to resolve.
func (t Token) IsBuiltinType() bool {
	switch t.Kind {
	case OPAQUE, STRING, VOID, UNSIGNED, INT, HYPER, FLOAT, DOUBLE, QUADRUPLE, BOOL:
		return true
	}
	return false
}
