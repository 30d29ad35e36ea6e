package parser

import (
	"strings"

	"github.com/drebelsky/xdr-ls/lexer"
)

// DeclKind identifies what kind of entity a declaration names.
type DeclKind int

const (
	KindTypedef DeclKind = iota
	KindStruct
	KindUnion
	KindEnum
	KindEnumMember
	KindConst
	KindProgram
	KindVersion
	KindProcedure
	KindNamespace
	KindMember // struct field, union discriminant, or union arm
)

var declKindNames = map[DeclKind]string{
	KindTypedef:    "typedef",
	KindStruct:     "struct",
	KindUnion:      "union",
	KindEnum:       "enum",
	KindEnumMember: "enum-member",
	KindConst:      "const",
	KindProgram:    "program",
	KindVersion:    "version",
	KindProcedure:  "procedure",
	KindNamespace:  "namespace",
	KindMember:     "member",
}

func (k DeclKind) String() string {
	if name, ok := declKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Declaration is the defining occurrence of a named entity. The span covers
// the identifier token only, not the whole statement.
type Declaration struct {
	Name  string
	Scope []string // enclosing scope names, outermost first
	Kind  DeclKind
	Span  lexer.Span
}

// QualifiedName returns the "::"-joined fully qualified name.
func (d *Declaration) QualifiedName() string {
	if len(d.Scope) == 0 {
		return d.Name
	}
	return strings.Join(d.Scope, "::") + "::" + d.Name
}

// Use is an occurrence of an identifier that is not its declaring occurrence.
// Resolution to a declaration happens later, in the workspace indexer.
type Use struct {
	Name  string
	Scope []string // enclosing scope names at the use site, outermost first
	Span  lexer.Span
}

// Diagnostic records a recoverable syntax error with the offending span.
type Diagnostic struct {
	Span    lexer.Span
	Message string
}

// File is the parse result for one source file: the ordered declaration and
// use lists plus any diagnostics. A file with syntax errors still carries
// everything recovered from its well-formed statements.
type File struct {
	Path  string
	Text  string
	Decls []Declaration
	Uses  []Use
	Diags []Diagnostic
}
