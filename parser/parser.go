// Package parser builds per-file declaration and use lists from XDR source
// text. Each file is parsed in isolation; cross-file name resolution is the
// indexer's job. The parser recovers from syntax errors at statement
// boundaries, so one bad statement never suppresses the rest of a file.
package parser

import (
	"fmt"

	"github.com/drebelsky/xdr-ls/lexer"
)

// Parse lexes and parses one file. It never fails: syntax errors are
// recorded as diagnostics on the returned File.
func Parse(path string, text string) *File {
	raw := lexer.New(text).Scan()

	// Passthrough directives participate in no further parsing.
	tokens := make([]lexer.Token, 0, len(raw))
	for _, tok := range raw {
		if tok.Kind != lexer.PASSTHROUGH {
			tokens = append(tokens, tok)
		}
	}

	p := &parser{
		tokens: tokens,
		file:   &File{Path: path, Text: text},
	}
	p.specification()
	return p.file
}

type parser struct {
	tokens []lexer.Token
	i      int
	file   *File
	scope  []string
}

func (p *parser) peek() lexer.Token { return p.tokens[p.i] }

func (p *parser) atEnd() bool { return p.peek().Kind == lexer.EOF }

func (p *parser) advance() lexer.Token {
	tok := p.tokens[p.i]
	if !p.atEnd() {
		p.i++
	}
	return tok
}

func (p *parser) at(kind lexer.Kind) bool { return p.peek().Kind == kind }

func (p *parser) match(kind lexer.Kind) bool {
	if p.at(kind) {
		p.advance()
		return true
	}
	return false
}

// expect consumes a token of the wanted kind or records a diagnostic at the
// offending token. The caller is responsible for recovery on failure.
func (p *parser) expect(kind lexer.Kind, what string) (lexer.Token, bool) {
	if p.at(kind) {
		return p.advance(), true
	}
	p.errorf(p.peek().Span, "expected %s", what)
	return lexer.Token{}, false
}

func (p *parser) errorf(span lexer.Span, format string, args ...any) {
	p.file.Diags = append(p.file.Diags, Diagnostic{
		Span:    span,
		Message: fmt.Sprintf(format, args...),
	})
}

// recover discards tokens until the next ';' (consumed) or a '}' closing the
// current nesting depth (left for the enclosing scope to consume).
func (p *parser) recover() {
	depth := 0
	for !p.atEnd() {
		switch p.peek().Kind {
		case lexer.SEMI:
			if depth == 0 {
				p.advance()
				return
			}
			p.advance()
		case lexer.LCURLY:
			depth++
			p.advance()
		case lexer.RCURLY:
			if depth == 0 {
				return
			}
			depth--
			p.advance()
		default:
			p.advance()
		}
	}
}

func (p *parser) pushScope(name string) { p.scope = append(p.scope, name) }

func (p *parser) popScope() { p.scope = p.scope[:len(p.scope)-1] }

func (p *parser) currentScope() []string {
	if len(p.scope) == 0 {
		return nil
	}
	return append([]string(nil), p.scope...)
}

func (p *parser) declare(tok lexer.Token, kind DeclKind) {
	p.file.Decls = append(p.file.Decls, Declaration{
		Name:  tok.Text,
		Scope: p.currentScope(),
		Kind:  kind,
		Span:  tok.Span,
	})
}

func (p *parser) use(tok lexer.Token) {
	p.file.Uses = append(p.file.Uses, Use{
		Name:  tok.Text,
		Scope: p.currentScope(),
		Span:  tok.Span,
	})
}

// specification parses the whole file: a sequence of definitions.
func (p *parser) specification() {
	for !p.atEnd() {
		if !p.definition() {
			p.recover()
		}
	}
}

// definition parses one top-level statement. Returns false when the caller
// should recover to the next statement boundary.
func (p *parser) definition() bool {
	switch p.peek().Kind {
	case lexer.NAMESPACE:
		return p.namespaceDef()
	case lexer.CONST:
		return p.constDef()
	case lexer.TYPEDEF:
		return p.typedefDef()
	case lexer.ENUM:
		return p.enumDef()
	case lexer.STRUCT:
		return p.structDef()
	case lexer.UNION:
		return p.unionDef()
	case lexer.PROGRAM:
		return p.programDef()
	case lexer.SEMI:
		// Stray semicolon, tolerated.
		p.advance()
		return true
	case lexer.RCURLY:
		// Unbalanced brace at top level.
		p.errorf(p.peek().Span, "unexpected '}'")
		p.advance()
		return true
	default:
		p.errorf(p.peek().Span, "expected definition, got %q", p.peek().Text)
		return false
	}
}

// namespaceDef parses `namespace NAME { definitions }`. Namespaces nest, and
// the same qualified name may be reopened across files or statements.
func (p *parser) namespaceDef() bool {
	p.advance() // namespace
	id, ok := p.expect(lexer.ID, "namespace name")
	if !ok {
		return false
	}
	p.declare(id, KindNamespace)
	if _, ok := p.expect(lexer.LCURLY, "'{'"); !ok {
		return false
	}
	p.pushScope(id.Text)
	for !p.atEnd() && !p.at(lexer.RCURLY) {
		if !p.definition() {
			p.recover()
		}
	}
	p.popScope()
	if _, ok := p.expect(lexer.RCURLY, "'}'"); !ok {
		return false
	}
	p.match(lexer.SEMI) // optional trailing semicolon
	return true
}

// constDef parses `const NAME = value ;`.
func (p *parser) constDef() bool {
	p.advance() // const
	id, ok := p.expect(lexer.ID, "constant name")
	if !ok {
		return false
	}
	p.declare(id, KindConst)
	if _, ok := p.expect(lexer.ASSIGN, "'='"); !ok {
		return false
	}
	if !p.value() {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

// typedefDef parses `typedef declaration ;`. The declared identifier is the
// new type name.
func (p *parser) typedefDef() bool {
	p.advance() // typedef
	if !p.declaration(KindTypedef) {
		return false
	}
	_, ok := p.expect(lexer.SEMI, "';'")
	return ok
}

func (p *parser) enumDef() bool {
	p.advance() // enum
	id, ok := p.expect(lexer.ID, "enum name")
	if !ok {
		return false
	}
	p.declare(id, KindEnum)
	p.pushScope(id.Text)
	ok = p.enumBody()
	p.popScope()
	if !ok {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

func (p *parser) structDef() bool {
	p.advance() // struct
	id, ok := p.expect(lexer.ID, "struct name")
	if !ok {
		return false
	}
	p.declare(id, KindStruct)
	p.pushScope(id.Text)
	ok = p.structBody()
	p.popScope()
	if !ok {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

func (p *parser) unionDef() bool {
	p.advance() // union
	id, ok := p.expect(lexer.ID, "union name")
	if !ok {
		return false
	}
	p.declare(id, KindUnion)
	p.pushScope(id.Text)
	ok = p.unionBody()
	p.popScope()
	if !ok {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

// enumBody parses `{ NAME = value , ... }` declaring each member scoped to
// the containing enum.
func (p *parser) enumBody() bool {
	if _, ok := p.expect(lexer.LCURLY, "'{'"); !ok {
		return false
	}
	for {
		id, ok := p.expect(lexer.ID, "enum member name")
		if !ok {
			return false
		}
		p.declare(id, KindEnumMember)
		if _, ok := p.expect(lexer.ASSIGN, "'='"); !ok {
			return false
		}
		if !p.value() {
			return false
		}
		if p.match(lexer.COMMA) {
			continue
		}
		break
	}
	_, ok := p.expect(lexer.RCURLY, "'}'")
	return ok
}

// structBody parses `{ declaration ; ... }`.
func (p *parser) structBody() bool {
	if _, ok := p.expect(lexer.LCURLY, "'{'"); !ok {
		return false
	}
	for !p.atEnd() && !p.at(lexer.RCURLY) {
		if !p.declaration(KindMember) {
			p.recover()
			continue
		}
		if _, ok := p.expect(lexer.SEMI, "';'"); !ok {
			p.recover()
		}
	}
	_, ok := p.expect(lexer.RCURLY, "'}'")
	return ok
}

// unionBody parses `switch ( declaration ) { case ... }`.
func (p *parser) unionBody() bool {
	if _, ok := p.expect(lexer.SWITCH, "'switch'"); !ok {
		return false
	}
	if _, ok := p.expect(lexer.LROUND, "'('"); !ok {
		return false
	}
	if !p.declaration(KindMember) {
		return false
	}
	if _, ok := p.expect(lexer.RROUND, "')'"); !ok {
		return false
	}
	if _, ok := p.expect(lexer.LCURLY, "'{'"); !ok {
		return false
	}
	for !p.atEnd() && !p.at(lexer.RCURLY) {
		if !p.unionArm() {
			p.recover()
		}
	}
	_, ok := p.expect(lexer.RCURLY, "'}'")
	return ok
}

// unionArm parses one or more stacked `case value :` labels (or `default :`)
// followed by the arm's declaration. Case label identifiers are uses,
// typically of enum members or constants.
func (p *parser) unionArm() bool {
	labeled := false
	for {
		if p.match(lexer.CASE) {
			if !p.value() {
				return false
			}
			if _, ok := p.expect(lexer.COLON, "':'"); !ok {
				return false
			}
			labeled = true
			continue
		}
		if p.match(lexer.DEFAULT) {
			if _, ok := p.expect(lexer.COLON, "':'"); !ok {
				return false
			}
			labeled = true
			continue
		}
		break
	}
	if !labeled {
		p.errorf(p.peek().Span, "expected 'case' or 'default'")
		return false
	}
	if !p.declaration(KindMember) {
		return false
	}
	_, ok := p.expect(lexer.SEMI, "';'")
	return ok
}

// programDef parses `program NAME { version ... } = value ;` declaring the
// program, each version, and each procedure nested under the program.
func (p *parser) programDef() bool {
	p.advance() // program
	id, ok := p.expect(lexer.ID, "program name")
	if !ok {
		return false
	}
	p.declare(id, KindProgram)
	if _, ok := p.expect(lexer.LCURLY, "'{'"); !ok {
		return false
	}
	p.pushScope(id.Text)
	for !p.atEnd() && !p.at(lexer.RCURLY) {
		if !p.versionDef() {
			p.recover()
		}
	}
	p.popScope()
	if _, ok := p.expect(lexer.RCURLY, "'}'"); !ok {
		return false
	}
	if _, ok := p.expect(lexer.ASSIGN, "'='"); !ok {
		return false
	}
	if !p.value() {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

func (p *parser) versionDef() bool {
	if _, ok := p.expect(lexer.VERSION, "'version'"); !ok {
		return false
	}
	id, ok := p.expect(lexer.ID, "version name")
	if !ok {
		return false
	}
	p.declare(id, KindVersion)
	if _, ok := p.expect(lexer.LCURLY, "'{'"); !ok {
		return false
	}
	p.pushScope(id.Text)
	for !p.atEnd() && !p.at(lexer.RCURLY) {
		if !p.procedureDef() {
			p.recover()
		}
	}
	p.popScope()
	if _, ok := p.expect(lexer.RCURLY, "'}'"); !ok {
		return false
	}
	if _, ok := p.expect(lexer.ASSIGN, "'='"); !ok {
		return false
	}
	if !p.value() {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

// procedureDef parses `ret-type NAME ( arg-type , ... ) = value ;`. The
// return and argument type names are uses.
func (p *parser) procedureDef() bool {
	if !p.typeSpecifier() {
		return false
	}
	id, ok := p.expect(lexer.ID, "procedure name")
	if !ok {
		return false
	}
	p.declare(id, KindProcedure)
	if _, ok := p.expect(lexer.LROUND, "'('"); !ok {
		return false
	}
	for {
		if !p.typeSpecifier() {
			return false
		}
		if p.match(lexer.COMMA) {
			continue
		}
		break
	}
	if _, ok := p.expect(lexer.RROUND, "')'"); !ok {
		return false
	}
	if _, ok := p.expect(lexer.ASSIGN, "'='"); !ok {
		return false
	}
	if !p.value() {
		return false
	}
	_, ok = p.expect(lexer.SEMI, "';'")
	return ok
}

// declaration parses an RFC4506 declaration and records the declared
// identifier with the given kind:
//
//	type-specifier identifier
//	type-specifier identifier [ value ]
//	type-specifier identifier < value? >
//	type-specifier * identifier
//	opaque identifier [ value ]
//	opaque identifier < value? >
//	string identifier < value? >
//	void
func (p *parser) declaration(kind DeclKind) bool {
	switch p.peek().Kind {
	case lexer.VOID:
		p.advance()
		return true
	case lexer.OPAQUE, lexer.STRING:
		p.advance()
		id, ok := p.expect(lexer.ID, "identifier")
		if !ok {
			return false
		}
		p.declare(id, kind)
		return p.arraySuffix()
	}

	if !p.typeSpecifier() {
		return false
	}
	p.match(lexer.STAR) // optional-data marker
	id, ok := p.expect(lexer.ID, "identifier")
	if !ok {
		return false
	}
	p.declare(id, kind)
	return p.arraySuffix()
}

// arraySuffix parses an optional `[ value ]` or `< value? >` suffix. Size
// identifiers are uses, typically of constants.
func (p *parser) arraySuffix() bool {
	if p.match(lexer.LSQUARE) {
		if !p.value() {
			return false
		}
		_, ok := p.expect(lexer.RSQUARE, "']'")
		return ok
	}
	if p.match(lexer.LESS) {
		if !p.at(lexer.GREATER) {
			if !p.value() {
				return false
			}
		}
		_, ok := p.expect(lexer.GREATER, "'>'")
		return ok
	}
	return true
}

// typeSpecifier parses a type reference. A plain identifier in type position
// is recorded as a use, even when the type is declared later or in another
// file. Inline enum/struct/union bodies are parsed in place.
func (p *parser) typeSpecifier() bool {
	tok := p.peek()
	switch tok.Kind {
	case lexer.UNSIGNED:
		p.advance()
		// "unsigned" alone means unsigned int.
		if p.at(lexer.INT) || p.at(lexer.HYPER) {
			p.advance()
		}
		return true
	case lexer.INT, lexer.HYPER, lexer.FLOAT, lexer.DOUBLE, lexer.QUADRUPLE,
		lexer.BOOL, lexer.VOID:
		p.advance()
		return true
	case lexer.ENUM:
		p.advance()
		if p.at(lexer.ID) {
			// Named reference: `enum color c;`.
			id := p.advance()
			p.use(id)
			return true
		}
		return p.enumBody()
	case lexer.STRUCT:
		p.advance()
		if p.at(lexer.ID) {
			id := p.advance()
			p.use(id)
			return true
		}
		return p.structBody()
	case lexer.UNION:
		p.advance()
		if p.at(lexer.ID) {
			id := p.advance()
			p.use(id)
			return true
		}
		return p.unionBody()
	case lexer.ID:
		p.advance()
		p.use(tok)
		return true
	}
	p.errorf(tok.Span, "expected type specifier, got %q", tok.Text)
	return false
}

// value parses a constant or an identifier reference. Identifiers in value
// position (array sizes, case labels, enum values) are uses.
func (p *parser) value() bool {
	tok := p.peek()
	switch tok.Kind {
	case lexer.INTEGER, lexer.QUOTED:
		p.advance()
		return true
	case lexer.ID:
		p.advance()
		p.use(tok)
		return true
	}
	p.errorf(tok.Span, "expected value, got %q", tok.Text)
	return false
}
