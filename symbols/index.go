// Package symbols merges per-file parse results into a workspace-wide symbol
// index and answers definition and reference queries against it. The index is
// built exactly once via Builder.Build and is read-only afterward, so
// concurrent query handling needs no locking.
package symbols

import (
	"fmt"
	"sort"
	"strings"

	"github.com/drebelsky/xdr-ls/lexer"
	"github.com/drebelsky/xdr-ls/parser"
)

// Location is a positional answer: a file path plus the span of an
// identifier token within it.
type Location struct {
	Path string
	Span lexer.Span
}

// Decl is an indexed declaration. Shadowed declarations share a qualified
// name with an earlier one; they stay queryable on their own but are never
// resolution targets for uses.
type Decl struct {
	Name      string
	Qualified string
	Kind      parser.DeclKind
	Path      string
	Span      lexer.Span
	Shadowed  bool
}

type useEntry struct {
	name string
	path string
	span lexer.Span
	decl int // index into Index.decls, -1 when unresolved
}

// occurrence is one identifier occurrence within a file, either a declaring
// occurrence (decl >= 0) or a use (use >= 0).
type occurrence struct {
	span lexer.Span
	decl int
	use  int
}

type fileEntry struct {
	path        string
	occurrences []occurrence // sorted by start position
}

// Builder accumulates parsed files for one workspace. Files are indexed in
// the order they are added; callers add them in sorted-path order so results
// are independent of filesystem walk order.
type Builder struct {
	files []*parser.File
}

// NewBuilder creates an empty index builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a parsed file to the build set.
func (b *Builder) Add(file *parser.File) {
	b.files = append(b.files, file)
}

// Build runs the two-pass merge and freezes the result. Pass one collects
// every declaration into the global table (first insertion per qualified name
// wins; later ones are marked shadowed, except reopened namespaces); enum
// members are additionally entered under their enum's enclosing scope so
// sibling case labels can name them. Pass two
// resolves every use by searching its scope chain innermost to outermost,
// then the global scope; unmatched uses stay unresolved, which is not an
// error.
func (b *Builder) Build() (*Index, error) {
	idx := &Index{
		byQualified: make(map[string]int),
		files:       make(map[string]*fileEntry),
	}

	// Collection pass.
	for _, file := range b.files {
		entry := &fileEntry{path: file.Path}
		idx.files[file.Path] = entry
		idx.stats.Files++
		idx.stats.Diagnostics += len(file.Diags)

		for _, d := range file.Decls {
			decl := Decl{
				Name:      d.Name,
				Qualified: d.QualifiedName(),
				Kind:      d.Kind,
				Path:      file.Path,
				Span:      d.Span,
			}
			if first, exists := idx.byQualified[decl.Qualified]; exists {
				// A namespace reopened under the same qualified name is one
				// logical scope, not a duplicate.
				if !(decl.Kind == parser.KindNamespace && idx.decls[first].Kind == parser.KindNamespace) {
					decl.Shadowed = true
					idx.stats.Shadowed++
				}
			} else {
				idx.byQualified[decl.Qualified] = len(idx.decls)
			}
			// Enum members are visible by leaf name in the scope enclosing
			// their enum, the way C scopes enumerators. Case labels and other
			// out-of-enum uses resolve through this entry; the qualified name
			// above stays authoritative for in-enum lookups.
			if decl.Kind == parser.KindEnumMember && len(d.Scope) > 0 {
				key := decl.Name
				if outer := strings.Join(d.Scope[:len(d.Scope)-1], "::"); outer != "" {
					key = outer + "::" + decl.Name
				}
				if _, exists := idx.byQualified[key]; !exists {
					idx.byQualified[key] = len(idx.decls)
				}
			}
			entry.occurrences = append(entry.occurrences, occurrence{
				span: decl.Span,
				decl: len(idx.decls),
				use:  -1,
			})
			idx.decls = append(idx.decls, decl)
		}
	}
	idx.refs = make([][]int, len(idx.decls))

	// Resolution pass.
	for _, file := range b.files {
		entry := idx.files[file.Path]
		for _, u := range file.Uses {
			use := useEntry{
				name: u.Name,
				path: file.Path,
				span: u.Span,
				decl: idx.resolve(u.Name, u.Scope),
			}
			if use.decl < 0 {
				idx.stats.Unresolved++
			} else {
				idx.refs[use.decl] = append(idx.refs[use.decl], len(idx.uses))
			}
			entry.occurrences = append(entry.occurrences, occurrence{
				span: u.Span,
				decl: -1,
				use:  len(idx.uses),
			})
			idx.uses = append(idx.uses, use)
		}
		sort.Slice(entry.occurrences, func(i, j int) bool {
			return entry.occurrences[i].span.Start.Before(entry.occurrences[j].span.Start)
		})
	}

	names, err := newNameTable(idx.decls)
	if err != nil {
		return nil, fmt.Errorf("building name table: %w", err)
	}
	idx.names = names
	return idx, nil
}

// resolve searches for name within the scope chain, innermost first, then in
// the global scope. Returns the declaration index or -1.
func (idx *Index) resolve(name string, scope []string) int {
	for i := len(scope); i >= 0; i-- {
		key := name
		if i > 0 {
			key = strings.Join(scope[:i], "::") + "::" + name
		}
		if di, ok := idx.byQualified[key]; ok {
			return di
		}
	}
	return -1
}

// Stats summarizes what an index build produced.
type Stats struct {
	Files       int
	Unresolved  int
	Shadowed    int
	Diagnostics int
	Decls       int
	Uses        int
}

// Index is the frozen workspace symbol table. All queries are pure, in-memory
// lookups; none may fail, they return empty results instead.
type Index struct {
	decls       []Decl
	uses        []useEntry
	refs        [][]int // per-declaration use indices, insertion order
	byQualified map[string]int
	files       map[string]*fileEntry
	names       *nameTable
	stats       Stats
}

// Close releases the name table. The index is unusable afterward.
func (idx *Index) Close() error {
	if idx.names != nil {
		return idx.names.Close()
	}
	return nil
}

// Stats returns build statistics for logging.
func (idx *Index) Stats() Stats {
	s := idx.stats
	s.Decls = len(idx.decls)
	s.Uses = len(idx.uses)
	return s
}

// HasFile reports whether the path was part of the indexed workspace.
func (idx *Index) HasFile(path string) bool {
	_, ok := idx.files[path]
	return ok
}

// occurrenceAt locates the identifier occurrence whose span contains pos.
func (idx *Index) occurrenceAt(path string, pos lexer.Position) (occurrence, bool) {
	entry, ok := idx.files[path]
	if !ok {
		return occurrence{}, false
	}
	occ := entry.occurrences
	// First occurrence starting after pos; the candidate is the one before.
	i := sort.Search(len(occ), func(i int) bool {
		return pos.Before(occ[i].span.Start)
	})
	if i == 0 {
		return occurrence{}, false
	}
	if cand := occ[i-1]; cand.span.Contains(pos) {
		return cand, true
	}
	return occurrence{}, false
}

// declAt resolves the position to a declaration: directly when the cursor is
// on a declaring occurrence, through the resolved link when it is on a use.
func (idx *Index) declAt(path string, pos lexer.Position) (int, bool) {
	occ, ok := idx.occurrenceAt(path, pos)
	if !ok {
		return -1, false
	}
	if occ.decl >= 0 {
		return occ.decl, true
	}
	if di := idx.uses[occ.use].decl; di >= 0 {
		return di, true
	}
	return -1, false
}

// Definition answers "go to definition" for the identifier at pos. Invoking
// it on a declaration returns the declaration itself.
func (idx *Index) Definition(path string, pos lexer.Position) (Location, bool) {
	di, ok := idx.declAt(path, pos)
	if !ok {
		return Location{}, false
	}
	return idx.DeclLocation(di), true
}

// References answers "find references" for the identifier at pos: every use
// resolved to the same declaration, ordered by file indexing order then
// textual order, optionally preceded by the declaration itself.
func (idx *Index) References(path string, pos lexer.Position, includeDecl bool) []Location {
	di, ok := idx.declAt(path, pos)
	if !ok {
		return nil
	}
	return idx.DeclReferences(di, includeDecl)
}

// DeclLocation returns the identifier location of a declaration by index.
func (idx *Index) DeclLocation(di int) Location {
	d := idx.decls[di]
	return Location{Path: d.Path, Span: d.Span}
}

// DeclReferences returns the ordered use locations of a declaration by index.
func (idx *Index) DeclReferences(di int, includeDecl bool) []Location {
	var locs []Location
	if includeDecl {
		locs = append(locs, idx.DeclLocation(di))
	}
	for _, ui := range idx.refs[di] {
		u := idx.uses[ui]
		locs = append(locs, Location{Path: u.path, Span: u.span})
	}
	return locs
}

// DeclByName finds the first declaration in the given file with the given
// leaf name, searching the name table. Used by the header fallback, where the
// request names an identifier textually rather than by position.
func (idx *Index) DeclByName(path string, name string) (int, bool) {
	for _, di := range idx.names.lookup(name, len(idx.decls)) {
		if idx.decls[di].Path == path {
			return di, true
		}
	}
	return -1, false
}
