package symbols

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// nameTable is an exact-term lookup from declaration leaf names to
// declaration indices, backed by an in-memory Bleve index. Qualified names
// live in the main table; this one serves by-name queries where no qualifier
// is available, such as identifiers found in generated headers.
type nameTable struct {
	index bleve.Index
}

// nameDocument is the document structure stored per declaration.
type nameDocument struct {
	Name string `json:"name"`
}

func buildNameMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	nameFieldMapping := bleve.NewKeywordFieldMapping()
	nameFieldMapping.Store = false
	nameFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// newNameTable indexes every declaration's leaf name. Document IDs are the
// declaration indices so lookups map straight back into Index.decls.
func newNameTable(decls []Decl) (*nameTable, error) {
	index, err := bleve.NewMemOnly(buildNameMapping())
	if err != nil {
		return nil, fmt.Errorf("creating name index: %w", err)
	}

	batch := index.NewBatch()
	for i, d := range decls {
		if err := batch.Index(strconv.Itoa(i), nameDocument{Name: d.Name}); err != nil {
			index.Close()
			return nil, fmt.Errorf("indexing name %q: %w", d.Name, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("committing name batch: %w", err)
	}

	return &nameTable{index: index}, nil
}

// lookup returns the declaration indices whose leaf name matches exactly,
// in ascending declaration order. max bounds the result size; callers pass
// the total declaration count so no match is ever dropped.
func (t *nameTable) lookup(name string, max int) []int {
	query := bleve.NewTermQuery(name)
	query.SetField("name")

	request := bleve.NewSearchRequest(query)
	if max < 1 {
		max = 1
	}
	request.Size = max

	result, err := t.index.Search(request)
	if err != nil {
		return nil
	}

	matches := make([]int, 0, len(result.Hits))
	for _, hit := range result.Hits {
		di, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		matches = append(matches, di)
	}
	sort.Ints(matches)
	return matches
}

// Close releases the underlying Bleve index.
func (t *nameTable) Close() error {
	return t.index.Close()
}
