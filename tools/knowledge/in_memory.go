package knowledge

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// InMemoryIndex is a process-local Index scoring documents by the share of
// distinct query terms they contain (0..1). It needs no setup and suits
// tests and small knowledge sets.
type InMemoryIndex struct {
	mu    sync.RWMutex
	docs  map[string]Document
	terms map[string]map[string]struct{} // doc id -> term set
}

var _ Index = (*InMemoryIndex)(nil)

// NewInMemoryIndex returns an empty index.
func NewInMemoryIndex(docs ...Document) *InMemoryIndex {
	idx := &InMemoryIndex{
		docs:  make(map[string]Document),
		terms: make(map[string]map[string]struct{}),
	}
	_ = idx.Index(context.Background(), docs...)
	return idx
}

// Index adds or replaces docs.
func (m *InMemoryIndex) Index(_ context.Context, docs ...Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		set := make(map[string]struct{})
		for _, t := range terms(d.Content + " " + d.Source) {
			set[t] = struct{}{}
		}
		m.docs[d.ID] = d
		m.terms[d.ID] = set
	}
	return nil
}

// Len returns the number of documents.
func (m *InMemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Search implements Searcher. Documents without any matching term are
// never returned, whatever the threshold.
func (m *InMemoryIndex) Search(ctx context.Context, query string, k int, threshold float64) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := slices.Compact(slices.Sorted(slices.Values(terms(query))))
	if len(q) == 0 || k <= 0 {
		return []Result{}, nil
	}

	m.mu.RLock()
	results := make([]Result, 0)
	for id, set := range m.terms {
		hits := 0
		for _, t := range q {
			if _, ok := set[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(q))
		if score < threshold {
			continue
		}
		d := m.docs[id]
		results = append(results, Result{Source: d.Source, Content: d.Content, Score: score})
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Source+a.Content, b.Source+b.Content)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
