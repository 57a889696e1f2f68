package knowledge

import (
	"context"
	"fmt"

	"github.com/blugelabs/bluge"
)

const (
	fieldContent = "content"
	fieldSource  = "source"
)

// BlugeIndex is a full-text Index backed by bluge. Scores are BM25 values,
// so a threshold is an absolute relevance floor rather than a fraction.
type BlugeIndex struct {
	writer *bluge.Writer
}

var _ Index = (*BlugeIndex)(nil)

// OpenBlugeIndex opens (or creates) an index in dir. An empty dir keeps the
// index in memory.
func OpenBlugeIndex(dir string) (*BlugeIndex, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if dir != "" {
		cfg = bluge.DefaultConfig(dir)
	}
	w, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("open bluge writer: %w", err)
	}
	return &BlugeIndex{writer: w}, nil
}

// Close flushes and closes the index.
func (b *BlugeIndex) Close() error { return b.writer.Close() }

// Index writes docs in one batch.
func (b *BlugeIndex) Index(ctx context.Context, docs ...Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := bluge.NewBatch()
	for _, d := range docs {
		doc := bluge.NewDocument(d.ID).
			AddField(bluge.NewTextField(fieldContent, d.Content).StoreValue()).
			AddField(bluge.NewKeywordField(fieldSource, d.Source).StoreValue())
		batch.Update(doc.ID(), doc)
	}
	if err := b.writer.Batch(batch); err != nil {
		return fmt.Errorf("index %d documents: %w", len(docs), err)
	}
	return nil
}

// Search implements Searcher with a match query on the content field.
func (b *BlugeIndex) Search(ctx context.Context, query string, k int, threshold float64) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	reader, err := b.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open bluge reader: %w", err)
	}
	defer reader.Close()

	req := bluge.NewTopNSearch(k, bluge.NewMatchQuery(query).SetField(fieldContent))
	it, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bluge search: %w", err)
	}

	results := make([]Result, 0, k)
	match, err := it.Next()
	for err == nil && match != nil {
		if match.Score >= threshold {
			r := Result{Score: match.Score}
			err = match.VisitStoredFields(func(field string, value []byte) bool {
				switch field {
				case fieldContent:
					r.Content = string(value)
				case fieldSource:
					r.Source = string(value)
				}
				return true
			})
			if err != nil {
				return nil, fmt.Errorf("read stored fields: %w", err)
			}
			results = append(results, r)
		}
		match, err = it.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return results, nil
}
