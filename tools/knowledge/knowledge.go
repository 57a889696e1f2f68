// Package knowledge provides the knowledge search collaborator behind the
// search_knowledge_base tool: a Searcher contract, two indexes (in-memory
// term overlap and a bluge full-text index) and a directory loader.
package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// Document is one indexed chunk.
type Document struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Result is one search hit.
type Result struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher answers free-text queries. Implementations return at most k
// results with Score >= threshold, best first.
type Searcher interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]Result, error)
}

// Indexer adds documents to a searchable index. Documents with an id that
// is already present replace the previous version.
type Indexer interface {
	Index(ctx context.Context, docs ...Document) error
}

// Index is a Searcher that can be written to.
type Index interface {
	Searcher
	Indexer
}

// LoadOptions tune LoadDir.
type LoadOptions struct {
	// Extensions are the file suffixes picked up (case-insensitive).
	Extensions []string
	// ChunkSize is the soft upper bound of a chunk in bytes. Paragraphs
	// are never split, so a single long paragraph may exceed it.
	ChunkSize int
}

// LoadDir walks dir and splits every matching file into paragraph-aligned
// chunks. Sources are paths relative to dir with forward slashes.
func LoadDir(dir string, optFns ...func(o *LoadOptions)) ([]Document, error) {
	opts := LoadOptions{
		Extensions: []string{".md", ".txt"},
		ChunkSize:  1200,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(opts.Extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		source := filepath.ToSlash(rel)
		for i, chunk := range Chunk(string(data), opts.ChunkSize) {
			docs = append(docs, Document{
				ID:      fmt.Sprintf("%s#%d", source, i),
				Source:  source,
				Content: chunk,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Chunk groups blank-line separated paragraphs into chunks of at most size
// bytes.
func Chunk(text string, size int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

func terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
