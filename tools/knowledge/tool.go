package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/tool"
)

// ToolName is the name participants call the search tool by.
const ToolName = "search_knowledge_base"

// Fixed replies of the search tool.
const (
	NoResultsText     = "No relevant information was found in the knowledge base."
	NotConfiguredText = "The knowledge base is not configured; search is unavailable."
)

// ToolOptions tune the search tool.
type ToolOptions struct {
	// DefaultResults is used when the model omits n_results.
	DefaultResults int
	// MaxResults caps n_results.
	MaxResults int
	// Threshold is handed to the Searcher.
	Threshold float64
	Logger    logging.Logger
}

type searchArgs struct {
	Query    string `json:"query" description:"What to look up in the internal knowledge base"`
	NResults int    `json:"n_results,omitempty" description:"Number of passages to return (default 3)"`
}

// NewTool exposes searcher as the search_knowledge_base tool. Search
// failures are returned as text so the participant can react to them; a
// nil searcher yields the not-configured text.
func NewTool(searcher Searcher, optFns ...func(o *ToolOptions)) tool.Tool {
	opts := ToolOptions{
		DefaultResults: 3,
		MaxResults:     10,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	log := logging.OrNoOp(opts.Logger)

	return tool.NewFunctionToolFromStruct(
		ToolName,
		"Search the internal knowledge base (FAQs, runbooks, product documentation) and return the most relevant passages with their sources.",
		searchArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			query := tool.StringArg(args, "query")
			n := tool.IntArg(args, "n_results", opts.DefaultResults)
			if n <= 0 {
				n = opts.DefaultResults
			}
			n = min(n, opts.MaxResults)

			log.Info("knowledge.search", "query", query, "n_results", n)
			if searcher == nil {
				log.Warn("knowledge.search.unconfigured")
				return NotConfiguredText, nil
			}
			results, err := searcher.Search(ctx, query, n, opts.Threshold)
			if err != nil {
				log.Error("knowledge.search.failed", "error", err)
				return fmt.Sprintf("Knowledge base search failed: %v", err), nil
			}
			return Format(results), nil
		},
	)
}

// Format renders results the way the search tool reports them.
func Format(results []Result) string {
	if len(results) == 0 {
		return NoResultsText
	}
	parts := make([]string, len(results))
	for i, r := range results {
		source := r.Source
		if source == "" {
			source = "unknown source"
		}
		parts[i] = fmt.Sprintf("source: %s\ncontent: %s", source, r.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
