package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh/tools/knowledge"
)

func newKnowledgeCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Maintain and query the knowledge index",
	}
	cmd.AddCommand(newKnowledgeIndexCmd(ro), newKnowledgeSearchCmd(ro))
	return cmd
}

func newKnowledgeIndexCmd(ro *rootOptions) *cobra.Command {
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Index .md and .txt files of a directory into the bluge index",
		Long: `Walks dir, splits every document into paragraph-aligned chunks and
writes them to the on-disk index at knowledge.index_path. Re-indexing a
file replaces its chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			if cfg.Knowledge.IndexPath == "" {
				return errors.New("knowledge.index_path is not set")
			}
			if chunkSize <= 0 {
				chunkSize = cfg.Knowledge.ChunkSize
			}

			docs, err := knowledge.LoadDir(args[0], func(o *knowledge.LoadOptions) {
				if chunkSize > 0 {
					o.ChunkSize = chunkSize
				}
			})
			if err != nil {
				return err
			}

			idx, err := knowledge.OpenBlugeIndex(cfg.Knowledge.IndexPath)
			if err != nil {
				return err
			}
			defer idx.Close()
			if err := idx.Index(cmd.Context(), docs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %s into %s\n", len(docs), args[0], cfg.Knowledge.IndexPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "soft chunk size in bytes (default knowledge.chunk_size)")
	return cmd
}

func newKnowledgeSearchCmd(ro *rootOptions) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the configured knowledge backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mesh, err := ro.open(cmd.Context())
			if err != nil {
				return err
			}
			defer mesh.Close()

			tl := knowledge.NewTool(mesh.Knowledge(), func(o *knowledge.ToolOptions) {
				o.DefaultResults = mesh.Config().Knowledge.DefaultResults
				o.Threshold = mesh.Config().Knowledge.Threshold
			})
			out, err := tl.Call(cmd.Context(), map[string]any{"query": joinArgs(args), "n_results": n})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "results", "n", 0, "number of passages (default knowledge.default_results)")
	return cmd
}
