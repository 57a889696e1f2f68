package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
)

func newTranscriptsCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Inspect and prune recorded sessions",
	}
	cmd.AddCommand(newTranscriptsListCmd(ro), newTranscriptsPruneCmd(ro))
	return cmd
}

func newTranscriptsListCmd(ro *rootOptions) *cobra.Command {
	var (
		pipelineName string
		limit        int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			store, err := taskmesh.OpenTranscripts(cfg.Transcript)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("transcripts are disabled (transcript.driver: none)")
			}
			defer store.Close()

			recs, err := store.List(cmd.Context(), pipelineName, limit)
			if err != nil {
				return err
			}
			table := newTable(cmd, "ID", "Created", "Pipeline", "Status", "Task", "Result")
			for _, r := range recs {
				status := r.Status.String()
				if r.Degraded {
					status += " (degraded)"
				}
				table.Append([]string{
					r.ID,
					r.CreatedAt.Local().Format(time.DateTime),
					r.Pipeline,
					status,
					truncate(r.Task, 40),
					truncate(r.Result, 60),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelineName, "pipeline", "p", "", "only this pipeline")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records (0 for all)")
	return cmd
}

func newTranscriptsPruneCmd(ro *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete recorded sessions older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ro.load()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.Transcript.Retention
			}
			if olderThan <= 0 {
				return errors.New("no retention configured; pass --older-than")
			}
			store, err := taskmesh.OpenTranscripts(cfg.Transcript)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("transcripts are disabled (transcript.driver: none)")
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records older than %s\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (default transcript.retention)")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func joinArgs(args []string) string { return strings.Join(args, " ") }
