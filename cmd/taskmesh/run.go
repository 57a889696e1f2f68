package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh/tools/jira"
)

func newRunCmd(ro *rootOptions) *cobra.Command {
	var (
		pipelineName  string
		asJSON        bool
		createTickets bool
	)

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run one task through a pipeline and print the result",
		Long: `Runs a single task and prints the extracted result text.

The task is taken from the arguments; "-" reads it from stdin. With
--create-tickets the records of a tickets pipeline are filed in the
configured tracker and a report is printed after the result.`,
		Example: `  taskmesh run --pipeline router "How do I reset my VPN token?"
  taskmesh run --pipeline tickets --create-tickets - < meeting-notes.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			if task == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read task: %w", err)
				}
				task = string(data)
			}
			if strings.TrimSpace(task) == "" {
				return errors.New("task must not be empty")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mesh, err := ro.open(ctx)
			if err != nil {
				return err
			}
			defer mesh.Close()

			res, err := mesh.Run(ctx, pipelineName, task)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, res.ResultText)
				if res.Degraded {
					fmt.Fprintf(cmd.ErrOrStderr(), "note: degraded result (%s)\n", res.Reason)
				}
			}

			if createTickets {
				if len(res.Records) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "no ticket records in the result; nothing to create")
					return nil
				}
				outcomes, err := mesh.CreateTickets(ctx, res)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, jira.FormatReport(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelineName, "pipeline", "p", "router", "pipeline to run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&createTickets, "create-tickets", false, "file extracted ticket records in the tracker")
	return cmd
}
