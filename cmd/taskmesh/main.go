// Command taskmesh runs multi-participant pipelines from the command line,
// serves them over HTTP and maintains the knowledge index and transcripts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
	"github.com/hupe1980/taskmesh/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logBackend string
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}

	root := &cobra.Command{
		Use:   "taskmesh",
		Short: "Run tasks through multi-participant model pipelines",
		Long: `taskmesh routes a task through a pipeline of model-backed participants
(router, tickets, command, report or your own YAML pipelines) and returns
the extracted result.

Configuration is read from --config (YAML), TASKMESH_* environment
variables and a .env file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&ro.configPath, "config", "c", "", "path to the configuration file")
	root.PersistentFlags().StringVar(&ro.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&ro.logBackend, "log-backend", "", "override log.backend (slog, zerolog, zap)")

	root.AddCommand(
		newRunCmd(ro),
		newServeCmd(ro),
		newPipelinesCmd(ro),
		newKnowledgeCmd(ro),
		newTranscriptsCmd(ro),
	)
	return root
}

func (ro *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	if ro.logLevel != "" {
		cfg.Log.Level = ro.logLevel
	}
	if ro.logBackend != "" {
		cfg.Log.Backend = ro.logBackend
	}
	return cfg, nil
}

func (ro *rootOptions) open(ctx context.Context, optFns ...func(o *taskmesh.Options)) (*taskmesh.TaskMesh, error) {
	cfg, err := ro.load()
	if err != nil {
		return nil, err
	}
	return taskmesh.New(ctx, cfg, optFns...)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
