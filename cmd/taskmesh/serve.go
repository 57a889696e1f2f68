package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/scheduler"
	"github.com/hupe1980/taskmesh/server"
)

func newServeCmd(ro *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pipelines over HTTP and run scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mesh, err := ro.open(ctx)
			if err != nil {
				return err
			}
			defer mesh.Close()
			cfg := mesh.Config()
			if addr != "" {
				cfg.Server.Addr = addr
			}

			sched, err := newScheduler(mesh)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					mesh.Logger().Warn("scheduler.stop.timeout", "error", err)
				}
			}()

			srv := server.New(mesh.Engine(), func(o *server.Options) {
				o.ReadTimeout = cfg.Server.ReadTimeout
				o.WriteTimeout = cfg.Server.WriteTimeout
				o.ShutdownTimeout = cfg.Server.ShutdownTimeout
				o.Logger = mesh.Logger()
			})
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// newScheduler registers the configured pipeline schedules and the
// transcript prune job.
func newScheduler(mesh *taskmesh.TaskMesh) (*scheduler.Scheduler, error) {
	cfg := mesh.Config()
	sched := scheduler.New(func(o *scheduler.Options) {
		o.Logger = mesh.Logger()
	})

	for i, sc := range cfg.Schedules {
		if _, ok := mesh.Engine().Pipeline(sc.Pipeline); !ok {
			return nil, fmt.Errorf("schedule %d: unknown pipeline %q", i, sc.Pipeline)
		}
		if err := sched.Add(pipelineJob(mesh, i, sc)); err != nil {
			return nil, err
		}
	}

	tc := cfg.Transcript
	if mesh.Engine().Transcripts() != nil && tc.Retention > 0 && tc.PruneSchedule != "" {
		err := sched.Add(scheduler.Job{
			Name: "transcript-prune",
			Spec: tc.PruneSchedule,
			Run: func(ctx context.Context) error {
				_, err := mesh.PruneTranscripts(ctx)
				return err
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func pipelineJob(mesh *taskmesh.TaskMesh, i int, sc config.ScheduleConfig) scheduler.Job {
	name := sc.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", sc.Pipeline, i)
	}
	return scheduler.Job{
		Name: name,
		Spec: sc.Spec,
		Run: func(ctx context.Context) error {
			res, err := mesh.Run(ctx, sc.Pipeline, sc.Task)
			if err != nil {
				return err
			}
			if res.ResultText == "" {
				return fmt.Errorf("pipeline %s returned no result: %s", sc.Pipeline, res.Reason)
			}
			mesh.Logger().Info("scheduler.pipeline.result",
				"job", name,
				"session_id", res.SessionID,
				"status", res.Status.String(),
				"degraded", res.Degraded,
			)
			return nil
		},
	}
}
