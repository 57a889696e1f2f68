package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/extract"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/pipeline"
	"github.com/hupe1980/taskmesh/termination"
	"github.com/hupe1980/taskmesh/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gaugeModel answers "<answer> DONE" after delay and records the peak
// number of overlapping calls.
type gaugeModel struct {
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeModel) Info() model.Info { return model.Info{Name: "gauge", Provider: "test"} }

func (g *gaugeModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		n := g.inflight.Add(1)
		defer g.inflight.Add(-1)
		for {
			p := g.peak.Load()
			if n <= p || g.peak.CompareAndSwap(p, n) {
				break
			}
		}

		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case <-timer.C:
		}
		out <- model.Response{Content: core.NewTextContent(core.RoleAssistant, "all set DONE"), FinishReason: "stop"}
	}()
	return out, errCh
}

func echoConfig(name string) pipeline.Config {
	return pipeline.Config{
		Name:         name,
		Participants: []core.ParticipantSpec{{ID: "worker", Description: "does the work"}},
		Termination:  termination.Config{Mentions: []string{"DONE"}, MaxMessages: 4},
		Extraction:   extract.Extractor{Strategy: extract.SentinelStrip, Sentinel: "DONE"},
	}
}

func newEngine(t *testing.T, m model.Model, optFns ...func(o *Options)) *Engine {
	t.Helper()
	e := New(optFns...)
	for _, name := range []string{"echo", "other"} {
		p, err := pipeline.New(echoConfig(name), pipeline.Deps{Model: m})
		require.NoError(t, err)
		e.Register(p)
	}
	return e
}

func TestRunRecordsTranscript(t *testing.T) {
	store := transcript.NewInMemoryStore()
	e := newEngine(t, &gaugeModel{delay: time.Millisecond}, func(o *Options) {
		o.Transcripts = store
	})

	res, err := e.RunWithID(context.Background(), "sess-1", "echo", "say hi")
	require.NoError(t, err)
	assert.Equal(t, core.StatusTerminated, res.Status)
	assert.Equal(t, "all set", res.ResultText)

	recs, err := store.List(context.Background(), "echo", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sess-1", recs[0].SessionID)
	assert.Equal(t, "say hi", recs[0].Task)
	assert.Equal(t, "all set", recs[0].Result)
	assert.Len(t, recs[0].Messages, 1)
	assert.Same(t, store, e.Transcripts())
}

func TestUnknownPipeline(t *testing.T) {
	e := newEngine(t, &gaugeModel{})
	_, err := e.Run(context.Background(), "nope", "task")
	assert.ErrorIs(t, err, ErrUnknownPipeline)
	assert.Equal(t, []string{"echo", "other"}, e.Pipelines())
}

func TestConcurrencyIsBounded(t *testing.T) {
	g := &gaugeModel{delay: 30 * time.Millisecond}
	e := newEngine(t, g, func(o *Options) { o.MaxConcurrentTasks = 2 })

	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = Job{Pipeline: "echo", Task: "task"}
	}
	results, err := e.RunBatch(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, r := range results {
		assert.Equal(t, core.StatusTerminated, r.Status)
	}
	assert.LessOrEqual(t, g.peak.Load(), int32(2))
	assert.Equal(t, 2, e.MaxConcurrentTasks())
}

func TestRunBatchKeepsOrderAndIsolation(t *testing.T) {
	store := transcript.NewInMemoryStore()
	e := newEngine(t, &gaugeModel{delay: 5 * time.Millisecond}, func(o *Options) { o.Transcripts = store })

	results, err := e.RunBatch(context.Background(), []Job{
		{ID: "a", Pipeline: "echo", Task: "first"},
		{ID: "b", Pipeline: "other", Task: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", results[0].SessionID)
	assert.Equal(t, "echo", results[0].Pipeline)
	assert.Equal(t, "b", results[1].SessionID)
	assert.Equal(t, "other", results[1].Pipeline)
	for _, r := range results {
		assert.Len(t, r.Messages, 1)
	}

	all, err := store.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunBatchRejectsUnknownPipelineUpFront(t *testing.T) {
	g := &gaugeModel{}
	e := newEngine(t, g)
	_, err := e.RunBatch(context.Background(), []Job{
		{Pipeline: "echo", Task: "x"},
		{Pipeline: "missing", Task: "y"},
	})
	assert.ErrorIs(t, err, ErrUnknownPipeline)
	assert.Zero(t, g.peak.Load())
}

func TestCancelRunningSession(t *testing.T) {
	store := transcript.NewInMemoryStore()
	e := newEngine(t, &gaugeModel{delay: 10 * time.Second}, func(o *Options) { o.Transcripts = store })

	done := make(chan pipeline.Result, 1)
	go func() {
		res, _ := e.RunWithID(context.Background(), "long", "echo", "wait forever")
		done <- res
	}()

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"long"}, e.Active())
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Cancel("long"))

	select {
	case res := <-done:
		assert.Equal(t, core.StatusCancelled, res.Status)
		assert.Empty(t, res.ResultText)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after Cancel")
	}

	assert.Empty(t, e.Active())
	assert.ErrorIs(t, e.Cancel("long"), ErrUnknownSession)

	rec, err := store.List(context.Background(), "echo", 1)
	require.NoError(t, err)
	require.Len(t, rec, 1)
	assert.Equal(t, core.StatusCancelled, rec[0].Status)
}

func TestWaitingForSlotHonoursContext(t *testing.T) {
	e := newEngine(t, &gaugeModel{delay: 10 * time.Second}, func(o *Options) { o.MaxConcurrentTasks = 1 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.RunWithID(context.Background(), "holder", "echo", "hold the slot")
	}()
	require.Eventually(t, func() bool { return len(e.Active()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Run(ctx, "echo", "queued")
	var ce *core.CancellationError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, e.Cancel("holder"))
	<-done
}

func TestDuplicateRunningID(t *testing.T) {
	e := newEngine(t, &gaugeModel{delay: 10 * time.Second})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.RunWithID(context.Background(), "dup", "echo", "first")
	}()
	require.Eventually(t, func() bool { return len(e.Active()) == 1 }, time.Second, 5*time.Millisecond)

	_, err := e.RunWithID(context.Background(), "dup", "echo", "second")
	assert.ErrorIs(t, err, ErrDuplicateSession)

	require.NoError(t, e.Cancel("dup"))
	<-done
}

func TestCallbacks(t *testing.T) {
	var before, after atomic.Int32
	refuse := errors.New("maintenance window")

	e := newEngine(t, &gaugeModel{delay: time.Millisecond}, func(o *Options) {
		o.Callbacks = []Callback{
			NewFunctionCallback(CallbackBeforeSession, func(_ context.Context, cc *CallbackContext) error {
				before.Add(1)
				if cc.Task == "blocked" {
					return refuse
				}
				return nil
			}),
		}
	})
	e.OnSession(NewFunctionCallback(CallbackAfterSession, func(_ context.Context, cc *CallbackContext) error {
		after.Add(1)
		require.NotNil(t, cc.Result)
		return errors.New("ignored")
	}))

	res, err := e.Run(context.Background(), "echo", "fine")
	require.NoError(t, err)
	assert.Equal(t, "all set", res.ResultText)

	_, err = e.Run(context.Background(), "echo", "blocked")
	assert.ErrorIs(t, err, refuse)

	assert.Equal(t, int32(2), before.Load())
	assert.Equal(t, int32(1), after.Load())
}
