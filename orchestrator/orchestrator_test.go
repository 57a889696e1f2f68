package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/extract"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/participant"
	"github.com/hupe1980/taskmesh/termination"
	"github.com/hupe1980/taskmesh/tool"
	"github.com/hupe1980/taskmesh/turn"
)

func newRegistry(t *testing.T, specs ...core.ParticipantSpec) *core.Registry {
	t.Helper()
	r, err := core.NewRegistry(specs...)
	require.NoError(t, err)
	return r
}

func specs(ids ...string) []core.ParticipantSpec {
	out := make([]core.ParticipantSpec, len(ids))
	for i, id := range ids {
		out[i] = core.ParticipantSpec{ID: id, RoleDirective: "You are " + id}
	}
	return out
}

func newOrchestrator(t *testing.T, reg *core.Registry, exec *participant.Executor, cond termination.Condition, optFns ...func(o *Options)) *Orchestrator {
	t.Helper()
	o, err := New(reg, turn.NewRoundRobin(reg), exec, cond, optFns...)
	require.NoError(t, err)
	return o
}

func speakers(s *Session) []string {
	var out []string
	for _, m := range s.Log.Messages() {
		out = append(out, m.Speaker)
	}
	return out
}

func TestScenarioBudgetExceeded(t *testing.T) {
	m := model.NewScriptedModel("mock")
	m.Fallback = func(model.Request) model.Step { return model.Step{Text: "still thinking"} }

	reg := newRegistry(t, specs("a", "b", "c")...)
	o := newOrchestrator(t, reg, participant.NewExecutor(m, nil), termination.Budget(6))

	sess := o.Run(context.Background(), "an endless debate")

	assert.Equal(t, core.StatusBudgetExceeded, sess.Status())
	assert.Equal(t, 6, sess.Log.Len())
	assert.Equal(t, sess.Log.Len(), sess.TurnCount())
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, speakers(sess))

	var be *core.BudgetExceededError
	assert.ErrorAs(t, sess.Err(), &be)
}

func TestScenarioPenultimateExtraction(t *testing.T) {
	m := model.NewScriptedModel("mock",
		model.Step{Text: "one ticket titled x"},
		model.Step{Text: "```json {\"items\":[{\"title\":\"x\"}]}```"},
		model.Step{Text: "VALID_JSON"},
	)
	reg := newRegistry(t, specs("requirements_analyst", "parameter_extractor", "json_validator")...)
	o := newOrchestrator(t, reg, participant.NewExecutor(m, nil), termination.Mention("VALID_JSON"))

	sess := o.Run(context.Background(), "file a ticket")
	require.Equal(t, core.StatusTerminated, sess.Status())
	assert.NoError(t, sess.Err())
	assert.Equal(t, 3, sess.TurnCount())

	r := extract.Extractor{Strategy: extract.Penultimate, Structured: true}.Extract(sess.Log)
	require.True(t, r.Valid, r.Reason)
	want := map[string]any{"items": []any{map[string]any{"title": "x"}}}
	if diff := cmp.Diff(want, r.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioToolErrorContinues(t *testing.T) {
	m := model.NewScriptedModel("mock",
		model.Step{ToolCalls: []core.FunctionCall{{ID: "c1", Name: "search_knowledge_base", Arguments: `{"query":"vpn"}`}}},
		model.Step{Text: "The index is unavailable; try the wiki."},
		model.Step{Text: "Agreed. TERMINATE"},
	)
	tools, err := tool.NewRegistry(tool.NewFunctionTool("search_knowledge_base", "search", nil,
		func(context.Context, map[string]any) (any, error) { return nil, errors.New("index unavailable") }))
	require.NoError(t, err)

	reg := newRegistry(t,
		core.ParticipantSpec{ID: "knowledge_expert", Tools: []string{"search_knowledge_base"}},
		core.ParticipantSpec{ID: "general_assistant"},
	)
	o := newOrchestrator(t, reg, participant.NewExecutor(m, tools), termination.Any(termination.Mention("TERMINATE"), termination.Budget(10)))

	sess := o.Run(context.Background(), "where is the vpn guide?")
	require.Equal(t, core.StatusTerminated, sess.Status())

	msgs := sess.Log.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, core.KindToolResult, msgs[0].Kind)
	assert.Contains(t, msgs[0].Content, "index unavailable")
	assert.Equal(t, "knowledge_expert", msgs[1].Speaker)
	assert.Equal(t, "general_assistant", msgs[2].Speaker)
}

func TestToolOutputMentionDoesNotTerminate(t *testing.T) {
	m := model.NewScriptedModel("mock",
		model.Step{ToolCalls: []core.FunctionCall{{ID: "c1", Name: "execute_command", Arguments: `{"command":"grep TERMINATE app.log"}`}}},
		model.Step{Text: "app.log:12: worker TERMINATE requested\nTERMINATE"},
	)
	tools, err := tool.NewRegistry(tool.NewFunctionTool("execute_command", "run", nil,
		func(context.Context, map[string]any) (any, error) { return "app.log:12: worker TERMINATE requested", nil }))
	require.NoError(t, err)

	reg := newRegistry(t, core.ParticipantSpec{ID: "command_executor", Tools: []string{"execute_command"}})
	o := newOrchestrator(t, reg, participant.NewExecutor(m, tools), termination.Any(termination.Mention("TERMINATE"), termination.Budget(10)))

	sess := o.Run(context.Background(), "find terminate requests in app.log")
	require.Equal(t, core.StatusTerminated, sess.Status())

	msgs := sess.Log.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.KindToolResult, msgs[0].Kind)
	assert.Equal(t, core.KindText, msgs[1].Kind)

	r := extract.Extractor{Sentinel: "TERMINATE"}.Extract(sess.Log)
	require.True(t, r.Valid, r.Reason)
	assert.Equal(t, "app.log:12: worker  requested", r.Text)
}

func TestScenarioTimeoutThenFallback(t *testing.T) {
	slow := model.NewScriptedModel("slow", model.Step{Text: "late", Delay: time.Second})
	reg := newRegistry(t, specs("a", "b")...)
	o := newOrchestrator(t, reg,
		participant.NewExecutor(slow, nil, func(o *participant.Options) { o.ModelTimeout = 20 * time.Millisecond }),
		termination.Mention("TERMINATE"))

	sess := o.Run(context.Background(), "summarise the incident")
	require.Equal(t, core.StatusFailed, sess.Status())
	var mie *core.ModelInvocationError
	require.ErrorAs(t, sess.Err(), &mie)
	assert.Equal(t, 0, sess.Log.Len())

	generalist := model.NewScriptedModel("generalist", model.Step{Text: "Here is a short summary."})
	fb := NewFallback(participant.NewExecutor(generalist, nil), core.ParticipantSpec{ID: "general_assistant"})

	text, err := fb.Degrade(context.Background(), sess.Task)
	require.NoError(t, err)
	assert.Equal(t, "Here is a short summary.", text)
}

func TestFallbackApology(t *testing.T) {
	broken := model.NewScriptedModel("broken", model.Step{Err: errors.New("connection refused")})
	fb := NewFallback(participant.NewExecutor(broken, nil), core.ParticipantSpec{ID: "general_assistant"},
		func(o *FallbackOptions) { o.Apology = "sorry" })

	text, err := fb.Degrade(context.Background(), "task")
	assert.Equal(t, "sorry", text)
	var mie *core.ModelInvocationError
	assert.ErrorAs(t, err, &mie)

	empty := NewFallback(participant.NewExecutor(model.NewScriptedModel("empty", model.Step{}), nil), core.ParticipantSpec{ID: "g"})
	text, err = empty.Degrade(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, DefaultApology, text)
}

func TestMaxTurnsBudget(t *testing.T) {
	m := model.NewScriptedModel("mock")
	reg := newRegistry(t, specs("a", "b")...)
	o := newOrchestrator(t, reg, participant.NewExecutor(m, nil), termination.Mention("NEVER"),
		func(o *Options) { o.MaxTurns = 4 })

	sess := o.Run(context.Background(), "task")
	assert.Equal(t, core.StatusBudgetExceeded, sess.Status())
	assert.Equal(t, 4, sess.TurnCount())
	var be *core.BudgetExceededError
	require.ErrorAs(t, sess.Err(), &be)
	assert.Equal(t, 4, be.MaxTurns)
}

func TestTerminationBeatsBudgetOnSameMessage(t *testing.T) {
	m := model.NewScriptedModel("mock", model.Step{Text: "draft"}, model.Step{Text: "TERMINATE"})
	reg := newRegistry(t, specs("a", "b")...)
	o := newOrchestrator(t, reg, participant.NewExecutor(m, nil), termination.Mention("TERMINATE"),
		func(o *Options) { o.MaxTurns = 2 })

	sess := o.Run(context.Background(), "task")
	assert.Equal(t, core.StatusTerminated, sess.Status())
}

func TestToolLoopRespectsBudget(t *testing.T) {
	m := model.NewScriptedModel("mock")
	m.Fallback = func(model.Request) model.Step {
		return model.Step{ToolCalls: []core.FunctionCall{{ID: "x", Name: "noop"}}}
	}
	tools, err := tool.NewRegistry(tool.NewFunctionTool("noop", "noop", nil,
		func(context.Context, map[string]any) (any, error) { return "ok", nil }))
	require.NoError(t, err)

	reg := newRegistry(t, core.ParticipantSpec{ID: "a", Tools: []string{"noop"}, MaxToolIterations: 10})
	o := newOrchestrator(t, reg, participant.NewExecutor(m, tools), termination.Mention("DONE"),
		func(o *Options) { o.MaxTurns = 3 })

	sess := o.Run(context.Background(), "task")
	assert.Equal(t, core.StatusBudgetExceeded, sess.Status())
	assert.Equal(t, 3, sess.Log.Len())
	assert.Equal(t, 3, m.Calls())
}

func TestCancellation(t *testing.T) {
	slow := model.NewScriptedModel("slow")
	slow.Fallback = func(model.Request) model.Step { return model.Step{Text: "zzz", Delay: time.Second} }
	reg := newRegistry(t, specs("a", "b")...)
	o := newOrchestrator(t, reg, participant.NewExecutor(slow, nil), termination.Mention("TERMINATE"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sess := o.Run(ctx, "task")
	assert.Equal(t, core.StatusCancelled, sess.Status())
	var ce *core.CancellationError
	assert.ErrorAs(t, sess.Err(), &ce)
}

func TestRunIsolatesSessions(t *testing.T) {
	m := model.NewScriptedModel("mock", model.Step{Text: "TERMINATE"}, model.Step{Text: "x"}, model.Step{Text: "TERMINATE"})
	reg := newRegistry(t, specs("a", "b")...)
	o := newOrchestrator(t, reg, participant.NewExecutor(m, nil), termination.Mention("TERMINATE"))

	first := o.Run(context.Background(), "one")
	second := o.Run(context.Background(), "two")

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, first.Log.Len())
	assert.Equal(t, 2, second.Log.Len())
	assert.Equal(t, []string{"a", "b"}, speakers(second), "rotation restarts per session")

	o.Reset()
	assert.Nil(t, o.Current())
	assert.Equal(t, 0, second.Log.Len())
}

func TestUnknownParticipantFails(t *testing.T) {
	reg := newRegistry(t, specs("a")...)
	o, err := New(reg, stubPolicy("ghost"), participant.NewExecutor(model.NewScriptedModel("m"), nil), termination.Mention("X"))
	require.NoError(t, err)

	sess := o.Run(context.Background(), "task")
	assert.Equal(t, core.StatusFailed, sess.Status())
	assert.ErrorIs(t, sess.Err(), core.ErrUnknownParticipant)
}

func TestNewValidates(t *testing.T) {
	reg := newRegistry(t, specs("a")...)
	_, err := New(reg, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(nil, turn.NewRoundRobin(reg), participant.NewExecutor(model.NewScriptedModel("m"), nil), termination.Mention("X"))
	assert.ErrorIs(t, err, core.ErrEmptyRegistry)
}

type stubPolicy string

func (s stubPolicy) Next(context.Context, string, core.LogView) (string, error) { return string(s), nil }
func (s stubPolicy) Reset()                                                    {}
