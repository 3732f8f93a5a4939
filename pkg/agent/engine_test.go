package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/session"
	"github.com/dana-ai/dana/pkg/tools"
)

type fakeStrategy struct {
	name   string
	result *Result
	err    error
	run    func(ctx context.Context, ec *ExecutionContext) (*Result, error)
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Run(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	if s.run != nil {
		return s.run(ctx, ec)
	}
	return s.result, s.err
}

type fakeFactory struct {
	strat Strategy
	err   error
}

func (f *fakeFactory) Create(string) (Strategy, error) {
	return f.strat, f.err
}

type nopRunner struct{}

func (nopRunner) Run(context.Context, string) (*models.Artifact, error) {
	return &models.Artifact{Status: models.ExecStatusSuccess}, nil
}

func newTestEngine(t *testing.T, factory StrategyFactory) (*Engine, *session.Session, *events.Subscription) {
	t.Helper()
	bus := events.NewBus(64, nil)
	bus.Register("s1")
	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	engine := NewEngine(config.DefaultConfig(), bus, nil, factory, nil)
	engine.newRunner = func(models.Dataset) tools.CodeRunner { return nopRunner{} }

	sess := &session.Session{
		ID:       "s1",
		Request:  "analyze",
		Strategy: "tool_driven",
		Dataset:  models.Dataset{Filename: "d.csv", Ext: ".csv"},
		State:    session.NewState(),
	}
	return engine, sess, sub
}

func collectTypes(t *testing.T, sub *events.Subscription) []string {
	t.Helper()
	var types []string
	for raw := range sub.Events() {
		var envelope struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		types = append(types, envelope.Type)
	}
	return types
}

func lastEvent(t *testing.T, sub *events.Subscription) map[string]any {
	t.Helper()
	var last map[string]any
	for raw := range sub.Events() {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		last = decoded
	}
	require.NotNil(t, last)
	return last
}

func TestEngineCompletedRun(t *testing.T) {
	strat := &fakeStrategy{name: "tool_driven", result: &Result{Report: "# Done", Images: []models.Image{}}}
	engine, sess, sub := newTestEngine(t, &fakeFactory{strat: strat})

	engine.Run(context.Background(), sess)

	assert.Equal(t, models.PhaseCompleted, sess.State.Phase())
	assert.Equal(t, "# Done", sess.State.Report())

	types := collectTypes(t, sub)
	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeAgentStarted, types[0])
	assert.Contains(t, types, events.EventTypePhaseChange)
	assert.Equal(t, events.EventTypeAgentCompleted, types[len(types)-1])
	assert.NotContains(t, types, events.EventTypeAgentWarning)
}

func TestEngineSoftCompletionOnExhaustion(t *testing.T) {
	strat := &fakeStrategy{name: "tool_driven", result: &Result{ReachedMaxIterations: true, IncompleteTasks: 2}}
	engine, sess, sub := newTestEngine(t, &fakeFactory{strat: strat})

	engine.Run(context.Background(), sess)

	assert.Equal(t, models.PhaseCompleted, sess.State.Phase())

	var decoded []map[string]any
	for raw := range sub.Events() {
		var evt map[string]any
		require.NoError(t, json.Unmarshal(raw, &evt))
		decoded = append(decoded, evt)
	}
	require.NotEmpty(t, decoded)
	last := decoded[len(decoded)-1]
	assert.Equal(t, events.EventTypeAgentCompleted, last["type"])
	assert.Equal(t, true, last["reached_max_iterations"])
	assert.Equal(t, float64(2), last["incomplete_tasks_count"])
	// The warning precedes the terminal event.
	assert.Equal(t, events.EventTypeAgentWarning, decoded[len(decoded)-2]["type"])
}

func TestEngineStrategyFailure(t *testing.T) {
	strat := &fakeStrategy{name: "tool_driven", err: errors.New("model melted")}
	engine, sess, sub := newTestEngine(t, &fakeFactory{strat: strat})

	engine.Run(context.Background(), sess)

	assert.Equal(t, models.PhaseFailed, sess.State.Phase())
	last := lastEvent(t, sub)
	assert.Equal(t, events.EventTypeAgentError, last["type"])
	assert.Equal(t, "tool_driven", last["where"])
	assert.Contains(t, last["error"], "model melted")
}

func TestEngineCancellation(t *testing.T) {
	strat := &fakeStrategy{
		name: "tool_driven",
		run: func(ctx context.Context, _ *ExecutionContext) (*Result, error) {
			return nil, models.NewError(models.KindCancelled, "run cancelled")
		},
	}
	engine, sess, sub := newTestEngine(t, &fakeFactory{strat: strat})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine.Run(ctx, sess)

	assert.Equal(t, models.PhaseStopped, sess.State.Phase())
	last := lastEvent(t, sub)
	assert.Equal(t, events.EventTypeAgentStopped, last["type"])
	assert.Contains(t, last["reason"], "stop")
}

func TestEngineUnknownStrategy(t *testing.T) {
	factoryErr := models.NewError(models.KindInvalidInput, "unknown agent mode")
	engine, sess, sub := newTestEngine(t, &fakeFactory{err: factoryErr})

	engine.Run(context.Background(), sess)

	assert.Equal(t, models.PhaseFailed, sess.State.Phase())
	last := lastEvent(t, sub)
	assert.Equal(t, events.EventTypeAgentError, last["type"])
	assert.Equal(t, "strategy_setup", last["where"])
}

func TestEngineEmitsExactlyOneTerminalEvent(t *testing.T) {
	cases := map[string]*fakeStrategy{
		"completed": {name: "tool_driven", result: &Result{Report: "# R"}},
		"failed":    {name: "tool_driven", err: errors.New("boom")},
		"stopped":   {name: "tool_driven", err: models.NewError(models.KindCancelled, "stopped")},
	}
	for name, strat := range cases {
		t.Run(name, func(t *testing.T) {
			engine, sess, sub := newTestEngine(t, &fakeFactory{strat: strat})
			engine.Run(context.Background(), sess)

			terminal := 0
			for _, eventType := range collectTypes(t, sub) {
				if events.IsTerminal(eventType) {
					terminal++
				}
			}
			assert.Equal(t, 1, terminal)
		})
	}
}

func TestIterationState(t *testing.T) {
	st := session.NewState()
	iterations := NewIterationState(2, st)

	n, ok := iterations.Next()
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.False(t, iterations.Exhausted())

	n, ok = iterations.Next()
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.True(t, iterations.Exhausted())

	_, ok = iterations.Next()
	assert.False(t, ok)
	assert.Equal(t, 2, iterations.Current())
	assert.Equal(t, 2, iterations.Max())
}
