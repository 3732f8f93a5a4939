package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/sandbox"
	"github.com/dana-ai/dana/pkg/session"
	"github.com/dana-ai/dana/pkg/tools"
)

// Engine implements session.Runner: it wires the execution context for
// one session, runs its strategy, and owns the lifecycle events
// (agent_started, phase transitions, exactly one terminal event).
type Engine struct {
	cfg        *config.Config
	bus        *events.Bus
	llmClient  llm.Client
	strategies StrategyFactory
	metrics    *metrics.Metrics

	// newRunner builds the per-session code runner. Tests substitute fakes.
	newRunner func(dataset models.Dataset) tools.CodeRunner
}

// NewEngine creates the engine with the sandbox as its code runner.
func NewEngine(cfg *config.Config, bus *events.Bus, llmClient llm.Client, strategies StrategyFactory, m *metrics.Metrics) *Engine {
	e := &Engine{
		cfg:        cfg,
		bus:        bus,
		llmClient:  llmClient,
		strategies: strategies,
		metrics:    m,
	}
	e.newRunner = func(dataset models.Dataset) tools.CodeRunner {
		return sandbox.NewExecutor(cfg, dataset)
	}
	return e
}

// Run drives one session to a terminal phase. It never panics the
// goroutine: every exit path emits exactly one terminal event.
func (e *Engine) Run(ctx context.Context, sess *session.Session) {
	pub := events.NewPublisher(e.bus, sess.ID)

	strat, err := e.strategies.Create(sess.Strategy)
	if err != nil {
		e.fail(sess, pub, err, "strategy_setup")
		return
	}

	registry, err := tools.NewRegistry(e.metrics,
		tools.NewReadDatasetTool(),
		tools.NewRunCodeTool(),
		tools.NewTodoWriteTool(),
	)
	if err != nil {
		e.fail(sess, pub, err, "tool_setup")
		return
	}

	env := &tools.ExecEnv{
		SessionID: sess.ID,
		State:     sess.State,
		Dataset:   sess.Dataset,
		Publisher: pub,
		Runner:    e.newRunner(sess.Dataset),
	}
	execCtx := &ExecutionContext{
		SessionID:  sess.ID,
		Request:    sess.Request,
		Dataset:    sess.Dataset,
		State:      sess.State,
		LLM:        e.llmClient,
		Tools:      registry,
		Env:        env,
		Publisher:  pub,
		Config:     &e.cfg.Agent,
		Metrics:    e.metrics,
		Iterations: NewIterationState(e.cfg.Agent.MaxIterations, sess.State),
	}

	pub.AgentStarted(sess.Request, sess.Strategy)
	if err := sess.State.SetPhase(models.PhaseRunning); err != nil {
		e.fail(sess, pub, err, "lifecycle")
		return
	}
	pub.PhaseChange(string(models.PhaseRunning))

	result, err := strat.Run(ctx, execCtx)
	switch {
	case isCancellation(ctx, err):
		_ = sess.State.SetPhase(models.PhaseStopped)
		pub.AgentStopped("client requested stop")
		slog.Info("Session stopped", "session_id", sess.ID, "strategy", strat.Name())
	case err != nil:
		e.fail(sess, pub, err, strat.Name())
	default:
		e.complete(sess, pub, result)
	}
}

// complete records the result and emits the terminal completion event.
// An iteration-capped run completes softly: warning first, then
// agent_completed with reached_max_iterations set.
func (e *Engine) complete(sess *session.Session, pub *events.Publisher, result *Result) {
	if result.Report != "" {
		_ = sess.State.SetReport(result.Report)
	}
	if result.ReachedMaxIterations {
		pub.AgentWarning("iteration budget exhausted before the analysis finished", result.IncompleteTasks)
	}
	_ = sess.State.SetPhase(models.PhaseCompleted)
	pub.AgentCompleted(result.Report, result.Images, result.ReachedMaxIterations, result.IncompleteTasks)
}

// fail marks the session failed and emits the terminal error event.
func (e *Engine) fail(sess *session.Session, pub *events.Publisher, err error, where string) {
	slog.Error("Session failed", "session_id", sess.ID, "where", where, "error", err)
	_ = sess.State.SetPhase(models.PhaseFailed)
	pub.AgentError(err, where)
}

// isCancellation distinguishes a client stop from an infrastructure
// failure. A strategy that finished despite a late cancel still counts
// as completed.
func isCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return models.IsKind(err, models.KindCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}
