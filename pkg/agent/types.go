// Package agent hosts the execution engine that drives one analysis
// session from agent_started to a terminal event, delegating the loop
// semantics to a pluggable strategy.
package agent

import (
	"context"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/session"
	"github.com/dana-ai/dana/pkg/tools"
)

// ExecutionContext bundles everything a strategy needs for one session.
type ExecutionContext struct {
	SessionID string
	Request   string
	Dataset   models.Dataset
	State     *session.State
	LLM       llm.Client
	Tools     *tools.Registry
	Env       *tools.ExecEnv
	Publisher *events.Publisher
	Config    *config.AgentConfig
	Metrics   *metrics.Metrics

	// Iterations is the session's shared LLM-call budget tracker.
	Iterations *IterationState
}

// IterationState tracks the single per-session LLM call counter. Every
// phase of every strategy draws from the same budget; once it is spent no
// further call is made, not even a concluding one.
type IterationState struct {
	max   int
	state *session.State
}

// NewIterationState creates a budget tracker over the session state's
// iteration counter.
func NewIterationState(max int, st *session.State) *IterationState {
	return &IterationState{max: max, state: st}
}

// Next consumes one LLM call from the budget. ok is false when the budget
// is exhausted; the counter is not advanced in that case.
func (s *IterationState) Next() (int, bool) {
	if s.state.Iteration() >= s.max {
		return s.state.Iteration(), false
	}
	return s.state.NextIteration(), true
}

// Current returns the number of LLM calls made so far.
func (s *IterationState) Current() int {
	return s.state.Iteration()
}

// Exhausted reports whether the budget is spent.
func (s *IterationState) Exhausted() bool {
	return s.state.Iteration() >= s.max
}

// Max returns the configured budget.
func (s *IterationState) Max() int {
	return s.max
}

// Result is what a strategy run produced. Report may be empty when the
// iteration budget ran out before one was written.
type Result struct {
	Report               string
	Images               []models.Image
	ReachedMaxIterations bool
	IncompleteTasks      int
}

// Strategy is one loop discipline driving a session. Run returns a
// Result on any completed run, including iteration-capped ones; an error
// means infrastructure failure and maps to agent_error.
type Strategy interface {
	Name() string
	Run(ctx context.Context, execCtx *ExecutionContext) (*Result, error)
}

// StrategyFactory builds a strategy for a mode tag.
type StrategyFactory interface {
	Create(tag string) (Strategy, error)
}
