// Package session provides in-memory session lifecycle management: the
// per-session state container, the manager that starts and stops strategy
// goroutines, and the reaper that reclaims terminal sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dana-ai/dana/pkg/models"
)

// Session is one analysis run: an uploaded dataset, a request, a strategy
// tag, and the state the strategy accumulates. Immutable fields are set at
// creation; everything mutable lives in State.
type Session struct {
	ID        string
	CreatedAt time.Time
	Request   string
	Strategy  string
	Dataset   models.Dataset

	// WorkDir holds the uploaded dataset and is removed on reclaim.
	WorkDir string

	State *State

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	terminalAt time.Time
}

// Cancel requests cooperative cancellation of the strategy goroutine.
// Idempotent.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed when the strategy goroutine has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// markTerminal records when the run ended, for retention accounting.
func (s *Session) markTerminal(t time.Time) {
	s.mu.Lock()
	s.terminalAt = t
	s.mu.Unlock()
}

// TerminalAt returns when the run ended; ok is false while it is running.
func (s *Session) TerminalAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalAt, !s.terminalAt.IsZero()
}

// Runner executes one session's strategy to a terminal phase. It owns the
// agent_started event, the lifecycle phase transitions, and exactly one
// terminal event before returning.
type Runner interface {
	Run(ctx context.Context, sess *Session)
}

// Summary is the read-only session view exposed by the REST surface.
type Summary struct {
	ID             string        `json:"session_id"`
	Phase          models.Phase  `json:"phase"`
	Strategy       string        `json:"strategy"`
	Request        string        `json:"request"`
	Dataset        string        `json:"dataset"`
	CreatedAt      time.Time     `json:"created_at"`
	Iteration      int           `json:"iteration"`
	Tasks          []models.Task `json:"tasks"`
	TasksCompleted int           `json:"tasks_completed"`
	ImageCount     int           `json:"image_count"`
	HasReport      bool          `json:"has_report"`
}

// Result is the fetch payload of a terminal session.
type Result struct {
	SessionID string         `json:"session_id"`
	Phase     models.Phase   `json:"phase"`
	Report    string         `json:"report"`
	Images    []models.Image `json:"images"`
	Tasks     []models.Task  `json:"tasks"`
}
