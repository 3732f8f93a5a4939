package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
)

// Manager owns all sessions in memory. It saves uploads, registers event
// streams, spawns strategy goroutines, and reclaims terminal sessions
// after the retention window.
type Manager struct {
	cfg     *config.Config
	bus     *events.Bus
	runner  Runner
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// StartInput carries everything needed to start a session. File is the
// uploaded dataset body; the manager persists it under the session's
// working directory.
type StartInput struct {
	Request  string
	Strategy string // empty → configured default mode
	Filename string
	File     io.Reader
}

// NewManager creates a session manager.
func NewManager(cfg *config.Config, bus *events.Bus, runner Runner, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:      cfg,
		bus:      bus,
		runner:   runner,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Start validates the input, persists the dataset, registers the event
// stream, and spawns the strategy goroutine. It returns as soon as the
// session exists; progress is observable on the event stream.
func (m *Manager) Start(ctx context.Context, in StartInput) (*Session, error) {
	if strings.TrimSpace(in.Request) == "" {
		return nil, models.NewError(models.KindInvalidInput, "request must not be empty")
	}

	strategy := in.Strategy
	if strategy == "" {
		strategy = string(m.cfg.Agent.Mode)
	}
	if !config.AgentMode(strategy).IsValid() {
		return nil, models.NewError(models.KindInvalidInput, "unknown strategy %q", strategy)
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	switch ext {
	case ".csv", ".xlsx":
	case ".xls":
		// The workbook reader handles OOXML only.
		return nil, models.NewError(models.KindUnsupportedFormat,
			"legacy .xls workbooks are not supported: convert %s to .xlsx or .csv", in.Filename)
	default:
		return nil, models.NewError(models.KindUnsupportedFormat,
			"unsupported dataset format %q: expected .csv or .xlsx", ext)
	}

	id := uuid.New().String()
	workDir := filepath.Join(m.cfg.Storage.UploadDir, id)
	dataset, err := m.saveDataset(workDir, in.Filename, ext, in.File)
	if err != nil {
		return nil, err
	}

	// The session outlives the start request: only Stop and shutdown
	// cancel it. WithoutCancel keeps request-scoped values attached.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Request:   in.Request,
		Strategy:  strategy,
		Dataset:   dataset,
		WorkDir:   workDir,
		State:     NewState(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	// Register before the goroutine starts so no event is ever lost.
	m.bus.Register(id)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionStarted(strategy)
	}
	slog.Info("Session started",
		"session_id", id, "strategy", strategy,
		"dataset", dataset.Filename, "size_bytes", dataset.SizeBytes)

	go m.run(sessCtx, sess)
	return sess, nil
}

// run executes the strategy and records the terminal timestamp.
func (m *Manager) run(ctx context.Context, sess *Session) {
	defer close(sess.done)
	defer sess.cancel()

	m.runner.Run(ctx, sess)

	sess.markTerminal(time.Now())
	phase := sess.State.Phase()
	if m.metrics != nil {
		m.metrics.SessionEnded(outcomeOf(phase))
	}
	slog.Info("Session finished", "session_id", sess.ID, "phase", phase)
}

// Stop requests cooperative cancellation. Idempotent; stopping an already
// terminal session is a no-op.
func (m *Manager) Stop(id string) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// StopAll cancels every non-terminal session. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.sessions {
		if !sess.State.Phase().IsTerminal() {
			sess.Cancel()
		}
	}
}

// Subscribe attaches to the session's event stream with full replay.
func (m *Manager) Subscribe(id string) (*events.Subscription, error) {
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	return m.bus.Subscribe(id)
}

// Fetch returns the result of a terminal session. A running session
// yields SESSION_NOT_READY.
func (m *Manager) Fetch(id string) (*Result, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	snap := sess.State.Snapshot()
	if !snap.Phase.IsTerminal() {
		return nil, models.NewError(models.KindSessionNotReady,
			"session %s is still %s", id, snap.Phase)
	}
	if snap.Images == nil {
		snap.Images = []models.Image{}
	}
	if snap.Tasks == nil {
		snap.Tasks = []models.Task{}
	}
	return &Result{
		SessionID: id,
		Phase:     snap.Phase,
		Report:    snap.Report,
		Images:    snap.Images,
		Tasks:     snap.Tasks,
	}, nil
}

// Get returns a read-only summary of one session.
func (m *Manager) Get(id string) (*Summary, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return summarize(sess), nil
}

// List returns summaries of all sessions, newest first.
func (m *Manager) List() []*Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	out := make([]*Summary, len(sessions))
	for i, s := range sessions {
		out[i] = summarize(s)
	}
	return out
}

// Wait blocks until the session's strategy goroutine returns.
func (m *Manager) Wait(ctx context.Context, id string) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	select {
	case <-sess.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount counts sessions that have not reached a terminal phase.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if !s.State.Phase().IsTerminal() {
			n++
		}
	}
	return n
}

// RunReaper reclaims expired terminal sessions once a minute until the
// context is cancelled. Run it as a goroutine from main.
func (m *Manager) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reap(time.Now())
		}
	}
}

// reap drops sessions whose terminal timestamp is older than the
// retention window: event stream, working directory, and map entry.
func (m *Manager) reap(now time.Time) {
	retention := m.cfg.Session.Retention()

	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		if terminalAt, done := s.TerminalAt(); done && now.Sub(terminalAt) > retention {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		m.bus.Drop(s.ID)
		if err := os.RemoveAll(s.WorkDir); err != nil {
			slog.Warn("Failed to remove session working directory",
				"session_id", s.ID, "work_dir", s.WorkDir, "error", err)
		}
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
		slog.Info("Session reclaimed", "session_id", s.ID)
	}
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, models.NewError(models.KindUnknownSession, "unknown session %s", id)
	}
	return sess, nil
}

// saveDataset persists the uploaded file under the session working
// directory and returns its handle.
func (m *Manager) saveDataset(workDir, filename, ext string, src io.Reader) (models.Dataset, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return models.Dataset{}, fmt.Errorf("create session directory: %w", err)
	}

	// Keep only the base name; the client controls the original path.
	path := filepath.Join(workDir, filepath.Base(filename))
	dst, err := os.Create(path)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("create dataset file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return models.Dataset{}, fmt.Errorf("save dataset: %w", err)
	}

	return models.Dataset{
		Path:      path,
		Filename:  filepath.Base(filename),
		Ext:       ext,
		SizeBytes: n,
	}, nil
}

func summarize(s *Session) *Summary {
	snap := s.State.Snapshot()
	completed := 0
	for _, t := range snap.Tasks {
		if t.Status == models.TaskStatusCompleted {
			completed++
		}
	}
	if snap.Tasks == nil {
		snap.Tasks = []models.Task{}
	}
	return &Summary{
		ID:             s.ID,
		Phase:          snap.Phase,
		Strategy:       s.Strategy,
		Request:        s.Request,
		Dataset:        s.Dataset.Filename,
		CreatedAt:      s.CreatedAt,
		Iteration:      snap.Iteration,
		Tasks:          snap.Tasks,
		TasksCompleted: completed,
		ImageCount:     len(snap.Images),
		HasReport:      snap.Report != "",
	}
}

func outcomeOf(phase models.Phase) string {
	switch phase {
	case models.PhaseFailed:
		return "failed"
	case models.PhaseStopped:
		return "stopped"
	default:
		return "completed"
	}
}
