package session

import (
	"sync"

	"github.com/dana-ai/dana/pkg/models"
)

// State owns everything a running session accumulates: conversation
// history, the task list, execution artifacts, images, the report, the
// lifecycle phase, and the iteration counter. One mutex guards it all;
// the strategy goroutine is the single logical writer, the API reads
// through Snapshot.
//
// Every mutation is rejected with INVALID_STATE once the phase is
// terminal. Strategies treat that as a signal to unwind, not a bug.
type State struct {
	mu        sync.RWMutex
	phase     models.Phase
	messages  []models.Message
	tasks     []models.Task
	artifacts []models.Artifact
	images    []models.Image
	report    string
	iteration int
}

// Snapshot is a deep, read-only copy of a session's state.
type Snapshot struct {
	Phase     models.Phase      `json:"phase"`
	Messages  []models.Message  `json:"messages"`
	Tasks     []models.Task     `json:"tasks"`
	Artifacts []models.Artifact `json:"artifacts"`
	Images    []models.Image    `json:"images"`
	Report    string            `json:"report"`
	Iteration int               `json:"iteration"`
}

// NewState creates session state in the initializing phase.
func NewState() *State {
	return &State{phase: models.PhaseInitializing}
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() models.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase transitions the lifecycle phase. Once a terminal phase is
// reached no further transition is allowed.
func (s *State) SetPhase(phase models.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return models.NewError(models.KindInvalidState,
			"session is already %s, cannot transition to %s", s.phase, phase)
	}
	if !phase.IsValid() {
		return models.NewError(models.KindInvalidState, "invalid phase %q", phase)
	}
	s.phase = phase
	return nil
}

// AppendMessage appends one entry to the conversation history.
func (s *State) AppendMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return s.terminalErr("append message")
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of the conversation history.
func (s *State) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.messages)
}

// AppendArtifact records the outcome of one code execution.
func (s *State) AppendArtifact(a models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return s.terminalErr("append artifact")
	}
	s.artifacts = append(s.artifacts, a)
	return nil
}

// AppendImage records a chart produced by a code execution.
func (s *State) AppendImage(img models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return s.terminalErr("append image")
	}
	s.images = append(s.images, img)
	return nil
}

// Images returns a copy of the collected charts.
func (s *State) Images() []models.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Image, len(s.images))
	copy(out, s.images)
	return out
}

// ReplaceTasks swaps in a new task list. At most one task may be
// in_progress; a list violating that is rejected whole.
func (s *State) ReplaceTasks(tasks []models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return s.terminalErr("replace tasks")
	}
	if err := validateTaskList(tasks); err != nil {
		return err
	}
	s.tasks = copyTasks(tasks)
	return nil
}

// UpdateTask applies a mutation to one task by id. The update is rolled
// back if it would leave more than one task in_progress.
func (s *State) UpdateTask(id int, update func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return s.terminalErr("update task")
	}
	idx := -1
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.NewError(models.KindInvalidInput, "no task with id %d", id)
	}

	before := s.tasks[idx]
	update(&s.tasks[idx])
	s.tasks[idx].ID = before.ID // ids are immutable

	if err := validateTaskList(s.tasks); err != nil {
		s.tasks[idx] = before
		return err
	}
	return nil
}

// Tasks returns a copy of the task list.
func (s *State) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTasks(s.tasks)
}

// IncompleteTaskCount counts tasks not yet in a terminal status.
func (s *State) IncompleteTaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if !t.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// SetReport stores the final Markdown report.
func (s *State) SetReport(report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return s.terminalErr("set report")
	}
	s.report = report
	return nil
}

// Report returns the final report, empty until one is produced.
func (s *State) Report() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// NextIteration increments and returns the per-session LLM call counter.
// Every strategy phase draws from this one counter.
func (s *State) NextIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

// Iteration returns the current LLM call count.
func (s *State) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// Snapshot returns a deep copy of everything for readers.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifacts := make([]models.Artifact, len(s.artifacts))
	copy(artifacts, s.artifacts)
	images := make([]models.Image, len(s.images))
	copy(images, s.images)

	return Snapshot{
		Phase:     s.phase,
		Messages:  copyMessages(s.messages),
		Tasks:     copyTasks(s.tasks),
		Artifacts: artifacts,
		Images:    images,
		Report:    s.report,
		Iteration: s.iteration,
	}
}

func (s *State) terminalErr(op string) error {
	return models.NewError(models.KindInvalidState, "cannot %s: session is %s", op, s.phase)
}

// validateTaskList enforces unique ids and at most one in_progress task.
func validateTaskList(tasks []models.Task) error {
	seen := make(map[int]struct{}, len(tasks))
	inProgress := 0
	for _, t := range tasks {
		if _, dup := seen[t.ID]; dup {
			return models.NewError(models.KindInvalidInput, "duplicate task id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
		if !t.Status.IsValid() {
			return models.NewError(models.KindInvalidInput, "task %d has invalid status %q", t.ID, t.Status)
		}
		if t.Status == models.TaskStatusInProgress {
			inProgress++
		}
	}
	if inProgress > 1 {
		return models.NewError(models.KindInvalidState,
			"%d tasks in_progress, at most one allowed", inProgress)
	}
	return nil
}

func copyTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)
	return out
}

func copyMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if len(out[i].ToolCalls) > 0 {
			calls := make([]models.ToolCall, len(out[i].ToolCalls))
			copy(calls, out[i].ToolCalls)
			out[i].ToolCalls = calls
		}
	}
	return out
}
