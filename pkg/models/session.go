// Package models contains the shared domain types and error taxonomy.
package models

// Phase is the lifecycle state of a session. Only these five values gate
// mutations; strategy sub-phases (planning, executing, reporting, ...) are
// presentation strings carried in phase_change events.
type Phase string

const (
	// PhaseInitializing means the session exists but the strategy has not started
	PhaseInitializing Phase = "initializing"
	// PhaseRunning means the strategy loop is executing
	PhaseRunning Phase = "running"
	// PhaseCompleted means the run finished with a report (or exhausted iterations)
	PhaseCompleted Phase = "completed"
	// PhaseFailed means an infrastructure error aborted the run
	PhaseFailed Phase = "failed"
	// PhaseStopped means the client cancelled the run
	PhaseStopped Phase = "stopped"
)

// IsValid checks if the phase is valid
func (p Phase) IsValid() bool {
	switch p {
	case PhaseInitializing, PhaseRunning, PhaseCompleted, PhaseFailed, PhaseStopped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the phase permits no further mutations
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseStopped
}

// Dataset is the handle to an uploaded dataset file on disk.
type Dataset struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Ext       string `json:"ext"` // lowercase, with leading dot: ".csv", ".xlsx"
	SizeBytes int64  `json:"size_bytes"`
}
