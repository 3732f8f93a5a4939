package config

// AgentMode selects which loop strategy drives a session
type AgentMode string

const (
	// AgentModeToolDriven lets the LLM own the task list via todo_write
	AgentModeToolDriven AgentMode = "tool_driven"
	// AgentModeTaskDriven has code own the task list; the LLM executes tasks one by one
	AgentModeTaskDriven AgentMode = "task_driven"
	// AgentModeHybrid has code own list order while the LLM works each task freely
	AgentModeHybrid AgentMode = "hybrid"
	// AgentModeAutonomous parses task state from tagged LLM text each turn
	AgentModeAutonomous AgentMode = "autonomous"
	// AgentModeStaged walks fixed explore/plan/execute/report phases
	AgentModeStaged AgentMode = "staged"
)

// IsValid checks if the agent mode is valid
func (m AgentMode) IsValid() bool {
	switch m {
	case AgentModeToolDriven,
		AgentModeTaskDriven,
		AgentModeHybrid,
		AgentModeAutonomous,
		AgentModeStaged:
		return true
	default:
		return false
	}
}
