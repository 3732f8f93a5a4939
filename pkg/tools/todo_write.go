package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/models"
)

// TodoItem is one task entry on the wire. The "cancelled" wire status maps
// to the skipped task status.
type TodoItem struct {
	ID      int    `json:"id" jsonschema:"description=Stable task identifier; unique within the session."`
	Content string `json:"content" jsonschema:"description=Short imperative task name."`
	Status  string `json:"status" jsonschema:"description=Task status.,enum=pending,enum=in_progress,enum=completed,enum=failed,enum=cancelled"`
}

// TodoWriteArgs are the arguments of the todo_write tool.
type TodoWriteArgs struct {
	Todos []TodoItem `json:"todos" jsonschema:"description=The task entries to write."`
	Merge bool       `json:"merge,omitempty" jsonschema:"description=true updates existing tasks by id and appends new ones; false replaces the whole list."`
}

// TodoWriteTool lets the LLM own the session task list. At most one task
// may be in_progress at a time; a violating write is rejected whole and
// the rejection is fed back to the LLM.
type TodoWriteTool struct {
	schema json.RawMessage
}

// NewTodoWriteTool creates the tool and reflects its schema.
func NewTodoWriteTool() *TodoWriteTool {
	return &TodoWriteTool{schema: generateSchema(&TodoWriteArgs{})}
}

func (t *TodoWriteTool) Name() string { return "todo_write" }

func (t *TodoWriteTool) Description() string {
	return "Create or update the analysis task list. Use merge=false to set the initial plan and merge=true to update task statuses as you work. Keep at most one task in_progress."
}

func (t *TodoWriteTool) Schema() json.RawMessage { return t.schema }

func (t *TodoWriteTool) Execute(ctx context.Context, env *ExecEnv, args json.RawMessage) (*Result, error) {
	var in TodoWriteArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, models.WrapError(models.KindInvalidInput, err, "decode todo_write arguments")
	}
	if len(in.Todos) == 0 {
		return nil, models.NewError(models.KindInvalidInput, "todos must not be empty")
	}

	var err error
	if in.Merge {
		err = t.mergeTasks(env, in.Todos)
	} else {
		err = t.replaceTasks(env, in.Todos)
	}
	if err != nil {
		return nil, err
	}

	tasks := env.State.Tasks()
	env.Publisher.TasksUpdated(tasks, events.TaskSourceTool)

	completed := 0
	for _, task := range tasks {
		if task.Status == models.TaskStatusCompleted {
			completed++
		}
	}
	return &Result{
		Content: fmt.Sprintf("Task list updated: %d tasks, %d completed.", len(tasks), completed),
		Status:  StatusSuccess,
	}, nil
}

// replaceTasks swaps in a fresh list built from the wire entries.
func (t *TodoWriteTool) replaceTasks(env *ExecEnv, todos []TodoItem) error {
	tasks := make([]models.Task, 0, len(todos))
	for _, todo := range todos {
		task, err := newTask(todo)
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}
	return env.State.ReplaceTasks(tasks)
}

// mergeTasks updates existing entries by id and appends unknown ids.
func (t *TodoWriteTool) mergeTasks(env *ExecEnv, todos []TodoItem) error {
	tasks := env.State.Tasks()
	index := make(map[int]int, len(tasks))
	for i, task := range tasks {
		index[task.ID] = i
	}

	for _, todo := range todos {
		status, err := taskStatus(todo.Status)
		if err != nil {
			return err
		}
		i, exists := index[todo.ID]
		if !exists {
			task, err := newTask(todo)
			if err != nil {
				return err
			}
			index[todo.ID] = len(tasks)
			tasks = append(tasks, task)
			continue
		}
		// A late-bound name only fills in when the task never had one.
		if todo.Content != "" && tasks[i].Name == "" {
			tasks[i].Name = todo.Content
			tasks[i].Type = classifyTask(todo.Content)
		}
		applyStatus(&tasks[i], status)
	}
	return env.State.ReplaceTasks(tasks)
}

func newTask(todo TodoItem) (models.Task, error) {
	status, err := taskStatus(todo.Status)
	if err != nil {
		return models.Task{}, err
	}
	task := models.Task{
		ID:     todo.ID,
		Name:   todo.Content,
		Type:   classifyTask(todo.Content),
		Status: models.TaskStatusPending,
	}
	applyStatus(&task, status)
	return task, nil
}

// applyStatus transitions a task's status, stamping start and completion
// times on the way.
func applyStatus(task *models.Task, status models.TaskStatus) {
	if task.Status == status {
		return
	}
	now := time.Now()
	if status == models.TaskStatusInProgress && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if status.IsTerminal() && task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	task.Status = status
}

// taskStatus maps a wire status to the task status domain.
func taskStatus(wire string) (models.TaskStatus, error) {
	if wire == "cancelled" {
		return models.TaskStatusSkipped, nil
	}
	status := models.TaskStatus(wire)
	if !status.IsValid() {
		return "", models.NewError(models.KindInvalidInput, "unknown task status %q", wire)
	}
	return status, nil
}

// classifyTask infers a task type from its name.
func classifyTask(name string) models.TaskType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "explor") || strings.Contains(lower, "inspect") || strings.Contains(lower, "schema"):
		return models.TaskTypeDataExploration
	case strings.Contains(lower, "plot") || strings.Contains(lower, "chart") || strings.Contains(lower, "visual") || strings.Contains(lower, "graph"):
		return models.TaskTypeVisualization
	case strings.Contains(lower, "report") || strings.Contains(lower, "summar"):
		return models.TaskTypeReport
	default:
		return models.TaskTypeAnalysis
	}
}
