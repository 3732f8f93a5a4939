package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dana-ai/dana/pkg/models"
)

const (
	// stdoutCap bounds the stdout fed back to the LLM in the tool message.
	stdoutCap = 2000
	// stderrCap bounds the stderr excerpt in the tool message.
	stderrCap = 500
	// previewCap bounds the stdout preview carried on tool_result events.
	previewCap = 300
)

// RunCodeArgs are the arguments of the run_code tool.
type RunCodeArgs struct {
	Code        string `json:"code" jsonschema:"description=Python code to execute. The dataset is available at DATASET_PATH. Save charts with matplotlib; open figures are saved to result.png automatically. Write structured output to result.json."`
	Description string `json:"description,omitempty" jsonschema:"description=One-line summary of what the code does."`
}

// RunCodeTool executes Python in the sandbox and feeds the outcome back
// to the LLM. Program failures are payloads, never fatal.
type RunCodeTool struct {
	schema json.RawMessage
}

// NewRunCodeTool creates the tool and reflects its schema.
func NewRunCodeTool() *RunCodeTool {
	return &RunCodeTool{schema: generateSchema(&RunCodeArgs{})}
}

func (t *RunCodeTool) Name() string { return "run_code" }

func (t *RunCodeTool) Description() string {
	return "Execute Python code against the dataset in a sandboxed interpreter. Returns stdout, stderr, and any chart or JSON result the code produced."
}

func (t *RunCodeTool) Schema() json.RawMessage { return t.schema }

func (t *RunCodeTool) Execute(ctx context.Context, env *ExecEnv, args json.RawMessage) (*Result, error) {
	var in RunCodeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, models.WrapError(models.KindInvalidInput, err, "decode run_code arguments")
	}
	if in.Code == "" {
		return nil, models.NewError(models.KindInvalidInput, "code must not be empty")
	}

	taskID, taskName := currentTask(env)
	env.Publisher.CodeGenerated(taskID, in.Code, in.Description)

	artifact, err := env.Runner.Run(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	_ = env.State.AppendArtifact(*artifact)

	if artifact.HasImage {
		img := models.Image{TaskID: taskID, TaskName: taskName, ImageBase64: artifact.ImageBase64}
		_ = env.State.AppendImage(img)
		env.Publisher.ImageGenerated(taskID, taskName, artifact.ImageBase64)
	}

	if taskID > 0 {
		_ = env.State.UpdateTask(taskID, func(task *models.Task) {
			task.Code = in.Code
		})
	}

	payload := map[string]any{
		"status":     artifact.Status,
		"stdout":     truncateRunes(artifact.Stdout, stdoutCap),
		"has_image":  artifact.HasImage,
		"has_result": artifact.HasResult,
	}
	if artifact.Stderr != "" {
		payload["stderr"] = truncateRunes(artifact.Stderr, stderrCap)
	}
	if artifact.HasResult {
		payload["result"] = artifact.Result
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal run_code result: %w", err)
	}

	return &Result{
		Content:       string(content),
		Status:        string(artifact.Status),
		StdoutPreview: truncateRunes(artifact.Stdout, previewCap),
		HasImage:      artifact.HasImage,
	}, nil
}

// currentTask finds the in_progress task, if any, for event attribution.
func currentTask(env *ExecEnv) (int, string) {
	for _, task := range env.State.Tasks() {
		if task.Status == models.TaskStatusInProgress {
			return task.ID, task.Name
		}
	}
	return 0, ""
}

// truncateRunes caps a string at n runes with an ellipsis marker.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
