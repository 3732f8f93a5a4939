package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/models"
)

func TestRunCodeSuccess(t *testing.T) {
	runner := &fakeRunner{artifact: &models.Artifact{
		Status: models.ExecStatusSuccess,
		Stdout: "total revenue: 5480.75",
	}}
	env, sub := testEnv(t, runner)

	tool := NewRunCodeTool()
	result, err := tool.Execute(context.Background(), env,
		mustJSON(t, RunCodeArgs{Code: `print("total")`, Description: "sum revenue"}))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, `print("total")`, runner.gotCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, "total revenue: 5480.75", payload["stdout"])
	assert.Equal(t, false, payload["has_image"])

	types := eventTypes(drainEvents(t, sub))
	assert.Equal(t, []string{"code_generated"}, types)

	snap := env.State.Snapshot()
	require.Len(t, snap.Artifacts, 1)
}

func TestRunCodeCollectsImage(t *testing.T) {
	runner := &fakeRunner{artifact: &models.Artifact{
		Status:      models.ExecStatusSuccess,
		ImageBase64: "aW1hZ2U=",
		HasImage:    true,
	}}
	env, sub := testEnv(t, runner)
	require.NoError(t, env.State.ReplaceTasks([]models.Task{
		{ID: 3, Name: "Plot revenue", Type: models.TaskTypeVisualization, Status: models.TaskStatusInProgress},
	}))

	tool := NewRunCodeTool()
	result, err := tool.Execute(context.Background(), env,
		mustJSON(t, RunCodeArgs{Code: "plt.plot(x)"}))
	require.NoError(t, err)
	assert.True(t, result.HasImage)

	evts := drainEvents(t, sub)
	types := eventTypes(evts)
	require.Contains(t, types, "image_generated")
	for _, e := range evts {
		if e["type"] == "image_generated" {
			assert.Equal(t, float64(3), e["task_id"])
			assert.Equal(t, "Plot revenue", e["task_name"])
		}
	}

	images := env.State.Images()
	require.Len(t, images, 1)
	assert.Equal(t, "aW1hZ2U=", images[0].ImageBase64)

	// Code is attributed to the in_progress task.
	assert.Equal(t, "plt.plot(x)", env.State.Tasks()[0].Code)
}

func TestRunCodeErrorArtifactIsPayload(t *testing.T) {
	runner := &fakeRunner{artifact: &models.Artifact{
		Status: models.ExecStatusError,
		Stdout: "EXECUTION ERROR:\nKeyError: 'revenue'",
		Stderr: "warning: deprecated",
	}}
	env, _ := testEnv(t, runner)

	tool := NewRunCodeTool()
	result, err := tool.Execute(context.Background(), env,
		mustJSON(t, RunCodeArgs{Code: "df['revenue']"}))
	require.NoError(t, err, "program failures are fed back, not fatal")
	assert.Equal(t, StatusError, result.Status)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, "error", payload["status"])
	assert.Contains(t, payload["stderr"], "deprecated")
}

func TestRunCodeCapsOutput(t *testing.T) {
	runner := &fakeRunner{artifact: &models.Artifact{
		Status: models.ExecStatusSuccess,
		Stdout: strings.Repeat("x", 5000),
		Stderr: strings.Repeat("e", 1000),
	}}
	env, _ := testEnv(t, runner)

	tool := NewRunCodeTool()
	result, err := tool.Execute(context.Background(), env,
		mustJSON(t, RunCodeArgs{Code: "noisy()"}))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Len(t, payload["stdout"], stdoutCap+3)
	assert.Len(t, payload["stderr"], stderrCap+3)
	assert.Len(t, result.StdoutPreview, previewCap+3)
}

func TestRunCodeIncludesResultJSON(t *testing.T) {
	runner := &fakeRunner{artifact: &models.Artifact{
		Status:    models.ExecStatusSuccess,
		Result:    map[string]any{"mean": 913.46},
		HasResult: true,
	}}
	env, _ := testEnv(t, runner)

	tool := NewRunCodeTool()
	result, err := tool.Execute(context.Background(), env,
		mustJSON(t, RunCodeArgs{Code: "summarize()"}))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	inner := payload["result"].(map[string]any)
	assert.Equal(t, 913.46, inner["mean"])
}

func TestRunCodeEmptyCode(t *testing.T) {
	env, _ := testEnv(t, &fakeRunner{})
	tool := NewRunCodeTool()

	_, err := tool.Execute(context.Background(), env, mustJSON(t, RunCodeArgs{Code: ""}))
	require.Error(t, err)
	assert.Equal(t, models.KindInvalidInput, models.KindOf(err))
}
