package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/models"
)

func collect(t *testing.T, sub *Subscription, n int) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		select {
		case data, ok := <-sub.Events():
			require.True(t, ok, "channel closed after %d of %d events", i, n)
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return out
}

func TestPublisherAssignsMonotonicSeq(t *testing.T) {
	bus := newTestBus(32)
	bus.Register("s1")
	pub := NewPublisher(bus, "s1")

	pub.AgentStarted("analyze sales", "tool_driven")
	pub.PhaseChange("running")
	pub.ReportGenerated("# Report")

	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	defer sub.Close()

	got := collect(t, sub, 3)
	assert.Equal(t, EventTypeAgentStarted, got[0]["type"])
	assert.Equal(t, EventTypePhaseChange, got[1]["type"])
	assert.Equal(t, EventTypeReportGenerated, got[2]["type"])
	for i, m := range got {
		assert.Equal(t, float64(i+1), m["seq"])
		assert.Equal(t, "s1", m["session_id"])

		_, err := time.Parse(time.RFC3339Nano, m["timestamp"].(string))
		assert.NoError(t, err)
	}
}

func TestPublisherFlattensPayloadFields(t *testing.T) {
	bus := newTestBus(32)
	bus.Register("s1")
	pub := NewPublisher(bus, "s1")

	pub.ToolCall("run_code", map[string]any{"code": "print(1)"}, "call_1", 3)
	pub.ToolResult("run_code", "call_1", "success", "1", false, 3)

	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	defer sub.Close()

	got := collect(t, sub, 2)

	call := got[0]
	assert.Equal(t, EventTypeToolCall, call["type"])
	assert.Equal(t, "run_code", call["tool_name"])
	assert.Equal(t, "call_1", call["call_id"])
	assert.Equal(t, float64(3), call["iteration"])
	args, ok := call["arguments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "print(1)", args["code"])

	result := got[1]
	assert.Equal(t, EventTypeToolResult, result["type"])
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, "1", result["stdout_preview"])
	assert.Equal(t, false, result["has_image"])
}

func TestAgentCompletedNormalizesNilImages(t *testing.T) {
	bus := newTestBus(32)
	bus.Register("s1")
	pub := NewPublisher(bus, "s1")

	pub.AgentCompleted("# Done", nil, false, 0)

	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	defer sub.Close()

	got := collect(t, sub, 1)
	images, ok := got[0]["images"].([]any)
	require.True(t, ok, "images must serialize as [], not null")
	assert.Empty(t, images)
	assert.Equal(t, false, got[0]["reached_max_iterations"])
}

func TestPublishAfterTerminalDoesNotPanic(t *testing.T) {
	bus := newTestBus(32)
	bus.Register("s1")
	pub := NewPublisher(bus, "s1")

	pub.AgentStopped("client requested stop")
	// Rejected by the closed stream and logged; callers never see an error.
	pub.PhaseChange("running")

	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	defer sub.Close()

	got := collect(t, sub, 1)
	assert.Equal(t, EventTypeAgentStopped, got[0]["type"])
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestTasksUpdatedCarriesFullSnapshot(t *testing.T) {
	bus := newTestBus(32)
	bus.Register("s1")
	pub := NewPublisher(bus, "s1")

	tasks := []models.Task{
		{ID: 1, Name: "Explore data", Type: models.TaskTypeDataExploration, Status: models.TaskStatusCompleted},
		{ID: 2, Name: "Plot revenue", Type: models.TaskTypeVisualization, Status: models.TaskStatusInProgress},
	}
	pub.TasksUpdated(tasks, TaskSourceTool)

	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	defer sub.Close()

	got := collect(t, sub, 1)
	assert.Equal(t, TaskSourceTool, got[0]["source"])
	list, ok := got[0]["tasks"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, float64(1), first["id"])
	assert.Equal(t, string(models.TaskStatusCompleted), first["status"])
}
