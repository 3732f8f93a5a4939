package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/models"
)

func TestToolDrivenFullWalk(t *testing.T) {
	script := []scriptedTurn{
		{ToolCalls: []models.ToolCall{call("c1", "read_dataset", `{}`)}},
		{ToolCalls: []models.ToolCall{call("c2", "todo_write",
			`{"todos":[{"id":1,"content":"Explore the data","status":"in_progress"},{"id":2,"content":"Compare revenue by region","status":"pending"}]}`)}},
		{ToolCalls: []models.ToolCall{call("c3", "run_code", `{"code":"print(df.groupby('region').revenue.sum())"}`)}},
		{ToolCalls: []models.ToolCall{call("c4", "todo_write",
			`{"todos":[{"id":1,"content":"Explore the data","status":"completed"},{"id":2,"content":"Compare revenue by region","status":"completed"}],"merge":true}`)}},
		{Content: markdownReport},
	}
	ec, sub, client := newTestContext(t, 25, script, nil)

	result, err := (&toolDriven{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)
	assert.False(t, result.ReachedMaxIterations)
	assert.Zero(t, result.IncompleteTasks)
	assert.Equal(t, markdownReport, ec.State.Report())

	types := drainTypes(t, sub)
	assert.Contains(t, types, events.EventTypeDataExplored)
	assert.Contains(t, types, events.EventTypeTasksUpdated)
	assert.Contains(t, types, events.EventTypeCodeGenerated)
	assert.Contains(t, types, events.EventTypeReportGenerated)

	// Every turn advertised the full tool set.
	for _, req := range client.requests() {
		assert.Len(t, req.Tools, 3)
	}
}

func TestToolDrivenNudgesShortText(t *testing.T) {
	script := []scriptedTurn{
		{Content: "I looked at the data and it seems fine."},
		{Content: markdownReport},
	}
	ec, _, client := newTestContext(t, 25, script, nil)

	result, err := (&toolDriven{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)

	reqs := client.requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Contains(t, last.Content, "final report")
}

func TestToolDrivenWaitsForOpenTasks(t *testing.T) {
	script := []scriptedTurn{
		{ToolCalls: []models.ToolCall{call("c1", "todo_write",
			`{"todos":[{"id":1,"content":"Compare revenue","status":"pending"}]}`)}},
		// Report-shaped text while the task is still open must not end the run.
		{Content: markdownReport},
		{ToolCalls: []models.ToolCall{call("c2", "todo_write",
			`{"todos":[{"id":1,"content":"Compare revenue","status":"completed"}],"merge":true}`)}},
		{Content: markdownReport},
	}
	ec, _, client := newTestContext(t, 25, script, nil)

	result, err := (&toolDriven{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)
	assert.Len(t, client.requests(), 4)
}

func TestToolDrivenExhaustionCompletesSoftly(t *testing.T) {
	script := []scriptedTurn{
		{Content: "still thinking"},
		{Content: "still thinking"},
		{Content: "still thinking"},
	}
	ec, sub, _ := newTestContext(t, 2, script, nil)

	result, err := (&toolDriven{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, result.ReachedMaxIterations)
	assert.Empty(t, result.Report)

	// No terminal event here: the engine owns those.
	for _, eventType := range drainTypes(t, sub) {
		assert.False(t, events.IsTerminal(eventType))
	}
}

func TestToolDrivenCancellation(t *testing.T) {
	ec, _, _ := newTestContext(t, 25, []scriptedTurn{{Content: markdownReport}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&toolDriven{}).Run(ctx, ec)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCancelled))
}

func TestToolDrivenLLMFailurePropagates(t *testing.T) {
	script := []scriptedTurn{
		{Err: models.NewError(models.KindLLMFailed, "upstream unavailable")},
	}
	ec, _, _ := newTestContext(t, 25, script, nil)

	_, err := (&toolDriven{}).Run(context.Background(), ec)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindLLMFailed))
}
