package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/models"
)

const stagedPlan = `{"analysis_goal":"Rank regions by revenue","tasks":[{"name":"Aggregate revenue","description":"Sum revenue per region","type":"analysis"},{"name":"Plot revenue","description":"Bar chart per region","type":"visualization"}]}`

func TestStagedWalk(t *testing.T) {
	script := []scriptedTurn{
		{Content: stagedPlan},
		{ToolCalls: []models.ToolCall{call("c1", "run_code", `{"code":"print(totals)"}`)}},
		{ToolCalls: []models.ToolCall{call("c2", "run_code", `{"code":"plt.bar(x, y)"}`)}},
		{Content: markdownReport},
	}
	ec, sub, _ := newTestContext(t, 25, script, nil)

	result, err := (&staged{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)

	tasks := ec.State.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, models.TaskStatusCompleted, tasks[0].Status)
	assert.Equal(t, models.TaskStatusCompleted, tasks[1].Status)

	evts := drainEvents(t, sub)
	var phases []string
	for _, evt := range eventsOfType(evts, events.EventTypePhaseChange) {
		phases = append(phases, evt["phase"].(string))
	}
	assert.Equal(t, []string{"exploring", "planning", "executing", "reporting"}, phases)
}

func TestStagedRecoveryRetry(t *testing.T) {
	runner := &fakeRunner{artifacts: []*models.Artifact{
		{Status: models.ExecStatusError, Stdout: "EXECUTION ERROR: KeyError 'revenu'"},
		{Status: models.ExecStatusSuccess, Stdout: "fixed"},
	}}
	script := []scriptedTurn{
		{Content: `{"analysis_goal":"g","tasks":[{"name":"Aggregate revenue","type":"analysis"}]}`},
		{ToolCalls: []models.ToolCall{call("c1", "run_code", `{"code":"broken"}`)}},
		{ToolCalls: []models.ToolCall{call("c2", "run_code", `{"code":"fixed"}`)}},
		{Content: markdownReport},
	}
	ec, sub, client := newTestContext(t, 25, script, runner)

	result, err := (&staged{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)

	tasks := ec.State.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusCompleted, tasks[0].Status)

	// The recovery prompt carries the failure detail.
	reqs := client.requests()
	require.Len(t, reqs, 4)
	recovery := reqs[2].Messages[len(reqs[2].Messages)-1]
	assert.Equal(t, models.RoleUser, recovery.Role)
	assert.Contains(t, recovery.Content, "failed")

	types := drainTypes(t, sub)
	assert.Contains(t, types, events.EventTypeCodeGenerated)
	assert.Contains(t, types, events.EventTypeTaskCompleted)
}

func TestStagedNoToolCallTriggersRecovery(t *testing.T) {
	script := []scriptedTurn{
		{Content: `{"analysis_goal":"g","tasks":[{"name":"Aggregate revenue","type":"analysis"}]}`},
		{Content: "I would aggregate revenue by region."},
		{ToolCalls: []models.ToolCall{call("c1", "run_code", `{"code":"print(1)"}`)}},
		{Content: markdownReport},
	}
	ec, _, client := newTestContext(t, 25, script, nil)

	result, err := (&staged{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)

	recovery := client.requests()[2].Messages
	assert.Contains(t, recovery[len(recovery)-1].Content, "no run_code call")
}

func TestStagedTaskFailsAfterBothAttempts(t *testing.T) {
	runner := &fakeRunner{artifacts: []*models.Artifact{
		{Status: models.ExecStatusError, Stdout: "EXECUTION ERROR: boom"},
		{Status: models.ExecStatusError, Stdout: "EXECUTION ERROR: boom again"},
	}}
	script := []scriptedTurn{
		{Content: `{"analysis_goal":"g","tasks":[{"name":"Aggregate revenue","type":"analysis"}]}`},
		{ToolCalls: []models.ToolCall{call("c1", "run_code", `{"code":"broken"}`)}},
		{ToolCalls: []models.ToolCall{call("c2", "run_code", `{"code":"still broken"}`)}},
		{Content: markdownReport},
	}
	ec, sub, _ := newTestContext(t, 25, script, runner)

	result, err := (&staged{}).Run(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, markdownReport, result.Report)

	tasks := ec.State.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskStatusFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].Error, "error")

	types := drainTypes(t, sub)
	assert.Contains(t, types, events.EventTypeTaskFailed)
}
