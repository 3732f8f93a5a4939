package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/models"
)

func TestLooksLikeReport(t *testing.T) {
	long := strings.Repeat("x", 200)
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"short markdown", "# Title\n\n- a finding", false},
		{"long plain prose", long, false},
		{"long with one indicator", "# Title\n" + long, false},
		{"long with headings and bullets", "# Title\n\n- first finding\n" + long, true},
		{"long with bold and table", "**Total** revenue table:\n| region | revenue |\n" + long, true},
		{"full report fixture", markdownReport, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeReport(tt.text))
		})
	}
}

func TestTurnStreamsContentAndThinking(t *testing.T) {
	script := []scriptedTurn{{Content: "streamed answer", Reasoning: "private chain"}}
	ec, sub, _ := newTestContext(t, 5, script, nil)

	resp, iteration, err := turn(context.Background(), ec, llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, iteration)
	assert.Equal(t, "streamed answer", resp.Content)
	assert.Equal(t, "private chain", resp.Reasoning)
	assert.Equal(t, 1, ec.Iterations.Current())

	evts := drainEvents(t, sub)
	streaming := eventsOfType(evts, events.EventTypeLLMStreaming)
	require.Len(t, streaming, 2)
	types := []string{streaming[0]["stream_type"].(string), streaming[1]["stream_type"].(string)}
	assert.ElementsMatch(t, []string{"content", "reasoning"}, types)
	for _, evt := range streaming {
		assert.Equal(t, evt["delta"], evt["full_content_so_far"])
		assert.Equal(t, float64(1), evt["iteration"])
	}

	thinking := eventsOfType(evts, events.EventTypeLLMThinking)
	require.Len(t, thinking, 1)
	assert.Equal(t, "private chain", thinking[0]["thinking"])
	assert.Equal(t, true, thinking[0]["is_real"])
}

func TestTurnStreamsToolCallFragments(t *testing.T) {
	args := `{"code":"print(1)"}`
	script := []scriptedTurn{{
		ToolArgDelta: args,
		ToolCalls:    []models.ToolCall{call("c1", "run_code", args)},
	}}
	ec, sub, _ := newTestContext(t, 5, script, nil)

	resp, _, err := turn(context.Background(), ec, llm.ChatRequest{})
	require.NoError(t, err)
	require.True(t, resp.HasToolCalls())

	streaming := eventsOfType(drainEvents(t, sub), events.EventTypeLLMStreaming)
	require.Len(t, streaming, 1)
	assert.Equal(t, "tool_call_chunk", streaming[0]["stream_type"])
	assert.Equal(t, args, streaming[0]["delta"])
	assert.Equal(t, args, streaming[0]["full_content_so_far"])
}

func TestTurnStopsAtBudget(t *testing.T) {
	script := []scriptedTurn{{Content: "one"}, {Content: "two"}}
	ec, _, client := newTestContext(t, 1, script, nil)

	_, _, err := turn(context.Background(), ec, llm.ChatRequest{})
	require.NoError(t, err)

	_, _, err = turn(context.Background(), ec, llm.ChatRequest{})
	require.ErrorIs(t, err, errExhausted)
	// The exhausted call never reached the client.
	assert.Len(t, client.requests(), 1)
}
