package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/session"
)

// fakeRunner returns a scripted artifact, or a scripted error, for every
// execution.
type fakeRunner struct {
	artifact *models.Artifact
	err      error
	gotCode  string
}

func (r *fakeRunner) Run(ctx context.Context, code string) (*models.Artifact, error) {
	r.gotCode = code
	if r.err != nil {
		return nil, r.err
	}
	return r.artifact, nil
}

// testEnv builds an ExecEnv over a registered bus stream so tool events
// are observable through a subscription.
func testEnv(t *testing.T, runner CodeRunner) (*ExecEnv, *events.Subscription) {
	t.Helper()
	bus := events.NewBus(64, metrics.New(prometheus.NewRegistry()))
	bus.Register("s1")
	sub, err := bus.Subscribe("s1")
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	return &ExecEnv{
		SessionID: "s1",
		State:     session.NewState(),
		Publisher: events.NewPublisher(bus, "s1"),
		Runner:    runner,
		Iteration: 1,
	}, sub
}

func newTestRegistry(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	r, err := NewRegistry(metrics.New(prometheus.NewRegistry()), tools...)
	require.NoError(t, err)
	return r
}

// drainEvents decodes everything currently buffered on the subscription.
func drainEvents(t *testing.T, sub *events.Subscription) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data, ok := <-sub.Events():
			if !ok {
				return out
			}
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func eventTypes(evts []map[string]any) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e["type"].(string)
	}
	return out
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
