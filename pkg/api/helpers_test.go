package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/models"
	"github.com/dana-ai/dana/pkg/session"
)

// fakeRunner stands in for the agent engine: it emits the lifecycle
// events and reaches a terminal phase, optionally blocking until stopped.
type fakeRunner struct {
	bus    *events.Bus
	block  bool
	report string
}

func (r *fakeRunner) Run(ctx context.Context, sess *session.Session) {
	pub := events.NewPublisher(r.bus, sess.ID)
	pub.AgentStarted(sess.Request, sess.Strategy)
	_ = sess.State.SetPhase(models.PhaseRunning)

	if r.block {
		<-ctx.Done()
		_ = sess.State.SetPhase(models.PhaseStopped)
		pub.AgentStopped("client requested stop")
		return
	}

	if r.report != "" {
		_ = sess.State.SetReport(r.report)
		pub.ReportGenerated(r.report)
	}
	_ = sess.State.SetPhase(models.PhaseCompleted)
	pub.AgentCompleted(r.report, sess.State.Images(), false, 0)
}

func newTestServer(t *testing.T, runner *fakeRunner) (*httptest.Server, *session.Manager) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.UploadDir = t.TempDir()
	cfg.LLM.APIKey = "sk-test"

	m := metrics.New(prometheus.NewRegistry())
	bus := events.NewBus(64, m)
	runner.bus = bus
	sessions := session.NewManager(cfg, bus, runner, m)
	connMgr := events.NewConnectionManager(bus, 5*time.Second, m)

	srv := NewServer(cfg, sessions, connMgr, nil)
	return newHTTPTest(t, srv), sessions
}

func newHTTPTest(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// postStart uploads a dataset through the multipart form.
func postStart(t *testing.T, ts *httptest.Server, path, filename, request, mode string, payload []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("request", request))
	if mode != "" {
		require.NoError(t, w.WriteField("mode", mode))
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(ts.URL+path, w.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), "body: %s", data)
}

var csvPayload = []byte("region,revenue\neast,100\nwest,200\n")
