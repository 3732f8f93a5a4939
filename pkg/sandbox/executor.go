// Package sandbox runs LLM-generated Python in an isolated subprocess:
// fresh working directory, linked dataset, wall-clock limit, capped
// output capture, and artifact collection (result.png, result.json).
package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/models"
)

const (
	// outputCap bounds captured stdout and stderr, each.
	outputCap = 1 << 20 // 1 MiB

	// minImageBytes filters out empty or corrupt result.png files.
	minImageBytes = 100

	// killGrace is how long a timed-out process gets between SIGTERM
	// and SIGKILL.
	killGrace = 2 * time.Second
)

// Executor runs Python snippets against one session's dataset. Program
// failures (exceptions, nonzero exits, timeouts) are reported inside the
// artifact; a Go error means the executor itself could not run.
type Executor struct {
	pythonBin string
	timeout   time.Duration
	tmpBase   string
	dataset   models.Dataset
}

// NewExecutor creates an executor bound to one session's dataset.
func NewExecutor(cfg *config.Config, dataset models.Dataset) *Executor {
	return &Executor{
		pythonBin: cfg.Sandbox.PythonBin,
		timeout:   cfg.Sandbox.CodeTimeout(),
		tmpBase:   filepath.Join(cfg.Storage.UploadDir, "tmp"),
		dataset:   dataset,
	}
}

// Run executes one code snippet to completion and collects its artifacts.
func (e *Executor) Run(ctx context.Context, code string) (*models.Artifact, error) {
	workDir, cleanup, err := e.prepareWorkDir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	datasetFile := "dataset" + e.dataset.Ext
	wrapper := renderWrapper(code, datasetFile)
	if err := os.WriteFile(filepath.Join(workDir, "main.py"), []byte(wrapper), 0o644); err != nil {
		return nil, models.WrapError(models.KindExecutorUnavailable, err, "write wrapper script")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: outputCap}
	stderr := &cappedBuffer{limit: outputCap}

	cmd := exec.CommandContext(runCtx, e.pythonBin, "main.py")
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(),
		"DATASET_PATH="+datasetFile,
		"MPLBACKEND=Agg",
	)
	// Ask nicely first; CommandContext falls back to SIGKILL after the
	// wait delay if the process ignores the signal.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil && runCtx.Err() != context.DeadlineExceeded {
		return nil, models.WrapError(models.KindCancelled, ctx.Err(), "code execution cancelled")
	}

	artifact := &models.Artifact{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		artifact.Status = models.ExecStatusTimeout
		// Keep whatever the program wrote before the clock ran out.
		if artifact.Stderr != "" {
			artifact.Stderr += "\n"
		}
		artifact.Stderr += fmt.Sprintf("execution timed out after %s", e.timeout)
	case runErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The interpreter never ran.
			return nil, models.WrapError(models.KindExecutorUnavailable, runErr,
				"spawn %s", e.pythonBin)
		}
		artifact.Status = models.ExecStatusError
	case bytes.Contains([]byte(artifact.Stdout), []byte(errorMarker)):
		artifact.Status = models.ExecStatusError
	default:
		artifact.Status = models.ExecStatusSuccess
	}

	e.collectImage(workDir, artifact)
	e.collectResult(workDir, artifact)

	slog.Debug("Code execution finished",
		"status", artifact.Status, "duration", elapsed,
		"stdout_bytes", len(artifact.Stdout), "has_image", artifact.HasImage)
	return artifact, nil
}

// prepareWorkDir creates a fresh directory with the dataset linked in.
func (e *Executor) prepareWorkDir() (string, func(), error) {
	if err := os.MkdirAll(e.tmpBase, 0o755); err != nil {
		return "", nil, models.WrapError(models.KindExecutorUnavailable, err, "create sandbox base directory")
	}
	workDir, err := os.MkdirTemp(e.tmpBase, "exec-")
	if err != nil {
		return "", nil, models.WrapError(models.KindExecutorUnavailable, err, "create sandbox working directory")
	}
	cleanup := func() {
		if err := os.RemoveAll(workDir); err != nil {
			slog.Warn("Failed to remove sandbox working directory", "dir", workDir, "error", err)
		}
	}

	dst := filepath.Join(workDir, "dataset"+e.dataset.Ext)
	if err := os.Link(e.dataset.Path, dst); err != nil {
		// Hard links fail across filesystems; fall back to a copy.
		if copyErr := copyFile(e.dataset.Path, dst); copyErr != nil {
			cleanup()
			return "", nil, models.WrapError(models.KindExecutorUnavailable, copyErr, "stage dataset")
		}
	}
	return workDir, cleanup, nil
}

// collectImage attaches result.png when present and plausible.
func (e *Executor) collectImage(workDir string, artifact *models.Artifact) {
	path := filepath.Join(workDir, "result.png")
	info, err := os.Stat(path)
	if err != nil || info.Size() <= minImageBytes {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read result.png", "error", err)
		return
	}
	artifact.ImageBase64 = base64.StdEncoding.EncodeToString(data)
	artifact.HasImage = true
}

// collectResult attaches result.json when present. A malformed file is
// reported inside the result rather than failing the execution.
func (e *Executor) collectResult(workDir string, artifact *models.Artifact) {
	data, err := os.ReadFile(filepath.Join(workDir, "result.json"))
	if err != nil {
		return
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		result = map[string]any{"error": fmt.Sprintf("invalid result.json: %v", err)}
	}
	artifact.Result = result
	artifact.HasResult = true
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// cappedBuffer captures process output up to a limit, noting truncation.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	switch {
	case remaining <= 0:
		b.truncated = true
	case len(p) > remaining:
		b.buf.Write(p[:remaining])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	// Report full consumption so the pipe never backs up.
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n... [output truncated]"
	}
	return b.buf.String()
}
