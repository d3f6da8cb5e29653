// Package spawn is the out-of-process presentation strategy: each request
// execs the prompt executor binary, writes one encoded request envelope to
// its stdin, and reads one encoded result envelope from its stdout.
package spawn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"parley/internal/codec"
	"parley/internal/envelope"
)

// waitDelay bounds how long Run waits for pipe I/O after the context kills
// the executor. Without it an orphaned grandchild holding stdout open would
// keep Run blocked long after the kill.
const waitDelay = 5 * time.Second

// Runner implements dispatch.Runner by spawning one process per request.
type Runner struct {
	execPath string
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner that spawns the executor at execPath.
func New(execPath string, opts ...Option) *Runner {
	r := &Runner{
		execPath: execPath,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check verifies the executor exists before the first request is served. A
// missing executor is a startup configuration problem, not a per-request
// one, and must never be reported as a silent cancellation.
func (r *Runner) Check() error {
	if r.execPath == "" {
		return errors.New("prompt executor path not configured")
	}
	info, err := os.Stat(r.execPath)
	if err != nil {
		return fmt.Errorf("prompt executor %s: %w", r.execPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("prompt executor %s is a directory", r.execPath)
	}
	return nil
}

// Run executes one request in a fresh process. The wire contract: encoded
// request on stdin then EOF; exit code 0 means stdout holds a structurally
// valid result, anything else means stdout and stderr are diagnostics.
// The deadline is enforced here through ctx, not inside the child.
func (r *Runner) Run(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	data, err := codec.EncodeRequest(req)
	if err != nil {
		return envelope.FailResult(envelope.FailTransport, "encode request: %v", err), nil
	}

	cmd := exec.CommandContext(ctx, r.execPath)
	cmd.Stdin = bytes.NewReader(data)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("spawning prompt executor", "path", r.execPath, "kind", req.Kind)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return envelope.FailResult(envelope.FailTransport, "prompt executor interrupted: %v", ctx.Err()), nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return envelope.FailResult(envelope.FailTransport,
				"prompt executor exited with code %d: %s", exitErr.ExitCode(), diagnostic(&stderr, &stdout)), nil
		}
		return envelope.FailResult(envelope.FailTransport, "spawn prompt executor: %v", err), nil
	}

	res, err := codec.DecodeResult(stdout.Bytes())
	if err != nil {
		var derr *codec.DecodeError
		if errors.As(err, &derr) {
			return envelope.FailResult(envelope.FailTransport, "unparseable executor output: %v", derr), nil
		}
		return envelope.FailResult(envelope.FailTransport, "read executor output: %v", err), nil
	}
	return res, nil
}

// diagnostic picks the most useful output to report for a failed executor,
// preferring stderr and trimming to a sane length.
func diagnostic(stderr, stdout *bytes.Buffer) string {
	out := strings.TrimSpace(stderr.String())
	if out == "" {
		out = strings.TrimSpace(stdout.String())
	}
	if out == "" {
		return "(no output)"
	}
	const limit = 512
	if len(out) > limit {
		out = out[:limit] + "..."
	}
	return out
}
