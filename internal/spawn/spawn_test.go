package spawn

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"parley/internal/codec"
	"parley/internal/envelope"
)

// writeExecutor drops a shell script into a temp dir that drains stdin and
// emits the given stdout/stderr before exiting with code.
func writeExecutor(t *testing.T, stdout, stderr string, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script executors require a POSIX shell")
	}
	script := fmt.Sprintf("#!/bin/sh\ncat > /dev/null\nprintf '%%s' %q\nprintf '%%s' %q >&2\nexit %d\n", stdout, stderr, code)
	path := filepath.Join(t.TempDir(), "executor.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write executor script: %v", err)
	}
	return path
}

func mustRequest(t *testing.T, kind envelope.Kind, params map[string]any) envelope.Request {
	t.Helper()
	req, err := envelope.New(kind, params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return req
}

func TestCheck(t *testing.T) {
	t.Run("existing file", func(t *testing.T) {
		path := writeExecutor(t, "", "", 0)
		if err := New(path).Check(); err != nil {
			t.Errorf("Check failed: %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		r := New(filepath.Join(t.TempDir(), "nope"))
		if err := r.Check(); err == nil {
			t.Error("Expected error for missing executor")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := New("").Check(); err == nil {
			t.Error("Expected error for unconfigured path")
		}
	})

	t.Run("directory", func(t *testing.T) {
		if err := New(t.TempDir()).Check(); err == nil {
			t.Error("Expected error for directory path")
		}
	})
}

func TestRun_ValueRoundTrip(t *testing.T) {
	want := envelope.ValueResult("Alice")
	out, err := codec.EncodeResult(want)
	if err != nil {
		t.Fatalf("EncodeResult failed: %v", err)
	}
	r := New(writeExecutor(t, string(out), "", 0))

	req := mustRequest(t, envelope.KindInput, map[string]any{"prompt": "Name?"})
	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Equal(want) {
		t.Errorf("Result = %#v, want %#v", res, want)
	}
}

func TestRun_CancelledRoundTrip(t *testing.T) {
	out, err := codec.EncodeResult(envelope.CancelledResult())
	if err != nil {
		t.Fatalf("EncodeResult failed: %v", err)
	}
	r := New(writeExecutor(t, string(out), "", 0))

	req := mustRequest(t, envelope.KindConfirmation, map[string]any{"message": "Proceed?"})
	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Cancelled {
		t.Errorf("Expected cancelled outcome, got %#v", res)
	}
}

func TestRun_NonZeroExitIsTransportFailure(t *testing.T) {
	r := New(writeExecutor(t, "", "display init failed", 3))

	req := mustRequest(t, envelope.KindInfo, map[string]any{"message": "hi"})
	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Failure == nil || res.Failure.Kind != envelope.FailTransport {
		t.Fatalf("Expected transport failure, got %#v", res)
	}
	if res.Cancelled {
		t.Error("Executor crash must not be reported as cancellation")
	}
}

func TestRun_GarbageOutputIsTransportFailure(t *testing.T) {
	r := New(writeExecutor(t, "not json at all", "", 0))

	req := mustRequest(t, envelope.KindInput, map[string]any{"prompt": "x"})
	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Failure == nil || res.Failure.Kind != envelope.FailTransport {
		t.Errorf("Expected transport failure, got %#v", res)
	}
}

func TestRun_HungExecutorKilledByContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script executors require a POSIX shell")
	}
	script := "#!/bin/sh\ncat > /dev/null\nsleep 60\n"
	path := filepath.Join(t.TempDir(), "executor.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write executor script: %v", err)
	}
	r := New(path)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	req := mustRequest(t, envelope.KindInput, map[string]any{"prompt": "x"})
	res, err := r.Run(ctx, req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The orphaned sleep holds stdout open; WaitDelay must unblock Run well
	// before the sleep finishes.
	if elapsed := time.Since(start); elapsed > 30*time.Second {
		t.Fatalf("Run did not return after context expiry, took %s", elapsed)
	}
	if res.Failure == nil || res.Failure.Kind != envelope.FailTransport {
		t.Errorf("Expected transport failure for killed executor, got %#v", res)
	}
	if res.Cancelled {
		t.Error("A killed executor must not be reported as cancellation")
	}
}

func TestRun_MissingExecutableIsTransportFailure(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "gone"))

	req := mustRequest(t, envelope.KindInput, map[string]any{"prompt": "x"})
	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Failure == nil || res.Failure.Kind != envelope.FailTransport {
		t.Errorf("Expected transport failure, got %#v", res)
	}
}

func TestRun_ExecutorSeesEncodedRequest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script executors require a POSIX shell")
	}
	// The executor copies stdin to a file so the test can check what the
	// runner actually sent.
	dir := t.TempDir()
	captured := filepath.Join(dir, "captured.json")
	script := fmt.Sprintf("#!/bin/sh\ncat > %q\nexit 7\n", captured)
	path := filepath.Join(dir, "executor.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write executor script: %v", err)
	}

	req := mustRequest(t, envelope.KindChoice, map[string]any{
		"prompt":  "Pick",
		"choices": []string{"A", "B"},
	})
	if _, err := New(path).Run(context.Background(), req); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(captured)
	if err != nil {
		t.Fatalf("read captured stdin: %v", err)
	}
	got, err := codec.DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if got.Kind != envelope.KindChoice || got.Prompt() != "Pick" {
		t.Errorf("Decoded request = %#v, want the submitted choice request", got)
	}
}

func TestDiagnostic(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		stdout string
		want   string
	}{
		{"prefers stderr", "bad", "ignored", "bad"},
		{"falls back to stdout", "", "partial output", "partial output"},
		{"no output", "", "", "(no output)"},
		{"trims whitespace", "  oops \n", "", "oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stderr := bytes.NewBufferString(tt.stderr)
			stdout := bytes.NewBufferString(tt.stdout)
			if got := diagnostic(stderr, stdout); got != tt.want {
				t.Errorf("diagnostic = %q, want %q", got, tt.want)
			}
		})
	}
}
