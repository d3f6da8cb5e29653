// Package call is the boundary tool handlers use to ask the human something.
// It wraps the dispatcher's submit/await pair behind a single call with a
// generous ceiling, and turns every failure mode into a structured result so
// nothing propagates far enough to take down the server.
package call

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"parley/internal/dispatch"
	"parley/internal/envelope"
)

// DefaultTimeout is how long a caller waits for the human before giving up.
// Humans are slow; this mirrors the 5 minute ceiling of the original tools.
const DefaultTimeout = 5 * time.Minute

// Submitter is the dispatcher surface the adapter needs.
type Submitter interface {
	Submit(req envelope.Request) (*dispatch.Pending, error)
	Await(ctx context.Context, p *dispatch.Pending, timeout time.Duration) (envelope.Result, error)
}

// Adapter bridges asynchronous callers to the single-flight dispatcher.
type Adapter struct {
	dispatcher Submitter
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) { a.timeout = timeout }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates an Adapter around a dispatcher.
func New(d Submitter, opts ...Option) *Adapter {
	a := &Adapter{
		dispatcher: d,
		timeout:    DefaultTimeout,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask submits a request and waits for its result. The returned error is
// non-nil only for malformed requests, which never reach the dispatcher;
// every post-submission failure comes back inside the Result:
//
//   - startup failures as a startup-kind failure
//   - elapsed ceiling as a timeout-kind failure, distinct from the
//     cancelled outcome a human produces by dismissing the prompt
//   - presentation and transport failures as reported by the runner
func (a *Adapter) Ask(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	p, err := a.dispatcher.Submit(req)
	if err != nil {
		var verr *envelope.ValidationError
		if errors.As(err, &verr) {
			return envelope.Result{}, err
		}
		var serr *dispatch.StartupError
		if errors.As(err, &serr) {
			return envelope.FailResult(envelope.FailStartup, "%v", serr), nil
		}
		return envelope.FailResult(envelope.FailStartup, "submit: %v", err), nil
	}

	res, err := a.dispatcher.Await(ctx, p, a.timeout)
	if err != nil {
		if errors.Is(err, dispatch.ErrAwaitTimeout) {
			a.logger.Warn("human did not answer in time", "id", p.ID(), "kind", req.Kind, "timeout", a.timeout)
			return envelope.FailResult(envelope.FailTimeout, "no response within %s", a.timeout), nil
		}
		// Context cancellation: the caller went away; the prompt may still
		// be up but nobody cares about this particular answer anymore.
		return envelope.Result{}, err
	}
	return res, nil
}
