// Package dispatch funnels interactive requests from many concurrent callers
// through a single execution context, one at a time, in submission order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/internal/envelope"
)

// Runner drives the presentation surface for one request. Implementations
// report presentation and transport problems inside the Result; a non-nil
// error is treated as an unexpected fault and captured the same way.
type Runner interface {
	Run(ctx context.Context, req envelope.Request) (envelope.Result, error)
}

// Checker is implemented by runners with startup prerequisites (for example,
// the out-of-process runner checks that its executor binary exists). Check
// runs once per worker incarnation, before the first request is served.
type Checker interface {
	Check() error
}

// DefaultStartupTimeout bounds how long a submission waits for the execution
// context to become ready.
const DefaultStartupTimeout = 5 * time.Second

// DefaultRunTimeout bounds a single runner invocation. It sits above the
// caller-side ask ceiling so an in-flight prompt is never cut short while a
// caller is still waiting, yet a surface that never returns is eventually
// failed instead of wedging every later request behind it.
const DefaultRunTimeout = 6 * time.Minute

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("dispatcher stopped")

// ErrAwaitTimeout is returned by Await when the caller's deadline elapses
// before the pending call is fulfilled. The entry still executes; its late
// result is discarded.
var ErrAwaitTimeout = errors.New("await timed out")

// StartupError reports that the execution context failed to become ready.
// It is fatal only for the submission that triggered startup; the next
// submission retries from scratch.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return "execution context startup: " + e.Err.Error()
}

func (e *StartupError) Unwrap() error { return e.Err }

// Pending is the single-assignment completion slot for one submitted
// request. It is fulfilled exactly once and never reused.
type Pending struct {
	id   string
	req  envelope.Request
	done chan struct{}
	once sync.Once
	res  envelope.Result
}

func newPending(req envelope.Request) *Pending {
	return &Pending{
		id:   uuid.NewString(),
		req:  req,
		done: make(chan struct{}),
	}
}

// ID returns the unique identifier for this pending call.
func (p *Pending) ID() string { return p.id }

// Done is closed once the pending call is fulfilled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the fulfillment outcome. Valid only after Done is closed.
func (p *Pending) Result() envelope.Result { return p.res }

func (p *Pending) fulfill(res envelope.Result) {
	p.once.Do(func() {
		p.res = res
		close(p.done)
	})
}

// worker is one incarnation of the execution context. A fresh incarnation is
// created whenever the previous one failed or was abandoned during startup.
type worker struct {
	ready chan struct{} // closed after startup succeeds or fails
	wake  chan struct{} // signaled on enqueue and stop

	// guarded by Dispatcher.mu
	readyOK   bool
	abandoned bool
	err       error // startup error, set before ready closes
}

// Dispatcher owns exactly one execution context and an unbounded FIFO queue
// of pending calls. Construct with New; stop with Stop.
type Dispatcher struct {
	runner         Runner
	logger         *slog.Logger
	startupTimeout time.Duration
	runTimeout     time.Duration

	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	queue   []*Pending
	worker  *worker
	stopped bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithStartupTimeout overrides DefaultStartupTimeout.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.startupTimeout = timeout }
}

// WithRunTimeout overrides DefaultRunTimeout. It should exceed the callers'
// await ceiling so the human is not interrupted mid-answer.
func WithRunTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.runTimeout = timeout }
}

// New creates a Dispatcher around the given runner. The execution context is
// not started until the first submission.
func New(runner Runner, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner:         runner,
		logger:         nopLogger,
		startupTimeout: DefaultStartupTimeout,
		runTimeout:     DefaultRunTimeout,
		runCtx:         ctx,
		runCancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues a request and returns its pending call without waiting for
// execution. It blocks only while the execution context starts up, bounded
// by the startup timeout.
func (d *Dispatcher) Submit(req envelope.Request) (*Pending, error) {
	if !req.Kind.Valid() {
		return nil, &envelope.ValidationError{Msg: fmt.Sprintf("unknown kind %q", req.Kind)}
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrStopped
	}
	w := d.worker
	if w == nil {
		w = &worker{
			ready: make(chan struct{}),
			wake:  make(chan struct{}, 1),
		}
		d.worker = w
		go d.run(w)
	}
	d.mu.Unlock()

	if err := d.awaitReady(w); err != nil {
		return nil, err
	}

	p := newPending(req)
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrStopped
	}
	d.queue = append(d.queue, p)
	d.mu.Unlock()
	signal(w.wake)

	d.logger.Debug("request submitted", "id", p.ID(), "kind", req.Kind)
	return p, nil
}

// awaitReady waits for the worker incarnation to finish starting up. On
// timeout the incarnation is abandoned so the next submission starts fresh.
func (d *Dispatcher) awaitReady(w *worker) error {
	timer := time.NewTimer(d.startupTimeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		if w.err != nil {
			return &StartupError{Err: w.err}
		}
		return nil
	case <-timer.C:
	}

	// The timer fired, but readiness may have won the race. Deciding under
	// the lock keeps abandonment and serving mutually exclusive: either the
	// worker marked itself ready first, or it will see abandoned and exit
	// before pulling any entry.
	d.mu.Lock()
	if w.readyOK {
		d.mu.Unlock()
		return nil
	}
	w.abandoned = true
	if d.worker == w {
		d.worker = nil
	}
	startupErr := w.err
	d.mu.Unlock()

	if startupErr != nil {
		return &StartupError{Err: startupErr}
	}
	return &StartupError{Err: fmt.Errorf("not ready after %s", d.startupTimeout)}
}

// Await blocks the calling context until the pending call is fulfilled, the
// timeout elapses, or ctx is cancelled. Timing out abandons the caller's
// wait only; the entry still executes and its late result is dropped.
func (d *Dispatcher) Await(ctx context.Context, p *Pending, timeout time.Duration) (envelope.Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.res, nil
	case <-timer.C:
		d.logger.Warn("caller abandoned pending call", "id", p.ID(), "timeout", timeout)
		return envelope.Result{}, fmt.Errorf("pending call %s: %w", p.ID(), ErrAwaitTimeout)
	case <-ctx.Done():
		return envelope.Result{}, ctx.Err()
	}
}

// Stop tears down the dispatcher. Queued entries are failed rather than left
// to wedge their callers; an in-flight request runs to completion.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	pending := d.queue
	d.queue = nil
	w := d.worker
	d.mu.Unlock()

	d.runCancel()
	for _, p := range pending {
		p.fulfill(envelope.FailResult(envelope.FailStartup, "dispatcher stopped"))
	}
	if w != nil {
		signal(w.wake)
	}
}

// run is the execution context control loop. It stays locked to one OS
// thread because interactive presentation must never migrate onto the
// scheduler threads serving other callers.
func (d *Dispatcher) run(w *worker) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		d.mu.Lock()
		var orphaned []*Pending
		if d.worker == w {
			// Still the owning incarnation: retire and fail whatever is
			// queued so no caller is left waiting forever. An abandoned or
			// superseded incarnation must not touch the queue.
			d.worker = nil
			orphaned = d.queue
			d.queue = nil
		}
		d.mu.Unlock()
		for _, p := range orphaned {
			p.fulfill(envelope.FailResult(envelope.FailStartup, "execution context exited"))
		}
	}()

	if c, ok := d.runner.(Checker); ok {
		if err := c.Check(); err != nil {
			d.logger.Error("execution context failed to start", "error", err)
			d.mu.Lock()
			w.err = err
			if d.worker == w {
				d.worker = nil
			}
			d.mu.Unlock()
			close(w.ready)
			return
		}
	}

	d.mu.Lock()
	if w.abandoned {
		d.mu.Unlock()
		close(w.ready)
		return
	}
	w.readyOK = true
	d.mu.Unlock()
	close(w.ready)
	d.logger.Debug("execution context ready")

	for {
		p, ok := d.next(w)
		if !ok {
			return
		}
		d.logger.Debug("executing request", "id", p.ID(), "kind", p.req.Kind)
		res := d.execute(p.req)
		p.fulfill(res)
	}
}

// next pulls the oldest queued entry, blocking until one is available or the
// incarnation is retired.
func (d *Dispatcher) next(w *worker) (*Pending, bool) {
	for {
		d.mu.Lock()
		if d.stopped || d.worker != w {
			d.mu.Unlock()
			return nil, false
		}
		if len(d.queue) > 0 {
			p := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return p, true
		}
		d.mu.Unlock()
		<-w.wake
	}
}

// execute invokes the runner for one request, converting every failure mode
// into a failure result so the control loop survives indefinitely. Each
// invocation carries its own deadline: a surface (or spawned executor) that
// never returns is killed via context and reported as a timeout failure
// rather than wedging the worker forever.
func (d *Dispatcher) execute(req envelope.Request) (res envelope.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("presentation surface panicked", "panic", r)
			res = envelope.FailResult(envelope.FailPresentation, "presentation surface panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(d.runCtx, d.runTimeout)
	defer cancel()

	out, err := d.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.logger.Error("presentation surface unresponsive", "kind", req.Kind, "timeout", d.runTimeout)
			return envelope.FailResult(envelope.FailTimeout, "presentation surface unresponsive after %s", d.runTimeout)
		}
		d.logger.Error("presentation surface failed", "kind", req.Kind, "error", err)
		return envelope.FailResult(envelope.FailPresentation, "%v", err)
	}
	if verr := out.Validate(); verr != nil {
		return envelope.FailResult(envelope.FailPresentation, "surface produced invalid result: %v", verr)
	}
	return out
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var nopLogger = slog.New(slog.DiscardHandler)
