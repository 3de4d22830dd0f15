package process

import (
	"context"
	"errors"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/mock_executor.go -package=mocks github.com/mattjoyce/clibridge/internal/process Executor

// DefaultTimeout applies when a Request carries no timeout of its own.
const DefaultTimeout = 30 * time.Second

// Request describes one subprocess launch. Args are passed to the program
// verbatim; no shell is involved.
type Request struct {
	Executable string
	Args       []string
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env entries overlay the caller's environment.
	Env     map[string]string
	Timeout time.Duration
}

// EffectiveTimeout returns r.Timeout, or DefaultTimeout when it is not positive.
func (r Request) EffectiveTimeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

// OutcomeKind says how a wait resolved.
type OutcomeKind int

const (
	// Exited means the process terminated on its own.
	Exited OutcomeKind = iota
	// Cancelled means the caller's context ended first.
	Cancelled
	// TimedOut means the request timeout elapsed first.
	TimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case Exited:
		return "exited"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the single result of waiting on a handle. ExitCode is only
// meaningful when Kind is Exited. Stdout and Stderr hold everything the
// process wrote before it was reaped.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Handle identifies a started process.
type Handle interface {
	PID() int
	Request() Request
}

// Executor starts processes and waits for them. Each Handle may be waited on
// exactly once.
type Executor interface {
	Start(ctx context.Context, req Request) (Handle, error)
	Wait(ctx context.Context, h Handle) (Outcome, error)
}

var (
	// ErrNoHandle reports a start that produced neither a handle nor an error.
	ErrNoHandle = errors.New("process start produced no handle")

	// ErrAlreadyWaited reports a second Wait on the same handle.
	ErrAlreadyWaited = errors.New("process already waited on")
)

// StartError reports a failure to launch or supervise a process.
// Op is one of "start", "drain", "kill" or "wait".
type StartError struct {
	Executable string
	Op         string
	Err        error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Executable, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Launch starts req on ex and normalises the result so that a nil handle
// is always accompanied by an error.
func Launch(ctx context.Context, ex Executor, req Request) (Handle, error) {
	h, err := ex.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, &StartError{Executable: req.Executable, Op: "start", Err: ErrNoHandle}
	}
	return h, nil
}
