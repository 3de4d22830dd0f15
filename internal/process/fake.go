package process

import (
	"context"
	"sync"
	"time"
)

// FakeMode selects how a Fake resolves Wait.
type FakeMode int

const (
	// FakeExit completes immediately with the canned exit code.
	FakeExit FakeMode = iota
	// FakeCancel reports Cancelled immediately.
	FakeCancel
	// FakeTimeout reports TimedOut immediately.
	FakeTimeout
	// FakeBlock waits for ctx or the request timeout, as a hung process would.
	FakeBlock
)

// Fake is an in-memory Executor with canned results. Its exported fields
// must not be changed while calls are in flight.
type Fake struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Mode     FakeMode

	// StartErr, when set, is returned by Start.
	StartErr error
	// NilHandle makes Start return neither a handle nor an error.
	NilHandle bool

	mu       sync.Mutex
	requests []Request
	nextPID  int
}

type fakeHandle struct {
	pid    int
	req    Request
	waited bool
}

func (h *fakeHandle) PID() int         { return h.pid }
func (h *fakeHandle) Request() Request { return h.req }

// Start records req and returns a handle, or the configured failure.
func (f *Fake) Start(ctx context.Context, req Request) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.NilHandle {
		return nil, nil
	}
	f.nextPID++
	return &fakeHandle{pid: 1000 + f.nextPID, req: req}, nil
}

// Wait resolves h according to Mode.
func (f *Fake) Wait(ctx context.Context, h Handle) (Outcome, error) {
	fh, ok := h.(*fakeHandle)
	if !ok || fh == nil {
		return Outcome{}, &StartError{Op: "wait", Err: ErrNoHandle}
	}

	f.mu.Lock()
	if fh.waited {
		f.mu.Unlock()
		return Outcome{}, ErrAlreadyWaited
	}
	fh.waited = true
	f.mu.Unlock()

	switch f.Mode {
	case FakeCancel:
		return Outcome{Kind: Cancelled, ExitCode: -1}, nil
	case FakeTimeout:
		return Outcome{Kind: TimedOut, ExitCode: -1}, nil
	case FakeBlock:
		start := time.Now()
		timer := time.NewTimer(fh.req.EffectiveTimeout())
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Outcome{Kind: Cancelled, ExitCode: -1, Duration: time.Since(start)}, nil
		case <-timer.C:
			return Outcome{Kind: TimedOut, ExitCode: -1, Duration: time.Since(start)}, nil
		}
	default:
		return Outcome{Kind: Exited, ExitCode: f.ExitCode, Stdout: f.Stdout, Stderr: f.Stderr}, nil
	}
}

// Requests returns a copy of every request passed to Start.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
