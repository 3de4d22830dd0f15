package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/clibridge/internal/log"
)

// DefaultKillGrace is how long a terminated process gets to exit before it
// is killed outright.
const DefaultKillGrace = 5 * time.Second

// DefaultDrainDelay bounds how long Wait keeps reading output after the
// process has gone, for descendants that inherited its stdout or stderr.
const DefaultDrainDelay = 2 * time.Second

// signalGroup is swapped in tests.
var signalGroup = signalProcessGroup

// OSExecutor runs real processes.
type OSExecutor struct {
	grace      time.Duration
	drainDelay time.Duration
	logger     *slog.Logger
}

// Option configures an OSExecutor.
type Option func(*OSExecutor)

// WithKillGrace sets the delay between SIGTERM and SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(e *OSExecutor) {
		if d >= 0 {
			e.grace = d
		}
	}
}

// WithDrainDelay sets how long output is still read after the process has
// exited or been killed.
func WithDrainDelay(d time.Duration) Option {
	return func(e *OSExecutor) {
		if d >= 0 {
			e.drainDelay = d
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *OSExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewOSExecutor returns an executor backed by os/exec.
func NewOSExecutor(opts ...Option) *OSExecutor {
	e := &OSExecutor{grace: DefaultKillGrace, drainDelay: DefaultDrainDelay}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.WithComponent("process")
	}
	return e
}

type osHandle struct {
	req     Request
	cmd     *exec.Cmd
	started time.Time

	stdoutR *os.File
	stderrR *os.File
	stdout  bytes.Buffer
	stderr  bytes.Buffer

	// exit is closed once the process is reaped. waitErr and exitedAt are
	// written before the close.
	exit     chan struct{}
	waitErr  error
	exitedAt time.Time

	// drained is closed once both readers have returned. drainErr and the
	// buffers are written before the close.
	drained  chan struct{}
	drainErr error

	waited atomic.Bool
}

func (h *osHandle) PID() int         { return h.cmd.Process.Pid }
func (h *osHandle) Request() Request { return h.req }

func (h *osHandle) exited() bool {
	select {
	case <-h.exit:
		return true
	default:
		return false
	}
}

func (h *osHandle) closeReaders() {
	_ = h.stdoutR.Close()
	_ = h.stderrR.Close()
}

// Start launches req. The context is only consulted before launching;
// cancellation after that is observed by Wait.
func (e *OSExecutor) Start(ctx context.Context, req Request) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not exec.CommandContext: termination is managed by Wait.
	cmd := exec.Command(req.Executable, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), req.Env)
	}
	setProcessGroup(cmd)

	// Own pipes rather than StdoutPipe: cmd.Wait then reports the exit
	// without waiting for every holder of the write ends to close them.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &StartError{Executable: req.Executable, Op: "start", Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, &StartError{Executable: req.Executable, Op: "start", Err: err}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err != nil {
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return nil, &StartError{Executable: req.Executable, Op: "start", Err: err}
	}

	h := &osHandle{
		req:     req,
		cmd:     cmd,
		started: time.Now(),
		stdoutR: stdoutR,
		stderrR: stderrR,
		exit:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	e.logger.Debug("process started", "executable", req.Executable, "pid", cmd.Process.Pid, "args", len(req.Args))

	go func() {
		h.waitErr = cmd.Wait()
		h.exitedAt = time.Now()
		close(h.exit)
	}()

	var g errgroup.Group
	g.Go(func() error { return drain(&h.stdout, stdoutR) })
	g.Go(func() error { return drain(&h.stderr, stderrR) })
	go func() {
		h.drainErr = g.Wait()
		close(h.drained)
	}()

	return h, nil
}

// drain copies r into buf until EOF. A reader closed by release is not an
// error; whatever arrived before the close is kept.
func drain(buf *bytes.Buffer, r *os.File) error {
	_, err := io.Copy(buf, r)
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until the process exits, ctx ends, or the request timeout
// elapses, whichever happens first. If the process has also exited by the
// time a cancellation or timeout is noticed, Exited wins. On the losing
// paths the process group is terminated. Every path joins the reaper and
// the stream readers, each bounded by the drain delay, before returning.
func (e *OSExecutor) Wait(ctx context.Context, h Handle) (Outcome, error) {
	oh, ok := h.(*osHandle)
	if !ok || oh == nil {
		return Outcome{}, &StartError{Op: "wait", Err: ErrNoHandle}
	}
	if !oh.waited.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyWaited
	}

	logger := e.logger.With("executable", oh.req.Executable, "pid", oh.PID())

	deadline := oh.started.Add(oh.req.EffectiveTimeout())
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	kind := Exited
	select {
	case <-oh.exit:
	case <-ctx.Done():
		kind = Cancelled
	case <-timer.C:
		kind = TimedOut
	}

	var killErr error
	if kind != Exited {
		if oh.exited() {
			kind = Exited
		} else {
			logger.Warn("terminating process", "reason", kind.String())
			killErr = e.terminate(oh, logger)
		}
	}

	e.release(oh, logger)
	out := e.outcome(oh, kind)

	if killErr != nil {
		return out, &StartError{Executable: oh.req.Executable, Op: "kill", Err: killErr}
	}
	if kind != Exited {
		return out, nil
	}
	if oh.drainErr != nil {
		return out, &StartError{Executable: oh.req.Executable, Op: "drain", Err: oh.drainErr}
	}
	if oh.waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(oh.waitErr, &exitErr) {
			return out, &StartError{Executable: oh.req.Executable, Op: "wait", Err: oh.waitErr}
		}
	}
	logger.Debug("process exited", "exit_code", out.ExitCode, "duration", out.Duration)
	return out, nil
}

// terminate sends SIGTERM to the process group, then SIGKILL if it has not
// exited within the grace period. Signalling a process that is already gone
// is not an error. When the group cannot be signalled the leader is killed
// directly and the signalling error is returned.
func (e *OSExecutor) terminate(h *osHandle, logger *slog.Logger) error {
	err := signalGroup(h.cmd, terminateSignal)
	if err == nil {
		grace := time.NewTimer(e.grace)
		defer grace.Stop()

		select {
		case <-h.exit:
			logger.Debug("process exited after terminate")
			return nil
		case <-grace.C:
		}

		logger.Warn("process ignored terminate, killing", "grace", e.grace)
		err = signalGroup(h.cmd, os.Kill)
	}
	if err != nil {
		logger.Error("failed to signal process group", "error", err)
		if kerr := h.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			logger.Error("failed to kill process", "error", kerr)
		}
	}
	return err
}

// release joins the reaper, then the stream readers, each for at most the
// drain delay. Readers still blocked after that, because a descendant kept
// the pipes open, are cut off by closing the read ends.
func (e *OSExecutor) release(h *osHandle, logger *slog.Logger) {
	bound := time.NewTimer(e.drainDelay)
	defer bound.Stop()

	select {
	case <-h.exit:
	case <-bound.C:
		logger.Error("process still running after kill; it will be reaped when it exits")
		bound.Reset(e.drainDelay)
	}

	select {
	case <-h.drained:
	case <-bound.C:
		logger.Warn("output still open after exit, closing pipes", "drain_delay", e.drainDelay)
		h.closeReaders()
		<-h.drained
	}
	h.closeReaders()
}

func (e *OSExecutor) outcome(h *osHandle, kind OutcomeKind) Outcome {
	out := Outcome{
		Kind:     kind,
		ExitCode: -1,
		Stdout:   h.stdout.String(),
		Stderr:   h.stderr.String(),
		Duration: time.Since(h.started),
	}
	if kind == Exited {
		out.ExitCode = exitCode(h.cmd, h.waitErr)
		out.Duration = h.exitedAt.Sub(h.started)
	}
	return out
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitStatus(exitErr)
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// mergeEnv overlays extra on base. Keys from extra replace existing entries
// and are appended in sorted order.
func mergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
