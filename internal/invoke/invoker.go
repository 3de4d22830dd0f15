package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/clibridge/internal/argv"
	"github.com/mattjoyce/clibridge/internal/history"
	"github.com/mattjoyce/clibridge/internal/log"
	"github.com/mattjoyce/clibridge/internal/process"
	"github.com/mattjoyce/clibridge/internal/response"
)

// MetaInvocationID is the response metadata key holding the invocation id.
const MetaInvocationID = "invocation_id"

// ErrTimedOut is the cause reported for invocations that hit their timeout.
var ErrTimedOut = errors.New("invocation timed out")

// Invoker runs operations from a Table against one executable.
type Invoker struct {
	executable string
	table      *Table
	executor   process.Executor
	recorder   history.Recorder

	dir     string
	env     map[string]string
	timeout time.Duration
	soft    map[int]bool

	logger *slog.Logger
	newID  func() string
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithRecorder records every executed invocation.
func WithRecorder(r history.Recorder) Option {
	return func(i *Invoker) { i.recorder = r }
}

// WithWorkingDir sets the working directory of spawned processes.
func WithWorkingDir(dir string) Option {
	return func(i *Invoker) { i.dir = dir }
}

// WithEnv overlays env on the environment of spawned processes.
func WithEnv(env map[string]string) Option {
	return func(i *Invoker) { i.env = env }
}

// WithTimeout sets the default per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.timeout = d }
}

// WithSuccessCodes treats the given non-zero exit codes as successes.
// The response keeps the actual exit code.
func WithSuccessCodes(codes ...int) Option {
	return func(i *Invoker) {
		if i.soft == nil {
			i.soft = make(map[int]bool, len(codes))
		}
		for _, c := range codes {
			i.soft[c] = true
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// New returns an Invoker for executable.
func New(executable string, table *Table, ex process.Executor, opts ...Option) *Invoker {
	i := &Invoker{
		executable: executable,
		table:      table,
		executor:   ex,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = log.WithComponent("invoke")
	}
	return i
}

// Table returns the operation table.
func (i *Invoker) Table() *Table { return i.table }

// Invocation is a compiled, not yet executed call.
type Invocation struct {
	ID        string
	Operation *Operation
	Request   process.Request
}

// Render returns the command line for display.
func (c *Invocation) Render() string {
	return argv.Render(c.Request.Executable, c.Request.Args)
}

// Prepare resolves name and compiles in. Nothing is started; input errors
// such as *argv.MissingArgumentError are returned here.
func (i *Invoker) Prepare(name string, in Input) (*Invocation, error) {
	op, err := i.table.Lookup(name)
	if err != nil {
		return nil, err
	}
	params, err := op.Bind(in)
	if err != nil {
		return nil, err
	}
	tokens, err := argv.Compile(op.Target(), params)
	if err != nil {
		return nil, err
	}

	timeout := i.timeout
	if in.Timeout > 0 {
		timeout = in.Timeout
	}
	return &Invocation{
		ID:        i.newID(),
		Operation: op,
		Request: process.Request{
			Executable: i.executable,
			Args:       tokens,
			Dir:        i.dir,
			Env:        i.env,
			Timeout:    timeout,
		},
	}, nil
}

// Run prepares and executes one invocation. The returned error is non-nil
// only for input errors; process failures are reported in the response.
func (i *Invoker) Run(ctx context.Context, name string, in Input) (response.CliResponse, error) {
	c, err := i.Prepare(name, in)
	if err != nil {
		return response.CliResponse{}, err
	}
	resp, _ := i.Execute(ctx, c)
	return resp, nil
}

// Call is Run with a plain-text contract: the captured output on success,
// a *CallError otherwise.
func (i *Invoker) Call(ctx context.Context, name string, in Input) (string, error) {
	c, err := i.Prepare(name, in)
	if err != nil {
		return "", err
	}
	resp, cause := i.Execute(ctx, c)
	if !resp.Success {
		return "", &CallError{Operation: c.Operation.Name, Response: resp, Err: cause}
	}
	return resp.Output, nil
}

// Execute runs c exactly once and reports the response together with the
// underlying cause when the process did not exit on its own.
func (i *Invoker) Execute(ctx context.Context, c *Invocation) (response.CliResponse, error) {
	logger := i.logger.With("invocation_id", c.ID, "operation", c.Operation.Name)
	logger.Debug("invoking", "command", c.Render())

	started := time.Now()
	resp, outcome, cause := i.execute(ctx, c.Request)
	completed := time.Now()

	resp = resp.With(response.WithMetadata(map[string]string{MetaInvocationID: c.ID}))

	attrs := []any{"outcome", outcome, "exit_code", resp.ExitCode, "duration", completed.Sub(started)}
	switch {
	case resp.Success:
		logger.Info("invocation succeeded", attrs...)
	case cause != nil:
		logger.Warn("invocation failed", append(attrs, "error", cause)...)
	default:
		logger.Info("invocation exited non-zero", attrs...)
	}

	if i.recorder != nil {
		err := i.recorder.Record(context.WithoutCancel(ctx), history.Entry{
			ID:          c.ID,
			Operation:   c.Operation.Name,
			Argv:        c.Request.Args,
			Outcome:     outcome,
			Response:    resp,
			StartedAt:   started,
			CompletedAt: completed,
		})
		if err != nil {
			logger.Error("failed to record invocation", "error", err)
		}
	}
	return resp, cause
}

func (i *Invoker) execute(ctx context.Context, req process.Request) (response.CliResponse, string, error) {
	h, err := process.Launch(ctx, i.executor, req)
	if err != nil {
		return failed(err)
	}

	out, err := i.executor.Wait(ctx, h)
	if err != nil {
		return failed(err)
	}

	resp := response.FromOutcome(out)
	if out.Kind == process.Exited && i.soft[out.ExitCode] {
		resp = response.NewSuccess(out.Stdout, response.WithExitCode(out.ExitCode))
	}
	switch out.Kind {
	case process.Cancelled:
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		return resp, out.Kind.String(), cause
	case process.TimedOut:
		return resp, out.Kind.String(), fmt.Errorf("%w after %s", ErrTimedOut, req.EffectiveTimeout())
	default:
		return resp, out.Kind.String(), nil
	}
}

func failed(err error) (response.CliResponse, string, error) {
	resp := response.FromError(err)
	outcome := resp.Metadata[response.MetaOutcome]
	if outcome == "" {
		outcome = response.OutcomeFailed
	}
	return resp, outcome, err
}

// CallError reports an invocation that did not succeed. Response holds the
// full envelope; Err is the cause when the process did not exit on its own.
type CallError struct {
	Operation string
	Response  response.CliResponse
	Err       error
}

func (e *CallError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.Response.ExitCode)
	}
	return fmt.Sprintf("%s: %s", e.Operation, msg)
}

func (e *CallError) Unwrap() error { return e.Err }
