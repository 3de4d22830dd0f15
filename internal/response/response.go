// Package response defines the structured envelope reported for every
// invocation, and its JSON wire form.
package response

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/mattjoyce/clibridge/internal/process"
)

// TimestampLayout is the wire form of CliResponse.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Metadata keys set by FromOutcome and FromError.
const (
	MetaOutcome = "outcome"
	MetaOp      = "op"

	OutcomeStartFailed = "start_failed"
	OutcomeFailed      = "failed"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// CliResponse is the result of one invocation. It is a value type; use With
// to derive a modified copy.
type CliResponse struct {
	Success   bool
	ExitCode  int
	Output    string
	Error     string
	Timestamp time.Time
	// Metadata is nil unless set. Nil and empty are distinct on the wire.
	Metadata map[string]string
}

// Option adjusts a response under construction.
type Option func(*CliResponse)

// WithExitCode overrides the exit code, e.g. for a soft success.
func WithExitCode(code int) Option {
	return func(r *CliResponse) { r.ExitCode = code }
}

// WithMetadata merges kv into the response metadata.
func WithMetadata(kv map[string]string) Option {
	return func(r *CliResponse) {
		if kv == nil {
			return
		}
		m := make(map[string]string, len(r.Metadata)+len(kv))
		maps.Copy(m, r.Metadata)
		maps.Copy(m, kv)
		r.Metadata = m
	}
}

// WithTimestamp overrides the construction time.
func WithTimestamp(t time.Time) Option {
	return func(r *CliResponse) { r.Timestamp = normalizeTime(t) }
}

// NewSuccess builds a successful response with exit code 0.
func NewSuccess(output string, opts ...Option) CliResponse {
	r := CliResponse{
		Success:   true,
		Output:    trim(output),
		Timestamp: normalizeTime(timeNow()),
	}
	return r.With(opts...)
}

// NewError builds a failed response.
func NewError(message string, exitCode int, output string, opts ...Option) CliResponse {
	r := CliResponse{
		ExitCode:  exitCode,
		Output:    trim(output),
		Error:     trim(message),
		Timestamp: normalizeTime(timeNow()),
	}
	return r.With(opts...)
}

// NewFailure builds a failed response for an invocation that produced no
// exit code.
func NewFailure(message string, opts ...Option) CliResponse {
	return NewError(message, -1, "", opts...)
}

// With returns a copy of r with opts applied. r is not modified.
func (r CliResponse) With(opts ...Option) CliResponse {
	r.Metadata = maps.Clone(r.Metadata)
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Equal reports whether r and o are the same response. Nil and empty
// metadata differ.
func (r CliResponse) Equal(o CliResponse) bool {
	if (r.Metadata == nil) != (o.Metadata == nil) {
		return false
	}
	return r.Success == o.Success &&
		r.ExitCode == o.ExitCode &&
		r.Output == o.Output &&
		r.Error == o.Error &&
		r.Timestamp.Equal(o.Timestamp) &&
		maps.Equal(r.Metadata, o.Metadata)
}

// FromOutcome maps a process outcome onto a response. Cancelled and
// timed-out invocations carry exit code -1 and name the outcome in metadata.
func FromOutcome(o process.Outcome) CliResponse {
	switch o.Kind {
	case process.Exited:
		if o.ExitCode == 0 {
			return NewSuccess(o.Stdout)
		}
		msg := trim(o.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", o.ExitCode)
		}
		return NewError(msg, o.ExitCode, o.Stdout)
	case process.Cancelled:
		return NewError("process cancelled", -1, o.Stdout, WithMetadata(map[string]string{MetaOutcome: o.Kind.String()}))
	case process.TimedOut:
		msg := "process timed out"
		if o.Duration > 0 {
			msg = fmt.Sprintf("process timed out after %s", o.Duration.Round(time.Millisecond))
		}
		return NewError(msg, -1, o.Stdout, WithMetadata(map[string]string{MetaOutcome: o.Kind.String()}))
	default:
		return NewFailure(fmt.Sprintf("unknown outcome %s", o.Kind))
	}
}

// FromError maps an invocation failure onto a response.
func FromError(err error) CliResponse {
	var startErr *process.StartError
	switch {
	case errors.As(err, &startErr):
		outcome := OutcomeFailed
		if startErr.Op == "start" {
			outcome = OutcomeStartFailed
		}
		return NewFailure(err.Error(), WithMetadata(map[string]string{MetaOutcome: outcome, MetaOp: startErr.Op}))
	case errors.Is(err, context.Canceled):
		return NewFailure("process cancelled", WithMetadata(map[string]string{MetaOutcome: process.Cancelled.String()}))
	case errors.Is(err, context.DeadlineExceeded):
		return NewFailure("process timed out", WithMetadata(map[string]string{MetaOutcome: process.TimedOut.String()}))
	default:
		return NewFailure(err.Error())
	}
}

func trim(s string) string {
	return strings.TrimRight(s, " \t\r\n\v\f")
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
