package spec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSpec is matched by every *ParseError.
	ErrInvalidSpec = errors.New("invalid spec")

	// ErrUnknownCommand is matched by every *UnknownCommandError.
	ErrUnknownCommand = errors.New("unknown command")
)

// ParseError reports a missing or malformed field in a spec document.
type ParseError struct {
	// Path locates the offending field, e.g. "commands.task.arguments[0].name".
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid spec: %s", e.Reason)
	}
	return fmt.Sprintf("invalid spec at %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidSpec) true for any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrInvalidSpec }

// UnknownCommandError is returned when a command path does not exist in the tree.
type UnknownCommandError struct {
	Path []string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", strings.Join(e.Path, " "))
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }
