package argv

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingArgument is matched by every *MissingArgumentError.
	ErrMissingArgument = errors.New("missing argument")

	// ErrInvalidParams is matched by the remaining parameter errors.
	ErrInvalidParams = errors.New("invalid parameters")
)

// MissingArgumentError reports a required positional that was not supplied, or
// an optional positional omitted ahead of a supplied one.
type MissingArgumentError struct {
	Command  []string
	Argument string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: missing argument %q", commandLabel(e.Command), e.Argument)
}

func (e *MissingArgumentError) Is(target error) bool { return target == ErrMissingArgument }

// UnknownOptionError reports a parameter key that matches no declared option.
type UnknownOptionError struct {
	Command []string
	Option  string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("%s: unknown option %q", commandLabel(e.Command), e.Option)
}

func (e *UnknownOptionError) Is(target error) bool { return target == ErrInvalidParams }

// UnexpectedArgumentError reports more positional values than declared arguments.
type UnexpectedArgumentError struct {
	Command  []string
	Declared int
	Supplied int
}

func (e *UnexpectedArgumentError) Error() string {
	return fmt.Sprintf("%s: accepts %d positional argument(s), got %d", commandLabel(e.Command), e.Declared, e.Supplied)
}

func (e *UnexpectedArgumentError) Is(target error) bool { return target == ErrInvalidParams }

// InvalidValueError reports a value whose kind does not fit the parameter.
type InvalidValueError struct {
	Command   []string
	Parameter string
	Want      string
	Got       string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: parameter %q wants a %s value, got %s", commandLabel(e.Command), e.Parameter, e.Want, e.Got)
}

func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidParams }

func commandLabel(path []string) string {
	if len(path) == 0 {
		return "command"
	}
	return fmt.Sprintf("command %q", strings.Join(path, " "))
}
