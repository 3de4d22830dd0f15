package argv

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/mattjoyce/clibridge/internal/spec"
)

// Target is the command a compilation is aimed at.
type Target struct {
	// Path is the subcommand path from the root, emitted verbatim.
	Path []string
	// Command is the resolved node. A nil Command declares nothing.
	Command *spec.Command
	// Globals are spec-level options accepted by every command.
	Globals []spec.Option
}

// Params are the caller-supplied values for one invocation.
type Params struct {
	// Options maps option keys (leading dashes optional) to values.
	Options map[string]Value
	// Args holds positional values aligned to the command's arguments sorted by ordinal.
	Args []Value
}

// DuplicateOptionError reports two parameter keys naming the same option.
type DuplicateOptionError struct {
	Command []string
	Option  string
}

func (e *DuplicateOptionError) Error() string {
	return fmt.Sprintf("%s: option %q supplied more than once", commandLabel(e.Command), e.Option)
}

func (e *DuplicateOptionError) Is(target error) bool { return target == ErrInvalidParams }

// Compile maps parameters to the argument vector tail for t.
//
// Tokens are emitted as: path segments; positionals in ascending ordinal;
// command options then global options, each in declared order. Nothing is
// quoted or escaped. The same input always yields the same tokens.
func Compile(t Target, p Params) ([]string, error) {
	cmd := t.Command
	if cmd == nil {
		cmd = &spec.Command{}
	}

	values, err := normalizeOptions(t, cmd, p.Options)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(t.Path)+2*len(values)+len(p.Args))
	tokens = append(tokens, t.Path...)
	if tokens, err = emitPositionals(tokens, t.Path, cmd.Arguments, p.Args); err != nil {
		return nil, err
	}

	shadowed := make(map[string]struct{}, len(cmd.Options))
	for _, o := range cmd.Options {
		shadowed[o.Key()] = struct{}{}
		if tokens, err = emitOption(tokens, t.Path, o, values[o.Key()]); err != nil {
			return nil, err
		}
	}
	for _, o := range t.Globals {
		if _, ok := shadowed[o.Key()]; ok {
			continue
		}
		if tokens, err = emitOption(tokens, t.Path, o, values[o.Key()]); err != nil {
			return nil, err
		}
	}
	return tokens, nil
}

func normalizeOptions(t Target, cmd *spec.Command, supplied map[string]Value) (map[string]Value, error) {
	declared := make(map[string]struct{}, len(cmd.Options)+len(t.Globals))
	for _, o := range cmd.Options {
		declared[o.Key()] = struct{}{}
	}
	for _, o := range t.Globals {
		declared[o.Key()] = struct{}{}
	}

	// Sorted so that errors are reported deterministically.
	keys := make([]string, 0, len(supplied))
	for k := range supplied {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]Value, len(supplied))
	for _, raw := range keys {
		key := strings.TrimLeft(raw, "-")
		if _, ok := declared[key]; !ok {
			return nil, &UnknownOptionError{Command: t.Path, Option: raw}
		}
		if _, dup := out[key]; dup {
			return nil, &DuplicateOptionError{Command: t.Path, Option: key}
		}
		out[key] = supplied[raw]
	}
	return out, nil
}

func emitOption(tokens, path []string, o spec.Option, v Value) ([]string, error) {
	if o.IsFlag() {
		switch {
		case v.IsAbsent():
		case v.IsBool():
			if v.Truth() {
				tokens = append(tokens, o.Flag())
			}
		default:
			return nil, &InvalidValueError{Command: path, Parameter: o.Key(), Want: "bool", Got: v.kindName()}
		}
		return tokens, nil
	}

	if v.IsBool() {
		return nil, &InvalidValueError{Command: path, Parameter: o.Key(), Want: "string", Got: v.kindName()}
	}
	if v.emitsValue() {
		tokens = append(tokens, o.Flag(), v.Str())
	}
	return tokens, nil
}

// emitPositionals appends supplied positionals. Only trailing optional
// arguments may be omitted.
func emitPositionals(tokens, path []string, declared []spec.Argument, supplied []Value) ([]string, error) {
	if len(supplied) > len(declared) {
		return nil, &UnexpectedArgumentError{Command: path, Declared: len(declared), Supplied: len(supplied)}
	}

	gap := ""
	for i, a := range spec.SortedArguments(declared) {
		v := Absent
		if i < len(supplied) {
			v = supplied[i]
		}

		switch {
		case v.IsAbsent():
			if a.Required {
				return nil, &MissingArgumentError{Command: path, Argument: a.Name}
			}
			if gap == "" {
				gap = a.Name
			}
		case v.IsBool():
			return nil, &InvalidValueError{Command: path, Parameter: a.Name, Want: "string", Got: v.kindName()}
		default:
			if gap != "" {
				return nil, &MissingArgumentError{Command: path, Argument: gap}
			}
			tokens = append(tokens, v.Str())
		}
	}
	return tokens, nil
}

// Render formats an invocation for display, quoting each token the way bash
// would need it. The result is for humans and logs; it is never executed.
func Render(executable string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, tok := range append([]string{executable}, args...) {
		q, err := syntax.Quote(tok, syntax.LangBash)
		if err != nil {
			q = strconv.Quote(tok)
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}
