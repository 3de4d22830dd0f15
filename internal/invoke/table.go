package invoke

import (
	"sort"
	"strings"

	"github.com/mattjoyce/clibridge/internal/argv"
	"github.com/mattjoyce/clibridge/internal/spec"
)

// ParamKind classifies an operation parameter.
type ParamKind string

const (
	Positional  ParamKind = "positional"
	ValueOption ParamKind = "option"
	FlagOption  ParamKind = "flag"
)

// Parameter describes one input accepted by an operation.
type Parameter struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Ordinal     int       `json:"ordinal,omitempty"`
	Global      bool      `json:"global,omitempty"`
	Aliases     []string  `json:"aliases,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Operation is one callable command path.
type Operation struct {
	// Name is the path joined by single spaces, e.g. "task add".
	Name    string
	Path    []string
	Command *spec.Command
	Globals []spec.Option
}

// Target returns the compilation target for o.
func (o *Operation) Target() argv.Target {
	return argv.Target{Path: o.Path, Command: o.Command, Globals: o.Globals}
}

// Parameters lists positionals by ordinal, then command options and global
// options in declared order. Options are never required; a positional is
// required when its argument is.
func (o *Operation) Parameters() []Parameter {
	var out []Parameter
	for _, a := range spec.SortedArguments(o.Command.Arguments) {
		out = append(out, Parameter{
			Name:        a.Name,
			Kind:        Positional,
			Required:    a.Required,
			Ordinal:     a.Ordinal,
			Description: a.Description,
		})
	}

	shadowed := make(map[string]struct{}, len(o.Command.Options))
	for _, opt := range o.Command.Options {
		shadowed[opt.Key()] = struct{}{}
		out = append(out, optionParameter(opt, false))
	}
	for _, opt := range o.Globals {
		if _, ok := shadowed[opt.Key()]; ok {
			continue
		}
		out = append(out, optionParameter(opt, true))
	}
	return out
}

func optionParameter(opt spec.Option, global bool) Parameter {
	kind := ValueOption
	if opt.IsFlag() {
		kind = FlagOption
	}
	return Parameter{
		Name:        opt.Key(),
		Kind:        kind,
		Global:      global,
		Aliases:     opt.Aliases,
		Description: opt.Description,
	}
}

// Table maps operation names to operations. It is built once from a spec
// and is read-only afterwards.
type Table struct {
	ops    []*Operation
	byName map[string]*Operation
}

// NewTable builds one operation per command node, in declaration order.
// Commands with subcommands are operations too.
func NewTable(s *spec.Spec) *Table {
	t := &Table{byName: make(map[string]*Operation)}
	_ = s.Walk(func(path []string, c *spec.Command) error {
		op := &Operation{
			Name:    strings.Join(path, " "),
			Path:    path,
			Command: c,
			Globals: s.Options,
		}
		t.ops = append(t.ops, op)
		t.byName[op.Name] = op
		return nil
	})
	return t
}

// Lookup returns the operation with the given name. Runs of whitespace in
// name are treated as single separators.
func (t *Table) Lookup(name string) (*Operation, error) {
	return t.LookupPath(strings.Fields(name))
}

// LookupPath returns the operation at path.
func (t *Table) LookupPath(path []string) (*Operation, error) {
	if op, ok := t.byName[strings.Join(path, " ")]; ok && len(path) > 0 {
		return op, nil
	}
	return nil, &spec.UnknownCommandError{Path: append([]string(nil), path...)}
}

// Operations returns every operation in declaration order.
func (t *Table) Operations() []*Operation {
	return append([]*Operation(nil), t.ops...)
}

// Names returns the sorted operation names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.ops))
	for _, op := range t.ops {
		names = append(names, op.Name)
	}
	sort.Strings(names)
	return names
}
