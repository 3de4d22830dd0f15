package spec

import "slices"

// equaler is implemented by every node of the spec graph.
type equaler[T any] interface {
	Equal(T) bool
}

// equalSlices compares lists by length and position-wise equality.
func equalSlices[T equaler[T]](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// equalMappings compares mappings by key set and per-key equality, ignoring order.
func equalMappings[T equaler[T]](a, b map[string]T) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// Equal reports whether a and b are structurally identical. Two nil specs are equal.
func Equal(a, b *Spec) bool {
	return a.Equal(b)
}

func (s *Spec) Equal(o *Spec) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.OpenCLI == o.OpenCLI &&
		s.Info == o.Info &&
		s.Commands.Equal(o.Commands) &&
		equalSlices(s.Options, o.Options)
}

func (c Commands) Equal(o Commands) bool {
	return equalMappings(c.byKey, o.byKey)
}

func (c *Command) Equal(o *Command) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Description == o.Description &&
		equalSlices(c.Arguments, o.Arguments) &&
		equalSlices(c.Options, o.Options) &&
		c.Commands.Equal(o.Commands) &&
		equalSlices(c.ExitCodes, o.ExitCodes) &&
		equalSlices(c.Examples, o.Examples)
}

func (a Argument) Equal(o Argument) bool {
	return a.Name == o.Name &&
		a.Description == o.Description &&
		a.Required == o.Required &&
		a.Ordinal == o.Ordinal
}

func (o Option) Equal(p Option) bool {
	return o.Name == p.Name &&
		o.Description == p.Description &&
		slices.Equal(o.Aliases, p.Aliases) &&
		equalSlices(o.Arguments, p.Arguments)
}

func (e ExitCode) Equal(o ExitCode) bool { return e == o }

func (e Example) Equal(o Example) bool { return e == o }
