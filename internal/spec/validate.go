package spec

import (
	"fmt"
	"sort"
	"strings"
)

// Validate checks the structural invariants of the command tree.
// Parse calls it; specs built in code can call it directly.
func (s *Spec) Validate() error {
	if err := validateOptions("options", s.Options); err != nil {
		return err
	}
	var firstErr error
	s.Commands.each(func(path []string, c *Command) {
		if firstErr != nil {
			return
		}
		firstErr = validateCommand(commandPath(path), c)
	}, nil)
	return firstErr
}

func commandPath(path []string) string {
	return "commands." + strings.Join(path, ".commands.")
}

func validateCommand(at string, c *Command) error {
	if err := validateArguments(at+".arguments", c.Arguments); err != nil {
		return err
	}
	return validateOptions(at+".options", c.Options)
}

// validateArguments enforces unique non-negative ordinals and that no optional
// positional precedes a required one.
func validateArguments(at string, args []Argument) error {
	seenNames := make(map[string]int, len(args))
	seenOrdinals := make(map[int]int, len(args))
	for i, a := range args {
		field := fmt.Sprintf("%s[%d]", at, i)
		if strings.TrimSpace(a.Name) == "" {
			return &ParseError{Path: field + ".name", Reason: "required field is missing"}
		}
		if a.Ordinal < 0 {
			return &ParseError{Path: field + ".ordinal", Reason: fmt.Sprintf("must be non-negative (got %d)", a.Ordinal)}
		}
		if prev, dup := seenOrdinals[a.Ordinal]; dup {
			return &ParseError{Path: field + ".ordinal", Reason: fmt.Sprintf("ordinal %d already used by %s[%d]", a.Ordinal, at, prev)}
		}
		if prev, dup := seenNames[a.Name]; dup {
			return &ParseError{Path: field + ".name", Reason: fmt.Sprintf("argument %q already declared at %s[%d]", a.Name, at, prev)}
		}
		seenOrdinals[a.Ordinal] = i
		seenNames[a.Name] = i
	}

	sorted := SortedArguments(args)
	optionalSeen := ""
	for _, a := range sorted {
		if !a.Required {
			if optionalSeen == "" {
				optionalSeen = a.Name
			}
			continue
		}
		if optionalSeen != "" {
			return &ParseError{
				Path:   at,
				Reason: fmt.Sprintf("required argument %q follows optional argument %q", a.Name, optionalSeen),
			}
		}
	}
	return nil
}

func validateOptions(at string, opts []Option) error {
	seen := make(map[string]int, len(opts))
	for i, o := range opts {
		field := fmt.Sprintf("%s[%d]", at, i)
		if o.Key() == "" {
			return &ParseError{Path: field + ".name", Reason: "required field is missing"}
		}
		if prev, dup := seen[o.Key()]; dup {
			return &ParseError{Path: field + ".name", Reason: fmt.Sprintf("option %q already declared at %s[%d]", o.Name, at, prev)}
		}
		seen[o.Key()] = i
		for j, a := range o.Arguments {
			if strings.TrimSpace(a.Name) == "" {
				return &ParseError{Path: fmt.Sprintf("%s.arguments[%d].name", field, j), Reason: "required field is missing"}
			}
		}
	}
	return nil
}

// SortedArguments returns a copy of args ordered by ascending ordinal.
func SortedArguments(args []Argument) []Argument {
	out := append([]Argument(nil), args...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}
