package spec

import "strings"

// Spec is the root of a command specification document.
// A Spec is built once by Parse and never mutated afterwards.
type Spec struct {
	OpenCLI  string   `json:"opencli,omitempty" yaml:"opencli,omitempty"`
	Info     Info     `json:"info" yaml:"info"`
	Commands Commands `json:"commands" yaml:"commands"`
	Options  []Option `json:"options,omitempty" yaml:"options,omitempty"`
}

// Info carries descriptive metadata about the described program.
type Info struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Command is one node of the command tree.
type Command struct {
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []Argument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Options     []Option   `json:"options,omitempty" yaml:"options,omitempty"`
	Commands    Commands   `json:"commands" yaml:"commands"`
	ExitCodes   []ExitCode `json:"exitCodes,omitempty" yaml:"exitCodes,omitempty"`
	Examples    []Example  `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Argument is a positional argument of a command, or a value slot of an option.
type Argument struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Ordinal     int    `json:"ordinal" yaml:"ordinal"`

	// ordinalSet records whether the source document declared an ordinal.
	ordinalSet bool
}

// Option is a named flag. Name is the long spelling, with or without leading dashes.
// An option without Arguments is a boolean flag.
type Option struct {
	Name        string     `json:"name" yaml:"name"`
	Aliases     []string   `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []Argument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// ExitCode documents one exit status of a command.
type ExitCode struct {
	Code        int    `json:"code" yaml:"code"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Example is a literal command line with a description.
type Example struct {
	Command     string `json:"command" yaml:"command"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Key returns the option name without leading dashes. Parameters are keyed by it.
func (o Option) Key() string {
	return strings.TrimLeft(o.Name, "-")
}

// Flag returns the token emitted on the command line for this option.
// Bare names get a "--" prefix; names already carrying dashes are kept as written.
func (o Option) Flag() string {
	if strings.HasPrefix(o.Name, "-") {
		return o.Name
	}
	return "--" + o.Name
}

// IsFlag reports whether the option takes no value.
func (o Option) IsFlag() bool {
	return len(o.Arguments) == 0
}

// ValueRequired reports whether a value must accompany the flag when it is used.
func (o Option) ValueRequired() bool {
	for _, a := range o.Arguments {
		if a.Required {
			return true
		}
	}
	return false
}

// HasSubcommands reports whether the command has nested commands.
func (c *Command) HasSubcommands() bool {
	return c != nil && c.Commands.Len() > 0
}
