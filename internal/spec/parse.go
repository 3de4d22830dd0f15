package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rawArgument struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
	Ordinal     *int   `json:"ordinal" yaml:"ordinal"`
}

func (r rawArgument) argument() Argument {
	a := Argument{
		Name:        r.Name,
		Description: r.Description,
		Required:    r.Required,
	}
	if r.Ordinal != nil {
		a.Ordinal = *r.Ordinal
		a.ordinalSet = true
	}
	return a
}

// UnmarshalJSON records whether an ordinal was declared.
func (a *Argument) UnmarshalJSON(data []byte) error {
	var raw rawArgument
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = raw.argument()
	return nil
}

// UnmarshalYAML records whether an ordinal was declared.
func (a *Argument) UnmarshalYAML(n *yaml.Node) error {
	var raw rawArgument
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*a = raw.argument()
	return nil
}

// Load reads a spec document from disk and parses it.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a JSON or YAML spec document and validates it.
// Documents whose first non-blank byte is '{' are decoded as JSON, anything else as YAML.
func Parse(raw []byte) (*Spec, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ParseError{Reason: "document is empty"}
	}

	var (
		s   *Spec
		err error
	)
	if trimmed[0] == '{' {
		s, err = parseJSON(trimmed)
	} else {
		s, err = parseYAML(trimmed)
	}
	if err != nil {
		return nil, err
	}

	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseJSON(data []byte) (*Spec, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, jsonParseError(err)
	}
	if _, ok := keys["commands"]; !ok {
		return nil, &ParseError{Path: "commands", Reason: "required field is missing"}
	}

	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, jsonParseError(err)
	}
	return &s, nil
}

func jsonParseError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ParseError{
			Path:   typeErr.Field,
			Reason: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
			Err:    err,
		}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ParseError{
			Reason: fmt.Sprintf("malformed JSON at offset %d: %v", syntaxErr.Offset, syntaxErr),
			Err:    err,
		}
	}
	return &ParseError{Reason: err.Error(), Err: err}
}

func parseYAML(data []byte) (*Spec, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Reason: err.Error(), Err: err}
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, &ParseError{Reason: "document root must be a mapping"}
	}
	doc := root.Content[0]

	hasCommands := false
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "commands" {
			hasCommands = true
			break
		}
	}
	if !hasCommands {
		return nil, &ParseError{Path: "commands", Reason: "required field is missing"}
	}

	var s Spec
	if err := doc.Decode(&s); err != nil {
		return nil, &ParseError{Reason: err.Error(), Err: err}
	}
	return &s, nil
}

// normalize assigns declared-index ordinals to arguments that omitted one.
func (s *Spec) normalize() {
	normalizeOptions(s.Options)
	s.Commands.each(func(_ []string, c *Command) {
		for i := range c.Arguments {
			if !c.Arguments[i].ordinalSet {
				c.Arguments[i].Ordinal = i
				c.Arguments[i].ordinalSet = true
			}
		}
		normalizeOptions(c.Options)
	}, nil)
}

func normalizeOptions(opts []Option) {
	for i := range opts {
		for j := range opts[i].Arguments {
			if !opts[i].Arguments[j].ordinalSet {
				opts[i].Arguments[j].Ordinal = j
				opts[i].Arguments[j].ordinalSet = true
			}
		}
	}
}

// each visits every command depth first in declaration order.
func (c Commands) each(fn func(path []string, cmd *Command), prefix []string) {
	for _, name := range c.names {
		cmd := c.byKey[name]
		path := append(append([]string(nil), prefix...), name)
		fn(path, cmd)
		cmd.Commands.each(fn, path)
	}
}
