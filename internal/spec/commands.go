package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Commands is a name → Command mapping that remembers declaration order.
// Iteration follows the order keys appeared in the source document; equality
// and the canonical encoding ignore it.
type Commands struct {
	names []string
	byKey map[string]*Command
}

// Entry pairs a command name with its definition.
type Entry struct {
	Name    string
	Command *Command
}

// CommandsOf builds a Commands mapping from entries, keeping their order.
// It panics on duplicate names; it is meant for literals in code and tests.
func CommandsOf(entries ...Entry) Commands {
	var c Commands
	for _, e := range entries {
		if err := c.add(e.Name, e.Command); err != nil {
			panic(err)
		}
	}
	return c
}

func (c *Commands) add(name string, cmd *Command) error {
	if c.byKey == nil {
		c.byKey = make(map[string]*Command)
	}
	if _, exists := c.byKey[name]; exists {
		return fmt.Errorf("duplicate command %q", name)
	}
	if cmd == nil {
		cmd = &Command{}
	}
	c.names = append(c.names, name)
	c.byKey[name] = cmd
	return nil
}

// Len returns the number of commands.
func (c Commands) Len() int {
	return len(c.names)
}

// Names returns the command names in declaration order.
func (c Commands) Names() []string {
	return append([]string(nil), c.names...)
}

// Get returns the named command.
func (c Commands) Get(name string) (*Command, bool) {
	cmd, ok := c.byKey[name]
	return cmd, ok
}

// Entries returns name/command pairs in declaration order.
func (c Commands) Entries() []Entry {
	out := make([]Entry, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, Entry{Name: name, Command: c.byKey[name]})
	}
	return out
}

func (c Commands) sortedNames() []string {
	names := c.Names()
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the mapping with sorted keys so equal mappings encode identically.
func (c Commands) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.sortedNames() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.byKey[name])
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object token by token to keep key order.
func (c *Commands) UnmarshalJSON(data []byte) error {
	*c = Commands{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("commands must be an object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		if name == "" {
			return fmt.Errorf("command name must not be empty")
		}
		var cmd Command
		if err := dec.Decode(&cmd); err != nil {
			return fmt.Errorf("command %q: %w", name, err)
		}
		if err := c.add(name, &cmd); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalYAML emits a mapping node in declaration order.
func (c Commands) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range c.names {
		var val yaml.Node
		if err := val.Encode(c.byKey[name]); err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			&val,
		)
	}
	return node, nil
}

// UnmarshalYAML decodes a mapping node, keeping key order.
func (c *Commands) UnmarshalYAML(n *yaml.Node) error {
	*c = Commands{}
	if n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: commands must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		name := keyNode.Value
		if name == "" {
			return fmt.Errorf("line %d: command name must not be empty", keyNode.Line)
		}
		var cmd Command
		if err := valNode.Decode(&cmd); err != nil {
			return fmt.Errorf("command %q: %w", name, err)
		}
		if err := c.add(name, &cmd); err != nil {
			return fmt.Errorf("line %d: %w", keyNode.Line, err)
		}
	}
	return nil
}
