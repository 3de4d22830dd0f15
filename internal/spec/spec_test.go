package spec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) *Spec {
	t.Helper()
	s, err := Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	return s
}

func TestParseJSONFixture(t *testing.T) {
	s := loadFixture(t, "taskctl.json")

	assert.Equal(t, "0.1", s.OpenCLI)
	assert.Equal(t, "taskctl", s.Info.Title)
	assert.Equal(t, []string{"task", "stats", "project"}, s.Commands.Names(), "declaration order is kept")

	add, err := s.Resolve([]string{"task", "add"})
	require.NoError(t, err)
	require.Len(t, add.Arguments, 1)
	assert.Equal(t, "title", add.Arguments[0].Name)
	assert.True(t, add.Arguments[0].Required)
	require.Len(t, add.Options, 2)
	assert.Equal(t, "--priority", add.Options[0].Flag())
	assert.False(t, add.Options[0].IsFlag())
	assert.True(t, add.Options[1].IsFlag())
	assert.Equal(t, []ExitCode{{Code: 0, Description: "Created"}, {Code: 2, Description: "Invalid input"}}, add.ExitCodes)
	require.Len(t, add.Examples, 1)

	rename, err := s.Resolve([]string{"project", "rename"})
	require.NoError(t, err)
	for i, a := range rename.Arguments {
		assert.Equal(t, i, a.Ordinal, "omitted ordinal defaults to declared index")
	}
}

func TestParseYAMLMatchesJSON(t *testing.T) {
	fromJSON := loadFixture(t, "taskctl.json")
	fromYAML := loadFixture(t, "taskctl.yaml")

	assert.True(t, Equal(fromJSON, fromYAML))
	assert.Equal(t, Hash(fromJSON), Hash(fromYAML))

	dj, err := Digest(fromJSON)
	require.NoError(t, err)
	dy, err := Digest(fromYAML)
	require.NoError(t, err)
	assert.Equal(t, dj, dy)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPath string
	}{
		{name: "empty document", input: "   "},
		{name: "malformed json", input: `{"commands": {`},
		{name: "missing commands", input: `{"info": {"title": "x"}}`, wantPath: "commands"},
		{name: "missing commands yaml", input: "info:\n  title: x\n", wantPath: "commands"},
		{name: "commands wrong type", input: `{"commands": []}`},
		{name: "title wrong type", input: `{"info": {"title": 5}, "commands": {}}`, wantPath: "info.title"},
		{
			name:     "argument without name",
			input:    `{"commands": {"a": {"arguments": [{"required": true}]}}}`,
			wantPath: "commands.a.arguments[0].name",
		},
		{
			name:     "duplicate ordinal",
			input:    `{"commands": {"a": {"arguments": [{"name": "x", "ordinal": 0}, {"name": "y", "ordinal": 0}]}}}`,
			wantPath: "commands.a.arguments[1].ordinal",
		},
		{
			name:     "negative ordinal",
			input:    `{"commands": {"a": {"arguments": [{"name": "x", "ordinal": -1}]}}}`,
			wantPath: "commands.a.arguments[0].ordinal",
		},
		{
			name:     "required after optional",
			input:    `{"commands": {"a": {"arguments": [{"name": "x"}, {"name": "y", "required": true}]}}}`,
			wantPath: "commands.a.arguments",
		},
		{
			name:     "option without name",
			input:    `{"commands": {"a": {"commands": {"b": {"options": [{"description": "d"}]}}}}}`,
			wantPath: "commands.a.commands.b.options[0].name",
		},
		{
			name:     "duplicate option",
			input:    `{"commands": {"a": {"options": [{"name": "x"}, {"name": "--x"}]}}}`,
			wantPath: "commands.a.options[1].name",
		},
		{name: "duplicate command yaml", input: "commands:\n  a: {}\n  a: {}\n"},
		{name: "empty command name", input: `{"commands": {"": {}}}`},
		{name: "yaml root not mapping", input: "- a\n- b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSpec), "error should match ErrInvalidSpec: %v", err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			if tt.wantPath != "" {
				assert.Equal(t, tt.wantPath, pe.Path)
			}
		})
	}
}

func TestParseNullCommands(t *testing.T) {
	s, err := Parse([]byte(`{"commands": null}`))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Commands.Len())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolveUnknown(t *testing.T) {
	s := loadFixture(t, "taskctl.json")

	_, err := s.Resolve([]string{"task", "delete"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCommand))
	assert.Contains(t, err.Error(), "task delete")

	_, err = s.Resolve(nil)
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestWalkOrderAndSkip(t *testing.T) {
	s := loadFixture(t, "taskctl.json")

	var visited []string
	err := s.Walk(func(path []string, c *Command) error {
		visited = append(visited, joinPath(path))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"task", "task add", "task list", "stats", "project", "project rename"}, visited)

	visited = nil
	err = s.Walk(func(path []string, c *Command) error {
		visited = append(visited, joinPath(path))
		if path[0] == "task" {
			return ErrSkipCommand
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"task", "stats", "project", "project rename"}, visited)

	stop := errors.New("stop")
	err = s.Walk(func(path []string, c *Command) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

func TestOptionHelpers(t *testing.T) {
	assert.Equal(t, "--force", Option{Name: "force"}.Flag())
	assert.Equal(t, "--force", Option{Name: "--force"}.Flag())
	assert.Equal(t, "-f", Option{Name: "-f"}.Flag())
	assert.Equal(t, "force", Option{Name: "--force"}.Key())

	withValue := Option{Name: "out", Arguments: []Argument{{Name: "path", Required: true}}}
	assert.False(t, withValue.IsFlag())
	assert.True(t, withValue.ValueRequired())
	assert.False(t, Option{Name: "x", Arguments: []Argument{{Name: "v"}}}.ValueRequired())
}
