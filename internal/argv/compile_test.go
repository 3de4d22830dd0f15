package argv

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/clibridge/internal/spec"
)

func taskAdd() *spec.Command {
	return &spec.Command{
		Arguments: []spec.Argument{{Name: "title", Required: true, Ordinal: 0}},
		Options: []spec.Option{
			{Name: "priority", Arguments: []spec.Argument{{Name: "level"}}},
			{Name: "urgent"},
			{Name: "--due", Arguments: []spec.Argument{{Name: "date"}}},
		},
	}
}

func TestCompileScenarios(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		params Params
		want   []string
	}{
		{
			name:   "top-level command without parameters",
			target: Target{Path: []string{"stats"}, Command: &spec.Command{}},
			want:   []string{"stats"},
		},
		{
			name:   "positional then value option",
			target: Target{Path: []string{"task", "add"}, Command: taskAdd()},
			params: Params{
				Options: map[string]Value{"priority": String("high")},
				Args:    []Value{String("Buy milk")},
			},
			want: []string{"task", "add", "Buy milk", "--priority", "high"},
		},
		{
			name:   "declared order beats caller order",
			target: Target{Path: []string{"task", "add"}, Command: taskAdd()},
			params: Params{
				Options: map[string]Value{"due": String("friday"), "urgent": Bool(true), "priority": String("low")},
				Args:    []Value{String("x")},
			},
			want: []string{"task", "add", "x", "--priority", "low", "--urgent", "--due", "friday"},
		},
		{
			name:   "dashed parameter keys",
			target: Target{Path: []string{"task", "add"}, Command: taskAdd()},
			params: Params{
				Options: map[string]Value{"--priority": String("high")},
				Args:    []Value{String("x")},
			},
			want: []string{"task", "add", "x", "--priority", "high"},
		},
		{
			name:   "metacharacters pass through as one token",
			target: Target{Path: []string{"task", "add"}, Command: taskAdd()},
			params: Params{Args: []Value{String(`a "quoted" $(rm -rf /); echo 'x' | cat`)}},
			want:   []string{"task", "add", `a "quoted" $(rm -rf /); echo 'x' | cat`},
		},
		{
			name:   "nil command compiles path only",
			target: Target{Path: []string{"version"}},
			want:   []string{"version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.target, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileOmissionLaw(t *testing.T) {
	target := Target{Path: []string{"task", "add"}, Command: taskAdd()}

	for name, v := range map[string]Value{"absent": Absent, "empty": String("")} {
		t.Run(name, func(t *testing.T) {
			got, err := Compile(target, Params{
				Options: map[string]Value{"priority": v},
				Args:    []Value{String("x")},
			})
			require.NoError(t, err)
			assert.NotContains(t, got, "--priority")
		})
	}

	for _, literal := range []string{"0", "false"} {
		t.Run("literal "+literal, func(t *testing.T) {
			got, err := Compile(target, Params{
				Options: map[string]Value{"priority": String(literal)},
				Args:    []Value{String("x")},
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"task", "add", "x", "--priority", literal}, got)
		})
	}
}

func TestCompileBooleanFlagLaw(t *testing.T) {
	target := Target{Path: []string{"task", "add"}, Command: taskAdd()}
	count := func(tokens []string) int {
		n := 0
		for _, tok := range tokens {
			if tok == "--urgent" {
				n++
			}
		}
		return n
	}

	for name, tc := range map[string]struct {
		v    Value
		want int
	}{
		"true":   {Bool(true), 1},
		"false":  {Bool(false), 0},
		"absent": {Absent, 0},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Compile(target, Params{
				Options: map[string]Value{"urgent": tc.v},
				Args:    []Value{String("x")},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, count(got))
		})
	}
}

func TestCompileGlobals(t *testing.T) {
	globals := []spec.Option{{Name: "verbose"}, {Name: "priority"}, {Name: "config", Arguments: []spec.Argument{{Name: "path"}}}}
	target := Target{Path: []string{"task", "add"}, Command: taskAdd(), Globals: globals}

	got, err := Compile(target, Params{
		Options: map[string]Value{"config": String("/etc/t.conf"), "verbose": Bool(true), "priority": String("high")},
		Args:    []Value{String("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"task", "add", "x", "--priority", "high", "--verbose", "--config", "/etc/t.conf"}, got,
		"command options come first and shadow globals of the same key")
}

func TestCompilePositionals(t *testing.T) {
	rename := &spec.Command{Arguments: []spec.Argument{
		{Name: "note", Ordinal: 2},
		{Name: "from", Required: true, Ordinal: 0},
		{Name: "to", Required: true, Ordinal: 1},
	}}
	target := Target{Path: []string{"project", "rename"}, Command: rename}

	got, err := Compile(target, Params{Args: []Value{String("a"), String("b")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"project", "rename", "a", "b"}, got, "trailing optional may be omitted")

	got, err = Compile(target, Params{Args: []Value{String("a"), String("b"), String("why")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"project", "rename", "a", "b", "why"}, got)

	got, err = Compile(target, Params{Args: []Value{String("a"), String("")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"project", "rename", "a", ""}, got, "empty positional is present")

	_, err = Compile(target, Params{Args: []Value{String("a")}})
	var missing *MissingArgumentError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "to", missing.Argument)
	assert.True(t, errors.Is(err, ErrMissingArgument))
	assert.Contains(t, err.Error(), `"project rename"`)
}

func TestCompileOptionalGap(t *testing.T) {
	cmd := &spec.Command{Arguments: []spec.Argument{
		{Name: "first", Ordinal: 0},
		{Name: "second", Ordinal: 1},
	}}
	_, err := Compile(Target{Path: []string{"x"}, Command: cmd}, Params{Args: []Value{Absent, String("b")}})

	var missing *MissingArgumentError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "first", missing.Argument)
}

func TestCompileParameterErrors(t *testing.T) {
	target := Target{Path: []string{"task", "add"}, Command: taskAdd()}

	tests := []struct {
		name   string
		params Params
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unknown option",
			params: Params{Options: map[string]Value{"colour": String("red")}, Args: []Value{String("x")}},
			check: func(t *testing.T, err error) {
				var e *UnknownOptionError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "colour", e.Option)
			},
		},
		{
			name:   "duplicate key spellings",
			params: Params{Options: map[string]Value{"priority": String("a"), "--priority": String("b")}, Args: []Value{String("x")}},
			check: func(t *testing.T, err error) {
				var e *DuplicateOptionError
				require.True(t, errors.As(err, &e))
			},
		},
		{
			name:   "too many positionals",
			params: Params{Args: []Value{String("x"), String("y")}},
			check: func(t *testing.T, err error) {
				var e *UnexpectedArgumentError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 1, e.Declared)
				assert.Equal(t, 2, e.Supplied)
			},
		},
		{
			name:   "string on boolean flag",
			params: Params{Options: map[string]Value{"urgent": String("true")}, Args: []Value{String("x")}},
			check: func(t *testing.T, err error) {
				var e *InvalidValueError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "bool", e.Want)
			},
		},
		{
			name:   "bool on value option",
			params: Params{Options: map[string]Value{"priority": Bool(true)}, Args: []Value{String("x")}},
			check: func(t *testing.T, err error) {
				var e *InvalidValueError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "string", e.Want)
			},
		},
		{
			name:   "bool positional",
			params: Params{Args: []Value{Bool(true)}},
			check: func(t *testing.T, err error) {
				var e *InvalidValueError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "title", e.Parameter)
			},
		},
		{
			name:   "required positional missing",
			params: Params{Options: map[string]Value{"priority": String("high")}},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrMissingArgument))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(target, tt.params)
			require.Error(t, err)
			assert.Nil(t, got)
			tt.check(t, err)
		})
	}
}

func TestCompileDeterministicAndConcurrent(t *testing.T) {
	target := Target{Path: []string{"task", "add"}, Command: taskAdd()}
	params := Params{
		Options: map[string]Value{"urgent": Bool(true), "due": String("mon"), "priority": String("p1")},
		Args:    []Value{String("x")},
	}

	first, err := Compile(target, params)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Compile(target, params)
			if err == nil {
				results[i] = got
			}
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, first, got)
	}
}

func TestValueHelpers(t *testing.T) {
	assert.True(t, Absent.IsAbsent())
	assert.True(t, String("").IsString())
	assert.True(t, Bool(false).IsBool())
	assert.Equal(t, "x", String("x").Str())
	assert.True(t, Bool(true).Truth())

	assert.True(t, StringPtr(nil).IsAbsent())
	s := "v"
	assert.Equal(t, String("v"), StringPtr(&s))

	assert.Equal(t, `argv.String("a")`, String("a").GoString())
	assert.Equal(t, "argv.Absent", Absent.GoString())
}

func TestRender(t *testing.T) {
	assert.Equal(t, "taskctl task add 'Buy milk' --priority high",
		Render("taskctl", []string{"task", "add", "Buy milk", "--priority", "high"}))
	assert.Equal(t, "taskctl ''", Render("taskctl", []string{""}))
}
