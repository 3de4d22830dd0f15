package invoke

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/clibridge/internal/argv"
	"github.com/mattjoyce/clibridge/internal/spec"
)

// Input carries caller-supplied values for one invocation.
//
// Values are keyed by parameter name. A bare name matches a positional
// argument first and an option second; a name with leading dashes always
// means an option. Accepted value types are nil (absent), string, bool,
// json.Number and the built-in numeric types. Args fills positionals in
// ordinal order ahead of any named ones.
//
// An empty string given for a positional is passed through as an empty argv
// token, as in `grep ""`; callers that mean "not given" must omit the key or
// send nil. For options an empty string is absent.
type Input struct {
	Values  map[string]any
	Args    []string
	Timeout time.Duration
}

// Bind converts in into compiler parameters for o. Strings given for flag
// options are parsed with strconv.ParseBool.
func (o *Operation) Bind(in Input) (argv.Params, error) {
	positionals := spec.SortedArguments(o.Command.Arguments)
	if len(in.Args) > len(positionals) {
		return argv.Params{}, &argv.UnexpectedArgumentError{Command: o.Path, Declared: len(positionals), Supplied: len(in.Args)}
	}

	args := make([]argv.Value, len(positionals))
	for i, a := range in.Args {
		args[i] = argv.String(a)
	}
	index := make(map[string]int, len(positionals))
	for i, a := range positionals {
		index[a.Name] = i
	}

	options := make(map[string]spec.Option, len(o.Command.Options)+len(o.Globals))
	for _, opt := range o.Globals {
		options[opt.Key()] = opt
	}
	for _, opt := range o.Command.Options {
		options[opt.Key()] = opt
	}

	keys := make([]string, 0, len(in.Values))
	for k := range in.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := argv.Params{Options: make(map[string]argv.Value)}
	for _, key := range keys {
		raw := in.Values[key]

		if !strings.HasPrefix(key, "-") {
			if i, ok := index[key]; ok {
				if i < len(in.Args) {
					return argv.Params{}, fmt.Errorf("%w: %s: argument %q supplied twice", argv.ErrInvalidParams, o.Name, key)
				}
				v, err := toValue(o, key, raw, false)
				if err != nil {
					return argv.Params{}, err
				}
				args[i] = v
				continue
			}
		}

		opt, ok := options[strings.TrimLeft(key, "-")]
		if !ok {
			return argv.Params{}, &argv.UnknownOptionError{Command: o.Path, Option: key}
		}
		v, err := toValue(o, key, raw, opt.IsFlag())
		if err != nil {
			return argv.Params{}, err
		}
		params.Options[key] = v
	}

	// Trailing absent positionals are dropped so that optional ones may be omitted.
	last := len(args)
	for last > 0 && args[last-1].IsAbsent() {
		last--
	}
	params.Args = args[:last]
	return params, nil
}

func toValue(o *Operation, key string, raw any, flag bool) (argv.Value, error) {
	invalid := func(want string) error {
		return &argv.InvalidValueError{Command: o.Path, Parameter: key, Want: want, Got: fmt.Sprintf("%T", raw)}
	}

	switch v := raw.(type) {
	case nil:
		return argv.Absent, nil
	case bool:
		return argv.Bool(v), nil
	case string:
		if !flag {
			return argv.String(v), nil
		}
		if v == "" {
			return argv.Absent, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return argv.Value{}, invalid("bool")
		}
		return argv.Bool(b), nil
	case json.Number:
		if flag {
			return argv.Value{}, invalid("bool")
		}
		return argv.String(v.String()), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		if flag {
			return argv.Value{}, invalid("bool")
		}
		return argv.String(fmt.Sprint(v)), nil
	case float32:
		if flag {
			return argv.Value{}, invalid("bool")
		}
		return argv.String(strconv.FormatFloat(float64(v), 'f', -1, 32)), nil
	case float64:
		if flag {
			return argv.Value{}, invalid("bool")
		}
		return argv.String(strconv.FormatFloat(v, 'f', -1, 64)), nil
	default:
		return argv.Value{}, invalid("string")
	}
}
