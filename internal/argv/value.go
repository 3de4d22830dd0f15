package argv

import "strconv"

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindString
	kindBool
)

// Value is an optional parameter value: absent, a string, or a boolean.
// The zero Value is Absent.
type Value struct {
	kind valueKind
	str  string
	b    bool
}

// Absent is the missing value.
var Absent = Value{}

// String returns a present string value. The empty string is still treated as
// absent when compiling a value option.
func String(s string) Value {
	return Value{kind: kindString, str: s}
}

// Bool returns a present boolean value.
func Bool(b bool) Value {
	return Value{kind: kindBool, b: b}
}

// StringPtr maps nil to Absent and anything else to String.
func StringPtr(s *string) Value {
	if s == nil {
		return Absent
	}
	return String(*s)
}

// IsAbsent reports whether no value was supplied.
func (v Value) IsAbsent() bool { return v.kind == kindAbsent }

// IsString reports whether v holds a string.
func (v Value) IsString() bool { return v.kind == kindString }

// IsBool reports whether v holds a boolean.
func (v Value) IsBool() bool { return v.kind == kindBool }

// Str returns the string held by v, or "" when v holds none.
func (v Value) Str() string { return v.str }

// Truth returns the boolean held by v, or false when v holds none.
func (v Value) Truth() bool { return v.b }

// emitsValue reports whether v counts as present for a value-taking option.
// Only the empty string and Absent are absent; "0" and "false" are ordinary values.
func (v Value) emitsValue() bool {
	return v.kind == kindString && v.str != ""
}

func (v Value) GoString() string {
	switch v.kind {
	case kindString:
		return "argv.String(" + strconv.Quote(v.str) + ")"
	case kindBool:
		return "argv.Bool(" + strconv.FormatBool(v.b) + ")"
	default:
		return "argv.Absent"
	}
}

func (v Value) kindName() string {
	switch v.kind {
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	default:
		return "absent"
	}
}
