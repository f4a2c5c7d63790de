package schema

import (
	"fmt"
	"slices"
	"strings"

	language "github.com/hanpama/gqlplug/internal/language"
)

// DirectiveError reports a directive use with a shape its consumer does not
// accept. It is a configuration error: schemas carrying one do not build.
type DirectiveError struct {
	Directive string
	Argument  string
	Message   string
}

func (e *DirectiveError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("@%s(%s:): %s", e.Directive, e.Argument, e.Message)
	}
	return fmt.Sprintf("@%s: %s", e.Directive, e.Message)
}

// FindDirective returns the first use of any of the given names (aliases of
// one directive). Using two different aliases on one element is an error.
func FindDirective(list language.DirectiveList, names ...string) (*language.Directive, error) {
	var found *language.Directive
	for _, d := range list {
		if d == nil || !slices.Contains(names, d.Name) {
			continue
		}
		if found != nil {
			return nil, &DirectiveError{Directive: d.Name, Message: fmt.Sprintf("conflicts with @%s on the same element", found.Name)}
		}
		found = d
	}
	return found, nil
}

// HasDirective reports whether list contains a directive named name.
func HasDirective(list language.DirectiveList, name string) bool {
	return list.ForName(name) != nil
}

// CheckArguments fails when d carries an argument outside allowed.
func CheckArguments(d *language.Directive, allowed ...string) error {
	for _, arg := range d.Arguments {
		if !slices.Contains(allowed, arg.Name) {
			return &DirectiveError{Directive: d.Name, Argument: arg.Name, Message: "unknown argument"}
		}
	}
	return nil
}

// EnumArg returns the enum literal passed as argument name. ok is false when
// the argument is absent. Any literal kind other than an enum value, or a
// value outside allowed (when allowed is non-empty), is an error.
func EnumArg(d *language.Directive, name string, allowed ...string) (value string, ok bool, err error) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return "", false, nil
	}
	if arg.Value.Kind != language.EnumValue {
		return "", false, &DirectiveError{Directive: d.Name, Argument: name, Message: "expected an enum value, got " + arg.Value.String()}
	}
	if len(allowed) > 0 && !slices.Contains(allowed, arg.Value.Raw) {
		return "", false, &DirectiveError{Directive: d.Name, Argument: name, Message: fmt.Sprintf("unknown value %s, expected one of %s", arg.Value.Raw, strings.Join(allowed, ", "))}
	}
	return arg.Value.Raw, true, nil
}

// StringArg returns the string literal passed as argument name.
func StringArg(d *language.Directive, name string) (value string, ok bool, err error) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return "", false, nil
	}
	if arg.Value.Kind != language.StringValue && arg.Value.Kind != language.BlockValue {
		return "", false, &DirectiveError{Directive: d.Name, Argument: name, Message: "expected a string, got " + arg.Value.String()}
	}
	return arg.Value.Raw, true, nil
}
