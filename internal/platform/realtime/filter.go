package realtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var columnName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Filter is a server-side row predicate in `column=eq.value` form. The zero
// Filter matches every row.
type Filter struct {
	Column string
	Value  string
}

// ParseFilter parses `column=eq.value`. An empty string yields the zero
// Filter. Operators other than eq are rejected.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, nil
	}
	column, rest, ok := strings.Cut(s, "=")
	if !ok {
		return Filter{}, fmt.Errorf("invalid filter %q: expected column=eq.value", s)
	}
	if !columnName.MatchString(column) {
		return Filter{}, fmt.Errorf("invalid filter column %q", column)
	}
	op, value, ok := strings.Cut(rest, ".")
	if !ok || op != "eq" {
		return Filter{}, fmt.Errorf("unsupported filter operator in %q: only eq is supported", s)
	}
	if value == "" {
		return Filter{}, fmt.Errorf("invalid filter %q: empty value", s)
	}
	return Filter{Column: column, Value: value}, nil
}

// Eq builds the filter column=eq.value.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

func (f Filter) IsZero() bool { return f.Column == "" }

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// Match reports whether row satisfies the filter.
func (f Filter) Match(row json.RawMessage) bool {
	if f.IsZero() {
		return true
	}
	r := gjson.GetBytes(row, f.Column)
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.String:
		return r.Str == f.Value
	case gjson.Null:
		return f.Value == "null"
	default:
		return r.Raw == f.Value
	}
}
