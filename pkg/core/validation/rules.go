package validation

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"
)

// Rule checks one value and returns the message to show when it fails
type Rule[T any] func(value T) (message string, ok bool)

// Errors maps a field name to the message of its first failing rule
type Errors map[string]string

// Valid reports whether no field failed
func (e Errors) Valid() bool {
	return len(e) == 0
}

// Fields returns the failing field names in sorted order
func (e Errors) Fields() []string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Err converts the map into an error, or nil when valid
func (e Errors) Err() error {
	if e.Valid() {
		return nil
	}
	parts := make([]string, 0, len(e))
	for _, f := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
}

// Check runs rules in order and records the first failure under field.
// Fields that already have an error are left alone.
func Check[T any](errs Errors, field string, value T, rules ...Rule[T]) {
	if _, exists := errs[field]; exists {
		return
	}
	for _, rule := range rules {
		if msg, ok := rule(value); !ok {
			errs[field] = msg
			return
		}
	}
}

// Optional skips the remaining rules when the value is empty
func Optional(rules ...Rule[string]) Rule[string] {
	return func(v string) (string, bool) {
		if v == "" {
			return "", true
		}
		for _, rule := range rules {
			if msg, ok := rule(v); !ok {
				return msg, false
			}
		}
		return "", true
	}
}

func Required(msg string) Rule[string] {
	return func(v string) (string, bool) {
		return msg, v != ""
	}
}

func MinLen(n int, msg string) Rule[string] {
	return func(v string) (string, bool) {
		return msg, utf8.RuneCountInString(v) >= n
	}
}

func MaxLen(n int, msg string) Rule[string] {
	return func(v string) (string, bool) {
		return msg, utf8.RuneCountInString(v) <= n
	}
}

// Matches requires the whole value to match re
func Matches(re *regexp.Regexp, msg string) Rule[string] {
	return func(v string) (string, bool) {
		return msg, re.MatchString(v)
	}
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9_'+\-.]*[A-Za-z0-9_+\-]@([A-Za-z0-9][A-Za-z0-9\-]*\.)+[A-Za-z]{2,}$`)

// Email accepts a plain address (no display name, no leading or doubled dots)
func Email(msg string) Rule[string] {
	return func(v string) (string, bool) {
		if strings.HasPrefix(v, ".") || strings.Contains(v, "..") {
			return msg, false
		}
		return msg, emailPattern.MatchString(v)
	}
}

func OneOf(allowed []string, msg string) Rule[string] {
	return func(v string) (string, bool) {
		return msg, slices.Contains(allowed, v)
	}
}

func NonEmpty(msg string) Rule[[]string] {
	return func(v []string) (string, bool) {
		return msg, len(v) > 0
	}
}

// SubsetOf requires every element to be in the vocabulary
func SubsetOf(vocabulary []string, msg string) Rule[[]string] {
	return func(v []string) (string, bool) {
		for _, item := range v {
			if !slices.Contains(vocabulary, item) {
				return msg, false
			}
		}
		return msg, true
	}
}

func MustBeTrue(msg string) Rule[bool] {
	return func(v bool) (string, bool) {
		return msg, v
	}
}
