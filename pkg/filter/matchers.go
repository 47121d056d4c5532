package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/cryoview/pkg/models"
)

// Matcher reports whether a record satisfies one filter value.
type Matcher[R any] func(r R, value string) bool

// Substring matches when field contains value. Case-sensitive.
func Substring[R any](field func(R) string) Matcher[R] {
	return func(r R, value string) bool {
		return strings.Contains(field(r), value)
	}
}

// Exact matches when field equals value.
func Exact[R any](field func(R) string) Matcher[R] {
	return func(r R, value string) bool {
		return field(r) == value
	}
}

// Labels matches a label given as "key=value" or "key:value" against the
// record's labels in either serialization.
func Labels[R any](labels func(R) []models.Label) Matcher[R] {
	return func(r R, value string) bool {
		for _, l := range labels(r) {
			if value == l.Key+"="+l.Value || value == l.Key+":"+l.Value {
				return true
			}
		}
		return false
	}
}

// LabelText matches a substring of any serialized label. Used for free-text search.
func LabelText[R any](labels func(R) []models.Label) Matcher[R] {
	return func(r R, value string) bool {
		for _, l := range labels(r) {
			if strings.Contains(l.String(), value) || strings.Contains(l.Key+":"+l.Value, value) {
				return true
			}
		}
		return false
	}
}

// Before matches records whose timestamp is strictly before the value.
func Before[R any](ts func(R) time.Time) Matcher[R] {
	return func(r R, value string) bool {
		at, ok := ParseTime(value)
		t := ts(r)
		return ok && !t.IsZero() && t.Before(at)
	}
}

// After matches records whose timestamp is strictly after the value.
func After[R any](ts func(R) time.Time) Matcher[R] {
	return func(r R, value string) bool {
		at, ok := ParseTime(value)
		t := ts(r)
		return ok && !t.IsZero() && t.After(at)
	}
}

// AtLeastSeconds matches records whose duration, in seconds, is at least value.
func AtLeastSeconds[R any](seconds func(R) int64) Matcher[R] {
	return func(r R, value string) bool {
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		return err == nil && seconds(r) >= n
	}
}

// Bool matches "true" or "false" against a flag.
func Bool[R any](flag func(R) bool) Matcher[R] {
	return func(r R, value string) bool {
		b, err := strconv.ParseBool(value)
		return err == nil && flag(r) == b
	}
}

// ParseTime accepts RFC 3339 or epoch milliseconds.
func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
