// Package enums holds the string-backed values persisted in the database and
// exchanged over the API.
package enums

import (
	"fmt"
	"slices"
)

// set is the closed list of values of one enum, in declaration order.
type set[T ~string] []T

func (s set[T]) has(v T) bool { return slices.Contains(s, v) }

func (s set[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
