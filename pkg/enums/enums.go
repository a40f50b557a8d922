// Package enums holds the string enums persisted in check constrained
// columns. Values are case sensitive.
package enums

import (
	"fmt"
	"slices"
)

func known[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](raw string, set []T, kind string) (T, error) {
	v := T(raw)
	if !known(v, set) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", kind, raw)
	}
	return v, nil
}
