// Package enums holds the closed string sets persisted in the database and
// carried in tokens and events.
package enums

import (
	"fmt"
	"slices"
)

// parse matches value exactly against known and names the set in the error.
func parse[T ~string](set, value string, known []T) (T, error) {
	if v := T(value); slices.Contains(known, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", set, value)
}
