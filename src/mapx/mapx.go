package mapx

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// Returns the smallest value in the map, or false when the map is empty.
func MinValue[K comparable, V constraints.Ordered](m map[K]V) (V, bool) {
	var min V
	found := false

	for _, value := range m {
		if !found || value < min {
			min = value
			found = true
		}
	}

	return min, found
}

// Returns the map keys in no particular order.
func Keys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))

	for key := range m {
		keys = append(keys, key)
	}

	return keys
}

// Returns the map keys in ascending order. Used wherever iteration order
// must be deterministic, e.g. by the simulated network.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := Keys(m)
	slices.Sort(keys)
	return keys
}
