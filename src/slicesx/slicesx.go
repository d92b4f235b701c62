package slicesx

// Returns the elements that satisfy predicate, in their original order.
func Filter[T any](xs []T, predicate func(*T) bool) []T {
	out := make([]T, 0)

	for i := range xs {
		if predicate(&xs[i]) {
			out = append(out, xs[i])
		}
	}

	return out
}
