package fn

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, len(items))
	for i, v := range items {
		out[i] = f(v)
	}
	return out
}

// Filter returns elements where pred is true.
func Filter[T any](items []T, pred func(T) bool) []T {
	var out []T
	for _, v := range items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of elements where pred is true.
func Count[T any](items []T, pred func(T) bool) int {
	n := 0
	for _, v := range items {
		if pred(v) {
			n++
		}
	}
	return n
}
