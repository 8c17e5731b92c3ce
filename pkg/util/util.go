package util

// Map applies fn to every element of a slice
func Map[T any, R any](items []T, fn func(item T, i uint64) R) []R {
	out := make([]R, len(items))
	for i, item := range items {
		out[i] = fn(item, uint64(i))
	}
	return out
}

// Filter keeps the elements for which fn returns true
func Filter[T any](items []T, fn func(item T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if fn(item) {
			out = append(out, item)
		}
	}
	return out
}

// Chunk splits items into consecutive batches of at most size elements.
// A size of zero returns the whole slice as a single batch.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// Windows splits the inclusive block range [from, to] into ranges of at most size blocks
func Windows(from, to, size uint64) [][2]uint64 {
	if from > to || size == 0 {
		return nil
	}
	windows := make([][2]uint64, 0)
	for start := from; ; start += size {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		windows = append(windows, [2]uint64{start, end})
		if end == to {
			break
		}
	}
	return windows
}
