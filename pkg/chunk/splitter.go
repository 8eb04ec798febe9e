package chunk

// Chunk is one slice of the input handed to a Handler.
type Chunk[T any] struct {
	Index int
	Total int
	Items []T
}

// IsFinal reports whether this is the last chunk of the run.
func (c Chunk[T]) IsFinal() bool {
	return c.Index == c.Total-1
}

// Split divides items into consecutive chunks of at most size items,
// preserving order. A non-positive size yields a single chunk.
func Split[T any](items []T, size int) []Chunk[T] {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size > len(items) {
		size = len(items)
	}

	total := (len(items) + size - 1) / size
	chunks := make([]Chunk[T], 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := min(start+size, len(items))
		chunks = append(chunks, Chunk[T]{
			Index: i,
			Total: total,
			Items: items[start:end:end],
		})
	}
	return chunks
}
