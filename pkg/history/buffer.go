// Package history provides the bounded append-only buffers used for alert,
// health and deployment-attempt history.
package history

import "sync"

// Buffer is a fixed-capacity ring buffer that evicts the oldest item on overflow.
// It is safe for concurrent use.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	start    int
	size     int
	capacity int
}

// New creates a buffer holding at most capacity items. A non-positive capacity is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds item, evicting the oldest entry when the buffer is full.
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < b.capacity {
		b.items[(b.start+b.size)%b.capacity] = item
		b.size++
		return
	}

	b.items[b.start] = item
	b.start = (b.start + 1) % b.capacity
}

// Items returns a copy of the buffered items, oldest first.
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(b.start+i)%b.capacity])
	}
	return out
}

// Last returns the most recent n items, oldest first.
func (b *Buffer[T]) Last(n int) []T {
	items := b.Items()
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

// Latest returns the newest item.
func (b *Buffer[T]) Latest() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.start+b.size-1)%b.capacity], true
}

func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer[T]) Cap() int {
	return b.capacity
}
