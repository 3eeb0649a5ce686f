// Package ringcache keeps the most recent N values of a stream.
package ringcache

import "sync"

// RingCache is a fixed size FIFO that overwrites its oldest entry when full.
type RingCache[T any] struct {
	items    []T
	capacity int
	head     int
	tail     int
	size     int
	mu       sync.Mutex
}

// NewRingCache creates a cache holding at most capacity items. A capacity
// below 1 is raised to 1.
func NewRingCache[T any](capacity int) *RingCache[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingCache[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Put appends val. When the cache is full the oldest value is dropped and
// returned.
func (c *RingCache[T]) Put(val T) (overWritten T, drop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size >= c.capacity {
		drop = true
		overWritten = c.items[c.head]
		c.items[c.head] = val
		c.head = (c.head + 1) % c.capacity
		c.tail = (c.tail + 1) % c.capacity
		return
	}
	c.items[c.tail] = val
	c.tail = (c.tail + 1) % c.capacity
	c.size++
	return
}

// Get pops the oldest value.
func (c *RingCache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.size == 0 {
		return zero, false
	}

	res := c.items[c.head]
	c.items[c.head] = zero
	c.head = (c.head + 1) % c.capacity
	c.size--
	return res, true
}

// Snapshot copies the cached values, oldest first, without consuming them.
func (c *RingCache[T]) Snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.items[(c.head+i)%c.capacity])
	}
	return out
}

// Len returns the number of cached values.
func (c *RingCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Cap returns the capacity.
func (c *RingCache[T]) Cap() int {
	return c.capacity
}
