// Package queueing provides the unbounded FIFO that decouples message arrival
// from clock-cycle consumption.
package queueing

import "sync"

// A Buffer is an unbounded fifo queue. Any number of goroutines may push;
// popping is meant for a single consumer. Push never blocks and never fails.
type Buffer[T any] struct {
	lock     sync.Mutex
	name     string
	elements []T
	head     int
}

// NewBuffer creates an empty buffer.
func NewBuffer[T any](name string) *Buffer[T] {
	return &Buffer[T]{name: name}
}

// Name returns the name of the buffer.
func (b *Buffer[T]) Name() string {
	return b.name
}

// Push appends an element to the tail of the buffer.
func (b *Buffer[T]) Push(e T) {
	b.lock.Lock()
	b.elements = append(b.elements, e)
	b.lock.Unlock()
}

// TryPop removes and returns the head element. The second return value is
// false when the buffer is empty.
func (b *Buffer[T]) TryPop() (T, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	var zero T
	if b.head == len(b.elements) {
		return zero, false
	}

	e := b.elements[b.head]
	b.elements[b.head] = zero
	b.head++

	b.compact()

	return e, true
}

// Peek returns the head element without removing it.
func (b *Buffer[T]) Peek() (T, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.head == len(b.elements) {
		var zero T
		return zero, false
	}

	return b.elements[b.head], true
}

// Size returns the number of buffered elements at the time of the call.
func (b *Buffer[T]) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.elements) - b.head
}

// Clear removes all elements in the buffer.
func (b *Buffer[T]) Clear() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.elements = nil
	b.head = 0
}

// compact releases the consumed prefix once it dominates the backing array.
func (b *Buffer[T]) compact() {
	if b.head == len(b.elements) {
		b.elements = b.elements[:0]
		b.head = 0

		return
	}

	if b.head < 64 || b.head*2 < len(b.elements) {
		return
	}

	remaining := len(b.elements) - b.head
	copy(b.elements, b.elements[b.head:])

	var zero T
	for i := remaining; i < len(b.elements); i++ {
		b.elements[i] = zero
	}

	b.elements = b.elements[:remaining]
	b.head = 0
}
