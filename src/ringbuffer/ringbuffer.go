package ringbuffer

import (
	"errors"
	"fmt"
)

var (
	ErrRingFull = errors.New("the ring buffer is full")
)

// RingBuffer is a bounded FIFO queue. Transports use it as the per-endpoint
// receive queue: a full ring is how backpressure is signaled to the sender.
type RingBuffer[T any] struct {
	head  int
	tail  int
	size  int
	items []T
}

func New[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be greater than 0: capacity=%d", capacity)
	}

	return &RingBuffer[T]{
		items: make([]T, capacity),
	}, nil
}

func (ring *RingBuffer[T]) Len() int {
	return ring.size
}

func (ring *RingBuffer[T]) Cap() int {
	return len(ring.items)
}

func (ring *RingBuffer[T]) IsFull() bool {
	return ring.size == len(ring.items)
}

func (ring *RingBuffer[T]) IsEmpty() bool {
	return ring.size == 0
}

func (ring *RingBuffer[T]) Push(value T) error {
	if ring.IsFull() {
		return ErrRingFull
	}

	ring.items[ring.tail] = value
	ring.tail = (ring.tail + 1) % len(ring.items)
	ring.size++

	return nil
}

// Returns the oldest value without removing it.
func (ring *RingBuffer[T]) Peek() (T, bool) {
	if ring.IsEmpty() {
		var zeroValue T
		return zeroValue, false
	}

	return ring.items[ring.head], true
}

func (ring *RingBuffer[T]) Pop() (T, bool) {
	var zeroValue T

	if ring.IsEmpty() {
		return zeroValue, false
	}

	value := ring.items[ring.head]
	// Drop the reference so popped payloads can be collected.
	ring.items[ring.head] = zeroValue
	ring.head = (ring.head + 1) % len(ring.items)
	ring.size--

	return value, true
}
