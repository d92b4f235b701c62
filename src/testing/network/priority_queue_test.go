package network

import (
	"container/heap"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPriorityQueue(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		ticks := rapid.SliceOf(rapid.Uint64Range(0, 20)).Draw(t, "ticks")

		queue := make(PriorityQueue, 0)
		expected := make([]*MessageToSend, 0, len(ticks))

		for i, tick := range ticks {
			message := &MessageToSend{CanBeDeliveredAtTick: tick, Sequence: uint64(i)}
			heap.Push(&queue, message)
			expected = append(expected, message)
		}

		sort.SliceStable(expected, func(i, j int) bool {
			return expected[i].CanBeDeliveredAtTick < expected[j].CanBeDeliveredAtTick
		})

		for _, message := range expected {
			head, ok := queue.Peek()
			assert.True(t, ok)
			assert.Equal(t, message, head)
			assert.Equal(t, message, heap.Pop(&queue))
		}

		_, ok := queue.Peek()
		assert.False(t, ok)
	})
}
