package containers

import (
	"testing"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueWrapsAround(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.True(t, q.IsFull())
	assert.ErrorIs(t, q.Enqueue(4), core.ErrQueueFull)

	v, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, q.Enqueue(4))
	var out []int
	for !q.IsEmpty() {
		v, err := q.Dequeue()
		require.NoError(t, err)
		out = append(out, v)
	}
	assert.Equal(t, []int{2, 3, 4}, out)

	_, err = q.Peek()
	assert.ErrorIs(t, err, core.ErrQueueEmpty)
}
