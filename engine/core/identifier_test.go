package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTableReusesReleasedSlots(t *testing.T) {
	table := NewHandleTable[string](4)

	a := table.Acquire("a")
	b := table.Acquire("b")
	assert.Equal(t, uint32(1), a)
	assert.Equal(t, uint32(2), b)

	v, err := table.Release(a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, ok := table.Get(a)
	assert.False(t, ok)

	c := table.Acquire("c")
	assert.Equal(t, a, c)
	assert.Equal(t, 2, table.Len())

	got, ok := table.Get(c)
	require.True(t, ok)
	assert.Equal(t, "c", got)
}

func TestHandleTableRejectsInvalidIDs(t *testing.T) {
	table := NewHandleTable[int](0)
	_, err := table.Release(0)
	assert.True(t, errors.Is(err, ErrInvalidHandle))

	id := table.Acquire(7)
	_, err = table.Release(id)
	require.NoError(t, err)
	_, err = table.Release(id)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Nil(t, table.Ptr(id))
}

func TestHandleTableEachVisitsInIDOrder(t *testing.T) {
	table := NewHandleTable[int](0)
	for i := 0; i < 4; i++ {
		table.Acquire(i * 10)
	}
	_, err := table.Release(2)
	require.NoError(t, err)

	var ids []uint32
	table.Each(func(id uint32, v *int) {
		ids = append(ids, id)
		*v++
	})
	assert.Equal(t, []uint32{1, 3, 4}, ids)

	v, _ := table.Get(4)
	assert.Equal(t, 31, v)
}

func TestAssertPanicsWithAssertionError(t *testing.T) {
	assert.NotPanics(t, func() { Assert(true, "never") })

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*AssertionError)
		require.True(t, ok)
		assert.Equal(t, "pass 3 has two depth outputs", err.Msg)
	}()
	Assert(false, "pass %d has two depth outputs", 3)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	lvl, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLogLevel("chatty")
	assert.Error(t, err)
}
