package core

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemRejectsBadSizes(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestRunAllRunsEveryJob(t *testing.T) {
	js, err := NewJobSystem(3, 4)
	require.NoError(t, err)
	defer js.Shutdown()

	var ran, completed atomic.Int32
	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = Job{
			Name:       "count",
			Run:        func() error { ran.Add(1); return nil },
			OnComplete: func() { completed.Add(1) },
		}
	}
	require.NoError(t, js.RunAll(jobs...))
	assert.Equal(t, int32(10), ran.Load())
	assert.Equal(t, int32(10), completed.Load())
}

func TestRunAllReportsFailure(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	boom := errors.New("boom")
	var failed atomic.Bool
	err = js.RunAll(
		Job{Name: "ok", Run: func() error { return nil }},
		Job{Name: "bad", Run: func() error { return boom }, OnFailure: func(error) { failed.Store(true) }},
	)
	assert.ErrorIs(t, err, boom)
	assert.True(t, failed.Load())
}

func TestShutdownDrainsQueue(t *testing.T) {
	js, err := NewJobSystem(1, 8)
	require.NoError(t, err)

	var done atomic.Int32
	for i := 0; i < 8; i++ {
		js.Submit(Job{Name: "drain", Run: func() error { return nil }, OnDone: func() { done.Add(1) }})
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(8), done.Load())
	require.NoError(t, js.Shutdown())
}
