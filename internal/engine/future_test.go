package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureLifecycle(t *testing.T) {
	f := NewFuture("t1", []string{"a", "b", "a"})
	assert.False(t, f.Started())
	assert.False(t, f.Finished())
	require.Len(t, f.Outputs(), 2)

	f.Start()
	assert.True(t, f.Started())
	assert.True(t, f.Outputs()["a"].Started())

	f.Complete("ok", nil)
	f.Complete("ignored", errors.New("late"))

	v, err := f.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.True(t, f.Outputs()["b"].Finished())
}

func TestFutureOutputsCarryError(t *testing.T) {
	f := NewFuture("t1", []string{"out"})
	f.Complete(nil, &TaskError{Kind: ErrMissingOutputs, TaskID: "t1", Missing: []string{"out"}})

	_, err := f.Outputs()["out"].Result(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingOutputs)
	assert.NotErrorIs(t, err, ErrExecutionFailed)
}

func TestFutureResultHonoursContext(t *testing.T) {
	f := NewFuture("t1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Result(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFutureResultPrefersResolvedOverCancelledContext(t *testing.T) {
	ok := NewFuture("ok", nil)
	ok.Complete("v", nil)
	failed := NewFuture("failed", nil)
	failed.Complete(nil, &TaskError{Kind: ErrExecutionFailed, TaskID: "failed"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		v, err := ok.Result(ctx)
		require.NoError(t, err)
		assert.Equal(t, "v", v)

		_, err = failed.Result(ctx)
		assert.ErrorIs(t, err, ErrExecutionFailed)
	}
}

func TestTaskErrorMessage(t *testing.T) {
	err := &TaskError{Kind: ErrExecutionFailed, TaskID: "bwa_0", Reason: "exit status 3"}
	assert.Equal(t, "task bwa_0: execution failed: exit status 3", err.Error())

	wrapped := &TaskError{Kind: ErrBackend, TaskID: "x", Err: errors.New("boom")}
	assert.ErrorIs(t, wrapped, ErrBackend)
	assert.Equal(t, "boom", errors.Unwrap(wrapped).Error())
}
