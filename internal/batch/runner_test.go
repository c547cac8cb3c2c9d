package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessIsolatesFailures(t *testing.T) {
	op := func(_ context.Context, id string) error {
		if id == "b" {
			return errors.New("boom")
		}
		return nil
	}

	result := Process(context.Background(), []string{"a", "b", "c"}, op, Options{})

	assert.ElementsMatch(t, []string{"a", "c"}, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "b", result.Failed[0].Item)
	assert.Equal(t, "boom", result.Failed[0].Error)
	assert.Equal(t, 3, result.TotalProcessed)
}

func TestProcessReportsProgressPerChunk(t *testing.T) {
	var progress []int
	opts := Options{
		ChunkSize: 2,
		OnProgress: func(processed, total int) {
			assert.Equal(t, 5, total)
			progress = append(progress, processed)
		},
	}

	result := Process(context.Background(), []int{1, 2, 3, 4, 5}, func(context.Context, int) error { return nil }, opts)

	assert.Equal(t, []int{2, 4, 5}, progress)
	assert.Equal(t, 5, result.TotalProcessed)
	assert.Len(t, result.Success, 5)
}

func TestProcessLaterChunksRunAfterFailure(t *testing.T) {
	op := func(_ context.Context, id int) error {
		if id == 1 {
			return errors.New("first chunk fails")
		}
		return nil
	}

	result := Process(context.Background(), []int{1, 2, 3, 4}, op, Options{ChunkSize: 1})

	assert.Equal(t, []int{2, 3, 4}, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 4, result.TotalProcessed)
}

func TestProcessRecoversPanics(t *testing.T) {
	op := func(_ context.Context, id string) error {
		if id == "x" {
			panic("unexpected state")
		}
		return nil
	}

	result := Process(context.Background(), []string{"x", "y"}, op, Options{})

	assert.ElementsMatch(t, []string{"y"}, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Error, "unexpected state")
}

func TestProcessEmptyInput(t *testing.T) {
	called := false
	result := Process(context.Background(), nil, func(context.Context, string) error { return nil }, Options{
		OnProgress: func(int, int) { called = true },
	})

	assert.Empty(t, result.Success)
	assert.Empty(t, result.Failed)
	assert.Zero(t, result.TotalProcessed)
	assert.False(t, called)
}
