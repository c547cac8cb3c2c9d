// Package batch applies a per-item operation across a list of entities with
// chunked concurrency and independent failure isolation.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
)

const DefaultChunkSize = 10

type Options struct {
	// ChunkSize bounds how many operations run concurrently. Chunks are
	// processed one after another to cap load on the data store.
	ChunkSize int
	// OnProgress is invoked once per completed chunk with the strictly
	// increasing number of processed items.
	OnProgress func(processed, total int)
}

type Failure[T comparable] struct {
	Item  T      `json:"item"`
	Error string `json:"error"`
}

type Result[T comparable] struct {
	Success        []T          `json:"success"`
	Failed         []Failure[T] `json:"failed"`
	TotalProcessed int          `json:"total_processed"`
}

// Process runs op over items. A failing item is recorded and never prevents
// other items, in the same or later chunks, from being attempted. No retries
// are performed; interpreting Failed entries is the caller's concern.
func Process[T comparable](ctx context.Context, items []T, op func(context.Context, T) error, opts Options) Result[T] {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	result := Result[T]{
		Success: make([]T, 0, len(items)),
		Failed:  make([]Failure[T], 0),
	}

	var mu sync.Mutex
	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}

		var wg conc.WaitGroup
		for _, item := range items[start:end] {
			item := item
			wg.Go(func() {
				err := runOne(ctx, item, op)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed = append(result.Failed, Failure[T]{Item: item, Error: err.Error()})
					return
				}
				result.Success = append(result.Success, item)
			})
		}
		wg.Wait()

		result.TotalProcessed = end
		if opts.OnProgress != nil {
			opts.OnProgress(end, len(items))
		}
	}
	return result
}

func runOne[T comparable](ctx context.Context, item T, op func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx, item)
}
