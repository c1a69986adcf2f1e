// Package worker runs a per-video function over a work list split into
// contiguous shards, one goroutine per shard.
package worker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/okian/bsn/pkg/logger"
	"github.com/okian/bsn/pkg/metrics"
)

// Metric reason labels assigned by the default classifier.
const (
	ReasonCancelled = "cancelled"
	ReasonPanic     = "panic"
	ReasonError     = "error"
)

// Func processes one item. Returning false for the second value records the
// item as done without contributing a result.
type Func[T any] func(ctx context.Context, item string) (T, bool, error)

// Shards splits items into n contiguous shards. The first n-1 shards get
// floor(len/n) items each and the last shard takes the remainder, so a short
// list lands entirely on the last shard. n < 1 is treated as 1.
func Shards(items []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	per := len(items) / n
	out := make([][]string, n)
	for i := 0; i < n-1; i++ {
		out[i] = items[i*per : (i+1)*per]
	}
	out[n-1] = items[(n-1)*per:]
	return out
}

// Pool dispatches a Func across shards and merges the per-shard results.
type Pool[T any] struct {
	shards int
	opts   options
}

// NewPool creates a pool with shardCount shards; values below 1 mean 1.
func NewPool[T any](shardCount int, opts ...Option) *Pool[T] {
	if shardCount < 1 {
		shardCount = 1
	}
	o := options{stage: "pool", reason: DefaultReason}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("worker-pool")
	}
	o.logger = o.logger.With(logger.String("stage", o.stage))
	return &Pool[T]{shards: shardCount, opts: o}
}

// Shards returns the configured shard count.
func (p *Pool[T]) Shards() int { return p.shards }

type shardResult[T any] struct {
	values map[string]T
	errs   []error
}

// Run applies fn to every item and returns the merged results of the items
// that succeeded. A failing item never stops its shard; every failure is
// wrapped in ErrVideoFailed and joined into the returned error. Once ctx is
// done the remaining items fail with the context error.
func (p *Pool[T]) Run(ctx context.Context, items []string, fn Func[T]) (map[string]T, error) {
	shards := Shards(items, p.shards)
	sizes := make([]int, len(shards))
	for i, s := range shards {
		sizes[i] = len(s)
	}
	metrics.UpdateShards(sizes)

	results := make([]shardResult[T], len(shards))
	var wg sync.WaitGroup
	for i, shard := range shards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.runShard(ctx, i, shard, fn)
		}()
	}
	wg.Wait()

	merged := make(map[string]T, len(items))
	var errs []error
	for _, r := range results {
		maps.Copy(merged, r.values)
		errs = append(errs, r.errs...)
	}
	return merged, errors.Join(errs...)
}

func (p *Pool[T]) runShard(ctx context.Context, id int, items []string, fn Func[T]) shardResult[T] {
	log := p.opts.logger.With(logger.String("shard", strconv.Itoa(id)))
	res := shardResult[T]{values: make(map[string]T, len(items))}
	if len(items) == 0 {
		return res
	}
	log.Debug(ctx, "shard started", logger.Int("videos", len(items)))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			res.errs = append(res.errs, p.fail(ctx, log, item, err))
			continue
		}

		start := time.Now()
		v, ok, err := call(ctx, item, fn)
		metrics.RecordVideoLatency(p.opts.stage, float64(time.Since(start).Milliseconds()))
		if err != nil {
			res.errs = append(res.errs, p.fail(ctx, log, item, err))
			continue
		}
		metrics.RecordVideoProcessed(p.opts.stage)
		if ok {
			res.values[item] = v
		}
	}

	log.Debug(ctx, "shard finished",
		logger.Int("videos", len(items)),
		logger.Int("failed", len(res.errs)),
	)
	return res
}

func (p *Pool[T]) fail(ctx context.Context, log logger.Logger, item string, err error) error {
	metrics.RecordVideoError(p.opts.stage, p.opts.reason(err))
	log.Error(ctx, "video failed", logger.String("video", item), logger.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrVideoFailed, item, err)
}

// call runs fn and turns a panic into an error for that item.
func call[T any](ctx context.Context, item string, fn Func[T]) (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx, item)
}

// DefaultReason separates cancellation and panics from ordinary failures.
func DefaultReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, ErrPanic):
		return ReasonPanic
	default:
		return ReasonError
	}
}
