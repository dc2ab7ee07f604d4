package archiver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker captures a single page. It is expected to apply its own retries.
type Worker func(ctx context.Context, page PageDescriptor) (Success, error)

// Pool fans pages out to a bounded number of concurrent workers.
type Pool struct {
	limit  int
	logger *zap.Logger
}

// NewPool returns a pool that runs at most limit workers at a time.
func NewPool(limit int, logger *zap.Logger) *Pool {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{limit: limit, logger: logger}
}

// Run dispatches pages in slice order and blocks until every page has a
// terminal outcome. A failing page never stops the others. Pages that have
// not started when ctx is cancelled are recorded as failures with the
// context error.
func (p *Pool) Run(ctx context.Context, pages []PageDescriptor, worker Worker) RunResult {
	var (
		mu     sync.Mutex
		result RunResult
	)
	record := func(page PageDescriptor, success Success, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failures = append(result.Failures, Failure{Page: page, Err: err})
			return
		}
		result.Successes = append(result.Successes, success)
	}

	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			record(page, Success{}, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(page, Success{}, err)
				return nil
			}
			success, err := p.invoke(ctx, page, worker)
			record(page, success, err)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(result.Successes, func(i, j int) bool {
		return result.Successes[i].Page.Index < result.Successes[j].Page.Index
	})
	sort.SliceStable(result.Failures, func(i, j int) bool {
		return result.Failures[i].Page.Index < result.Failures[j].Page.Index
	})
	return result
}

func (p *Pool) invoke(ctx context.Context, page PageDescriptor, worker Worker) (success Success, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("page worker panicked", zap.Int("index", page.Index), zap.Any("panic", r))
			success = Success{}
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return worker(ctx, page)
}
