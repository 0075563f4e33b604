package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	NotFounds   int32
	Unavailable int32
	Errors      int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.NotFounds + r.Unavailable + r.Errors
}

// RunConcurrent runs fn in goroutines that are released together from a
// start barrier, then buckets the results: success, not found, retryable
// infrastructure failure, or other error.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                sync.WaitGroup
		successes, notFounds, unavail, ee atomic.Int32
		start                             = make(chan struct{})
	)

	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				notFounds.Add(1)
			case dErrors.IsRetryable(err):
				unavail.Add(1)
			default:
				ee.Add(1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		NotFounds:   notFounds.Load(),
		Unavailable: unavail.Load(),
		Errors:      ee.Load(),
	}
}

// RunConcurrentCollect runs fn like RunConcurrent and returns every error for
// inspection beyond the standard buckets.
func RunConcurrentCollect(goroutines int, fn func(idx int) error) (successes int32, errs []error) {
	var mu sync.Mutex
	res := RunConcurrent(goroutines, func(idx int) error {
		err := fn(idx)
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		return err
	})
	return res.Successes, errs
}
