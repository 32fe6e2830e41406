package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout is the hard limit for a single evaluation unless
// WithTimeout says otherwise.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when an evaluation runs past its limit.
	ErrTimeout = errors.New("evaluation timed out")
	// ErrSuperseded is returned when a newer evaluation started before this
	// one finished.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

// evalResult passes an evaluation's output back from its goroutine.
type evalResult struct {
	res EvalResult
	err error
}

// waitWithTimeout waits for a result from ch, but gives up after timeout. It
// uses a generation counter to discard stale results from previous
// evaluations.
//
// On timeout the goroutine may still be running; it owns its scene, and the
// generation check discards its result when it eventually completes.
func waitWithTimeout(
	ch <-chan evalResult,
	gen uint64,
	timeout time.Duration,
	mu *sync.Mutex,
	currentGen *uint64,
) (EvalResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()

		if gen != current {
			return EvalResult{}, ErrSuperseded
		}
		return r.res, r.err

	case <-timer.C:
		return EvalResult{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
