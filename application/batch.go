package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"frq-generator/domain"
)

// Outcome is what the dispatcher should do with a processed message.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	// OutcomeSkipped is a duplicate delivery with nothing left to do.
	OutcomeSkipped
	// OutcomeRetry asks for redelivery later.
	OutcomeRetry
	// OutcomeFailed is terminal; redelivery cannot help.
	OutcomeFailed
	// OutcomeWait means another run has to finish first; redeliver after it had time to.
	OutcomeWait
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	case OutcomeWait:
		return "wait"
	default:
		return "unknown"
	}
}

// Result is the per-message report of RunBatch, in input order.
type Result struct {
	Index   int
	Outcome Outcome
	Err     error
}

// Classify maps a workflow error to a dispatcher outcome. Unknown errors are treated as
// transient store or transport failures.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return OutcomeSkipped
	case errors.Is(err, domain.ErrInFlight),
		errors.Is(err, domain.ErrNotReady):
		return OutcomeWait
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrGenerationFailed),
		errors.Is(err, domain.ErrQualityGateExhausted),
		errors.Is(err, domain.ErrInvalidRequest):
		return OutcomeFailed
	default:
		return OutcomeRetry
	}
}

// RunBatch runs fn for every item with at most limit in flight, each under its own timeout.
// A failing or panicking item never affects its siblings.
func RunBatch[T any](ctx context.Context, items []T, limit int, timeout time.Duration, fn func(context.Context, T) error) []Result {
	results := make([]Result, len(items))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			err := runOne(ctx, item, timeout, fn)
			results[i] = Result{Index: i, Outcome: Classify(err), Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runOne[T any](ctx context.Context, item T, timeout time.Duration, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrInvalidRequest, r)
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, item)
}
