package usecase

import (
	"context"
	"errors"

	"github.com/runoshun/capsule/internal/domain"
)

// RetryOnConflict runs fn until it succeeds, fails with something other than
// domain.ErrConflict, or attempts runs out. Each run is a complete use case
// execution, so no partial state carries over. onRetry, when set, is called
// before every re-run.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error, onRetry func(attempt int)) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if onRetry != nil {
				onRetry(attempt)
			}
		}
		err = fn()
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	return err
}
