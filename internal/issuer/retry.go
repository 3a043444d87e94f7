package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

// Issuer is anything that can issue a posting token.
type Issuer interface {
	Issue(ctx context.Context) (model.PostingToken, error)
}

// Retrying retries retryable issuance failures with exponential backoff.
// Non-retryable errors (bad session, invalid input) return immediately.
type Retrying struct {
	next     Issuer
	attempts uint64
	base     time.Duration
}

// WithRetry wraps next; attempts is the number of retries after the first call.
func WithRetry(next Issuer, attempts uint64, base time.Duration) *Retrying {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &Retrying{next: next, attempts: attempts, base: base}
}

// Issue calls the wrapped issuer until success, a non-retryable error, or the
// retry budget or ctx runs out.
func (r *Retrying) Issue(ctx context.Context) (model.PostingToken, error) {
	var tok model.PostingToken
	b := retry.WithMaxRetries(r.attempts, retry.WithJitterPercent(10, retry.NewExponential(r.base)))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		t, err := r.next.Issue(ctx)
		if err != nil {
			if errs.Retryable(err) && ctx.Err() == nil {
				return retry.RetryableError(err)
			}
			return err
		}
		tok = t
		return nil
	})
	if err != nil {
		return model.PostingToken{}, fmt.Errorf("issue with retry: %w", errs.FromContext(err))
	}
	return tok, nil
}
