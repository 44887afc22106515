package service

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"wifiportal/internal/repository"
)

const (
	readRetries = 3
	readBackoff = 50 * time.Millisecond
)

// withReadRetry retries fn on transient store errors. Only use it for reads.
func withReadRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(readRetries, retry.NewExponential(readBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if repository.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
