package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidVoucher   = errors.New("invalid or expired voucher")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrRequestInFlight  = errors.New("request with this idempotency key is in progress")
	ErrCodeExhausted    = errors.New("could not allocate a unique voucher code")

	ErrIdempotencyKeyReused = errors.New("idempotency key was used for a different request")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrPhoneTaken         = errors.New("phone number already registered")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// unavailable tags an unexpected store error. Cancellation passes through
// untouched so handlers can tell a client hang-up from an outage.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
