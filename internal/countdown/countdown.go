// Package countdown renders the time left on an access session.
package countdown

import (
	"context"
	"fmt"
	"time"
)

const Expired = "Session expired"

// Format renders d as "2d 3h 15m" when at least a day remains and "3h 15m"
// otherwise. Minutes are truncated.
func Format(d time.Duration) string {
	if d <= 0 {
		return Expired
	}
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

type Tick struct {
	Remaining time.Duration
	Text      string
	Expired   bool
}

func At(expiry, now time.Time) Tick {
	remaining := expiry.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Tick{Remaining: remaining, Text: Format(remaining), Expired: remaining == 0}
}

// Run emits a tick immediately and then every period until ctx is done or the
// session has expired. The final expired tick is always emitted. Run returns
// ctx.Err() when cancelled and nil when the session ran out.
func Run(ctx context.Context, expiry time.Time, period time.Duration, now func() time.Time, emit func(Tick) error) error {
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		tick := At(expiry, now())
		if err := emit(tick); err != nil {
			return err
		}
		if tick.Expired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
