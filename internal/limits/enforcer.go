package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/shopspring/decimal"
)

// UsageSource sums committed, limit-governed outgoing amounts for one account.
type UsageSource interface {
	OutgoingSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// LimitExceededError names the window whose cap a transfer would break.
type LimitExceededError struct {
	Window    Window
	Limit     decimal.Decimal
	Used      decimal.Decimal
	Requested decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: used %s + requested %s > limit %s",
		e.Window, e.Used, e.Requested, e.Limit)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == models.ErrLimitExceeded || target == models.ErrBusinessRule
}

// Enforcer validates self-initiated debits against the account's caps.
type Enforcer struct{}

func NewEnforcer() *Enforcer {
	return &Enforcer{}
}

// CheckAndReserve fails with *LimitExceededError when amount would push any
// capped window over its limit. The caller must hold the account's ledger lock
// and commit in the same unit, which is what makes the check a reservation.
func (e *Enforcer) CheckAndReserve(ctx context.Context, src UsageSource, l models.Limits, amount decimal.Decimal, now time.Time) error {
	for _, w := range Windows {
		limit := w.Cap(l)
		if limit == nil {
			continue
		}
		used, err := src.OutgoingSince(ctx, w.Start(now))
		if err != nil {
			return err
		}
		if used.Add(amount).GreaterThan(*limit) {
			return &LimitExceededError{Window: w, Limit: *limit, Used: used, Requested: amount}
		}
	}
	return nil
}

// Usage reports consumption of every window, capped or not.
func (e *Enforcer) Usage(ctx context.Context, src UsageSource, l models.Limits, now time.Time) ([]models.WindowUsage, error) {
	out := make([]models.WindowUsage, 0, len(Windows))
	for _, w := range Windows {
		start := w.Start(now)
		used, err := src.OutgoingSince(ctx, start)
		if err != nil {
			return nil, err
		}
		u := models.WindowUsage{Window: string(w), WindowStart: start, Used: used}
		if limit := w.Cap(l); limit != nil {
			lim := *limit
			remaining := decimal.Max(lim.Sub(used), decimal.Zero)
			u.Limit = &lim
			u.Remaining = &remaining
		}
		out = append(out, u)
	}
	return out, nil
}
