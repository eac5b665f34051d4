// Package ledger applies credits and debits to a profile balance.
//
// Every mutation runs inside Locker.WithAccount, which gives the caller
// exclusive access to one account until it returns: the balance read, the
// limit check, the ledger append and the balance write commit together or
// not at all. Different accounts never share a lock.
package ledger

import (
	"context"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/utils"
	"github.com/shopspring/decimal"
)

// AccountTx is a view of one locked account inside an atomic unit.
type AccountTx interface {
	// Profile returns the profile as read under the lock.
	Profile() models.Profile
	// OutgoingSince sums self-initiated debits committed at or after since.
	OutgoingSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	// EntryByIdempotencyKey returns nil, nil when no entry carries key.
	EntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	// Append records entry and sets the balance to entry.BalanceAfter.
	Append(ctx context.Context, entry *models.LedgerEntry) error
}

// Locker serializes work per account. If fn returns an error nothing it did
// is kept.
type Locker interface {
	WithAccount(ctx context.Context, accountID string, fn func(ctx context.Context, tx AccountTx) error) error
}

// Mutation is a request to move money in or out of one account.
type Mutation struct {
	AccountID      string
	Amount         decimal.Decimal
	Direction      models.Direction
	Actor          models.Actor
	ActorID        string
	IdempotencyKey string
}

// Result is the committed entry. Replayed is set when the idempotency key
// matched an earlier entry and nothing new was applied.
type Result struct {
	Entry    *models.LedgerEntry
	Replayed bool
}

type Ledger struct {
	locker   Locker
	enforcer *limits.Enforcer
	now      func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the time source used for entry timestamps and limit windows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(locker Locker, enforcer *limits.Enforcer, opts ...Option) *Ledger {
	l := &Ledger{
		locker:   locker,
		enforcer: enforcer,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply validates and commits m. Admin-initiated mutations bypass limits.
func (l *Ledger) Apply(ctx context.Context, m Mutation) (*Result, error) {
	if !m.Amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if !m.Direction.Valid() {
		return nil, models.ErrInvalidDirection
	}
	if !m.Actor.Valid() {
		return nil, models.ErrMissingField
	}

	var result *Result
	err := l.locker.WithAccount(ctx, m.AccountID, func(ctx context.Context, tx AccountTx) error {
		if m.IdempotencyKey != "" {
			prior, err := tx.EntryByIdempotencyKey(ctx, m.IdempotencyKey)
			if err != nil {
				return err
			}
			if prior != nil {
				if !sameRequest(prior, m) {
					return models.ErrIdempotencyConflict
				}
				result = &Result{Entry: prior, Replayed: true}
				return nil
			}
		}

		p := tx.Profile()
		if p.Status != models.StatusApproved {
			return models.ErrAccountNotActive
		}

		now := l.now()
		newBalance := p.Balance.Add(m.Amount)
		if m.Direction == models.DirectionDebit {
			if m.Amount.GreaterThan(p.Balance) {
				return &models.InsufficientBalanceError{Balance: p.Balance, Requested: m.Amount}
			}
			if m.Actor == models.ActorSelf {
				if err := l.enforcer.CheckAndReserve(ctx, tx, p.Limits, m.Amount, now); err != nil {
					return err
				}
			}
			newBalance = p.Balance.Sub(m.Amount)
		}

		entry := &models.LedgerEntry{
			ID:             utils.GenerateID("led"),
			AccountID:      m.AccountID,
			Amount:         m.Amount,
			Direction:      m.Direction,
			Actor:          m.Actor,
			ActorID:        m.ActorID,
			BalanceAfter:   newBalance,
			IdempotencyKey: m.IdempotencyKey,
			CreatedAt:      now,
		}
		if err := tx.Append(ctx, entry); err != nil {
			return err
		}
		result = &Result{Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func sameRequest(e *models.LedgerEntry, m Mutation) bool {
	return e.Amount.Equal(m.Amount) && e.Direction == m.Direction && e.Actor == m.Actor
}
