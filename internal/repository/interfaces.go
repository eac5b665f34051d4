package repository

import (
	"context"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"github.com/shopspring/decimal"
)

// ProfileStore is the write model for profiles.
type ProfileStore interface {
	// Create stores p together with its initial role in one unit.
	Create(ctx context.Context, p *models.Profile, role models.Role) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, id string, upd models.ProfileUpdate) (*models.Profile, error)
	// UpdateStatus moves the profile to `to` only if it is still in `from`.
	UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Profile, error)
	List(ctx context.Context) ([]models.ProfileView, error)
}

// LedgerStore owns balances and the append-only entry log.
type LedgerStore interface {
	ledger.Locker
	ListEntries(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
	// OutgoingSince sums self-initiated debits for accountID at or after since.
	OutgoingSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error)
}

// Store is everything a storage driver provides.
type Store interface {
	ProfileStore
	roles.Store
	LedgerStore
}

type accountUsage struct {
	store     LedgerStore
	accountID string
}

func (u accountUsage) OutgoingSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return u.store.OutgoingSince(ctx, u.accountID, since)
}

// AccountUsage binds a LedgerStore to one account for read-only limit reporting.
func AccountUsage(store LedgerStore, accountID string) limits.UsageSource {
	return accountUsage{store: store, accountID: accountID}
}
