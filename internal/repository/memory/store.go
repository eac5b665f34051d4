// Package memory is an in-process storage driver. It backs tests and the
// STORAGE_DRIVER=memory mode and gives the same atomicity guarantees as the
// Postgres driver for a single process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/repository"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"github.com/shopspring/decimal"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu        sync.RWMutex
	profiles  map[string]models.Profile
	usernames map[string]string
	roles     map[string]string
	entries   map[string][]models.LedgerEntry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		profiles:  make(map[string]models.Profile),
		usernames: make(map[string]string),
		roles:     make(map[string]string),
		entries:   make(map[string][]models.LedgerEntry),
		locks:     make(map[string]*sync.Mutex),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetRawRole writes a role value without validation. Tests use it to model
// malformed data left by other writers.
func (s *Store) SetRawRole(accountID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[accountID] = role
}

func (s *Store) accountLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) Create(ctx context.Context, p *models.Profile, role models.Role) error {
	if err := ctx.Err(); err != nil {
		return models.StoreError("create profile", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernames[p.Username]; ok {
		return models.ErrDuplicateUsername
	}
	if _, ok := s.profiles[p.ID]; ok {
		return fmt.Errorf("%w: profile %s already exists", models.ErrConflict, p.ID)
	}
	s.profiles[p.ID] = *p
	s.usernames[p.Username] = p.ID
	s.roles[p.ID] = string(role)
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("get profile", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, id)
	}
	return &p, nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, models.StoreError("check username", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.usernames[username]
	return ok, nil
}

func (s *Store) Update(ctx context.Context, id string, upd models.ProfileUpdate) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("update profile", err)
	}
	l := s.accountLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, id)
	}
	oldUsername := p.Username
	upd.Apply(&p)
	if p.Username != oldUsername {
		if owner, taken := s.usernames[p.Username]; taken && owner != id {
			return nil, models.ErrDuplicateUsername
		}
		delete(s.usernames, oldUsername)
		s.usernames[p.Username] = id
	}
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	return &p, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("update status", err)
	}
	l := s.accountLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, id)
	}
	if p.Status != from {
		return nil, fmt.Errorf("%w: profile %s is %s", models.ErrInvalidTransition, id, p.Status)
	}
	p.Status = to
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	return &p, nil
}

func (s *Store) List(ctx context.Context) ([]models.ProfileView, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("list profiles", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]models.ProfileView, 0, len(s.profiles))
	for id, p := range s.profiles {
		role := models.RoleUser
		if roles.IsAdmin(s.roles[id]) {
			role = models.RoleAdmin
		}
		views = append(views, models.ProfileView{Profile: p, Role: role})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views, nil
}

func (s *Store) AssignRole(ctx context.Context, accountID string, role models.Role) error {
	if err := ctx.Err(); err != nil {
		return models.StoreError("assign role", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[accountID]; !ok {
		return fmt.Errorf("%w: profile %s", models.ErrNotFound, accountID)
	}
	s.roles[accountID] = string(role)
	return nil
}

func (s *Store) GetRole(ctx context.Context, accountID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", models.StoreError("get role", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[accountID], nil
}

func (s *Store) ListEntries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.StoreError("list entries", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.profiles[accountID]; !ok {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, accountID)
	}
	out := make([]models.LedgerEntry, len(s.entries[accountID]))
	copy(out, s.entries[accountID])
	return out, nil
}

func (s *Store) OutgoingSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, models.StoreError("sum outgoing", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumOutgoing(s.entries[accountID], since), nil
}

func sumOutgoing(entries []models.LedgerEntry, since time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Direction == models.DirectionDebit && e.Actor == models.ActorSelf && !e.CreatedAt.Before(since) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// WithAccount runs fn while holding the account's lock. Appends are staged
// on the transaction and only become visible if fn returns nil.
func (s *Store) WithAccount(ctx context.Context, accountID string, fn func(ctx context.Context, tx ledger.AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return models.StoreError("lock account", err)
	}
	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	p, ok := s.profiles[accountID]
	entries := make([]models.LedgerEntry, len(s.entries[accountID]))
	copy(entries, s.entries[accountID])
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: profile %s", models.ErrNotFound, accountID)
	}

	tx := &accountTx{profile: p, entries: entries}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.staged == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return models.StoreError("commit entry", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.profiles[accountID]
	p.Balance = tx.staged.BalanceAfter
	p.UpdatedAt = tx.staged.CreatedAt
	s.profiles[accountID] = p
	s.entries[accountID] = append(s.entries[accountID], *tx.staged)
	return nil
}

type accountTx struct {
	profile models.Profile
	entries []models.LedgerEntry
	staged  *models.LedgerEntry
}

func (t *accountTx) Profile() models.Profile { return t.profile }

func (t *accountTx) OutgoingSince(_ context.Context, since time.Time) (decimal.Decimal, error) {
	return sumOutgoing(t.entries, since), nil
}

func (t *accountTx) EntryByIdempotencyKey(_ context.Context, key string) (*models.LedgerEntry, error) {
	for i := range t.entries {
		if t.entries[i].IdempotencyKey == key {
			e := t.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (t *accountTx) Append(_ context.Context, entry *models.LedgerEntry) error {
	if t.staged != nil {
		return fmt.Errorf("%w: one entry per unit", models.ErrState)
	}
	if entry.BalanceAfter.IsNegative() {
		return models.ErrInsufficientBalance
	}
	t.staged = entry
	return nil
}
