// Package directory is the identity provider: it owns credentials and
// sessions, and issues the account id every other record is keyed by.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/utils"
	"github.com/google/uuid"
)

const minPasswordLength = 8

// Identity is a credential record. PasswordHash never leaves this package's
// callers through the HTTP layer.
type Identity struct {
	AccountID    string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// IdentityStore persists identities. Insert fails with ErrDuplicateEmail when
// the email is taken; GetByEmail fails with ErrNotFound.
type IdentityStore interface {
	Insert(ctx context.Context, id *Identity) error
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	Delete(ctx context.Context, accountID string) error
}

type Service struct {
	store IdentityStore
	now   func() time.Time
}

func NewService(store IdentityStore) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a new identity and returns it with a fresh account id.
func (s *Service) Create(ctx context.Context, email, password string) (*Identity, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email", models.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, minPasswordLength)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id := &Identity{
		AccountID:    uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.store.Insert(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Authenticate returns ErrInvalidCredentials for both an unknown email and a
// wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	id, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, id.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}
	return id, nil
}

// Remove deletes an identity whose profile could not be created.
func (s *Service) Remove(ctx context.Context, accountID string) error {
	return s.store.Delete(ctx, accountID)
}
