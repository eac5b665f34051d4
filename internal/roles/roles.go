package roles

import (
	"context"
	"fmt"

	"github.com/LazarusTes/auth-portal-express/internal/models"
)

// Store persists one role string per account.
// Get returns "" and no error when the account has no role record.
type Store interface {
	AssignRole(ctx context.Context, accountID string, role models.Role) error
	GetRole(ctx context.Context, accountID string) (string, error)
}

// IsAdmin is the single authorization predicate: an exact, case-sensitive
// match against "admin". Anything else, including empty or malformed data,
// is not an admin.
func IsAdmin(role string) bool {
	return role == string(models.RoleAdmin)
}

// Assigner owns the account → role mapping and the admin check performed
// before every privileged operation.
type Assigner struct {
	store Store
}

func NewAssigner(store Store) *Assigner {
	return &Assigner{store: store}
}

// Assign upserts the role for an account. Repeating the same call is a no-op.
func (a *Assigner) Assign(ctx context.Context, accountID string, role models.Role) error {
	if !role.Valid() {
		return models.ErrInvalidRole
	}
	return a.store.AssignRole(ctx, accountID, role)
}

// RoleOf returns the account's role, defaulting to user when no record
// exists or the stored value is not a known role.
func (a *Assigner) RoleOf(ctx context.Context, accountID string) (models.Role, error) {
	raw, err := a.store.GetRole(ctx, accountID)
	if err != nil {
		return "", err
	}
	if IsAdmin(raw) {
		return models.RoleAdmin, nil
	}
	return models.RoleUser, nil
}

// Authorize fails with ErrForbidden unless actorID holds the admin role.
func (a *Assigner) Authorize(ctx context.Context, actorID string) error {
	if actorID == "" {
		return models.ErrForbidden
	}
	raw, err := a.store.GetRole(ctx, actorID)
	if err != nil {
		return err
	}
	if !IsAdmin(raw) {
		return fmt.Errorf("%w: account %s is not an administrator", models.ErrForbidden, actorID)
	}
	return nil
}

// AuthorizeOwnerOrAdmin allows the account owner or any administrator.
func (a *Assigner) AuthorizeOwnerOrAdmin(ctx context.Context, actorID, accountID string) error {
	if actorID != "" && actorID == accountID {
		return nil
	}
	return a.Authorize(ctx, actorID)
}
