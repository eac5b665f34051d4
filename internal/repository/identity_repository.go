package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LazarusTes/auth-portal-express/internal/directory"
	"github.com/LazarusTes/auth-portal-express/internal/models"
)

type IdentityRepository struct {
	db *sql.DB
}

var _ directory.IdentityStore = (*IdentityRepository)(nil)

func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) Insert(ctx context.Context, id *directory.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (account_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, id.AccountID, id.Email, id.PasswordHash, id.CreatedAt)
	if err != nil {
		if pqErr, ok := pqError(err); ok && pqErr.Code == pqUniqueViolation {
			return models.ErrDuplicateEmail
		}
		return storeErr("create identity", err)
	}
	return nil
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*directory.Identity, error) {
	var id directory.Identity
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, email, password_hash, created_at FROM identities WHERE email = $1
	`, email).Scan(&id.AccountID, &id.Email, &id.PasswordHash, &id.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: identity", models.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get identity", err)
	}
	return &id, nil
}

func (r *IdentityRepository) Delete(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE account_id = $1`, accountID); err != nil {
		return storeErr("delete identity", err)
	}
	return nil
}
