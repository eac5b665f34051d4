package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/LazarusTes/auth-portal-express/internal/roles"
	"github.com/shopspring/decimal"
)

const profileColumns = `
	id, first_name, last_name, username, date_of_birth, place_of_birth, country_of_birth,
	residence, nationality, document_ref, status, balance, daily_limit, weekly_limit, monthly_limit,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, extra ...any) (*models.Profile, error) {
	var p models.Profile
	var documentRef sql.NullString
	var daily, weekly, monthly decimal.NullDecimal

	dest := []any{
		&p.ID, &p.FirstName, &p.LastName, &p.Username, &p.DateOfBirth, &p.PlaceOfBirth, &p.CountryOfBirth,
		&p.Residence, &p.Nationality, &documentRef, &p.Status, &p.Balance, &daily, &weekly, &monthly,
		&p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.DocumentRef = documentRef.String
	p.Limits = models.Limits{Daily: decimalPtr(daily), Weekly: decimalPtr(weekly), Monthly: decimalPtr(monthly)}
	p.DateOfBirth = p.DateOfBirth.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// ProfileRepository is the Postgres write model for profiles and roles.
type ProfileRepository struct {
	db *sql.DB
}

var (
	_ ProfileStore = (*ProfileRepository)(nil)
	_ roles.Store  = (*ProfileRepository)(nil)
)

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile, role models.Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin create profile", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		p.ID, p.FirstName, p.LastName, p.Username, p.DateOfBirth, p.PlaceOfBirth, p.CountryOfBirth,
		p.Residence, p.Nationality, nullString(p.DocumentRef), p.Status, p.Balance,
		nullDecimal(p.Limits.Daily), nullDecimal(p.Limits.Weekly), nullDecimal(p.Limits.Monthly),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := pqError(err); ok && pqErr.Code == pqUniqueViolation {
			if pqErr.Constraint == "profiles_username_key" {
				return models.ErrDuplicateUsername
			}
			return fmt.Errorf("%w: profile %s already exists", models.ErrConflict, p.ID)
		}
		return storeErr("create profile", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO roles (account_id, role) VALUES ($1, $2)`, p.ID, string(role)); err != nil {
		return storeErr("create role", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit create profile", err)
	}
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	return p, nil
}

func (r *ProfileRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, storeErr("check username", err)
	}
	return exists, nil
}

// Update locks the row, applies upd, and writes every mutable column back.
func (r *ProfileRepository) Update(ctx context.Context, id string, upd models.ProfileUpdate) (*models.Profile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin update profile", err)
	}
	defer tx.Rollback()

	p, err := scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeErr("lock profile", err)
	}

	upd.Apply(p)
	err = tx.QueryRowContext(ctx, `
		UPDATE profiles
		SET first_name = $2, last_name = $3, username = $4, date_of_birth = $5, place_of_birth = $6,
			country_of_birth = $7, residence = $8, nationality = $9, document_ref = $10,
			daily_limit = $11, weekly_limit = $12, monthly_limit = $13, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`,
		p.ID, p.FirstName, p.LastName, p.Username, p.DateOfBirth, p.PlaceOfBirth,
		p.CountryOfBirth, p.Residence, p.Nationality, nullString(p.DocumentRef),
		nullDecimal(p.Limits.Daily), nullDecimal(p.Limits.Weekly), nullDecimal(p.Limits.Monthly),
	).Scan(&p.UpdatedAt)
	if err != nil {
		if pqErr, ok := pqError(err); ok {
			switch pqErr.Code {
			case pqUniqueViolation:
				return nil, models.ErrDuplicateUsername
			case pqCheckViolation:
				return nil, models.ErrInvalidLimit
			}
		}
		return nil, storeErr("update profile", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit update profile", err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (r *ProfileRepository) UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, `
		UPDATE profiles SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+profileColumns, id, from, to))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeErr("update status", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: profile %s is %s", models.ErrInvalidTransition, id, current.Status)
}

func (r *ProfileRepository) List(ctx context.Context) ([]models.ProfileView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixed("p.", profileColumns)+`, r.role
		FROM profiles p
		LEFT JOIN roles r ON r.account_id = p.id
		ORDER BY p.created_at, p.id
	`)
	if err != nil {
		return nil, storeErr("list profiles", err)
	}
	defer rows.Close()

	views := []models.ProfileView{}
	for rows.Next() {
		var role sql.NullString
		p, err := scanProfile(rows, &role)
		if err != nil {
			return nil, storeErr("scan profile", err)
		}
		view := models.ProfileView{Profile: *p, Role: models.RoleUser}
		if roles.IsAdmin(role.String) {
			view.Role = models.RoleAdmin
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list profiles", err)
	}
	return views, nil
}

func (r *ProfileRepository) AssignRole(ctx context.Context, accountID string, role models.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (account_id, role) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET role = EXCLUDED.role
	`, accountID, string(role))
	if err != nil {
		if pqErr, ok := pqError(err); ok && pqErr.Code == pqForeignKeyViolation {
			return fmt.Errorf("%w: profile %s", models.ErrNotFound, accountID)
		}
		return storeErr("assign role", err)
	}
	return nil
}

func (r *ProfileRepository) GetRole(ctx context.Context, accountID string) (string, error) {
	var role sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT role FROM roles WHERE account_id = $1`, accountID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeErr("get role", err)
	}
	return role.String, nil
}
