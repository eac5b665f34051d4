package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/shopspring/decimal"
)

const entryColumns = `id, account_id, amount, direction, actor, actor_id, balance_after, idempotency_key, created_at`

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var key sql.NullString
	if err := row.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Direction, &e.Actor, &e.ActorID, &e.BalanceAfter, &key, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.IdempotencyKey = key.String
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

const outgoingSinceQuery = `
	SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
	WHERE account_id = $1 AND direction = 'debit' AND actor = 'self' AND created_at >= $2`

// LedgerRepository serializes balance mutations with a row lock on the
// profile for the duration of one transaction.
type LedgerRepository struct {
	db *sql.DB
}

var _ LedgerStore = (*LedgerRepository)(nil)

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithAccount(ctx context.Context, accountID string, fn func(ctx context.Context, tx ledger.AccountTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin ledger transaction", err)
	}
	defer tx.Rollback()

	p, err := scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: profile %s", models.ErrNotFound, accountID)
	}
	if err != nil {
		return storeErr("lock account", err)
	}

	if err := fn(ctx, &accountTx{tx: tx, profile: *p}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit ledger transaction", err)
	}
	return nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return nil, storeErr("check profile", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, accountID)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY seq`, accountID)
	if err != nil {
		return nil, storeErr("list entries", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeErr("scan entry", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list entries", err)
	}
	return entries, nil
}

func (r *LedgerRepository) OutgoingSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, outgoingSinceQuery, accountID, since).Scan(&total); err != nil {
		return decimal.Zero, storeErr("sum outgoing", err)
	}
	return total, nil
}

type accountTx struct {
	tx      *sql.Tx
	profile models.Profile
}

func (t *accountTx) Profile() models.Profile { return t.profile }

func (t *accountTx) OutgoingSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := t.tx.QueryRowContext(ctx, outgoingSinceQuery, t.profile.ID, since).Scan(&total); err != nil {
		return decimal.Zero, storeErr("sum outgoing", err)
	}
	return total, nil
}

func (t *accountTx) EntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	e, err := scanEntry(t.tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = $1 AND idempotency_key = $2`,
		t.profile.ID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find idempotent entry", err)
	}
	return e, nil
}

func (t *accountTx) Append(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.AccountID, e.Amount, e.Direction, e.Actor, e.ActorID, e.BalanceAfter, nullString(e.IdempotencyKey), e.CreatedAt)
	if err != nil {
		if pqErr, ok := pqError(err); ok {
			switch pqErr.Code {
			case pqUniqueViolation:
				return models.ErrIdempotencyConflict
			case pqCheckViolation:
				return models.ErrInsufficientBalance
			}
		}
		return storeErr("append entry", err)
	}

	_, err = t.tx.ExecContext(ctx, `UPDATE profiles SET balance = $2, updated_at = $3 WHERE id = $1`,
		t.profile.ID, e.BalanceAfter, e.CreatedAt)
	if err != nil {
		if pqErr, ok := pqError(err); ok && pqErr.Code == pqCheckViolation {
			return models.ErrInsufficientBalance
		}
		return storeErr("update balance", err)
	}
	t.profile.Balance = e.BalanceAfter
	return nil
}
