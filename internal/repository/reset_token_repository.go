package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ResetTokenRepo stores password-reset link tokens, hashed like refresh
// tokens. A token is single use: Consume deletes it.
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Store replaces any pending reset token of the account.
func (r *ResetTokenRepo) Store(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"REPLACE INTO password_reset_tokens (account_id, token_hash, expires_at) VALUES (?,?,?)",
		accountID, tokenHash, exp)
	return err
}

// Validate reports nil when tokenHash is the live reset token of the account.
func (r *ResetTokenRepo) Validate(ctx context.Context, accountID uint64, tokenHash string) error {
	var expiresAt time.Time
	err := r.DB.QueryRowContext(ctx,
		"SELECT expires_at FROM password_reset_tokens WHERE account_id=? AND token_hash=? LIMIT 1",
		accountID, tokenHash).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if time.Now().UTC().After(expiresAt) {
		return ErrNotFound
	}
	return nil
}

// Consume removes the account's reset token.
func (r *ResetTokenRepo) Consume(ctx context.Context, accountID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM password_reset_tokens WHERE account_id=?", accountID)
	return err
}
