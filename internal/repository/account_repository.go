package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/disable-customer/internal/model"
)

// AccountRepo persists accounts and their custom attributes. Core columns
// live in `accounts`; custom attributes live in `account_attributes`
// keyed by (account_id, attribute_code).
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// isDuplicate reports a unique key violation (MySQL error 1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

const accountColumns = "id,email,password_hash,role,is_active,confirmation,created_at,updated_at"

// Create inserts the account and its attributes and returns the new ID.
// PasswordHash must already be computed by the caller.
func (r *AccountRepo) Create(ctx context.Context, a model.Account) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(a.Email))
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO accounts (email, password_hash, role, is_active, confirmation) VALUES (?,?,?,?,?)",
		email, a.PasswordHash, a.Role, a.IsActive, nullString(a.Confirmation))
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, attr := range a.Attributes {
		if err := upsertAttribute(ctx, tx, uint64(id), attr.Code, attr.Value); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Save writes the email and every custom attribute present on a in one
// transaction. Attributes absent from a are left untouched.
func (r *AccountRepo) Save(ctx context.Context, a model.Account) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE accounts SET email=?, updated_at=NOW() WHERE id=?",
		strings.ToLower(strings.TrimSpace(a.Email)), a.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for unchanged rows too; confirm the row exists.
		if _, err := r.resolveID(ctx, tx, model.RefID(a.ID)); err != nil {
			return err
		}
	}
	for _, attr := range a.Attributes {
		if err := upsertAttribute(ctx, tx, a.ID, attr.Code, attr.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get fetches an account by id or email.
func (r *AccountRepo) Get(ctx context.Context, ref model.Ref) (model.Account, error) {
	if ref.IsID() {
		return r.GetByID(ctx, ref.ID)
	}
	return r.GetByEmail(ctx, ref.Email)
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1", email)
	return r.scanWithAttributes(ctx, row)
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id)
	return r.scanWithAttributes(ctx, row)
}

// List returns a page of accounts ordered by id.
func (r *AccountRepo) List(ctx context.Context, limit, offset int) ([]model.Account, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range out {
		attrs, err := r.attributes(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Attributes = attrs
	}
	return out, nil
}

// Attribute returns the stored value of one attribute. A nil value with
// a nil error means the attribute was never set.
func (r *AccountRepo) Attribute(ctx context.Context, ref model.Ref, code string) (*string, error) {
	id, err := r.resolveID(ctx, r.DB, ref)
	if err != nil {
		return nil, err
	}
	var v sql.NullString
	err = r.DB.QueryRowContext(ctx,
		"SELECT value FROM account_attributes WHERE account_id=? AND attribute_code=? LIMIT 1",
		id, code).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.String, nil
}

// SetAttribute writes a single attribute outside of any Save transaction.
func (r *AccountRepo) SetAttribute(ctx context.Context, ref model.Ref, code string, value *string) error {
	id, err := r.resolveID(ctx, r.DB, ref)
	if err != nil {
		return err
	}
	return upsertAttribute(ctx, r.DB, id, code, value)
}

// Activate marks the account confirmed and clears its confirmation key.
func (r *AccountRepo) Activate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET is_active=1, confirmation=NULL, updated_at=NOW() WHERE id=?", id)
	return err
}

// SetConfirmation stores a fresh confirmation key.
func (r *AccountRepo) SetConfirmation(ctx context.Context, id uint64, key string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET confirmation=?, updated_at=NOW() WHERE id=?", key, id)
	return err
}

// SetPassword replaces the bcrypt hash.
func (r *AccountRepo) SetPassword(ctx context.Context, id uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET password_hash=?, updated_at=NOW() WHERE id=?", hash, id)
	return err
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *AccountRepo) resolveID(ctx context.Context, q execQueryer, ref model.Ref) (uint64, error) {
	var (
		id  uint64
		err error
	)
	if ref.IsID() {
		err = q.QueryRowContext(ctx, "SELECT id FROM accounts WHERE id=? LIMIT 1", ref.ID).Scan(&id)
	} else {
		err = q.QueryRowContext(ctx, "SELECT id FROM accounts WHERE email=? LIMIT 1", ref.Email).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", ref, ErrNotFound)
	}
	return id, err
}

func upsertAttribute(ctx context.Context, q execQueryer, accountID uint64, code string, value *string) error {
	var v sql.NullString
	if value != nil {
		v = sql.NullString{String: *value, Valid: true}
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO account_attributes (account_id, attribute_code, value) VALUES (?,?,?) ON DUPLICATE KEY UPDATE value=VALUES(value)",
		accountID, code, v)
	return err
}

func (r *AccountRepo) attributes(ctx context.Context, accountID uint64) ([]model.CustomAttribute, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT attribute_code, value FROM account_attributes WHERE account_id=? ORDER BY attribute_code",
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CustomAttribute
	for rows.Next() {
		var (
			code string
			v    sql.NullString
		)
		if err := rows.Scan(&code, &v); err != nil {
			return nil, err
		}
		attr := model.CustomAttribute{Code: code}
		if v.Valid {
			attr.Value = model.StrPtr(v.String)
		}
		out = append(out, attr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (model.Account, error) {
	var (
		a    model.Account
		conf sql.NullString
	)
	err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive, &conf, &a.CreatedAt, &a.UpdatedAt)
	a.Confirmation = conf.String
	return a, err
}

func (r *AccountRepo) scanWithAttributes(ctx context.Context, row *sql.Row) (model.Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	attrs, err := r.attributes(ctx, a.ID)
	if err != nil {
		return model.Account{}, err
	}
	a.Attributes = attrs
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
