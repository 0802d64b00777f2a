package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/disable-customer/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

const (
	qByID       = "SELECT " + accountColumns + " FROM accounts WHERE id=? LIMIT 1"
	qByEmail    = "SELECT " + accountColumns + " FROM accounts WHERE email=? LIMIT 1"
	qAttrs      = "SELECT attribute_code, value FROM account_attributes WHERE account_id=? ORDER BY attribute_code"
	qResolveID  = "SELECT id FROM accounts WHERE id=? LIMIT 1"
	qResolveEm  = "SELECT id FROM accounts WHERE email=? LIMIT 1"
	qAttr       = "SELECT value FROM account_attributes WHERE account_id=? AND attribute_code=? LIMIT 1"
	qUpsertAttr = "INSERT INTO account_attributes (account_id, attribute_code, value) VALUES (?,?,?) ON DUPLICATE KEY UPDATE value=VALUES(value)"
)

var accountCols = []string{"id", "email", "password_hash", "role", "is_active", "confirmation", "created_at", "updated_at"}

func TestGetByIDLoadsAttributes(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(qByID).WithArgs(42).WillReturnRows(
		sqlmock.NewRows(accountCols).AddRow(42, "jane@example.com", "hash", "CUSTOMER", true, nil, now, now))
	mock.ExpectQuery(qAttrs).WithArgs(42).WillReturnRows(
		sqlmock.NewRows([]string{"attribute_code", "value"}).
			AddRow("disabled_message", nil).
			AddRow("is_disabled", "1"))

	a, err := NewAccountRepo(db).GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), a.ID)
	assert.True(t, a.IsActive)
	assert.Empty(t, a.Confirmation)
	require.Len(t, a.Attributes, 2)
	assert.Nil(t, a.Attributes[0].Value)
	assert.Equal(t, "1", *a.AttributeValue("is_disabled"))
}

func TestGetByEmailNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(qByEmail).WithArgs("jane@example.com").WillReturnError(sql.ErrNoRows)

	_, err := NewAccountRepo(db).GetByEmail(context.Background(), " Jane@Example.com ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttribute(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(qResolveEm).WithArgs("jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(qAttr).WithArgs(7, "is_disabled").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("1"))
	v, err := repo.Attribute(ctx, model.RefEmail("jane@example.com"), "is_disabled")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "1", *v)

	mock.ExpectQuery(qResolveID).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(qAttr).WithArgs(7, "disabled_at").WillReturnError(sql.ErrNoRows)
	v, err = repo.Attribute(ctx, model.RefID(7), "disabled_at")
	require.NoError(t, err)
	assert.Nil(t, v, "never set")

	mock.ExpectQuery(qResolveID).WithArgs(8).WillReturnError(sql.ErrNoRows)
	_, err = repo.Attribute(ctx, model.RefID(8), "is_disabled")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "account 8")
}

func TestSetAttribute(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(qResolveID).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(qUpsertAttr).WithArgs(7, "disabled_at", "2024-01-01 00:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewAccountRepo(db).SetAttribute(context.Background(), model.RefID(7), "disabled_at", model.StrPtr("2024-01-01 00:00:00")))
}

func TestSetAttributeNull(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(qResolveID).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(qUpsertAttr).WithArgs(7, "disabled_message", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewAccountRepo(db).SetAttribute(context.Background(), model.RefID(7), "disabled_message", nil))
}

func TestCreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts (email, password_hash, role, is_active, confirmation) VALUES (?,?,?,?,?)").
		WithArgs("jane@example.com", "hash", "CUSTOMER", false, "key").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := NewAccountRepo(db).Create(context.Background(), model.Account{
		Email: "Jane@example.com", PasswordHash: "hash", Role: "CUSTOMER", Confirmation: "key",
	})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestCreateWritesAttributes(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts (email, password_hash, role, is_active, confirmation) VALUES (?,?,?,?,?)").
		WithArgs("jane@example.com", "hash", "CUSTOMER", false, nil).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(qUpsertAttr).WithArgs(5, "is_disabled", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := NewAccountRepo(db).Create(context.Background(), model.Account{
		Email: "jane@example.com", PasswordHash: "hash", Role: "CUSTOMER",
		Attributes: []model.CustomAttribute{{Code: "is_disabled"}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)
}

func TestSaveWritesEmailAndAttributes(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET email=?, updated_at=NOW() WHERE id=?").
		WithArgs("jane@example.com", 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qUpsertAttr).WithArgs(7, "is_disabled", "1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a := model.Account{ID: 7, Email: "jane@example.com"}
	a.SetAttribute("is_disabled", model.StrPtr("1"))
	require.NoError(t, NewAccountRepo(db).Save(context.Background(), a))
}

func TestSaveMissingAccount(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET email=?, updated_at=NOW() WHERE id=?").
		WithArgs("ghost@example.com", 9).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(qResolveID).WithArgs(9).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := NewAccountRepo(db).Save(context.Background(), model.Account{ID: 9, Email: "ghost@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("UPDATE accounts SET is_active=1, confirmation=NULL, updated_at=NOW() WHERE id=?").
		WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, NewAccountRepo(db).Activate(context.Background(), 3))
}
