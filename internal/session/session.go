// Package session stores authenticated sessions in Redis. A session is a
// hash under "<prefix>:<id>"; the id travels in the access token's "sid"
// claim. An account may hold any number of concurrent sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/disable-customer/internal/disablement"
)

// Hash fields. The misspelled admin key is the one the host platform's
// login-as-customer feature writes; sessions created here use the
// corrected key and readers accept both.
const (
	fieldAccountID      = "account_id"
	fieldLoggedInAt     = "logged_in_at"
	fieldAdminIDLegacy  = "logged_as_customer_admind_id"
	fieldAdminID        = "logged_as_customer_admin_id"
	fieldImpersonatedID = "logged_as_customer_customer_id"
)

// ErrNotFound is returned by Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store creates, loads and destroys sessions.
type Store struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewStore returns a store whose sessions expire after ttl of inactivity.
func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl, prefix: "session", now: time.Now}
}

func (s *Store) key(id string) string { return s.prefix + ":" + id }

// Create opens a session for accountID and records the login time.
func (s *Store) Create(ctx context.Context, accountID uint64) (*Session, error) {
	return s.create(ctx, accountID, 0)
}

// CreateImpersonation opens a session for accountID on behalf of adminID.
func (s *Store) CreateImpersonation(ctx context.Context, accountID, adminID uint64) (*Session, error) {
	return s.create(ctx, accountID, adminID)
}

func (s *Store) create(ctx context.Context, accountID, adminID uint64) (*Session, error) {
	now := s.now().UTC().Truncate(disablement.TimePrecision)
	sess := &Session{ID: uuid.NewString(), accountID: accountID, store: s}
	sess.loggedInAt = &now
	fields := map[string]any{
		fieldAccountID:  strconv.FormatUint(accountID, 10),
		fieldLoggedInAt: disablement.FormatTime(now),
	}
	if adminID != 0 {
		sess.adminID = adminID
		sess.impersonatedID = accountID
		fields[fieldAdminID] = strconv.FormatUint(adminID, 10)
		fields[fieldImpersonatedID] = strconv.FormatUint(accountID, 10)
	}
	k := s.key(sess.ID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, fields)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Load fetches a session and extends its lifetime.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	k := s.key(id)
	vals, err := s.rdb.HGetAll(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	_ = s.rdb.Expire(ctx, k, s.ttl).Err()

	sess := &Session{ID: id, store: s}
	sess.accountID = parseID(vals[fieldAccountID])
	sess.loggedInAt = disablement.ParseTime(vals[fieldLoggedInAt])
	sess.adminIDLegacy = parseID(vals[fieldAdminIDLegacy])
	sess.adminID = parseID(vals[fieldAdminID])
	sess.impersonatedID = parseID(vals[fieldImpersonatedID])
	return sess, nil
}

// Destroy deletes the session.
func (s *Store) Destroy(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// Session is a loaded session. It satisfies disablement.Session.
type Session struct {
	ID             string
	accountID      uint64
	loggedInAt     *time.Time
	adminIDLegacy  uint64
	adminID        uint64
	impersonatedID uint64
	loggedOut      bool
	store          *Store
}

func (s *Session) IsLoggedIn() bool { return !s.loggedOut && s.accountID != 0 }

func (s *Session) AccountID() uint64 { return s.accountID }

func (s *Session) LoggedInAt() *time.Time { return s.loggedInAt }

// ImpersonatingAdminID prefers the misspelled host key and falls back to
// the corrected one.
func (s *Session) ImpersonatingAdminID() uint64 {
	if s.adminIDLegacy != 0 {
		return s.adminIDLegacy
	}
	return s.adminID
}

func (s *Session) ImpersonatedAccountID() uint64 { return s.impersonatedID }

// Logout destroys the session. Further IsLoggedIn calls report false.
func (s *Session) Logout(ctx context.Context) error {
	s.loggedOut = true
	return s.store.Destroy(ctx, s.ID)
}

func parseID(v string) uint64 {
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}
