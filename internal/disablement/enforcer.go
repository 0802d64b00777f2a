package disablement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/model"
)

// Session is the part of an authenticated session the enforcer reads.
type Session interface {
	IsLoggedIn() bool
	AccountID() uint64
	LoggedInAt() *time.Time
	ImpersonatingAdminID() uint64
	ImpersonatedAccountID() uint64
	Logout(ctx context.Context) error
}

// Impersonation answers whether an admin login-as-customer session is valid.
type Impersonation interface {
	Enabled() bool
	IsEnabledForAccount(ctx context.Context, accountID uint64) (bool, error)
	IsSessionActive(ctx context.Context, accountID, adminID uint64) (bool, error)
}

// Decision is the outcome of a session check.
type Decision int

const (
	Allow Decision = iota
	AllowImpersonation
	LogoutDisabled
	LogoutStale
)

// LoggedOut reports whether the session was terminated.
func (d Decision) LoggedOut() bool { return d == LogoutDisabled || d == LogoutStale }

func (d Decision) String() string {
	switch d {
	case AllowImpersonation:
		return "allow_impersonation"
	case LogoutDisabled:
		return "logout_disabled"
	case LogoutStale:
		return "logout_stale"
	default:
		return "allow"
	}
}

// Enforcer re-checks a session on every request and forces logout when
// the session started at or before the account's latest disablement.
type Enforcer struct {
	State         *State
	Impersonation Impersonation // nil disables the impersonation bypass
	Log           *zap.Logger
}

func NewEnforcer(state *State, imp Impersonation, log *zap.Logger) *Enforcer {
	return &Enforcer{State: state, Impersonation: imp, Log: log}
}

// Check evaluates s and logs it out when required.
func (e *Enforcer) Check(ctx context.Context, s Session) (Decision, error) {
	d, err := e.decide(ctx, s)
	if err != nil || !d.LoggedOut() {
		return d, err
	}
	e.Log.Info("forced logout", zap.Uint64("account_id", s.AccountID()), zap.Stringer("reason", d))
	if err := s.Logout(ctx); err != nil {
		return d, err
	}
	return d, nil
}

func (e *Enforcer) decide(ctx context.Context, s Session) (Decision, error) {
	if !s.IsLoggedIn() {
		return Allow, nil
	}
	ok, err := e.impersonating(ctx, s)
	if err != nil {
		return Allow, err
	}
	if ok {
		return AllowImpersonation, nil
	}

	ref := model.RefID(s.AccountID())
	disabled, err := e.State.IsDisabled(ctx, ref)
	if err != nil {
		return Allow, err
	}
	if disabled {
		return LogoutDisabled, nil
	}

	disabledAt, err := e.State.DisabledAt(ctx, ref)
	if err != nil {
		return Allow, err
	}
	if disabledAt == nil {
		return Allow, nil
	}
	loggedInAt := s.LoggedInAt()
	if loggedInAt == nil || !loggedInAt.After(*disabledAt) {
		return LogoutStale, nil
	}
	return Allow, nil
}

func (e *Enforcer) impersonating(ctx context.Context, s Session) (bool, error) {
	if e.Impersonation == nil || !e.Impersonation.Enabled() {
		return false, nil
	}
	adminID, accountID := s.ImpersonatingAdminID(), s.ImpersonatedAccountID()
	if adminID == 0 || accountID == 0 {
		return false, nil
	}
	enabled, err := e.Impersonation.IsEnabledForAccount(ctx, accountID)
	if err != nil || !enabled {
		return false, err
	}
	return e.Impersonation.IsSessionActive(ctx, accountID, adminID)
}
