package disablement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository/repotest"
)

type fakeSession struct {
	accountID    uint64
	loggedInAt   *time.Time
	adminID      uint64
	impersonated uint64
	loggedOut    bool
	logoutErr    error
}

func (s *fakeSession) IsLoggedIn() bool               { return !s.loggedOut && s.accountID != 0 }
func (s *fakeSession) AccountID() uint64              { return s.accountID }
func (s *fakeSession) LoggedInAt() *time.Time         { return s.loggedInAt }
func (s *fakeSession) ImpersonatingAdminID() uint64   { return s.adminID }
func (s *fakeSession) ImpersonatedAccountID() uint64  { return s.impersonated }
func (s *fakeSession) Logout(_ context.Context) error { s.loggedOut = true; return s.logoutErr }

type fakeImpersonation struct {
	enabled bool
	allowed bool
	active  bool
}

func (f fakeImpersonation) Enabled() bool { return f.enabled }
func (f fakeImpersonation) IsEnabledForAccount(context.Context, uint64) (bool, error) {
	return f.allowed, nil
}
func (f fakeImpersonation) IsSessionActive(context.Context, uint64, uint64) (bool, error) {
	return f.active, nil
}

var disabledAt = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func enforcerStore(disabled bool, at *time.Time) (*repotest.Store, uint64) {
	store := repotest.NewStore()
	a := model.Account{Email: "jane@example.com"}
	a.SetAttribute(AttrIsDisabled, FlagValue(disabled))
	if at != nil {
		a.SetAttribute(AttrDisabledAt, model.StrPtr(FormatTime(*at)))
	}
	return store, store.Put(a)
}

func ts(t time.Time) *time.Time { return &t }

func TestEnforcerGuestAllowed(t *testing.T) {
	store, _ := enforcerStore(true, ts(disabledAt))
	e := NewEnforcer(NewState(store), nil, zap.NewNop())
	d, err := e.Check(context.Background(), &fakeSession{})
	require.NoError(t, err)
	assert.Equal(t, Allow, d)
}

func TestEnforcerDisabledLogsOut(t *testing.T) {
	store, id := enforcerStore(true, ts(disabledAt))
	e := NewEnforcer(NewState(store), nil, zap.NewNop())
	s := &fakeSession{accountID: id, loggedInAt: ts(disabledAt.Add(time.Hour))}

	d, err := e.Check(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, LogoutDisabled, d)
	assert.True(t, s.loggedOut)
}

func TestEnforcerLoginTimeBoundary(t *testing.T) {
	cases := []struct {
		name       string
		loggedInAt *time.Time
		want       Decision
	}{
		{"before", ts(disabledAt.Add(-time.Second)), LogoutStale},
		{"equal", ts(disabledAt), LogoutStale},
		{"after", ts(disabledAt.Add(time.Second)), Allow},
		{"same second, later", ts(disabledAt.Add(time.Millisecond)), Allow},
		{"unknown", nil, LogoutStale},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store, id := enforcerStore(false, ts(disabledAt))
			e := NewEnforcer(NewState(store), nil, zap.NewNop())
			s := &fakeSession{accountID: id, loggedInAt: c.loggedInAt}

			d, err := e.Check(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, c.want, d)
			assert.Equal(t, c.want.LoggedOut(), s.loggedOut)
		})
	}
}

func TestEnforcerReenableAndLoginInSameSecond(t *testing.T) {
	store, id := enforcerStore(false, nil)
	rec := NewRecorder(store, store, &repotest.Events{}, &repotest.Messages{}, zap.NewNop())
	at := time.Date(2024, 1, 1, 12, 0, 0, 100_000_000, time.UTC)
	rec.Now = func() time.Time { return at }
	before, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	after := before
	after.Attributes = append([]model.CustomAttribute(nil), before.Attributes...)
	after.SetAttribute(AttrIsDisabled, FlagValue(true))
	require.NoError(t, rec.Record(context.Background(), TransitionOf(before, after)))
	require.NoError(t, store.SetAttribute(context.Background(), model.RefID(id), AttrIsDisabled, FlagValue(false)))

	e := NewEnforcer(NewState(store), nil, zap.NewNop())
	s := &fakeSession{accountID: id, loggedInAt: ts(at.Add(300 * time.Millisecond))}
	d, err := e.Check(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, Allow, d, "sub-second order survives storage")
}

func TestEnforcerNeverDisabled(t *testing.T) {
	store, id := enforcerStore(false, nil)
	e := NewEnforcer(NewState(store), nil, zap.NewNop())
	d, err := e.Check(context.Background(), &fakeSession{accountID: id})
	require.NoError(t, err)
	assert.Equal(t, Allow, d)
}

func TestEnforcerImpersonation(t *testing.T) {
	cases := []struct {
		name  string
		imp   fakeImpersonation
		admin uint64
		want  Decision
	}{
		{"valid", fakeImpersonation{enabled: true, allowed: true, active: true}, 5, AllowImpersonation},
		{"feature off", fakeImpersonation{enabled: false, allowed: true, active: true}, 5, LogoutDisabled},
		{"not allowed", fakeImpersonation{enabled: true, allowed: false, active: true}, 5, LogoutDisabled},
		{"inactive", fakeImpersonation{enabled: true, allowed: true, active: false}, 5, LogoutDisabled},
		{"no admin", fakeImpersonation{enabled: true, allowed: true, active: true}, 0, LogoutDisabled},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store, id := enforcerStore(true, ts(disabledAt))
			e := NewEnforcer(NewState(store), c.imp, zap.NewNop())
			s := &fakeSession{accountID: id, adminID: c.admin, impersonated: id}

			d, err := e.Check(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, c.want, d)
			assert.Equal(t, c.want.LoggedOut(), s.loggedOut)
		})
	}
}

func TestEnforcerLogoutError(t *testing.T) {
	store, id := enforcerStore(true, ts(disabledAt))
	e := NewEnforcer(NewState(store), nil, zap.NewNop())
	boom := errors.New("redis down")

	d, err := e.Check(context.Background(), &fakeSession{accountID: id, logoutErr: boom})
	assert.Equal(t, LogoutDisabled, d)
	assert.ErrorIs(t, err, boom)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "allow_impersonation", AllowImpersonation.String())
	assert.Equal(t, "logout_disabled", LogoutDisabled.String())
	assert.Equal(t, "logout_stale", LogoutStale.String())
}
