package disablement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository/repotest"
)

type gateFixture struct {
	store    *repotest.Store
	events   *repotest.Events
	messages *repotest.Messages
	gate     *Gate
	def      string
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	f := &gateFixture{store: repotest.NewStore(), events: &repotest.Events{}, messages: &repotest.Messages{}}
	f.gate = NewGate(NewState(f.store), f.events, f.messages, func() string { return f.def }, zap.NewNop())
	return f
}

func (f *gateFixture) disabled(email, msg string) model.Account {
	a := model.Account{Email: email, Role: model.RoleCustomer}
	a.SetAttribute(AttrIsDisabled, FlagValue(true))
	a.SetAttribute(AttrDisabledMessage, model.StrPtr(msg))
	a.ID = f.store.Put(a)
	return a
}

func TestGateAllowsEnabledAndMissing(t *testing.T) {
	f := newGateFixture(t)
	a := model.Account{Email: "ok@example.com"}
	a.SetAttribute(AttrIsDisabled, FlagValue(false))
	id := f.store.Put(a)

	for op := range gateRules {
		assert.NoError(t, f.gate.Check(context.Background(), op, model.RefID(id)), string(op))
		assert.NoError(t, f.gate.Check(context.Background(), op, model.RefEmail("ghost@example.com")), string(op))
	}
	assert.Empty(t, f.messages.Errors)
}

func TestGateOperationTable(t *testing.T) {
	cases := []struct {
		op     Operation
		kind   Kind
		record bool
	}{
		{OpAuthenticate, KindGeneric, false},
		{OpActivate, KindGeneric, true},
		{OpActivateByID, KindGeneric, false},
		{OpResendConfirmation, KindNotFound, true},
		{OpResetPassword, KindInput, false},
		{OpValidateResetToken, KindGeneric, true},
		{OpInitiatePasswordReset, KindSecurity, false},
	}
	for _, c := range cases {
		t.Run(string(c.op), func(t *testing.T) {
			f := newGateFixture(t)
			a := f.disabled("jane@example.com", "On hold")

			err := f.gate.Check(context.Background(), c.op, model.RefID(a.ID))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDisabled))
			var rej *RejectedError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, c.kind, rej.Kind)
			assert.Equal(t, c.op, rej.Op)
			assert.Equal(t, "On hold", rej.Message)
			if c.record {
				assert.Equal(t, []string{"On hold"}, f.messages.Errors)
			} else {
				assert.Empty(t, f.messages.Errors)
			}
		})
	}
}

func TestGateMessageFallback(t *testing.T) {
	f := newGateFixture(t)
	a := f.disabled("jane@example.com", "")

	f.def = "Store closed"
	err := f.gate.Check(context.Background(), OpAuthenticate, model.RefEmail(a.Email))
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Store closed", rej.Message)

	f.def = ""
	err = f.gate.Check(context.Background(), OpAuthenticate, model.RefEmail(a.Email))
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, GenericDisabledMessage, rej.Message)
}

func TestComposeMessage(t *testing.T) {
	g := &Gate{}
	msg, err := g.ComposeMessage("Mine")
	require.NoError(t, err)
	assert.Equal(t, "Mine", msg)

	g.DefaultMessage = func() string { return "Store closed" }
	msg, err = g.ComposeMessage("")
	require.NoError(t, err)
	assert.Equal(t, "Store closed", msg)
}

func TestGateAuthenticateEmitsLoginAttempt(t *testing.T) {
	f := newGateFixture(t)
	a := f.disabled("Jane@Example.com", "")

	err := f.gate.Authenticate(context.Background(), a)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, []string{EventDisabledLoginAttempt}, f.events.Names())

	ok := model.Account{Email: "fine@example.com"}
	ok.ID = f.store.Put(ok)
	assert.NoError(t, f.gate.Authenticate(context.Background(), ok))
	assert.Len(t, f.events.All, 1)
}

func TestGateValidate(t *testing.T) {
	f := newGateFixture(t)
	a := f.disabled("jane@example.com", "Nope")

	err := f.gate.validate(context.Background(), OpInitiatePasswordReset, model.RefID(a.ID), KindSecurity, true)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, KindSecurity, rej.Kind)
	assert.Equal(t, []string{"Nope"}, f.messages.Errors)
}
