package disablement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/model"
)

// Transition carries the is_disabled value before and after a committed
// account save.
type Transition struct {
	Account     model.Account
	WasDisabled bool
	Disabled    bool
}

// TransitionOf builds the transition between two snapshots of the same
// account. An after snapshot without is_disabled keeps the old value.
func TransitionOf(before, after model.Account) Transition {
	was := ParseFlag(before.AttributeValue(AttrIsDisabled))
	now := was
	if attr, ok := after.Attribute(AttrIsDisabled); ok {
		now = ParseFlag(attr.Value)
	}
	return Transition{Account: after, WasDisabled: was, Disabled: now}
}

// Recorder applies the side effects of a disable or enable transition.
type Recorder struct {
	Store    AttributeStore
	Revoker  TokenRevoker // nil when the platform issues no API tokens
	Events   EventSink
	Messages Messenger
	Log      *zap.Logger
	Now      func() time.Time
}

func NewRecorder(store AttributeStore, revoker TokenRevoker, events EventSink, messages Messenger, log *zap.Logger) *Recorder {
	return &Recorder{Store: store, Revoker: revoker, Events: events, Messages: messages, Log: log, Now: time.Now}
}

// Record must run after the save that produced t was committed. The only
// error it returns is an *InvariantError: disabled_at could not be stored.
func (r *Recorder) Record(ctx context.Context, t Transition) error {
	switch {
	case t.Disabled && !t.WasDisabled:
		return r.disabled(ctx, t.Account)
	case !t.Disabled && t.WasDisabled:
		r.Log.Info("account enabled", zap.Uint64("account_id", t.Account.ID))
		r.Events.Emit(ctx, EventAccountEnabled, t.Account)
	}
	return nil
}

func (r *Recorder) disabled(ctx context.Context, a model.Account) error {
	r.revoke(ctx, a.ID)

	now := r.Now().UTC().Truncate(TimePrecision)
	if err := r.Store.SetAttribute(ctx, model.RefID(a.ID), AttrDisabledAt, model.StrPtr(FormatTime(now))); err != nil {
		ierr := &InvariantError{Attribute: AttrDisabledAt, AccountID: a.ID, Err: err}
		r.Log.Error("disabled_at not persisted", zap.Uint64("account_id", a.ID), zap.Error(err))
		return ierr
	}
	a.SetAttribute(AttrDisabledAt, model.StrPtr(FormatTime(now)))

	r.Log.Info("account disabled", zap.Uint64("account_id", a.ID), zap.Time("disabled_at", now))
	r.Events.Emit(ctx, EventAccountDisabled, a)
	return nil
}

func (r *Recorder) revoke(ctx context.Context, accountID uint64) {
	if r.Revoker == nil {
		return
	}
	quiet := IsBatch(ctx)
	if err := r.Revoker.RevokeAll(ctx, accountID); err != nil {
		r.Log.Warn("token revocation failed", zap.Uint64("account_id", accountID), zap.Error(err))
		if !quiet {
			r.Messages.AddError(ctx, err.Error())
		}
		return
	}
	if !quiet {
		r.Messages.AddSuccess(ctx, RevokedTokensNotice)
	}
}
