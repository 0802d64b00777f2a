// Package disablement enforces the disabled-account policy: the state
// model over the is_disabled / disabled_message / disabled_at attributes,
// the transition recorder, the gate in front of login, activation and
// password-reset entry points, the per-request session check and the
// backend-only attribute boundary.
//
// Every collaborator (attribute store, token revocation, event sink,
// message channel, session, impersonation) is an interface passed in at
// construction.
package disablement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/disable-customer/internal/model"
)

// Attribute codes of the disablement state.
const (
	AttrIsDisabled      = "is_disabled"
	AttrDisabledMessage = "disabled_message"
	AttrDisabledAt      = "disabled_at"
)

// Event names emitted to downstream listeners.
const (
	EventAccountDisabled      = "account.disabled"
	EventAccountEnabled       = "account.enabled"
	EventDisabledLoginAttempt = "account.disabled.login_attempt"
)

// TimeLayout is the UTC datetime format used for disabled_at and
// session login timestamps. Fractional seconds are written only when
// non-zero, so whole-second values keep the platform's datetime form,
// and are accepted when absent.
const TimeLayout = "2006-01-02 15:04:05.999999"

// TimePrecision is the resolution stored timestamps are truncated to.
const TimePrecision = time.Microsecond

// GenericDisabledMessage is the last entry of the message fallback chain.
const GenericDisabledMessage = "Your account has been disabled. Please contact the store owner."

// RevokedTokensNotice is posted to the operator after a successful
// token revocation.
const RevokedTokensNotice = "You have revoked the customer's WebAPI tokens."

// AttributeStore reads and writes individual account attributes.
// Missing accounts are reported with repository.ErrNotFound.
type AttributeStore interface {
	Attribute(ctx context.Context, ref model.Ref, code string) (*string, error)
	SetAttribute(ctx context.Context, ref model.Ref, code string, value *string) error
}

// TokenRevoker revokes all outstanding API credentials of an account.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, accountID uint64) error
}

// EventSink receives named account events. Delivery is fire-and-forget.
type EventSink interface {
	Emit(ctx context.Context, name string, account model.Account)
}

// Messenger is the best-effort user-facing message side channel.
type Messenger interface {
	AddError(ctx context.Context, msg string)
	AddSuccess(ctx context.Context, msg string)
}

var (
	// ErrDisabled matches every rejection produced by the Gate.
	ErrDisabled = errors.New("account disabled")
	// ErrInvariant matches every InvariantError.
	ErrInvariant = errors.New("disablement invariant violated")
)

// InvariantError reports a state the policy cannot recover from: a
// disabled account without a persisted disabled_at, or an empty message
// fallback chain. The triggering operation must abort.
type InvariantError struct {
	Attribute string
	AccountID uint64
	Msg       string
	Err       error
}

func (e *InvariantError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = fmt.Sprintf("cannot save attribute %s for account id %d", e.Attribute, e.AccountID)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

func (e *InvariantError) Unwrap() error { return e.Err }

// FormatTime renders t in TimeLayout, UTC.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseTime parses a stored timestamp. Empty or malformed input yields nil.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return nil
		}
		t = t.UTC()
	}
	return &t
}

// ParseFlag interprets a stored boolean attribute. Unset and
// unparsable values are false.
func ParseFlag(v *string) bool {
	if v == nil {
		return false
	}
	b, err := strconv.ParseBool(*v)
	return err == nil && b
}

// FlagValue renders b the way is_disabled is stored.
func FlagValue(b bool) *string {
	if b {
		return model.StrPtr("1")
	}
	return model.StrPtr("0")
}

type batchKey struct{}

// WithBatch marks ctx as belonging to a bulk administrative action.
func WithBatch(ctx context.Context) context.Context {
	return context.WithValue(ctx, batchKey{}, true)
}

// IsBatch reports whether ctx was marked with WithBatch.
func IsBatch(ctx context.Context) bool {
	v, _ := ctx.Value(batchKey{}).(bool)
	return v
}
