package disablement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/model"
)

// Kind selects the error category a rejected entry point surfaces.
type Kind int

const (
	KindGeneric Kind = iota
	KindInput
	KindSecurity
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindSecurity:
		return "security"
	case KindNotFound:
		return "not_found"
	default:
		return "generic"
	}
}

// Operation names a gated account entry point.
type Operation string

const (
	OpAuthenticate          Operation = "authenticate"
	OpActivate              Operation = "activate"
	OpActivateByID          Operation = "activate_by_id"
	OpResendConfirmation    Operation = "resend_confirmation"
	OpResetPassword         Operation = "reset_password"
	OpValidateResetToken    Operation = "validate_reset_token"
	OpInitiatePasswordReset Operation = "initiate_password_reset"
)

type gateRule struct {
	kind   Kind
	record bool
}

var gateRules = map[Operation]gateRule{
	OpAuthenticate:          {kind: KindGeneric},
	OpActivate:              {kind: KindGeneric, record: true},
	OpActivateByID:          {kind: KindGeneric},
	OpResendConfirmation:    {kind: KindNotFound, record: true},
	OpResetPassword:         {kind: KindInput},
	OpValidateResetToken:    {kind: KindGeneric, record: true},
	OpInitiatePasswordReset: {kind: KindSecurity},
}

// RejectedError is returned when a disabled account reaches a gated
// entry point. Message is always non-empty and safe to show the user.
type RejectedError struct {
	Op      Operation
	Kind    Kind
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

func (e *RejectedError) Is(target error) bool { return target == ErrDisabled }

// Gate rejects disabled accounts at stateless entry points.
type Gate struct {
	State          *State
	Events         EventSink
	Messages       Messenger
	DefaultMessage func() string
	Log            *zap.Logger
}

func NewGate(state *State, events EventSink, messages Messenger, defaultMessage func() string, log *zap.Logger) *Gate {
	return &Gate{State: state, Events: events, Messages: messages, DefaultMessage: defaultMessage, Log: log}
}

// Check validates ref for a known entry point using its kind and
// message-recording rule.
func (g *Gate) Check(ctx context.Context, op Operation, ref model.Ref) error {
	rule, ok := gateRules[op]
	if !ok {
		rule = gateRule{kind: KindGeneric}
	}
	return g.validate(ctx, op, ref, rule.kind, rule.record)
}

// Authenticate runs after the credentials of account were verified. A
// rejection also emits the login-attempt event.
func (g *Gate) Authenticate(ctx context.Context, account model.Account) error {
	err := g.Check(ctx, OpAuthenticate, model.RefEmail(account.Email))
	var rej *RejectedError
	if errors.As(err, &rej) {
		g.Events.Emit(ctx, EventDisabledLoginAttempt, account)
	}
	return err
}

// ComposeMessage walks the fallback chain: the account's message, the
// configured default, the generic text.
func (g *Gate) ComposeMessage(accountMessage string) (string, error) {
	var def string
	if g.DefaultMessage != nil {
		def = g.DefaultMessage()
	}
	for _, m := range []string{accountMessage, def, GenericDisabledMessage} {
		if m != "" {
			return m, nil
		}
	}
	return "", &InvariantError{Attribute: AttrDisabledMessage, Msg: "all disabled-account messages are empty"}
}

// validate returns nil for an account that is not disabled, otherwise a
// *RejectedError of the given kind. With record set the composed message
// is also posted to the message channel.
func (g *Gate) validate(ctx context.Context, op Operation, ref model.Ref, kind Kind, record bool) error {
	disabled, err := g.State.IsDisabled(ctx, ref)
	if err != nil || !disabled {
		return err
	}
	own, err := g.State.Message(ctx, ref)
	if err != nil {
		return err
	}
	msg, err := g.ComposeMessage(own)
	if err != nil {
		return err
	}
	if record {
		g.Messages.AddError(ctx, msg)
	}
	g.Log.Info("disabled account rejected",
		zap.String("op", string(op)), zap.String("account", ref.String()), zap.Stringer("kind", kind))
	return &RejectedError{Op: op, Kind: kind, Message: msg}
}
