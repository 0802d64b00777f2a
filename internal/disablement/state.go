package disablement

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
)

// State reads the disablement attributes of an account.
type State struct {
	Store AttributeStore
}

func NewState(store AttributeStore) *State { return &State{Store: store} }

// IsDisabled reports whether the account is disabled. A missing account
// is never disabled.
func (s *State) IsDisabled(ctx context.Context, ref model.Ref) (bool, error) {
	v, err := s.get(ctx, ref, AttrIsDisabled)
	if err != nil {
		return false, err
	}
	return ParseFlag(v), nil
}

// Message returns the account's own disabled message, possibly empty.
func (s *State) Message(ctx context.Context, ref model.Ref) (string, error) {
	v, err := s.get(ctx, ref, AttrDisabledMessage)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// DisabledAt returns the time of the most recent disable transition, or
// nil when none was recorded.
func (s *State) DisabledAt(ctx context.Context, ref model.Ref) (*time.Time, error) {
	v, err := s.get(ctx, ref, AttrDisabledAt)
	if err != nil || v == nil {
		return nil, err
	}
	return ParseTime(*v), nil
}

func (s *State) get(ctx context.Context, ref model.Ref, code string) (*string, error) {
	v, err := s.Store.Attribute(ctx, ref, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
