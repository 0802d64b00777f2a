// Package repotest provides in-memory stand-ins for the MySQL repositories
// and for the side-effect sinks of the disablement package.
package repotest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
)

// Store is an in-memory account, refresh token and reset token store.
type Store struct {
	mu       sync.Mutex
	nextID   uint64
	accounts map[uint64]model.Account
	refresh  map[string]uint64
	resets   map[uint64]string

	// FailSetAttribute makes SetAttribute fail for the given code.
	FailSetAttribute map[string]error
	// Revoked counts RevokeAll calls per account.
	Revoked map[uint64]int
	// RevokeErr is returned by RevokeAll when set.
	RevokeErr error
}

func NewStore() *Store {
	return &Store{
		accounts:         map[uint64]model.Account{},
		refresh:          map[string]uint64{},
		resets:           map[uint64]string{},
		FailSetAttribute: map[string]error{},
		Revoked:          map[uint64]int{},
	}
}

// Put stores a and returns its id, assigning one when a.ID is zero.
func (s *Store) Put(a model.Account) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextID++
		a.ID = s.nextID
	} else if a.ID > s.nextID {
		s.nextID = a.ID
	}
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Attributes = append([]model.CustomAttribute(nil), a.Attributes...)
	s.accounts[a.ID] = a
	return a.ID
}

func (s *Store) find(ref model.Ref) (model.Account, bool) {
	if ref.IsID() {
		a, ok := s.accounts[ref.ID]
		return a, ok
	}
	for _, a := range s.accounts {
		if a.Email == ref.Email {
			return a, true
		}
	}
	return model.Account{}, false
}

func clone(a model.Account) model.Account {
	a.Attributes = append([]model.CustomAttribute(nil), a.Attributes...)
	return a
}

func (s *Store) Get(_ context.Context, ref model.Ref) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.find(ref)
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return clone(a), nil
}

func (s *Store) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	return s.Get(ctx, model.RefID(id))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return s.Get(ctx, model.RefEmail(email))
}

func (s *Store) List(_ context.Context, limit, offset int) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Account
	for id := uint64(1); id <= s.nextID; id++ {
		if a, ok := s.accounts[id]; ok {
			out = append(out, clone(a))
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, a model.Account) (uint64, error) {
	s.mu.Lock()
	if _, ok := s.find(model.RefEmail(a.Email)); ok {
		s.mu.Unlock()
		return 0, repository.ErrEmailExists
	}
	s.mu.Unlock()
	a.ID = 0
	return s.Put(a), nil
}

// Save writes the email and merges every attribute present on a.
func (s *Store) Save(_ context.Context, a model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Email = strings.ToLower(strings.TrimSpace(a.Email))
	for _, attr := range a.Attributes {
		cur.SetAttribute(attr.Code, attr.Value)
	}
	s.accounts[a.ID] = cur
	return nil
}

func (s *Store) Attribute(_ context.Context, ref model.Ref, code string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.find(ref)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.AttributeValue(code), nil
}

func (s *Store) SetAttribute(_ context.Context, ref model.Ref, code string, value *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSetAttribute[code]; err != nil {
		return err
	}
	a, ok := s.find(ref)
	if !ok {
		return repository.ErrNotFound
	}
	a.SetAttribute(code, value)
	s.accounts[a.ID] = a
	return nil
}

// Update applies fn to the stored account id.
func (s *Store) Update(id uint64, fn func(*model.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&a)
	s.accounts[id] = a
	return nil
}

func (s *Store) Activate(_ context.Context, id uint64) error {
	return s.Update(id, func(a *model.Account) { a.IsActive = true; a.Confirmation = "" })
}

func (s *Store) SetConfirmation(_ context.Context, id uint64, key string) error {
	return s.Update(id, func(a *model.Account) { a.Confirmation = key })
}

func (s *Store) SetPassword(_ context.Context, id uint64, hash string) error {
	return s.Update(id, func(a *model.Account) { a.PasswordHash = hash })
}

// ----- refresh tokens -----

func (s *Store) StoreRefresh(_ context.Context, accountID uint64, tokenHash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = accountID
	return nil
}

func (s *Store) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refresh[tokenHash]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (s *Store) RevokeByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, tokenHash)
	return nil
}

// RevokeAll drops every refresh token of the account.
func (s *Store) RevokeAll(_ context.Context, accountID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RevokeErr != nil {
		return s.RevokeErr
	}
	s.Revoked[accountID]++
	for h, id := range s.refresh {
		if id == accountID {
			delete(s.refresh, h)
		}
	}
	return nil
}

// RefreshCount returns the number of live refresh tokens of accountID.
func (s *Store) RefreshCount(accountID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.refresh {
		if id == accountID {
			n++
		}
	}
	return n
}

// ----- reset tokens -----

// Resets exposes the reset-token half of the store.
func (s *Store) Resets() *ResetTokens { return &ResetTokens{s: s} }

// ResetTokens implements the reset-token repository over a Store.
type ResetTokens struct{ s *Store }

func (r *ResetTokens) Store(_ context.Context, accountID uint64, tokenHash string, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.resets[accountID] = tokenHash
	return nil
}

func (r *ResetTokens) Validate(_ context.Context, accountID uint64, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if h, ok := r.s.resets[accountID]; !ok || h != tokenHash {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ResetTokens) Consume(_ context.Context, accountID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.resets, accountID)
	return nil
}

// ----- sinks -----

// Event is one emitted account event.
type Event struct {
	Name    string
	Account model.Account
}

// Events records emitted events.
type Events struct {
	mu  sync.Mutex
	All []Event
}

func (e *Events) Emit(_ context.Context, name string, account model.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.All = append(e.All, Event{Name: name, Account: account})
}

// Names returns the emitted event names in order.
func (e *Events) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.All))
	for _, ev := range e.All {
		out = append(out, ev.Name)
	}
	return out
}

// Messages records messenger posts.
type Messages struct {
	mu      sync.Mutex
	Errors  []string
	Success []string
}

func (m *Messages) AddError(_ context.Context, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, msg)
}

func (m *Messages) AddSuccess(_ context.Context, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Success = append(m.Success, msg)
}
