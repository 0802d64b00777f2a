package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
)

// AttrAllowRemoteAssistance is the account attribute a customer sets to
// let administrators log in as them.
const AttrAllowRemoteAssistance = "allow_remote_assistance"

// Impersonation tracks active admin login-as-customer sessions in Redis
// under "impersonation:<account>:<admin>". It satisfies
// disablement.Impersonation.
type Impersonation struct {
	rdb     redis.UniversalClient
	attrs   disablement.AttributeStore
	enabled bool
	ttl     time.Duration
}

func NewImpersonation(rdb redis.UniversalClient, attrs disablement.AttributeStore, enabled bool, ttl time.Duration) *Impersonation {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Impersonation{rdb: rdb, attrs: attrs, enabled: enabled, ttl: ttl}
}

func key(accountID, adminID uint64) string {
	return fmt.Sprintf("impersonation:%d:%d", accountID, adminID)
}

func (i *Impersonation) Enabled() bool { return i.enabled }

// IsEnabledForAccount reports whether the customer allows assistance.
func (i *Impersonation) IsEnabledForAccount(ctx context.Context, accountID uint64) (bool, error) {
	v, err := i.attrs.Attribute(ctx, model.RefID(accountID), AttrAllowRemoteAssistance)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return disablement.ParseFlag(v), nil
}

// IsSessionActive reports whether adminID currently impersonates accountID.
func (i *Impersonation) IsSessionActive(ctx context.Context, accountID, adminID uint64) (bool, error) {
	n, err := i.rdb.Exists(ctx, key(accountID, adminID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Start marks an impersonation as active.
func (i *Impersonation) Start(ctx context.Context, accountID, adminID uint64) error {
	return i.rdb.Set(ctx, key(accountID, adminID), time.Now().UTC().Format(time.RFC3339), i.ttl).Err()
}

// End clears an impersonation.
func (i *Impersonation) End(ctx context.Context, accountID, adminID uint64) error {
	return i.rdb.Del(ctx, key(accountID, adminID)).Err()
}
