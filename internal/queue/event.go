// Package queue defines message payloads exchanged over the message broker.
package queue

// AccountEventsQueue is the durable queue carrying account events.
const AccountEventsQueue = "account.events"

// AccountEvent is published for every disablement transition and for
// login attempts of disabled accounts. Name is one of account.disabled,
// account.enabled or account.disabled.login_attempt.
type AccountEvent struct {
	Name            string `json:"name"`
	AccountID       uint64 `json:"account_id"`
	Email           string `json:"email"`
	Role            string `json:"role,omitempty"`
	DisabledMessage string `json:"disabled_message,omitempty"`
	DisabledAt      string `json:"disabled_at,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}
