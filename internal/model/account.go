package model

import "time"

// Role names carried in the JWT "role" claim and the accounts.role column.
const (
	RoleCustomer    = "CUSTOMER"
	RoleAdmin       = "ADMIN"
	RoleIntegration = "INTEGRATION"
)

// Account represents a row of the `accounts` table together with the
// custom attributes stored in `account_attributes`.
//
// Fields:
//
//	ID           – primary key identifier of the account.
//	Email        – unique email address, alternate lookup key.
//	PasswordHash – bcrypt hashed password.
//	Role         – CUSTOMER, ADMIN or INTEGRATION.
//	IsActive     – whether the email confirmation has been completed.
//	Confirmation – pending confirmation key (empty once activated).
//	Attributes   – custom attributes keyed by attribute code.
type Account struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	Confirmation string
	Attributes   []CustomAttribute
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CustomAttribute is one EAV value attached to an account. A nil Value
// means the attribute is present but unset.
type CustomAttribute struct {
	Code  string  `json:"attribute_code"`
	Value *string `json:"value"`
}

// Attribute returns the custom attribute with the given code.
func (a *Account) Attribute(code string) (CustomAttribute, bool) {
	for _, attr := range a.Attributes {
		if attr.Code == code {
			return attr, true
		}
	}
	return CustomAttribute{}, false
}

// AttributeValue returns the stored value of code or nil when absent.
func (a *Account) AttributeValue(code string) *string {
	if attr, ok := a.Attribute(code); ok {
		return attr.Value
	}
	return nil
}

// SetAttribute replaces or appends the attribute with the given code.
func (a *Account) SetAttribute(code string, value *string) {
	for i := range a.Attributes {
		if a.Attributes[i].Code == code {
			a.Attributes[i].Value = value
			return
		}
	}
	a.Attributes = append(a.Attributes, CustomAttribute{Code: code, Value: value})
}

// IsPrivilegedRole reports whether role belongs to an administrator or a
// system integration.
func IsPrivilegedRole(role string) bool {
	return role == RoleAdmin || role == RoleIntegration
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is not stored; only its SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }
