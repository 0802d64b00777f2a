package model

import (
	"strconv"
	"strings"
)

// Ref identifies an account either by numeric id or by email.
type Ref struct {
	ID    uint64
	Email string
}

// RefID references an account by id.
func RefID(id uint64) Ref { return Ref{ID: id} }

// RefEmail references an account by email. The email is normalized the
// same way the accounts table stores it.
func RefEmail(email string) Ref {
	return Ref{Email: strings.ToLower(strings.TrimSpace(email))}
}

// ParseRef resolves user input into a Ref. A purely numeric string
// shorter than 10 digits is an id; anything else is an email.
func ParseRef(s string) Ref {
	s = strings.TrimSpace(s)
	if s != "" && len(s) < 10 && isDigits(s) {
		id, err := strconv.ParseUint(s, 10, 64)
		if err == nil {
			return RefID(id)
		}
	}
	return RefEmail(s)
}

// IsID reports whether the reference is by id.
func (r Ref) IsID() bool { return r.Email == "" }

func (r Ref) String() string {
	if r.IsID() {
		return strconv.FormatUint(r.ID, 10)
	}
	return r.Email
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
