package middleware

// identity.go holds helpers shared by middleware and handlers to read
// the caller identity that JWTAuth stored in the echo context. Callers
// without a token are anonymous and never privileged.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/disable-customer/internal/model"
)

// AccountID returns the authenticated account id, or 0 for guests.
func AccountID(c echo.Context) uint64 {
	id, _ := c.Get(KeyAccountID).(uint64)
	return id
}

// Role returns the caller's role claim, or "" for guests.
func Role(c echo.Context) string {
	r, _ := c.Get(KeyRole).(string)
	return r
}

// IsPrivileged reports whether the caller is an administrator or a
// system integration.
func IsPrivileged(c echo.Context) bool {
	return model.IsPrivilegedRole(Role(c))
}
