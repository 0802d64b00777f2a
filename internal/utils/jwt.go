package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry. The token binds the
// account, its role and the server-side session id.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is a long‑lived opaque token. Only its SHA‑256 hash is
// stored server side.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// Claims are the fields read back from an access token.
type Claims struct {
	AccountID uint64
	Role      string
	SessionID string
}

// NewAccessToken builds and signs an HS256 JWT with sub, role, sid, exp
// and iat claims.
func NewAccessToken(secret string, accountID uint64, role, sessionID string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(accountID, 10),
		"role": role,
		"sid":  sessionID,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and extracts its claims.
// Only HMAC signing methods are accepted.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, errors.New("invalid claims")
	}
	var c Claims
	switch sub := mc["sub"].(type) {
	case string:
		c.AccountID, _ = strconv.ParseUint(sub, 10, 64)
	case float64:
		c.AccountID = uint64(sub)
	}
	if c.AccountID == 0 {
		return Claims{}, errors.New("missing subject")
	}
	c.Role, _ = mc["role"].(string)
	c.SessionID, _ = mc["sid"].(string)
	return c, nil
}

// NewRefreshToken returns a cryptographically secure random token valid
// for ttlDays.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := RandomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashToken returns the hex SHA‑256 of a raw token string.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns n bytes of secure random data as hex.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
