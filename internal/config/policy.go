package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/iliyamo/disable-customer/internal/disablement"
)

// Policy is the disablement policy. It is read from a TOML file:
//
//	default_message = "Your account is on hold."
//	impersonation_enabled = true
//
//	[[backend_only]]
//	code = "is_disabled"
//
//	[[backend_only]]
//	code = "disabled_at"
//	disabled = true
type Policy struct {
	DefaultMessage       string                      `toml:"default_message"`
	ImpersonationEnabled bool                        `toml:"impersonation_enabled"`
	BackendOnly          []disablement.AttributeRule `toml:"backend_only"`
}

// DefaultPolicy protects the disablement attributes and has no default
// message, so the generic text applies.
func DefaultPolicy() Policy {
	return Policy{BackendOnly: disablement.DefaultBackendOnly()}
}

// LoadPolicy decodes the file at path over DefaultPolicy. An empty path
// keeps the defaults. DISABLED_CUSTOMER_MESSAGE and IMPERSONATION_ENABLED
// override the file.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path != "" {
		var fromFile Policy
		if _, err := toml.DecodeFile(path, &fromFile); err != nil {
			return Policy{}, err
		}
		p.DefaultMessage = fromFile.DefaultMessage
		p.ImpersonationEnabled = fromFile.ImpersonationEnabled
		if len(fromFile.BackendOnly) > 0 {
			p.BackendOnly = fromFile.BackendOnly
		}
	}
	if v, ok := os.LookupEnv("DISABLED_CUSTOMER_MESSAGE"); ok {
		p.DefaultMessage = strings.TrimSpace(v)
	}
	switch strings.ToLower(os.Getenv("IMPERSONATION_ENABLED")) {
	case "1", "true", "yes", "on":
		p.ImpersonationEnabled = true
	case "0", "false", "no", "off":
		p.ImpersonationEnabled = false
	}
	return p, nil
}

// DefaultDisabledMessage is the store-level message used when an account
// carries none of its own.
func (p Policy) DefaultDisabledMessage() string { return p.DefaultMessage }
