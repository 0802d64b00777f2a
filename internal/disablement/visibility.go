package disablement

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository"
)

// CustomAttributesKey is the JSON key under which account payloads embed
// their custom attributes.
const CustomAttributesKey = "custom_attributes"

// AttributeRule names one backend-only attribute. A disabled rule is not
// protected.
type AttributeRule struct {
	Code     string `toml:"code"`
	Disabled bool   `toml:"disabled"`
}

// DefaultBackendOnly protects the three disablement attributes.
func DefaultBackendOnly() []AttributeRule {
	return []AttributeRule{
		{Code: AttrIsDisabled},
		{Code: AttrDisabledMessage},
		{Code: AttrDisabledAt},
	}
}

// Visibility hides backend-only attributes from non-privileged readers
// and reverts their writes.
type Visibility struct {
	Rules []AttributeRule
	Store AttributeStore
}

func NewVisibility(rules []AttributeRule, store AttributeStore) *Visibility {
	return &Visibility{Rules: rules, Store: store}
}

// Codes returns the protected attribute codes in rule order.
func (v *Visibility) Codes() []string {
	var out []string
	for _, r := range v.Rules {
		if !r.Disabled && r.Code != "" {
			out = append(out, r.Code)
		}
	}
	return out
}

// IsBackendOnly reports whether code is protected.
func (v *Visibility) IsBackendOnly(code string) bool {
	for _, c := range v.Codes() {
		if c == code {
			return true
		}
	}
	return false
}

// Strip removes backend-only entries from every custom_attributes array
// found anywhere in a decoded JSON value. Maps and slices are modified in
// place; the (possibly new) root is returned.
func (v *Visibility) Strip(payload any) any {
	codes := v.Codes()
	if len(codes) == 0 {
		return payload
	}
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return strip(payload, set)
}

// StripJSON applies Strip to an encoded JSON document.
func (v *Visibility) StripJSON(body []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(v.Strip(doc))
}

func strip(node any, codes map[string]bool) any {
	switch n := node.(type) {
	case map[string]any:
		for k, child := range n {
			if k == CustomAttributesKey {
				n[k] = filterAttributes(child, codes)
				continue
			}
			n[k] = strip(child, codes)
		}
		return n
	case []any:
		for i := range n {
			n[i] = strip(n[i], codes)
		}
		return n
	default:
		return node
	}
}

func filterAttributes(node any, codes map[string]bool) any {
	list, ok := node.([]any)
	if !ok {
		return node
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			if code, ok := m["attribute_code"].(string); ok && codes[code] {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

// ProtectWrite replaces every backend-only attribute in attrs with the
// value currently stored for accountID. accountID 0, or an account that
// does not exist yet, restores the default (nil). Privileged writes pass
// through unchanged.
func (v *Visibility) ProtectWrite(ctx context.Context, privileged bool, accountID uint64, attrs []model.CustomAttribute) ([]model.CustomAttribute, error) {
	if privileged {
		return attrs, nil
	}
	out := make([]model.CustomAttribute, len(attrs))
	copy(out, attrs)
	for i, attr := range out {
		if !v.IsBackendOnly(attr.Code) {
			continue
		}
		prev, err := v.previous(ctx, accountID, attr.Code)
		if err != nil {
			return nil, err
		}
		out[i].Value = prev
	}
	return out, nil
}

func (v *Visibility) previous(ctx context.Context, accountID uint64, code string) (*string, error) {
	if accountID == 0 {
		return nil, nil
	}
	val, err := v.Store.Attribute(ctx, model.RefID(accountID), code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return val, err
}

// TypedValue converts a stored attribute to its JSON representation:
// is_disabled is rendered as a boolean, everything else as stored.
func TypedValue(code string, raw *string) any {
	if code == AttrIsDisabled {
		return ParseFlag(raw)
	}
	if raw == nil {
		return nil
	}
	return *raw
}
