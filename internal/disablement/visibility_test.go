package disablement

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/disable-customer/internal/model"
	"github.com/iliyamo/disable-customer/internal/repository/repotest"
)

const listPayload = `{
  "items": [
    {"id": 1, "custom_attributes": [
      {"attribute_code": "is_disabled", "value": true},
      {"attribute_code": "disabled_message", "value": "Bye"},
      {"attribute_code": "disabled_at", "value": "2024-01-01 00:00:00"},
      {"attribute_code": "nickname", "value": "jj"}
    ]},
    {"id": 2, "nested": {"custom_attributes": [{"attribute_code": "is_disabled", "value": false}]}}
  ]
}`

func TestStripJSONAnyDepth(t *testing.T) {
	v := NewVisibility(DefaultBackendOnly(), nil)
	out, err := v.StripJSON([]byte(listPayload))
	require.NoError(t, err)

	assert.NotContains(t, string(out), "is_disabled")
	assert.NotContains(t, string(out), "disabled_message")
	assert.NotContains(t, string(out), "disabled_at")
	assert.Contains(t, string(out), `"nickname"`)

	var doc struct {
		Items []struct {
			CustomAttributes []map[string]any `json:"custom_attributes"`
			Nested           struct {
				CustomAttributes []map[string]any `json:"custom_attributes"`
			} `json:"nested"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc.Items, 2)
	assert.Len(t, doc.Items[0].CustomAttributes, 1)
	assert.NotNil(t, doc.Items[1].Nested.CustomAttributes)
	assert.Empty(t, doc.Items[1].Nested.CustomAttributes)
}

func TestStripRespectsDisabledRules(t *testing.T) {
	v := NewVisibility([]AttributeRule{
		{Code: AttrIsDisabled},
		{Code: AttrDisabledAt, Disabled: true},
	}, nil)
	assert.Equal(t, []string{AttrIsDisabled}, v.Codes())
	assert.False(t, v.IsBackendOnly(AttrDisabledAt))

	out, err := v.StripJSON([]byte(listPayload))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "is_disabled")
	assert.Contains(t, string(out), "disabled_at")
}

func TestStripNonJSON(t *testing.T) {
	v := NewVisibility(DefaultBackendOnly(), nil)
	_, err := v.StripJSON([]byte("not json"))
	assert.Error(t, err)
	assert.Equal(t, "plain", v.Strip("plain"))
}

func TestProtectWriteRevertsCustomerWrite(t *testing.T) {
	store := repotest.NewStore()
	a := model.Account{Email: "jane@example.com"}
	a.SetAttribute(AttrIsDisabled, FlagValue(false))
	id := store.Put(a)
	v := NewVisibility(DefaultBackendOnly(), store)

	in := []model.CustomAttribute{
		{Code: AttrIsDisabled, Value: FlagValue(true)},
		{Code: AttrDisabledMessage, Value: model.StrPtr("mine")},
		{Code: "nickname", Value: model.StrPtr("jj")},
	}
	out, err := v.ProtectWrite(context.Background(), false, id, in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "0", *out[0].Value, "stored value restored")
	assert.Nil(t, out[1].Value, "unset stays unset")
	assert.Equal(t, "jj", *out[2].Value)
	assert.Equal(t, "1", *in[0].Value, "input is not modified")
}

func TestProtectWritePrivileged(t *testing.T) {
	v := NewVisibility(DefaultBackendOnly(), repotest.NewStore())
	in := []model.CustomAttribute{{Code: AttrIsDisabled, Value: FlagValue(true)}}
	out, err := v.ProtectWrite(context.Background(), true, 1, in)
	require.NoError(t, err)
	assert.Equal(t, "1", *out[0].Value)
}

func TestProtectWriteOnCreate(t *testing.T) {
	v := NewVisibility(DefaultBackendOnly(), repotest.NewStore())
	in := []model.CustomAttribute{{Code: AttrIsDisabled, Value: FlagValue(true)}}

	out, err := v.ProtectWrite(context.Background(), false, 0, in)
	require.NoError(t, err)
	assert.Nil(t, out[0].Value)

	out, err = v.ProtectWrite(context.Background(), false, 404, in)
	require.NoError(t, err)
	assert.Nil(t, out[0].Value, "unknown account restores the default")
}

func TestTypedValue(t *testing.T) {
	assert.Equal(t, true, TypedValue(AttrIsDisabled, model.StrPtr("1")))
	assert.Equal(t, false, TypedValue(AttrIsDisabled, nil))
	assert.Equal(t, "Bye", TypedValue(AttrDisabledMessage, model.StrPtr("Bye")))
	assert.Nil(t, TypedValue("nickname", nil))
}
