package nip46

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexEncEncodesLowercase(t *testing.T) {
	got := hexEnc([]byte{0x00, 0xab, 0xff})
	assert.Equal(t, "00abff", got)
}

func TestNewRequestIDIsUnique(t *testing.T) {
	a := newRequestID()
	b := newRequestID()
	assert.NotEqual(t, a, b)
}

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	req := Request{ID: "1", Method: "sign_event", Params: []string{"payload"}}
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var out Request
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, req, out)
}

func TestResponseEnvelopeDistinguishesAuthURL(t *testing.T) {
	raw := []byte(`{"id":"1","result":"auth_url","error":"https://bunker.example/auth"}`)
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "auth_url", resp.Result)
	assert.Equal(t, "https://bunker.example/auth", resp.Error)
}
