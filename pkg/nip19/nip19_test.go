package nip19

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T) []byte {
	t.Helper()
	id := make([]byte, 32)
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

func encodeNote(t *testing.T, id []byte) string {
	t.Helper()
	data5, err := convertBits(id, 8, 5, true)
	require.NoError(t, err)
	s, err := encodeBech32("note", data5)
	require.NoError(t, err)
	return s
}

func encodeNevent(t *testing.T, id, author []byte, relays []string, kind int) string {
	t.Helper()
	var raw []byte
	raw = append(raw, tlvSpecial, byte(len(id)))
	raw = append(raw, id...)
	for _, r := range relays {
		raw = append(raw, tlvRelay, byte(len(r)))
		raw = append(raw, r...)
	}
	if author != nil {
		raw = append(raw, tlvAuthor, byte(len(author)))
		raw = append(raw, author...)
	}
	if kind != 0 {
		kb := []byte{byte(kind >> 24), byte(kind >> 16), byte(kind >> 8), byte(kind)}
		raw = append(raw, tlvKind, byte(len(kb)))
		raw = append(raw, kb...)
	}
	data5, err := convertBits(raw, 8, 5, true)
	require.NoError(t, err)
	s, err := encodeBech32("nevent", data5)
	require.NoError(t, err)
	return s
}

func encodeNaddr(t *testing.T, identifier string, author []byte, relays []string, kind int) string {
	t.Helper()
	var raw []byte
	raw = append(raw, tlvSpecial, byte(len(identifier)))
	raw = append(raw, identifier...)
	for _, r := range relays {
		raw = append(raw, tlvRelay, byte(len(r)))
		raw = append(raw, r...)
	}
	raw = append(raw, tlvAuthor, byte(len(author)))
	raw = append(raw, author...)
	kb := []byte{byte(kind >> 24), byte(kind >> 16), byte(kind >> 8), byte(kind)}
	raw = append(raw, tlvKind, byte(len(kb)))
	raw = append(raw, kb...)
	data5, err := convertBits(raw, 8, 5, true)
	require.NoError(t, err)
	s, err := encodeBech32("naddr", data5)
	require.NoError(t, err)
	return s
}

func TestDecodeBareHex(t *testing.T) {
	id := hex.EncodeToString(mustID(t))
	p, err := Decode(id)
	require.NoError(t, err)
	assert.Equal(t, KindHex, p.Kind)
	assert.Equal(t, id, p.EventID)
}

func TestDecodeNote(t *testing.T) {
	id := mustID(t)
	s := encodeNote(t, id)
	require.True(t, strings.HasPrefix(s, "note1"))

	p, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, KindNote, p.Kind)
	assert.Equal(t, hex.EncodeToString(id), p.EventID)
}

func TestDecodeNeventWithRelaysAuthorKind(t *testing.T) {
	id := mustID(t)
	author := make([]byte, 32)
	for i := range author {
		author[i] = byte(31 - i)
	}
	s := encodeNevent(t, id, author, []string{"wss://relay.example"}, 1)

	p, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, KindEvent, p.Kind)
	assert.Equal(t, hex.EncodeToString(id), p.EventID)
	assert.Equal(t, hex.EncodeToString(author), p.Author)
	assert.Equal(t, []string{"wss://relay.example"}, p.Relays)
	assert.Equal(t, 1, p.EventKind)
}

func TestDecodeNaddr(t *testing.T) {
	author := mustID(t)
	s := encodeNaddr(t, "my-article", author, []string{"wss://relay.example"}, 30023)

	p, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, KindAddr, p.Kind)
	assert.Equal(t, "my-article", p.Identifier)
	assert.Equal(t, hex.EncodeToString(author), p.Author)
	assert.Equal(t, 30023, p.AddrKind)
}

func TestDecodeRejectsNpub(t *testing.T) {
	id := mustID(t)
	data5, err := convertBits(id, 8, 5, true)
	require.NoError(t, err)
	s, err := encodeBech32("npub", data5)
	require.NoError(t, err)

	_, err = Decode(s)
	assert.Error(t, err)
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	id := mustID(t)
	s := encodeNote(t, id)
	corrupted := s[:len(s)-1] + "z"
	if corrupted == s {
		corrupted = s[:len(s)-1] + "q"
	}
	_, err := Decode(corrupted)
	assert.Error(t, err)
}

func TestDecodeRejectsShortHex(t *testing.T) {
	_, err := Decode("abcdef")
	assert.Error(t, err)
}
