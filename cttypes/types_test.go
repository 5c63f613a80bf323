package cttypes

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRoundTrip(t *testing.T) {
	var h Hash
	for i := range h {
		h[i] = byte(i)
	}
	encoded, err := json.Marshal(h)
	require.NoError(t, err)

	var decoded Hash
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, h, decoded)
}

func TestHashRejectsBadInput(t *testing.T) {
	var h Hash
	assert.Error(t, json.Unmarshal([]byte(`"garbagebase64^^^"`), &h), "invalid base64")
	assert.Error(t, json.Unmarshal([]byte(`"dG9vc2hvcnQ="`), &h), "wrong length")
	assert.Error(t, json.Unmarshal([]byte(`42`), &h), "not a string")
}

func TestParseDigitallySigned(t *testing.T) {
	// sha256 (4), ecdsa (3), 4-byte signature
	raw := []byte{4, 3, 0, 4, 0xde, 0xad, 0xbe, 0xef}
	ds, err := ParseDigitallySigned(raw)
	require.NoError(t, err)
	assert.Equal(t, HashAlgorithm(4), ds.Algorithm.Hash)
	assert.Equal(t, SignatureAlgorithm(3), ds.Algorithm.Signature)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, ds.Signature)
	assert.Equal(t, raw, ds.Bytes())
}

func TestParseDigitallySignedRejectsBadInput(t *testing.T) {
	for _, test := range []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"missing signature", []byte{4, 3}},
		{"truncated signature", []byte{4, 3, 0, 4, 0xde}},
		{"trailing bytes", []byte{4, 3, 0, 1, 0xde, 0xff}},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseDigitallySigned(test.raw)
			assert.Error(t, err)
		})
	}
}

func TestDigitallySignedJSON(t *testing.T) {
	raw := []byte{4, 3, 0, 2, 0xca, 0xfe}
	encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	var ds DigitallySigned
	require.NoError(t, json.Unmarshal(encoded, &ds))
	assert.Equal(t, []byte{0xca, 0xfe}, ds.Signature)

	reencoded, err := json.Marshal(ds)
	require.NoError(t, err)
	assert.Equal(t, string(encoded), string(reencoded))

	assert.Error(t, json.Unmarshal([]byte(`"garbagebase64^^^"`), &ds))
}

func TestSignedTreeHeadJSON(t *testing.T) {
	sth := SignedTreeHead{
		TreeSize:  12345,
		Timestamp: 1700000000000,
		Signature: DigitallySigned{
			Algorithm: SignatureAndHashAlgorithm{Hash: 4, Signature: 3},
			Signature: []byte{1, 2, 3, 4},
		},
	}
	for i := range sth.RootHash {
		sth.RootHash[i] = byte(0xa0 + i%16)
	}

	encoded, err := json.Marshal(sth)
	require.NoError(t, err)

	var decoded SignedTreeHead
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, sth, decoded)
	assert.True(t, sth.Same(&decoded))
	assert.Equal(t, int64(1700000000000), decoded.TimestampTime().UnixMilli())
}
