// Package cttypes contains the wire types served by RFC 6962
// Certificate Transparency logs, with strict decoding: a value that
// does not round-trip its encoding is rejected at unmarshal time.
package cttypes

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/cryptobyte"
)

const HashSize = 32

// Hash is a SHA-256 digest, such as a tree root hash.
type Hash [HashSize]byte

func (h Hash) Base64String() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Base64String())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("hash field is not a JSON string: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("hash field is not valid base64: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash is %d bytes long (should be %d)", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return nil
}

type HashAlgorithm uint8

type SignatureAlgorithm uint8

type SignatureAndHashAlgorithm struct {
	Hash      HashAlgorithm
	Signature SignatureAlgorithm
}

// DigitallySigned is the TLS DigitallySigned structure (RFC 5246,
// section 4.7) that logs use for tree head signatures.
type DigitallySigned struct {
	Algorithm SignatureAndHashAlgorithm
	Signature []byte
}

// ParseDigitallySigned decodes the binary DigitallySigned structure.
// The input must be consumed exactly; trailing bytes are an error.
func ParseDigitallySigned(data []byte) (*DigitallySigned, error) {
	str := cryptobyte.String(data)
	var hashAlg, sigAlg uint8
	var sig cryptobyte.String
	if !str.ReadUint8(&hashAlg) || !str.ReadUint8(&sigAlg) || !str.ReadUint16LengthPrefixed(&sig) {
		return nil, fmt.Errorf("DigitallySigned structure is truncated")
	}
	if !str.Empty() {
		return nil, fmt.Errorf("DigitallySigned structure has %d trailing bytes", len(str))
	}
	return &DigitallySigned{
		Algorithm: SignatureAndHashAlgorithm{
			Hash:      HashAlgorithm(hashAlg),
			Signature: SignatureAlgorithm(sigAlg),
		},
		Signature: append([]byte(nil), sig...),
	}, nil
}

// Bytes re-encodes the structure to its binary form.
func (ds *DigitallySigned) Bytes() []byte {
	var builder cryptobyte.Builder
	builder.AddUint8(uint8(ds.Algorithm.Hash))
	builder.AddUint8(uint8(ds.Algorithm.Signature))
	builder.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(ds.Signature)
	})
	return builder.BytesOrPanic()
}

func (ds DigitallySigned) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(ds.Bytes()))
}

func (ds *DigitallySigned) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("signature field is not a JSON string: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("signature field is not valid base64: %w", err)
	}
	parsed, err := ParseDigitallySigned(decoded)
	if err != nil {
		return err
	}
	*ds = *parsed
	return nil
}

type SignedTreeHead struct {
	TreeSize  uint64          `json:"tree_size"`
	Timestamp uint64          `json:"timestamp"`
	RootHash  Hash            `json:"sha256_root_hash"`
	Signature DigitallySigned `json:"tree_head_signature"`
}

func (sth *SignedTreeHead) TimestampTime() time.Time {
	return time.UnixMilli(int64(sth.Timestamp))
}

func (sth *SignedTreeHead) Same(other *SignedTreeHead) bool {
	return sth.TreeSize == other.TreeSize && sth.Timestamp == other.Timestamp && sth.RootHash == other.RootHash
}
