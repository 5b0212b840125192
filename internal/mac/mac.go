// Package mac implements the PUF-ACS hashed MAC identifier (PUF-ACS design
// document Section 3): a 6-byte device identity that evolves via iterated
// SHA-256 truncation and folds ephemeral scalar entropy through an XOR tail.
package mac

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size is the fixed length of a MAC identifier in bytes.
const Size = 6

// ErrInvalidLength indicates a MAC was constructed from the wrong number
// of bytes.
var ErrInvalidLength = errors.New("mac: invalid length")

// ErrInvalidHex indicates a MAC could not be parsed from its text form.
var ErrInvalidHex = errors.New("mac: invalid hex text")

// MAC is a 6-byte device identifier (PUF-ACS design document Section 3).
//
// The zero value is the all-zero MAC, which is a valid (if unlikely)
// identifier; callers that need to distinguish "absent" from "zero" should
// use a separate presence flag.
type MAC [Size]byte

// FromBytes builds a MAC from a 6-byte slice, copying the input.
func FromBytes(b []byte) (MAC, error) {
	var m MAC
	if len(b) != Size {
		return m, fmt.Errorf("mac.FromBytes: got %d bytes: %w", len(b), ErrInvalidLength)
	}
	copy(m[:], b)
	return m, nil
}

// Bytes returns the MAC's 6 raw bytes as a newly allocated slice.
func (m MAC) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, m[:])
	return out
}

// Hash replaces m with SHA-256(m)[0:6] applied n times in place
// (PUF-ACS design document Section 3: "hash(n)").
//
// n must be >= 1; Hash panics on n < 1 since this is a programmer-contract
// violation, not a runtime failure (PUF-ACS design document Section 7).
func (m *MAC) Hash(n int) {
	if n < 1 {
		panic("mac: Hash requires n >= 1")
	}
	for i := 0; i < n; i++ {
		digest := sha256.Sum256(m[:])
		copy(m[:], digest[:Size])
	}
}

// Hashed returns a copy of m with Hash(n) applied, leaving m unmodified.
func (m MAC) Hashed(n int) MAC {
	out := m
	out.Hash(n)
	return out
}

// XORTail XORs bytes 0..3 of m in place with the 4-byte little-endian
// projection lo32(s), leaving bytes 4..5 of m untouched.
//
// This asymmetry is load-bearing: bytes 4-5 of the MAC survive the fold
// and carry the PUF-challenge entropy through the hash-chain evolution
// (PUF-ACS design document Section 3, Section 9 Open Questions). Do not
// "symmetrize" this to a full 6-byte XOR.
func (m *MAC) XORTail(lo32 [4]byte) {
	for i := 0; i < 4; i++ {
		m[i] ^= lo32[i]
	}
}

// XORTailed returns a copy of m with XORTail(lo32) applied.
//
// XORTail is an involution: m.XORTailed(k).XORTailed(k) == m, since XOR
// with the same value twice cancels (PUF-ACS design document Section 8,
// law 6).
func (m MAC) XORTailed(lo32 [4]byte) MAC {
	out := m
	out.XORTail(lo32)
	return out
}

// Equal reports whether m and other hold the same 6 bytes.
func (m MAC) Equal(other MAC) bool {
	return m == other
}

// String returns the colon-hex representation, e.g. "aa:bb:cc:dd:ee:ff".
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Hex returns the MAC as a plain 12-character hex string with no separators,
// the form used by the credential store's CSV rows.
func (m MAC) Hex() string {
	return hex.EncodeToString(m[:])
}

// ParseHex parses a 12-character hex string (no separators) into a MAC.
func ParseHex(s string) (MAC, error) {
	var m MAC
	b, err := hex.DecodeString(s)
	if err != nil {
		return m, fmt.Errorf("mac.ParseHex(%q): %w", s, ErrInvalidHex)
	}
	return FromBytes(b)
}

// MarshalText implements encoding.TextMarshaler, emitting colon-hex form so
// MAC values round-trip through koanf-backed YAML/env configuration and
// structured logging without a bespoke codec.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting either
// colon-hex ("aa:bb:cc:dd:ee:ff") or bare hex ("aabbccddeeff") forms.
func (m *MAC) UnmarshalText(text []byte) error {
	s := string(text)
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ':' || s[i] == '-' {
			continue
		}
		clean = append(clean, s[i])
	}
	parsed, err := ParseHex(string(clean))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
