package pufcrypto

import (
	"errors"
	"math/big"
)

// ErrScalarTooLong indicates more than 32 bytes were supplied to a scalar
// decoder.
var ErrScalarTooLong = errors.New("scalar encoding exceeds 32 bytes")

// Scalar is an integer in [0, n) where n is the order of SECP256R1
// (PUF-ACS design document Section 3).
type Scalar struct {
	v *big.Int
}

// order is the group order n of SECP256R1 (crypto/elliptic.P256().Params().N).
func order() *big.Int {
	return curve().Params().N
}

// NewScalar reduces an arbitrary *big.Int mod n, copying its input.
func NewScalar(v *big.Int) Scalar {
	r := new(big.Int).Mod(v, order())
	return Scalar{v: r}
}

// ScalarFromUint64 builds a Scalar from a uint64, for tests and fixed
// vectors.
func ScalarFromUint64(v uint64) Scalar {
	return NewScalar(new(big.Int).SetUint64(v))
}

// ScalarFromLittleEndian decodes a little-endian byte encoding of a scalar
// (PUF-ACS design document Section 3: "little-endian for scalar payloads").
// Accepts up to 32 bytes; shorter encodings are zero-extended on the high
// end (i.e. the value is unaffected by trailing zero bytes in the input).
func ScalarFromLittleEndian(b []byte) (Scalar, error) {
	if len(b) > 32 {
		return Scalar{}, mathErr("ScalarFromLittleEndian", ErrScalarTooLong)
	}
	be := reverseBytes(b)
	return NewScalar(new(big.Int).SetBytes(be)), nil
}

// LittleEndian returns the scalar's 32-byte little-endian encoding.
func (s Scalar) LittleEndian() [32]byte {
	var out [32]byte
	be := s.v.FillBytes(make([]byte, 32))
	copy(out[:], reverseBytes(be))
	return out
}

// Lo32 returns the narrow 32-bit little-endian projection lo32(s): the
// least-significant 4 bytes of the scalar's little-endian encoding
// (PUF-ACS design document Section 3).
func (s Scalar) Lo32() [4]byte {
	le := s.LittleEndian()
	var out [4]byte
	copy(out[:], le[:4])
	return out
}

// Add returns s + other mod n.
func (s Scalar) Add(other Scalar) Scalar {
	return NewScalar(new(big.Int).Add(s.v, other.v))
}

// Mul returns s * other mod n.
func (s Scalar) Mul(other Scalar) Scalar {
	return NewScalar(new(big.Int).Mul(s.v, other.v))
}

// IsZero reports whether the scalar is the additive identity.
func (s Scalar) IsZero() bool {
	return s.v.Sign() == 0
}

// BigInt returns the scalar's value as a *big.Int, for interop with
// crypto/elliptic's big.Int-based API. The returned value is a copy.
func (s Scalar) BigInt() *big.Int {
	return new(big.Int).Set(s.v)
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
