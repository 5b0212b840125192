package pufcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"math/big"
)

// Personalization is the CSPRNG personalization string mixed in at
// CryptoContext construction (PUF-ACS design document Section 6).
const Personalization = "puf-acs-esp"

// CryptoContext bundles the curve group reference and a CSPRNG behind a
// single explicit, constructor-injected value.
//
// PUF-ACS design document Section 9 ("process-wide singletons -> explicit
// context") calls for curve parameters and the CSPRNG to be an explicit
// context constructed once and passed by reference into every component
// that needs it, rather than package-level globals -- the same pattern
// the teacher daemon uses for its session clock and RNG collaborators.
type CryptoContext struct {
	rng             io.Reader
	personalization string
}

// NewCryptoContext builds a production CryptoContext backed directly by
// crypto/rand.Reader. The personalization string is recorded for
// diagnostics only; crypto/rand.Reader does not accept seed material.
func NewCryptoContext() *CryptoContext {
	return &CryptoContext{
		rng:             rand.Reader,
		personalization: Personalization,
	}
}

// NewDeterministicCryptoContext builds a CryptoContext whose CSPRNG output
// is derived deterministically from seed and the personalization string,
// for reproducible test vectors (PUF-ACS design document Section 4.1:
// "inject a seeded CSPRNG for reproducible vectors").
//
// This is a test/debug facility only; production code must use
// NewCryptoContext.
func NewDeterministicCryptoContext(seed []byte) *CryptoContext {
	return &CryptoContext{
		rng:             newHashDRBG(seed, []byte(Personalization)),
		personalization: Personalization,
	}
}

// Personalization returns the CSPRNG personalization string this context
// was constructed with.
func (c *CryptoContext) Personalization() string {
	return c.personalization
}

// RandScalar returns a scalar uniform in [1, n)
// (PUF-ACS design document Section 4.1: "rand_scalar() -> uniform in
// [1, n)"). Rejection sampling is used to avoid modulo bias.
func (c *CryptoContext) RandScalar() (Scalar, error) {
	for {
		buf := make([]byte, 32)
		if _, err := io.ReadFull(c.rng, buf); err != nil {
			return Scalar{}, mathErr("RandScalar", err)
		}
		v := new(big.Int).SetBytes(buf)
		if v.Sign() == 0 || v.Cmp(order()) >= 0 {
			continue
		}
		return NewScalar(v), nil
	}
}

// SHA256 computes SHA-256 over data, infallible on any input length
// (PUF-ACS design document Section 4.1).
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
