package pufcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// hashDRBG is a minimal HMAC-SHA256 counter-mode expansion used only to
// produce deterministic, reproducible randomness for test vectors
// (PUF-ACS design document Section 4.1). It is NOT a general-purpose CSPRNG
// and must never back NewCryptoContext in production.
type hashDRBG struct {
	key     []byte
	counter uint64
	buf     []byte
}

func newHashDRBG(seed, personalization []byte) *hashDRBG {
	mac := hmac.New(sha256.New, seed)
	mac.Write(personalization)
	return &hashDRBG{key: mac.Sum(nil)}
}

// Read implements io.Reader, filling p with deterministic HMAC-SHA256
// counter-mode output derived from the seed and personalization string.
func (d *hashDRBG) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(d.buf) == 0 {
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], d.counter)
			d.counter++
			mac := hmac.New(sha256.New, d.key)
			mac.Write(ctr[:])
			d.buf = mac.Sum(nil)
		}
		copied := copy(p[n:], d.buf)
		d.buf = d.buf[copied:]
		n += copied
	}
	return n, nil
}
