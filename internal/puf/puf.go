// Package puf defines the PUF (Physically Unclonable Function) capability
// interface used by the Supplicant engine, and a deterministic software
// stand-in for development and testing.
package puf

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/dantte-lp/pufacs/internal/mac"
)

// Provider is the PUF capability a Supplicant is constructed with
// (PUF-ACS design document Section 6). Concrete implementations read SRAM
// start-up values, ring-oscillator timings, or other silicon-level entropy
// sources; those are deliberately out of scope here.
type Provider interface {
	// PUFToMAC derives the device's raw PUF-based MAC identifier.
	PUFToMAC() mac.MAC

	// GetPUFResponse returns the PUF's response to challenge, a 6-byte
	// value interpreted as a little-endian scalar by the caller.
	GetPUFResponse(challenge mac.MAC) mac.MAC
}

// SimulatedProvider is a deterministic, HMAC-SHA256-backed software PUF,
// for development, CI, and scenarios that do not have real PUF hardware
// attached (PUF-ACS design document Section 6: "the concrete PUF interface
// ... is deliberately out of scope").
//
// A real PUF is unclonable because the response to a challenge depends on
// silicon-level manufacturing variation; SimulatedProvider instead derives
// a response deterministically from a fixed secret key, which is
// sufficient to drive the protocol's algebra in tests but must never back
// a production deployment.
type SimulatedProvider struct {
	key []byte
}

// NewSimulatedProvider builds a SimulatedProvider keyed by secret. The same
// secret always yields the same MAC and the same response to a given
// challenge.
func NewSimulatedProvider(secret []byte) *SimulatedProvider {
	key := make([]byte, len(secret))
	copy(key, secret)
	return &SimulatedProvider{key: key}
}

// PUFToMAC derives a 6-byte MAC from HMAC-SHA256(key, "puf-to-mac").
func (p *SimulatedProvider) PUFToMAC() mac.MAC {
	return p.derive("puf-to-mac")
}

// GetPUFResponse derives a 6-byte response from
// HMAC-SHA256(key, "puf-response" || challenge).
func (p *SimulatedProvider) GetPUFResponse(challenge mac.MAC) mac.MAC {
	h := hmac.New(sha256.New, p.key)
	h.Write([]byte("puf-response"))
	h.Write(challenge.Bytes())
	sum := h.Sum(nil)
	m, _ := mac.FromBytes(sum[:6])
	return m
}

func (p *SimulatedProvider) derive(label string) mac.MAC {
	h := hmac.New(sha256.New, p.key)
	h.Write([]byte(label))
	sum := h.Sum(nil)
	m, _ := mac.FromBytes(sum[:6])
	return m
}
