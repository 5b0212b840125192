package engine

import (
	"github.com/dantte-lp/pufacs/internal/credstore"
	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// CredentialStore is the Authenticator's credential-store capability
// (PUF-ACS design document Section 4.4, "AuthenticationServer" in the
// original). *credstore.Store satisfies this directly; tests may supply a
// fake.
type CredentialStore interface {
	StoreEntry(baseMAC mac.MAC, a pufcrypto.Point, hashedMAC mac.MAC, counter int)
	Query(m mac.MAC, decrement bool) credstore.QueryResult
}

// Metrics is the optional observability capability engines report
// through. Engines default to noopMetrics when no Metrics option is given;
// a nil Metrics passed through an option is not guarded against.
type Metrics interface {
	HandshakeAttempt(role string)
	HandshakeResult(role, phase string, success bool)
	PerformanceFrameResult(valid bool)
}

// noopMetrics discards every call; used when no Metrics is configured.
type noopMetrics struct{}

func (noopMetrics) HandshakeAttempt(string)             {}
func (noopMetrics) HandshakeResult(string, string, bool) {}
func (noopMetrics) PerformanceFrameResult(bool)          {}

// State is a protocol engine's position in its handshake state machine
// (PUF-ACS design document Section 4.5.1).
type State int

const (
	StateUninitialised State = iota
	StateInitialised
	StateHanging
	StateValidating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUninitialised:
		return "UNINITIALISED"
	case StateInitialised:
		return "INITIALISED"
	case StateHanging:
		return "HANGING"
	case StateValidating:
		return "VALIDATING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}
