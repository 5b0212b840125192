package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/netio"
	"github.com/dantte-lp/pufacs/internal/packet"
	"github.com/dantte-lp/pufacs/internal/puf"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// Supplicant drives the PUF-ACS handshake from the resource-constrained
// device side (PUF-ACS design document Section 4.5.1).
type Supplicant struct {
	net       netio.Network
	puf       puf.Provider
	crypto    *pufcrypto.CryptoContext
	switchMAC mac.MAC

	log     *slog.Logger
	metrics Metrics

	state State
	mac   mac.MAC
	t     pufcrypto.Scalar
	k     pufcrypto.Scalar

	lastPUFSyn packet.PUFSyn
	lastTag    [32]byte
	hasChain   bool
}

// SupplicantOption configures a Supplicant at construction.
type SupplicantOption func(*Supplicant)

// WithSupplicantLogger attaches a structured logger.
func WithSupplicantLogger(logger *slog.Logger) SupplicantOption {
	return func(s *Supplicant) { s.log = logger }
}

// WithSupplicantMetrics attaches a Metrics recorder.
func WithSupplicantMetrics(m Metrics) SupplicantOption {
	return func(s *Supplicant) { s.metrics = m }
}

// NewSupplicant builds a Supplicant bound to net and provider, targeting
// switchMAC, starting in StateUninitialised.
func NewSupplicant(net netio.Network, provider puf.Provider, crypto *pufcrypto.CryptoContext, switchMAC mac.MAC, opts ...SupplicantOption) *Supplicant {
	s := &Supplicant{
		net:       net,
		puf:       provider,
		crypto:    crypto,
		switchMAC: switchMAC,
		log:       slog.New(slog.DiscardHandler),
		metrics:   noopMetrics{},
		state:     StateUninitialised,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the Supplicant's current state.
func (s *Supplicant) State() State {
	return s.state
}

// Init extracts the device's PUF-based identity and prepares the network.
// The on-wire identity is the first hash in the chain, never the raw PUF
// output (PUF-ACS design document Section 4.5.1, Phase 0).
func (s *Supplicant) Init(ctx context.Context) error {
	if err := s.net.Init(ctx); err != nil {
		return phaseErr("init", err)
	}
	s.mac = s.puf.PUFToMAC()
	s.mac.Hash(1)
	s.state = StateInitialised
	s.log.Info("supplicant initialised", "mac", s.mac)
	return nil
}

// SignUp performs the one-time, out-of-band enrolment: it derives the
// long-term key pair from the PUF and registers it with the Authenticator
// (PUF-ACS design document Section 4.5.1, Phase 0b). It does not require
// Init to have run first; sign-up uses its own fresh PUF read of base_mac.
func (s *Supplicant) SignUp(_ context.Context) error {
	baseMAC := s.puf.PUFToMAC()
	response := s.puf.GetPUFResponse(baseMAC)
	a, err := pufcrypto.ScalarFromLittleEndian(response.Bytes())
	if err != nil {
		return phaseErr("sign_up", err)
	}
	T := pufcrypto.Generator().Mul(a)

	reg := packet.Register{SrcMAC: baseMAC, DstMAC: s.switchMAC, T: T}
	buf, err := reg.Encode()
	if err != nil {
		return phaseErr("sign_up", err)
	}
	if err := s.net.Send(buf); err != nil {
		return phaseErr("sign_up", err)
	}
	s.log.Info("sign-up sent", "base_mac", baseMAC)
	return nil
}

// WaitForCounterSyncStub is the original implementation's stubbed
// counter-negotiation path, which always returns 10 regardless of what the
// Authenticator actually granted (PUF-ACS design document Section 9,
// REDESIGN FLAGS). Kept only for callers that still depend on the
// original fixed-counter behavior; new code should use
// WaitForCounterSync.
func (s *Supplicant) WaitForCounterSyncStub() int {
	return 10
}

// WaitForCounterSync performs the real counter-negotiation exchange the
// original implementation commented out: it waits for one PUF_Performance
// frame whose payload carries the Authenticator-granted counter as a
// big-endian 32-bit value in its first 4 bytes, and returns it.
func (s *Supplicant) WaitForCounterSync(ctx context.Context) (int, error) {
	buf := make([]byte, packet.PerformanceMax)
	n, err := s.net.Receive(ctx, buf)
	if err != nil {
		return 0, phaseErr("wait_for_counter_sync", err)
	}
	if packet.Classify(buf[:n]) != packet.KindPerformance {
		return 0, phaseErr("wait_for_counter_sync", ErrUnexpectedFrameKind)
	}
	frame, err := packet.DecodePerformance(buf[:n])
	if err != nil {
		return 0, phaseErr("wait_for_counter_sync", err)
	}
	// DecodePerformance guarantees at least PerformanceMin bytes, so the
	// payload always holds the 4 counter bytes.
	counter := binary.BigEndian.Uint32(frame.Payload[0:4])
	return int(counter), nil
}

// pufConPhase sends PUF_CON{src=mac, dst=switchMAC, T=G*t} for a fresh
// ephemeral t (PUF-ACS design document Section 4.5.1, Phase 1).
func (s *Supplicant) pufConPhase() error {
	t, err := s.crypto.RandScalar()
	if err != nil {
		return phaseErr("PUF_CON", err)
	}
	s.t = t
	con := packet.PUFCon{SrcMAC: s.mac, DstMAC: s.switchMAC, T: pufcrypto.Generator().Mul(t)}
	buf, err := con.Encode()
	if err != nil {
		return phaseErr("PUF_CON", err)
	}
	if err := s.net.Send(buf); err != nil {
		return phaseErr("PUF_CON", err)
	}
	return nil
}

// pufSynPhase receives and decodes one PUF_SYN frame (PUF-ACS design
// document Section 4.5.1, Phase 2). Timeout or decode failure is a phase
// failure, not a panic.
func (s *Supplicant) pufSynPhase(ctx context.Context) error {
	buf := make([]byte, packet.PUFSynLen)
	n, err := s.net.Receive(ctx, buf)
	if err != nil {
		return phaseErr("PUF_SYN", err)
	}
	if packet.Classify(buf[:n]) != packet.KindPUFSyn {
		return phaseErr("PUF_SYN", ErrUnexpectedFrameKind)
	}
	syn, err := packet.DecodePUFSyn(buf[:n])
	if err != nil {
		return phaseErr("PUF_SYN", err)
	}
	s.lastPUFSyn = syn
	return nil
}

// pufAckPhase recovers the Authenticator's PUF challenge, re-derives its
// own long-term key from a fresh PUF read, computes S, and replies with
// PUF_SYN_ACK (PUF-ACS design document Section 4.5.1, Phase 3).
func (s *Supplicant) pufAckPhase() error {
	syn := s.lastPUFSyn

	K := syn.C.Mul(s.t)
	k, err := K.AffineX()
	if err != nil {
		return phaseErr("PUF_ACK", err)
	}
	s.k = k

	recoveredPC := syn.PC.XORTailed(k.Lo32())
	response := s.puf.GetPUFResponse(recoveredPC)
	a, err := pufcrypto.ScalarFromLittleEndian(response.Bytes())
	if err != nil {
		return phaseErr("PUF_ACK", err)
	}

	d, err := pufcrypto.ScalarFromLittleEndian(syn.D[:])
	if err != nil {
		return phaseErr("PUF_ACK", err)
	}

	S := pufcrypto.Generator().Mul(s.t.Add(a.Mul(d)))

	ack := packet.PUFSynAck{SrcMAC: s.mac, DstMAC: s.switchMAC, S: S}
	buf, err := ack.Encode()
	if err != nil {
		return phaseErr("PUF_ACK", err)
	}
	if err := s.net.Send(buf); err != nil {
		return phaseErr("PUF_ACK", err)
	}
	return nil
}

// Connect drives the state machine through PUF_CON -> PUF_SYN -> PUF_ACK,
// rewinding to StateInitialised and decrementing the attempt budget on any
// phase failure (PUF-ACS design document Section 4.5.1: "connect(attempts)
// drives transitions; any phase failure rewinds to INITIALISED and
// decrements the attempt budget"). Calling Connect before Init is a
// programmer-contract violation and panics with an EngineError wrapping
// ErrNotInitialised.
func (s *Supplicant) Connect(ctx context.Context, attempts int) error {
	if s.state == StateUninitialised {
		panic(phaseErr("connect", ErrNotInitialised))
	}

	for s.state != StateConnected && attempts > 0 {
		s.metrics.HandshakeAttempt("supplicant")

		switch s.state {
		case StateInitialised:
			if err := s.pufConPhase(); err != nil {
				s.metrics.HandshakeResult("supplicant", "PUF_CON", false)
				s.state = StateInitialised
				attempts--
				continue
			}
			s.state = StateHanging
			fallthrough

		case StateHanging:
			if err := s.pufSynPhase(ctx); err != nil {
				s.metrics.HandshakeResult("supplicant", "PUF_SYN", false)
				s.state = StateInitialised
				attempts--
				continue
			}
			s.state = StateValidating
			fallthrough

		case StateValidating:
			if err := s.pufAckPhase(); err != nil {
				s.metrics.HandshakeResult("supplicant", "PUF_ACK", false)
				s.state = StateInitialised
				attempts--
				continue
			}
			s.state = StateConnected
			s.metrics.HandshakeResult("supplicant", "PUF_ACK", true)

		default:
			return phaseErr("connect", errors.New("unreachable state"))
		}
	}

	if s.state != StateConnected {
		return phaseErr("connect", ErrAttemptsExhausted)
	}
	return nil
}

// Connected reports whether the handshake has completed successfully.
func (s *Supplicant) Connected() bool {
	return s.state == StateConnected
}

// Transmit sends one PUF_Performance frame carrying payload, tagging its
// VLAN fields with the next hash-chain value H[i] (PUF-ACS design
// document Section 4.5.3). initial resets the chain to H[0]; subsequent
// calls should pass initial=false to advance it.
func (s *Supplicant) Transmit(payload []byte, initial bool) error {
	if !s.Connected() {
		return phaseErr("transmit", ErrNotConnected)
	}

	var h [32]byte
	if initial || !s.hasChain {
		h = packet.InitialTag(s.mac, s.k)
	} else {
		h = packet.NextTag(s.lastTag, s.k)
	}
	buf1, buf2 := packet.TagToVLANFields(h)

	frame := packet.Performance{
		SrcMAC:   s.mac,
		DstMAC:   s.switchMAC,
		VLANBuf1: buf1,
		VLANBuf2: buf2,
		Payload:  payload,
	}
	buf, err := frame.Encode()
	if err != nil {
		return phaseErr("transmit", err)
	}
	if err := s.net.Send(buf); err != nil {
		return phaseErr("transmit", err)
	}
	s.lastTag = h
	s.hasChain = true
	return nil
}
