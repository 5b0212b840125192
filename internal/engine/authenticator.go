package engine

import (
	"context"
	"log/slog"

	"github.com/dantte-lp/pufacs/internal/credstore"
	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/netio"
	"github.com/dantte-lp/pufacs/internal/packet"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// Authenticator is the reactive side of the PUF-ACS handshake, run by the
// edge switch (PUF-ACS design document Section 4.5.2). A single instance
// handles one authentication session at a time (PUF-ACS design document
// Section 1, Non-goals: "multi-supplicant concurrency on one Authenticator
// instance ... is an orchestration concern above this core").
type Authenticator struct {
	net       netio.Network
	store     CredentialStore
	crypto    *pufcrypto.CryptoContext
	switchMAC mac.MAC

	log     *slog.Logger
	metrics Metrics

	baseMAC, remoteMAC mac.MAC
	a                  pufcrypto.Point
	k                  pufcrypto.Scalar
	lastPUFCon         packet.PUFCon
	lastPUFSyn         packet.PUFSyn

	connected bool
	lastTag   [32]byte
	hasChain  bool
}

// AuthenticatorOption configures an Authenticator at construction.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorLogger attaches a structured logger.
func WithAuthenticatorLogger(logger *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.log = logger }
}

// WithAuthenticatorMetrics attaches a Metrics recorder.
func WithAuthenticatorMetrics(m Metrics) AuthenticatorOption {
	return func(a *Authenticator) { a.metrics = m }
}

// NewAuthenticator builds an Authenticator bound to net and store,
// identifying itself on the wire as switchMAC.
func NewAuthenticator(net netio.Network, store CredentialStore, crypto *pufcrypto.CryptoContext, switchMAC mac.MAC, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		net:       net,
		store:     store,
		crypto:    crypto,
		switchMAC: switchMAC,
		log:       slog.New(slog.DiscardHandler),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init prepares the network transport. Credential-store persistence
// (fetch/sync) is owned by the caller, since the store's lifecycle spans
// more than one Authenticator session.
func (a *Authenticator) Init(ctx context.Context) error {
	if err := a.net.Init(ctx); err != nil {
		return phaseErr("init", err)
	}
	return nil
}

// Connected reports whether the most recent Accept completed successfully.
func (a *Authenticator) Connected() bool {
	return a.connected
}

// SignUp completes a Supplicant's one-time enrolment: it receives a
// REGISTER frame, stores the presented identity and public key, and
// advances the stored MAC past its base value by one hash application
// (PUF-ACS design document Section 4.5.1, Phase 0b / original
// Authenticator::sign_up).
func (a *Authenticator) SignUp(ctx context.Context) error {
	buf := make([]byte, packet.PUFConLen)
	n, err := a.net.Receive(ctx, buf)
	if err != nil {
		return phaseErr("sign_up", err)
	}
	if packet.Classify(buf[:n]) != packet.KindPUFCon {
		return phaseErr("sign_up", ErrUnexpectedFrameKind)
	}
	reg, err := packet.DecodePUFCon(buf[:n])
	if err != nil {
		return phaseErr("sign_up", err)
	}

	baseMAC := reg.SrcMAC
	hashedMAC := baseMAC.Hashed(1)
	a.store.StoreEntry(baseMAC, reg.T, hashedMAC, credstore.DefaultCounter)
	a.log.Info("supplicant enrolled", "base_mac", baseMAC, "current_mac", hashedMAC)
	return nil
}

// pufConPhase resolves the presented identity against the credential
// store (PUF-ACS design document Section 4.5.2, step 1-2). Query itself
// advances the store's hash chain.
func (a *Authenticator) pufConPhase(con packet.PUFCon) error {
	q := a.store.Query(con.SrcMAC, true)
	if !q.Valid {
		return phaseErr("PUF_CON", ErrCredentialMiss)
	}
	a.baseMAC = q.BaseMAC
	a.a = q.A
	a.remoteMAC = con.SrcMAC
	a.lastPUFCon = con
	return nil
}

// pufSynPhase picks fresh ephemerals c, d, computes the shared point K and
// the PUF challenge pc, and emits PUF_SYN (PUF-ACS design document Section
// 4.5.2, step 3).
func (a *Authenticator) pufSynPhase() (d pufcrypto.Scalar, err error) {
	c, err := a.crypto.RandScalar()
	if err != nil {
		return pufcrypto.Scalar{}, phaseErr("PUF_SYN", err)
	}
	d, err = a.crypto.RandScalar()
	if err != nil {
		return pufcrypto.Scalar{}, phaseErr("PUF_SYN", err)
	}

	C := pufcrypto.Generator().Mul(c)
	K := a.lastPUFCon.T.Mul(c)
	k, err := K.AffineX()
	if err != nil {
		return pufcrypto.Scalar{}, phaseErr("PUF_SYN", err)
	}
	a.k = k

	pc := a.baseMAC.XORTailed(k.Lo32())

	syn := packet.PUFSyn{
		SrcMAC: a.switchMAC,
		DstMAC: a.remoteMAC,
		D:      packet.DFromScalar(d),
		PC:     pc,
		C:      C,
	}
	buf, err := syn.Encode()
	if err != nil {
		return pufcrypto.Scalar{}, phaseErr("PUF_SYN", err)
	}
	if err := a.net.Send(buf); err != nil {
		return pufcrypto.Scalar{}, phaseErr("PUF_SYN", err)
	}
	a.lastPUFSyn = syn
	return d, nil
}

// Accept handles one inbound frame, which must classify as PUF_CON; the
// rest of the handshake (PUF_SYN emission, PUF_SYN_ACK reception and
// verification) is pulled synchronously within this call (PUF-ACS design
// document Section 4.5.2: "Subsequent frames in the same handshake are
// pulled synchronously within accept").
func (a *Authenticator) Accept(ctx context.Context, frame []byte) error {
	a.connected = false
	a.metrics.HandshakeAttempt("authenticator")

	if packet.Classify(frame) != packet.KindPUFCon {
		a.metrics.HandshakeResult("authenticator", "PUF_CON", false)
		return phaseErr("accept", ErrUnexpectedFrameKind)
	}
	con, err := packet.DecodePUFCon(frame)
	if err != nil {
		a.metrics.HandshakeResult("authenticator", "PUF_CON", false)
		return phaseErr("accept", err)
	}
	if err := a.pufConPhase(con); err != nil {
		a.metrics.HandshakeResult("authenticator", "PUF_CON", false)
		return err
	}

	d, err := a.pufSynPhase()
	if err != nil {
		a.metrics.HandshakeResult("authenticator", "PUF_SYN", false)
		return err
	}

	buf := make([]byte, packet.PUFSynAckLen)
	n, err := a.net.Receive(ctx, buf)
	if err != nil {
		a.metrics.HandshakeResult("authenticator", "PUF_SYN_ACK", false)
		return phaseErr("PUF_SYN_ACK", err)
	}
	if packet.Classify(buf[:n]) != packet.KindPUFSynAck {
		a.metrics.HandshakeResult("authenticator", "PUF_SYN_ACK", false)
		return phaseErr("PUF_SYN_ACK", ErrUnexpectedFrameKind)
	}
	ack, err := packet.DecodePUFSynAck(buf[:n])
	if err != nil {
		a.metrics.HandshakeResult("authenticator", "PUF_SYN_ACK", false)
		return phaseErr("PUF_SYN_ACK", err)
	}

	// S_expected = A*d + T, equivalent to G*(a*d + t) by bilinearity
	// (PUF-ACS design document Section 4.5.2, step 5).
	sExpected := a.a.Mul(d).Add(a.lastPUFCon.T)
	a.connected = ack.S.Equal(sExpected)
	if !a.connected {
		a.metrics.HandshakeResult("authenticator", "PUF_SYN_ACK", false)
		a.hasChain = false
		return phaseErr("PUF_SYN_ACK", ErrVerificationFailed)
	}
	a.metrics.HandshakeResult("authenticator", "PUF_SYN_ACK", true)
	a.hasChain = false
	return nil
}

// Validate checks a received PUF_Performance frame against the
// in-lockstep hash chain (PUF-ACS design document Section 4.5.3). initial
// must be true for the first frame of a session and false thereafter;
// passing the wrong value desynchronizes the chain and requires
// re-handshake.
func (a *Authenticator) Validate(frame packet.Performance, initial bool) bool {
	if !a.connected || !frame.SrcMAC.Equal(a.remoteMAC) {
		a.metrics.PerformanceFrameResult(false)
		return false
	}

	var h [32]byte
	if initial || !a.hasChain {
		h = packet.InitialTag(a.remoteMAC, a.k)
	} else {
		h = packet.NextTag(a.lastTag, a.k)
	}

	ok := frame.MatchesTag(h)
	a.metrics.PerformanceFrameResult(ok)
	if ok {
		a.lastTag = h
		a.hasChain = true
	}
	return ok
}
