// Package integration exercises the PUF-ACS handshake and performance-frame
// scenarios end to end, through the public engine/credstore/netio/packet/
// pufcrypto/mac API only (no unexported-field access), mirroring the testable-property
// scenarios of the PUF-ACS design document Section 8.
package integration

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/pufacs/internal/credstore"
	"github.com/dantte-lp/pufacs/internal/engine"
	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/netio"
	"github.com/dantte-lp/pufacs/internal/packet"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

var switchMAC = mac.MAC{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01}

// fixedProvider is a puf.Provider stand-in that always returns the same
// base MAC and response, letting scenario tests use the literal example
// values from the design document rather than derived HMAC output.
type fixedProvider struct {
	baseMAC  mac.MAC
	response mac.MAC
}

func (p fixedProvider) PUFToMAC() mac.MAC                { return p.baseMAC }
func (p fixedProvider) GetPUFResponse(_ mac.MAC) mac.MAC { return p.response }

// recordingConn wraps a netio.Network and records every frame it classifies
// as PUF_CON, for the replay scenario (S3), which needs the exact bytes a
// Supplicant put on the wire.
type recordingConn struct {
	netio.Network
	pufCons [][]byte
}

func (r *recordingConn) Send(buf []byte) error {
	if packet.Classify(buf) == packet.KindPUFCon {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		r.pufCons = append(r.pufCons, cp)
	}
	return r.Network.Send(buf)
}

func newCryptoContext(seed string) *pufcrypto.CryptoContext {
	return pufcrypto.NewDeterministicCryptoContext([]byte(seed))
}

// enroll drives SignUp over a connected pipe pair.
func enroll(t *testing.T, ctx context.Context, sup *engine.Supplicant, auth *engine.Authenticator) {
	t.Helper()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.SignUp(gCtx) })
	g.Go(func() error { return auth.SignUp(gCtx) })
	if err := g.Wait(); err != nil {
		t.Fatalf("enroll: %v", err)
	}
}

// runHandshake drives Connect/Accept to completion. authConn is the
// Authenticator's own transport leg, used here (rather than inside engine)
// to pull the PUF_CON bytes Accept expects as an argument.
func runHandshake(t *testing.T, ctx context.Context, sup *engine.Supplicant, auth *engine.Authenticator, authConn netio.Network, attempts int) error {
	t.Helper()
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Connect(gCtx, attempts) })
	g.Go(func() error {
		buf := make([]byte, packet.PUFConLen)
		n, err := authConn.Receive(gCtx, buf)
		if err != nil {
			return err
		}
		return auth.Accept(gCtx, buf[:n])
	})
	return g.Wait()
}

// wiredPair builds a connected Supplicant/Authenticator pair sharing a
// fresh credential store and a deterministic crypto context, plus the raw
// pipe legs each engine was constructed over.
func wiredPair(t *testing.T, seed string) (sup *engine.Supplicant, auth *engine.Authenticator, store *credstore.Store, authConn netio.Network) {
	t.Helper()
	a, b := netio.NewPipe()
	provider := fixedProvider{
		baseMAC:  mac.MAC{0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
		response: mac.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
	}
	store = credstore.New()
	crypto := newCryptoContext(seed)

	sup = engine.NewSupplicant(a, provider, crypto, switchMAC)
	auth = engine.NewAuthenticator(b, store, crypto, switchMAC)
	return sup, auth, store, b
}

// TestScenarioS1Enrolment matches design document Section 8, S1: after
// enrolment the credential store holds exactly one entry, keyed by
// hash^1(base_mac).
func TestScenarioS1Enrolment(t *testing.T) {
	ctx := context.Background()
	sup, auth, store, _ := wiredPair(t, "s1-seed")

	enroll(t, ctx, sup, auth)

	if got := store.Len(); got != 1 {
		t.Fatalf("store.Len() = %d, want 1", got)
	}

	baseMAC := mac.MAC{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	q := store.Query(baseMAC.Hashed(1), false)
	if !q.Valid {
		t.Fatalf("expected entry keyed by hash^1(base_mac), found none")
	}
	if !q.BaseMAC.Equal(baseMAC) {
		t.Errorf("stored base_mac = %s, want %s", q.BaseMAC, baseMAC)
	}
}

// TestScenarioS2HappyPath matches S2: a full handshake reaches CONNECTED on
// both sides.
func TestScenarioS2HappyPath(t *testing.T) {
	ctx := context.Background()
	sup, auth, _, authConn := wiredPair(t, "s2-seed")

	if err := sup.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	enroll(t, ctx, sup, auth)

	if err := runHandshake(t, ctx, sup, auth, authConn, 3); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	if !sup.Connected() {
		t.Error("supplicant not connected")
	}
	if !auth.Connected() {
		t.Error("authenticator not connected")
	}
}

// TestScenarioS3Replay matches S3: replaying the exact PUF_CON bytes from a
// completed handshake against the same (now-advanced) store fails.
func TestScenarioS3Replay(t *testing.T) {
	ctx := context.Background()
	a, b := netio.NewPipe()
	rec := &recordingConn{Network: a}

	provider := fixedProvider{
		baseMAC:  mac.MAC{0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
		response: mac.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
	}
	store := credstore.New()
	crypto := newCryptoContext("s3-seed")

	sup := engine.NewSupplicant(rec, provider, crypto, switchMAC)
	auth := engine.NewAuthenticator(b, store, crypto, switchMAC)

	if err := sup.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	enroll(t, ctx, sup, auth)

	if err := runHandshake(t, ctx, sup, auth, b, 3); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if !auth.Connected() {
		t.Fatalf("first handshake did not connect")
	}
	if len(rec.pufCons) == 0 {
		t.Fatalf("no PUF_CON frame captured")
	}
	replayed := rec.pufCons[0]

	// The store has advanced current_mac past the value used above;
	// replaying those exact bytes must miss.
	if err := auth.Accept(ctx, replayed); err == nil {
		t.Fatalf("replayed PUF_CON unexpectedly accepted")
	}
}

// TestScenarioS4WrongResponder matches S4: a Supplicant presenting a
// different PUF response than the one used at enrolment fails
// verification.
func TestScenarioS4WrongResponder(t *testing.T) {
	ctx := context.Background()
	baseMAC := mac.MAC{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	goodResponse := mac.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	badResponse := mac.MAC{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	store := credstore.New()
	crypto := newCryptoContext("s4-seed")

	enrollConnA, enrollConnB := netio.NewPipe()
	enrollSup := engine.NewSupplicant(enrollConnA, fixedProvider{baseMAC: baseMAC, response: goodResponse}, crypto, switchMAC)
	enrollAuth := engine.NewAuthenticator(enrollConnB, store, crypto, switchMAC)
	if err := enrollAuth.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	enroll(t, ctx, enrollSup, enrollAuth)

	// A single Authenticator serves one session at a time (PUF-ACS design
	// document Section 1, Non-goals); model the next accept cycle with a
	// fresh Authenticator sharing the same store.
	connA, connB := netio.NewPipe()
	badSup := engine.NewSupplicant(connA, fixedProvider{baseMAC: baseMAC, response: badResponse}, crypto, switchMAC)
	auth := engine.NewAuthenticator(connB, store, crypto, switchMAC)
	if err := badSup.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := runHandshake(t, ctx, badSup, auth, connB, 1)
	if err == nil {
		t.Fatalf("expected handshake failure with wrong PUF response")
	}
	if auth.Connected() {
		t.Errorf("authenticator reports connected with wrong PUF response")
	}
}

// TestScenarioS5CounterExhaustion matches S5: once the counter reaches
// zero the entry is removed, even though the queried MAC was derived
// correctly.
func TestScenarioS5CounterExhaustion(t *testing.T) {
	ctx := context.Background()
	sup, auth, store, authConn := wiredPair(t, "s5-seed")

	if err := sup.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	enroll(t, ctx, sup, auth)

	// Force the budget down to 1 while preserving the real base_mac/A the
	// enrolment just established.
	baseMAC := mac.MAC{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	currentMAC := baseMAC.Hashed(1)
	q := store.Query(currentMAC, false)
	if !q.Valid {
		t.Fatalf("expected entry after enrolment")
	}
	store.StoreEntry(q.BaseMAC, q.A, currentMAC, 1)

	if err := runHandshake(t, ctx, sup, auth, authConn, 3); err != nil {
		t.Fatalf("handshake with counter=1: %v", err)
	}
	if !auth.Connected() {
		t.Fatalf("handshake with counter=1 unexpectedly failed")
	}
	if got := store.Len(); got != 0 {
		t.Errorf("store.Len() after counter exhaustion = %d, want 0", got)
	}
}

// TestScenarioS6PerformanceFrameTag matches S6: a valid initial
// performance frame validates; a one-bit flip in vlan_buf_1 is rejected.
func TestScenarioS6PerformanceFrameTag(t *testing.T) {
	ctx := context.Background()
	sup, auth, _, authConn := wiredPair(t, "s6-seed")

	if err := sup.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	enroll(t, ctx, sup, auth)
	if err := runHandshake(t, ctx, sup, auth, authConn, 3); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	txErrCh := make(chan error, 1)
	go func() { txErrCh <- sup.Transmit(nil, true) }()

	buf := make([]byte, packet.PerformanceMax)
	n, err := authConn.Receive(ctx, buf)
	if err != nil {
		t.Fatalf("receive performance frame: %v", err)
	}
	if err := <-txErrCh; err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	frame, err := packet.DecodePerformance(buf[:n])
	if err != nil {
		t.Fatalf("decode performance frame: %v", err)
	}
	if !auth.Validate(frame, true) {
		t.Fatalf("valid initial performance frame rejected")
	}

	flipped := frame
	flipped.VLANBuf1[0] ^= 0x01
	if auth.Validate(flipped, true) {
		t.Fatalf("bit-flipped performance frame accepted")
	}
}
