package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/pufacs/internal/credstore"
	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/netio"
	"github.com/dantte-lp/pufacs/internal/packet"
	"github.com/dantte-lp/pufacs/internal/puf"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

var testSwitchMAC = mac.MAC{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01}

// wiredPair builds a Supplicant and Authenticator connected over a PipeConn,
// both bound to the same deterministic CryptoContext so test runs are
// reproducible.
func wiredPair(t *testing.T) (*Supplicant, *Authenticator, *credstore.Store) {
	t.Helper()

	supConn, authConn := netio.NewPipe()
	crypto := pufcrypto.NewDeterministicCryptoContext([]byte("engine-test-seed"))
	provider := puf.NewSimulatedProvider([]byte("device-secret"))
	store := credstore.New()

	sup := NewSupplicant(supConn, provider, crypto, testSwitchMAC)
	auth := NewAuthenticator(authConn, store, crypto, testSwitchMAC)

	return sup, auth, store
}

// signUp runs the one-time enrolment exchange, which is request/response
// over buffered channels and needs no goroutine.
func signUp(t *testing.T, ctx context.Context, sup *Supplicant, auth *Authenticator) {
	t.Helper()
	if err := sup.SignUp(ctx); err != nil {
		t.Fatalf("supplicant sign-up: %v", err)
	}
	if err := auth.SignUp(ctx); err != nil {
		t.Fatalf("authenticator sign-up: %v", err)
	}
}

func TestHandshakeEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, auth, _ := wiredPair(t)

	if err := sup.Init(ctx); err != nil {
		t.Fatalf("supplicant init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("authenticator init: %v", err)
	}
	signUp(t, ctx, sup, auth)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Connect(gCtx, 3)
	})
	g.Go(func() error {
		buf := make([]byte, packet.PUFConLen)
		n, err := auth.net.Receive(gCtx, buf)
		if err != nil {
			return err
		}
		return auth.Accept(gCtx, buf[:n])
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	if !sup.Connected() {
		t.Fatal("supplicant did not reach StateConnected")
	}
	if !auth.Connected() {
		t.Fatal("authenticator did not reach connected")
	}
}

// TestHandshakeAlgebraicCorrectness confirms both sides derive the same
// shared ephemeral scalar k, the X-coordinate of T*c == C*t.
func TestHandshakeAlgebraicCorrectness(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, auth, _ := wiredPair(t)
	mustHandshake(t, ctx, sup, auth)

	if sup.k.BigInt().Cmp(auth.k.BigInt()) != 0 {
		t.Fatal("supplicant and authenticator disagree on shared scalar k")
	}
}

// TestPerformanceFrameHashChain walks three successive performance frames
// and confirms the Authenticator validates each one in lockstep, rejecting
// replays of an already-consumed tag.
func TestPerformanceFrameHashChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, auth, _ := wiredPair(t)
	mustHandshake(t, ctx, sup, auth)

	payloads := [][]byte{
		bytes.Repeat([]byte{0x01}, 50),
		bytes.Repeat([]byte{0x02}, 50),
		bytes.Repeat([]byte{0x03}, 50),
	}

	var lastFrame packet.Performance
	for i, payload := range payloads {
		if err := sup.Transmit(payload, i == 0); err != nil {
			t.Fatalf("transmit %d: %v", i, err)
		}
		buf := make([]byte, packet.PerformanceMax)
		n, err := auth.net.Receive(ctx, buf)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		frame, err := packet.DecodePerformance(buf[:n])
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if !auth.Validate(frame, i == 0) {
			t.Fatalf("frame %d rejected, expected accept", i)
		}
		lastFrame = frame
	}

	// Replaying the last-accepted frame must fail: the chain has already
	// advanced past its tag.
	if auth.Validate(lastFrame, false) {
		t.Fatal("replayed performance frame was accepted")
	}
}

// TestPerformanceFrameBitFlipRejected confirms a frame whose first VLAN tag
// byte has been flipped is rejected by the Authenticator.
func TestPerformanceFrameBitFlipRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, auth, _ := wiredPair(t)
	mustHandshake(t, ctx, sup, auth)

	if err := sup.Transmit(bytes.Repeat([]byte("x"), 50), true); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	buf := make([]byte, packet.PerformanceMax)
	n, err := auth.net.Receive(ctx, buf)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	frame, err := packet.DecodePerformance(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	frame.VLANBuf1[0] ^= 0xff
	if auth.Validate(frame, true) {
		t.Fatal("frame with flipped tag byte was accepted")
	}
}

// TestCredentialMissRejected confirms Accept fails cleanly for an unknown
// identity instead of panicking or blocking forever.
func TestCredentialMissRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, auth, _ := wiredPair(t)
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("authenticator init: %v", err)
	}

	unknown := mac.MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00}
	con := packet.PUFCon{SrcMAC: unknown, DstMAC: testSwitchMAC, T: pufcrypto.Generator()}
	buf, err := con.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := auth.Accept(ctx, buf); err == nil {
		t.Fatal("expected credential miss, got nil error")
	}
	if auth.Connected() {
		t.Fatal("authenticator reports connected after a credential miss")
	}
}

// TestCounterExhaustionEventuallyRejects forces the enrolled credential's
// counter down to 1, runs one successful handshake, and confirms the
// exhausted credential is removed from the store, so no later PUF_CON can
// resolve it.
func TestCounterExhaustionEventuallyRejects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, auth, store := wiredPair(t)
	if err := sup.Init(ctx); err != nil {
		t.Fatalf("supplicant init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("authenticator init: %v", err)
	}
	signUp(t, ctx, sup, auth)

	// Re-store the just-enrolled entry with its counter forced down to 1,
	// preserving the real A established during sign-up.
	q := store.Query(sup.mac, false)
	if !q.Valid {
		t.Fatalf("expected enrolled entry for %s", sup.mac)
	}
	store.StoreEntry(q.BaseMAC, q.A, sup.mac, 1)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Connect(gCtx, 3)
	})
	g.Go(func() error {
		buf := make([]byte, packet.PUFConLen)
		n, err := auth.net.Receive(gCtx, buf)
		if err != nil {
			return err
		}
		return auth.Accept(gCtx, buf[:n])
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("handshake with counter 1 failed: %v", err)
	}

	if store.Len() != 0 {
		t.Fatalf("expected exhausted entry to be removed, store has %d entries", store.Len())
	}
}

func mustHandshake(t *testing.T, ctx context.Context, sup *Supplicant, auth *Authenticator) {
	t.Helper()
	if err := sup.Init(ctx); err != nil {
		t.Fatalf("supplicant init: %v", err)
	}
	if err := auth.Init(ctx); err != nil {
		t.Fatalf("authenticator init: %v", err)
	}
	signUp(t, ctx, sup, auth)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Connect(gCtx, 3)
	})
	g.Go(func() error {
		buf := make([]byte, packet.PUFConLen)
		n, err := auth.net.Receive(gCtx, buf)
		if err != nil {
			return err
		}
		return auth.Accept(gCtx, buf[:n])
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
}
