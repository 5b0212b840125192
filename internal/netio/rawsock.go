package netio

import (
	"context"
	"errors"
	"sync"
)

// -------------------------------------------------------------------------
// Network capability interface
// -------------------------------------------------------------------------

// Network is the raw-Ethernet transport capability PUF-ACS engines are
// constructed with (PUF-ACS design document Section 6). Concrete
// implementations bind to a physical interface via AF_PACKET sockets or an
// embedded MAC driver; those are deliberately out of scope of the protocol
// core and reached only through this interface.
type Network interface {
	// Init prepares the transport for use (binds the socket, joins
	// multicast groups, etc). Implementations that need no setup may
	// treat this as a no-op.
	Init(ctx context.Context) error

	// Send transmits buf as a single Ethernet frame. Implementations are
	// assumed non-blocking or bounded (PUF-ACS design document Section 5).
	Send(buf []byte) error

	// Receive blocks until one frame is available, ctx is done, or the
	// deadline configured at construction elapses, whichever comes first.
	// It returns the number of bytes written into buf. A timeout is
	// reported as ErrTimeout, matching the "Network read of fewer than 0
	// bytes => timeout => phase failure" failure policy.
	Receive(ctx context.Context, buf []byte) (int, error)

	// Close releases any underlying resources.
	Close() error
}

// -------------------------------------------------------------------------
// Sentinel errors
// -------------------------------------------------------------------------

var (
	// ErrTimeout indicates Receive did not observe a frame within its
	// configured deadline (PUF-ACS design document Section 5: "may block
	// up to a 3,000 ms deadline before failing with a timeout").
	ErrTimeout = errors.New("netio: receive timeout")

	// ErrUnsupportedPlatform indicates the raw AF_PACKET transport was
	// requested on a non-Linux build.
	ErrUnsupportedPlatform = errors.New("netio: raw Ethernet transport requires linux")

	// ErrClosed indicates an operation on an already-closed Network.
	ErrClosed = errors.New("netio: network closed")

	// ErrBufferTooSmall indicates a received frame did not fit in the
	// caller-supplied buffer.
	ErrBufferTooSmall = errors.New("netio: receive buffer too small")
)

// -------------------------------------------------------------------------
// PipeConn — in-memory Network for tests
// -------------------------------------------------------------------------

// PipeConn is an in-memory Network, backed by channels buffering up to 16
// frames per direction, used to wire
// a Supplicant and Authenticator together in a single test process without
// a real interface. Send on one end is Received by the other.
type PipeConn struct {
	out    chan []byte
	in     chan []byte
	mu     sync.Mutex
	closed bool
}

// NewPipe returns a connected pair of PipeConns: frames sent on a arrive at
// b, and vice versa.
func NewPipe() (a, b *PipeConn) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	a = &PipeConn{out: ab, in: ba}
	b = &PipeConn{out: ba, in: ab}
	return a, b
}

// Init is a no-op; PipeConn needs no setup.
func (p *PipeConn) Init(_ context.Context) error {
	return nil
}

// Send copies buf and delivers it to the peer end.
func (p *PipeConn) Send(buf []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.out <- cp
	return nil
}

// Receive blocks until a frame arrives, ctx is cancelled, or the deadline
// implied by ctx elapses.
func (p *PipeConn) Receive(ctx context.Context, buf []byte) (int, error) {
	select {
	case frame, ok := <-p.in:
		if !ok {
			return 0, ErrClosed
		}
		if len(frame) > len(buf) {
			return 0, ErrBufferTooSmall
		}
		n := copy(buf, frame)
		return n, nil
	case <-ctx.Done():
		return 0, ErrTimeout
	}
}

// Close marks the connection closed. Safe to call more than once.
func (p *PipeConn) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out)
	return nil
}
