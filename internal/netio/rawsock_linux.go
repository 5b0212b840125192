//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// RawConn — AF_PACKET raw-Ethernet transport
// -------------------------------------------------------------------------

// RawConn implements Network over a Linux AF_PACKET SOCK_RAW socket bound
// to a single interface. It receives every Ethernet frame on that
// interface and makes no attempt to filter by ether_type; callers use
// packet.Classify on the returned bytes.
type RawConn struct {
	fd      int
	ifIndex int
	ifName  string
	timeout time.Duration
	closed  bool
}

// htons converts a 16-bit value from host to network byte order.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// NewRawConn opens an AF_PACKET SOCK_RAW socket on ifName. timeout bounds
// Receive (PUF-ACS design document Section 5: "up to a 3,000 ms deadline").
func NewRawConn(ifName string, timeout time.Duration) (*RawConn, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("netio: lookup interface %s: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("netio: open AF_PACKET socket: %w", err)
	}

	return &RawConn{fd: fd, ifIndex: iface.Index, ifName: ifName, timeout: timeout}, nil
}

// Init binds the socket to its interface and applies the receive timeout.
func (c *RawConn) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  c.ifIndex,
	}
	if err := unix.Bind(c.fd, &addr); err != nil {
		return fmt.Errorf("netio: bind to %s: %w", c.ifName, err)
	}

	tv := unix.NsecToTimeval(c.timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("netio: set SO_RCVTIMEO: %w", err)
	}

	return nil
}

// Send writes buf as a single Ethernet frame onto the bound interface.
func (c *RawConn) Send(buf []byte) error {
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  c.ifIndex,
		Halen:    6,
	}
	if len(buf) >= 6 {
		copy(addr.Addr[:6], buf[0:6])
	}
	if err := unix.Sendto(c.fd, buf, 0, &addr); err != nil {
		return fmt.Errorf("netio: sendto %s: %w", c.ifName, err)
	}
	return nil
}

// Receive blocks until a frame arrives or the socket's SO_RCVTIMEO
// deadline (set in Init) elapses. A deadline expiry surfaces as
// ErrTimeout, per the protocol's failure policy.
func (c *RawConn) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("netio: recvfrom %s: %w", c.ifName, err)
	}
	return n, nil
}

// Close releases the underlying socket file descriptor.
func (c *RawConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := unix.Close(c.fd); err != nil {
		return fmt.Errorf("netio: close %s: %w", c.ifName, err)
	}
	return nil
}

// InterfaceMAC returns ifName's hardware address, for callers that need
// the Supplicant's link-layer address before constructing a RawConn.
func InterfaceMAC(ifName string) ([6]byte, error) {
	var out [6]byte
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return out, fmt.Errorf("netio: lookup interface %s: %w", ifName, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return out, fmt.Errorf("netio: interface %s has no 6-byte hardware address", ifName)
	}
	copy(out[:], iface.HardwareAddr)
	return out, nil
}
