// Package packet implements the four fixed-layout Ethernet frames of the
// PUF-ACS handshake and post-handshake data plane: REGISTER/PUF_CON,
// PUF_SYN, PUF_SYN_ACK, and PUF_Performance, plus frame-kind dispatch.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// -------------------------------------------------------------------------
// Protocol constants
// -------------------------------------------------------------------------

// EtherHeaderLen is the common dst_mac(6) || src_mac(6) || ether_type(2)
// prefix shared by all four frame kinds.
const EtherHeaderLen = 14

// EtherTypePUFACS is the ether_type carried by the three handshake frames.
const EtherTypePUFACS = 0xbeef

// EtherTypeQ and EtherTypeAD are the 802.1Q and 802.1ad TPIDs that open a
// PUF_Performance frame's double VLAN tag.
const (
	EtherTypeQ  = 0x9100
	EtherTypeAD = 0x88a8
)

// EtherTypeExperimental is the inner ether_type of a PUF_Performance frame,
// following the double VLAN tag.
const EtherTypeExperimental = 0x88b5

// Frame size bounds.
const (
	PUFConLen      = EtherHeaderLen + 1 + pufcrypto.UncompressedLen          // 80
	PUFSynLen      = EtherHeaderLen + 1 + 4 + 6 + pufcrypto.UncompressedLen  // 90
	PUFSynAckLen   = EtherHeaderLen + 1 + pufcrypto.UncompressedLen          // 80
	PerformanceMin = 64
	PerformanceMax = 1522
)

// Kind identifies one of the four wire frame types, or UNKNOWN.
type Kind uint8

const (
	KindPUFCon Kind = 0x01
	KindPUFSyn Kind = 0x02
	KindPUFSynAck Kind = 0x03
	KindPerformance Kind = 0x04
	KindUnknown Kind = 0x05
)

func (k Kind) String() string {
	switch k {
	case KindPUFCon:
		return "PUF_CON"
	case KindPUFSyn:
		return "PUF_SYN"
	case KindPUFSynAck:
		return "PUF_SYN_ACK"
	case KindPerformance:
		return "PUF_Performance"
	default:
		return "UNKNOWN"
	}
}

// -------------------------------------------------------------------------
// Errors
// -------------------------------------------------------------------------

var (
	// ErrBufferNil indicates a nil buffer was handed to a decoder.
	ErrBufferNil = errors.New("buffer must not be nil")

	// ErrWrongLength indicates a fixed-size frame's buffer was not exactly
	// its expected length.
	ErrWrongLength = errors.New("wrong buffer size for frame type")

	// ErrPerformanceBounds indicates a PUF_Performance buffer fell outside
	// [PerformanceMin, PerformanceMax].
	ErrPerformanceBounds = errors.New("performance frame length out of bounds")

	// ErrFaultyTPID indicates a PUF_Performance frame's double-VLAN TPIDs
	// did not match 0x9100 / 0x88a8 exactly.
	ErrFaultyTPID = errors.New("faulty VLAN TPID header")
)

// PacketError wraps a decode/encode failure with the operation that
// produced it, the way pufcrypto.MathError wraps curve-arithmetic errors.
type PacketError struct {
	Op  string
	Err error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("packet: %s: %v", e.Op, e.Err)
}

func (e *PacketError) Unwrap() error {
	return e.Err
}

func packetErr(op string, err error) *PacketError {
	return &PacketError{Op: op, Err: err}
}

// -------------------------------------------------------------------------
// Shared Ethernet header
// -------------------------------------------------------------------------

// etherHeader is the common dst_mac || src_mac || ether_type prefix.
type etherHeader struct {
	dst, src  mac.MAC
	etherType uint16
}

func encodeEtherHeader(buf []byte, h etherHeader) {
	copy(buf[0:6], h.dst.Bytes())
	copy(buf[6:12], h.src.Bytes())
	binary.BigEndian.PutUint16(buf[12:14], h.etherType)
}

func decodeEtherHeader(buf []byte) etherHeader {
	var h etherHeader
	h.dst, _ = mac.FromBytes(buf[0:6])
	h.src, _ = mac.FromBytes(buf[6:12])
	h.etherType = binary.BigEndian.Uint16(buf[12:14])
	return h
}

// Classify inspects a raw frame and returns its Kind without fully
// decoding it. Dispatch reads the ether_type/TPID word at byte offset 12:
// 0x88a8 routes to PUF_Performance; otherwise the type byte at offset 14
// selects among 0x01..0x03 (PUF_CON, PUF_SYN, PUF_SYN_ACK). Anything else,
// including a type byte of 0x04, is UNKNOWN.
func Classify(buf []byte) Kind {
	if len(buf) < EtherHeaderLen+1 {
		return KindUnknown
	}
	if binary.BigEndian.Uint16(buf[12:14]) == EtherTypeAD {
		return KindPerformance
	}
	switch Kind(buf[14]) {
	case KindPUFCon, KindPUFSyn, KindPUFSynAck:
		return Kind(buf[14])
	default:
		return KindUnknown
	}
}
