package packet

import (
	"encoding/binary"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// PUFSyn is the Authenticator's response frame: type(1)=0x02 || d(4 LE) ||
// pc(6) || C(65), following the common Ethernet header.
//
// d is carried on the wire as a plain 32-bit little-endian integer (the
// low 32 bits of the scalar d), not the full scalar encoding; PUFSyn.D
// therefore stores only that 4-byte projection, matching the original
// implementation's uint32 wire representation.
type PUFSyn struct {
	SrcMAC, DstMAC mac.MAC
	D              [4]byte
	PC             mac.MAC
	C              pufcrypto.Point
}

// Encode produces the fixed 90-byte wire form.
func (p PUFSyn) Encode() ([]byte, error) {
	cBytes, err := p.C.Bytes()
	if err != nil {
		return nil, packetErr("PUFSyn.Encode", err)
	}
	buf := make([]byte, PUFSynLen)
	encodeEtherHeader(buf, etherHeader{dst: p.DstMAC, src: p.SrcMAC, etherType: EtherTypePUFACS})
	off := EtherHeaderLen
	buf[off] = byte(KindPUFSyn)
	off++
	copy(buf[off:off+4], p.D[:])
	off += 4
	copy(buf[off:off+6], p.PC.Bytes())
	off += 6
	copy(buf[off:], cBytes)
	return buf, nil
}

// DecodePUFSyn decodes a PUF_SYN frame.
//
// PUF-ACS design document Section 9 (REDESIGN FLAGS): the original
// implementation's PUF_SYN::from_binary copies src_mac into both its
// src_mac and dst_mac fields, a documented bug. This decoder reads dst_mac
// from the wire dst_mac bytes, as a correct implementation must.
func DecodePUFSyn(buf []byte) (PUFSyn, error) {
	if buf == nil {
		return PUFSyn{}, packetErr("DecodePUFSyn", ErrBufferNil)
	}
	if len(buf) != PUFSynLen {
		return PUFSyn{}, packetErr("DecodePUFSyn", ErrWrongLength)
	}
	eh := decodeEtherHeader(buf)
	off := EtherHeaderLen + 1
	var d [4]byte
	copy(d[:], buf[off:off+4])
	off += 4
	pc, _ := mac.FromBytes(buf[off : off+6])
	off += 6
	c, err := pufcrypto.PointFromBytes(buf[off:])
	if err != nil {
		return PUFSyn{}, packetErr("DecodePUFSyn", err)
	}
	return PUFSyn{SrcMAC: eh.src, DstMAC: eh.dst, D: d, PC: pc, C: c}, nil
}

// DLittleEndian decodes the wire D field as a little-endian uint32.
func (p PUFSyn) DLittleEndian() uint32 {
	return binary.LittleEndian.Uint32(p.D[:])
}

// DFromScalar projects a Scalar down to its wire D field: the scalar's
// lo32(s) little-endian projection (PUF-ACS design document Section 3).
func DFromScalar(s pufcrypto.Scalar) [4]byte {
	return s.Lo32()
}
