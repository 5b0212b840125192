package packet

import (
	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// PUFSynAck is the Supplicant's closing handshake frame: type(1)=0x03 ||
// S(65), following the common Ethernet header.
type PUFSynAck struct {
	SrcMAC, DstMAC mac.MAC
	S              pufcrypto.Point
}

// Encode produces the fixed 80-byte wire form.
func (p PUFSynAck) Encode() ([]byte, error) {
	sBytes, err := p.S.Bytes()
	if err != nil {
		return nil, packetErr("PUFSynAck.Encode", err)
	}
	buf := make([]byte, PUFSynAckLen)
	encodeEtherHeader(buf, etherHeader{dst: p.DstMAC, src: p.SrcMAC, etherType: EtherTypePUFACS})
	buf[EtherHeaderLen] = byte(KindPUFSynAck)
	copy(buf[EtherHeaderLen+1:], sBytes)
	return buf, nil
}

// DecodePUFSynAck decodes a PUF_SYN_ACK frame.
func DecodePUFSynAck(buf []byte) (PUFSynAck, error) {
	if buf == nil {
		return PUFSynAck{}, packetErr("DecodePUFSynAck", ErrBufferNil)
	}
	if len(buf) != PUFSynAckLen {
		return PUFSynAck{}, packetErr("DecodePUFSynAck", ErrWrongLength)
	}
	eh := decodeEtherHeader(buf)
	s, err := pufcrypto.PointFromBytes(buf[EtherHeaderLen+1:])
	if err != nil {
		return PUFSynAck{}, packetErr("DecodePUFSynAck", err)
	}
	return PUFSynAck{SrcMAC: eh.src, DstMAC: eh.dst, S: s}, nil
}
