package packet

import (
	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// PUFCon is the first handshake frame, sent Supplicant -> Authenticator:
// type(1)=0x01 || T(65), following the common Ethernet header. REGISTER is
// the same wire layout, kept as an alias for the sign-up path.
type PUFCon struct {
	SrcMAC, DstMAC mac.MAC
	T              pufcrypto.Point
}

// Register is a type alias: the sign-up frame shares PUF_CON's exact wire
// layout (PUF-ACS design document Section 4.2: "using REGISTER = PUF_CON").
type Register = PUFCon

// Encode produces the fixed 80-byte wire form. The point must not be the
// identity element.
func (p PUFCon) Encode() ([]byte, error) {
	tBytes, err := p.T.Bytes()
	if err != nil {
		return nil, packetErr("PUFCon.Encode", err)
	}
	buf := make([]byte, PUFConLen)
	encodeEtherHeader(buf, etherHeader{dst: p.DstMAC, src: p.SrcMAC, etherType: EtherTypePUFACS})
	buf[EtherHeaderLen] = byte(KindPUFCon)
	copy(buf[EtherHeaderLen+1:], tBytes)
	return buf, nil
}

// DecodePUFCon decodes a PUF_CON frame, failing if buf is not exactly
// PUFConLen bytes or T does not decode to a valid curve point.
func DecodePUFCon(buf []byte) (PUFCon, error) {
	if buf == nil {
		return PUFCon{}, packetErr("DecodePUFCon", ErrBufferNil)
	}
	if len(buf) != PUFConLen {
		return PUFCon{}, packetErr("DecodePUFCon", ErrWrongLength)
	}
	eh := decodeEtherHeader(buf)
	t, err := pufcrypto.PointFromBytes(buf[EtherHeaderLen+1:])
	if err != nil {
		return PUFCon{}, packetErr("DecodePUFCon", err)
	}
	return PUFCon{SrcMAC: eh.src, DstMAC: eh.dst, T: t}, nil
}
