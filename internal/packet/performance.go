package packet

import (
	"encoding/binary"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// performanceHeaderLen is the fixed prefix before the payload: dst_mac(6)
// || src_mac(6) || ad_tpid(2) || vlan_buf_1(2) || q_tpid(2) || vlan_buf_2(2)
// || ether_type(2).
const performanceHeaderLen = 22

// Performance is a double-tagged 802.1ad PUF_Performance frame carrying
// arbitrary user data in Payload, with a per-frame authentication tag split
// across the two VLAN ID fields (PUF-ACS design document Section 4.5.3).
type Performance struct {
	SrcMAC, DstMAC     mac.MAC
	VLANBuf1, VLANBuf2 [2]byte
	Payload            []byte
}

// Encode produces the wire form: performanceHeaderLen bytes of header
// followed by Payload, zero-padded up to PerformanceMin when Payload alone
// would leave the frame under Ethernet's minimum frame size. The total
// length must not exceed PerformanceMax.
func (p Performance) Encode() ([]byte, error) {
	total := performanceHeaderLen + len(p.Payload)
	if total > PerformanceMax {
		return nil, packetErr("Performance.Encode", ErrPerformanceBounds)
	}
	if total < PerformanceMin {
		total = PerformanceMin
	}
	buf := make([]byte, total)
	copy(buf[0:6], p.DstMAC.Bytes())
	copy(buf[6:12], p.SrcMAC.Bytes())
	binary.BigEndian.PutUint16(buf[12:14], EtherTypeAD)
	copy(buf[14:16], p.VLANBuf1[:])
	binary.BigEndian.PutUint16(buf[16:18], EtherTypeQ)
	copy(buf[18:20], p.VLANBuf2[:])
	binary.BigEndian.PutUint16(buf[20:22], EtherTypeExperimental)
	copy(buf[22:], p.Payload)
	return buf, nil
}

// DecodePerformance decodes a PUF_Performance frame, verifying that both
// double-VLAN TPIDs match exactly and the total length is within bounds.
func DecodePerformance(buf []byte) (Performance, error) {
	if buf == nil {
		return Performance{}, packetErr("DecodePerformance", ErrBufferNil)
	}
	if len(buf) < PerformanceMin || len(buf) > PerformanceMax {
		return Performance{}, packetErr("DecodePerformance", ErrPerformanceBounds)
	}
	if binary.BigEndian.Uint16(buf[12:14]) != EtherTypeAD || binary.BigEndian.Uint16(buf[16:18]) != EtherTypeQ {
		return Performance{}, packetErr("DecodePerformance", ErrFaultyTPID)
	}
	dst, _ := mac.FromBytes(buf[0:6])
	src, _ := mac.FromBytes(buf[6:12])
	var v1, v2 [2]byte
	copy(v1[:], buf[14:16])
	copy(v2[:], buf[18:20])
	payload := make([]byte, len(buf)-performanceHeaderLen)
	copy(payload, buf[performanceHeaderLen:])
	return Performance{SrcMAC: src, DstMAC: dst, VLANBuf1: v1, VLANBuf2: v2, Payload: payload}, nil
}

// InitialTag computes H[0] = SHA-256(mac.bytes(6) || lo32(k).bytes(4))
// (PUF-ACS design document Section 4.5.3).
func InitialTag(m mac.MAC, k pufcrypto.Scalar) [32]byte {
	lo := k.Lo32()
	buf := make([]byte, 0, 10)
	buf = append(buf, m.Bytes()...)
	buf = append(buf, lo[:]...)
	return pufcrypto.SHA256(buf)
}

// NextTag computes H[i] = SHA-256(H[i-1] || lo32(k).bytes(4)) for i >= 1
// (PUF-ACS design document Section 4.5.3).
func NextTag(prev [32]byte, k pufcrypto.Scalar) [32]byte {
	lo := k.Lo32()
	buf := make([]byte, 0, 36)
	buf = append(buf, prev[:]...)
	buf = append(buf, lo[:]...)
	return pufcrypto.SHA256(buf)
}

// TagToVLANFields projects a 32-byte hash-chain tag onto the two VLAN ID
// fields: vlan_buf_1 <- H[0..2], vlan_buf_2 <- H[30..32].
func TagToVLANFields(h [32]byte) (buf1, buf2 [2]byte) {
	copy(buf1[:], h[0:2])
	copy(buf2[:], h[30:32])
	return
}

// MatchesTag reports whether the frame's VLAN fields carry the expected
// hash-chain tag.
func (p Performance) MatchesTag(h [32]byte) bool {
	buf1, buf2 := TagToVLANFields(h)
	return p.VLANBuf1 == buf1 && p.VLANBuf2 == buf2
}
