package frame

import (
	"encoding/binary"
	"errors"
)

const (
	ubxSync1 = 0xB5
	ubxSync2 = 0x62

	rtcm3Preamble = 0xD3

	ubxOverhead   = 8 // 2 sync + class + id + 2 length + 2 checksum
	rtcm3Overhead = 6 // preamble + 2 length + 3 CRC
)

// ErrNeedMoreData reports that the buffered bytes may hold the start of a
// frame but not yet its end. No bytes are consumed; the caller must append
// more input before retrying.
var ErrNeedMoreData = errors.New("frame: need more data")

// Decode locates the next complete frame at the cursor's read position and
// advances past it, returning the frame and the number of bytes consumed.
//
// When neither sync byte starts the buffer, or a checksum/CRC mismatches,
// exactly one byte is skipped and a KindMalformed frame is returned. This
// resynchronizes on stream corruption without discarding bytes that may
// belong to the next frame.
func Decode(c *Cursor) (Frame, int, error) {
	buf := c.Unread()
	if len(buf) == 0 {
		return Frame{}, 0, ErrNeedMoreData
	}

	switch buf[0] {
	case ubxSync1:
		return decodeUBX(c, buf)
	case rtcm3Preamble:
		return decodeRTCM3(c, buf)
	}

	c.Advance(1)
	return Frame{Kind: KindMalformed, Reason: "no sync byte", Skipped: 1}, 1, nil
}

func decodeUBX(c *Cursor, buf []byte) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, ErrNeedMoreData
	}
	if buf[1] != ubxSync2 {
		c.Advance(1)
		return Frame{Kind: KindMalformed, Reason: "ubx sync incomplete", Skipped: 1}, 1, nil
	}
	if len(buf) < 6 {
		return Frame{}, 0, ErrNeedMoreData
	}

	// Length is little-endian; UBX multi-byte fields always are.
	payloadLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	total := ubxOverhead + payloadLen
	if total > c.cap {
		c.Advance(1)
		return Frame{Kind: KindMalformed, Reason: "ubx length exceeds cursor capacity", Skipped: 1}, 1, nil
	}
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMoreData
	}

	ckA, ckB := ubxChecksum(buf[2 : 6+payloadLen])
	if ckA != buf[total-2] || ckB != buf[total-1] {
		c.Advance(1)
		return Frame{Kind: KindMalformed, Reason: "ubx checksum mismatch", Skipped: 1}, 1, nil
	}

	f := Frame{
		Kind:          KindUBX,
		Class:         buf[2],
		ID:            buf[3],
		ChecksumValid: true,
		Payload:       append([]byte(nil), buf[6:6+payloadLen]...),
		Raw:           append([]byte(nil), buf[:total]...),
	}
	c.Advance(total)
	return f, total, nil
}

func decodeRTCM3(c *Cursor, buf []byte) (Frame, int, error) {
	if len(buf) < 3 {
		return Frame{}, 0, ErrNeedMoreData
	}

	// The 6 bits following the preamble are reserved and must be zero; the
	// next 10 bits are the big-endian payload length (0-1023).
	if buf[1]&0xFC != 0 {
		c.Advance(1)
		return Frame{Kind: KindMalformed, Reason: "rtcm3 reserved bits set", Skipped: 1}, 1, nil
	}
	payloadLen := int(buf[1]&0x03)<<8 | int(buf[2])
	total := rtcm3Overhead + payloadLen
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMoreData
	}

	wantCRC := uint32(buf[total-3])<<16 | uint32(buf[total-2])<<8 | uint32(buf[total-1])
	if crc24q(buf[:3+payloadLen]) != wantCRC {
		c.Advance(1)
		return Frame{Kind: KindMalformed, Reason: "rtcm3 crc mismatch", Skipped: 1}, 1, nil
	}

	// Message number is the first 12 bits of the payload (big-endian).
	var msgNum uint16
	if payloadLen >= 2 {
		msgNum = uint16(buf[3])<<4 | uint16(buf[4])>>4
	}

	f := Frame{
		Kind:          KindRTCM3,
		MessageNumber: msgNum,
		CRCValid:      true,
		Payload:       append([]byte(nil), buf[3:3+payloadLen]...),
		Raw:           append([]byte(nil), buf[:total]...),
	}
	c.Advance(total)
	return f, total, nil
}

// ubxChecksum computes the UBX 8-bit Fletcher-style checksum over
// class+id+length+payload.
func ubxChecksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// EncodeUBX builds a complete UBX frame around the given class, id and
// payload, including sync bytes and checksum.
func EncodeUBX(class, id byte, payload []byte) []byte {
	out := make([]byte, 0, ubxOverhead+len(payload))
	out = append(out, ubxSync1, ubxSync2, class, id)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)))
	out = append(out, payload...)
	ckA, ckB := ubxChecksum(out[2:])
	return append(out, ckA, ckB)
}

// EncodeRTCM3 builds a complete RTCM3 frame around the given payload,
// including preamble, length field and CRC-24Q. Used by tests and tools;
// live corrections are relayed verbatim, never re-encoded.
func EncodeRTCM3(payload []byte) []byte {
	out := make([]byte, 0, rtcm3Overhead+len(payload))
	out = append(out, rtcm3Preamble, byte(len(payload)>>8)&0x03, byte(len(payload)))
	out = append(out, payload...)
	crc := crc24q(out)
	return append(out, byte(crc>>16), byte(crc>>8), byte(crc))
}
