package frame

// Kind discriminates the frame variants produced by Decode.
type Kind uint8

const (
	// KindMalformed marks bytes skipped while hunting for a sync sequence or
	// after a checksum/CRC mismatch.
	KindMalformed Kind = iota
	// KindUBX is a u-blox binary frame (sync B5 62).
	KindUBX
	// KindRTCM3 is an RTCM3 correction frame (preamble D3).
	KindRTCM3
)

func (k Kind) String() string {
	switch k {
	case KindUBX:
		return "ubx"
	case KindRTCM3:
		return "rtcm3"
	default:
		return "malformed"
	}
}

// Frame is a single decoded unit of the receiver stream. Frames are immutable
// once produced; Payload and Raw are fresh copies that do not alias the
// decode cursor.
type Frame struct {
	Kind Kind

	// UBX fields.
	Class         byte
	ID            byte
	ChecksumValid bool

	// RTCM3 fields.
	MessageNumber uint16
	CRCValid      bool

	// Payload is the frame payload without framing bytes.
	Payload []byte

	// Raw is the complete frame exactly as it appeared on the wire,
	// preamble through checksum/CRC. Empty for malformed skips.
	Raw []byte

	// Malformed fields.
	Reason  string
	Skipped int
}

// Correction is the distributable subset of an RTCM3 frame: its raw wire
// bytes, verified by CRC-24Q. Rovers receive Raw verbatim.
type Correction struct {
	MessageNumber uint16
	Raw           []byte
}

// Correction converts a CRC-valid RTCM3 frame into a Correction.
// The second return is false for anything else; invalid frames must never
// reach the correction bus.
func (f Frame) Correction() (Correction, bool) {
	if f.Kind != KindRTCM3 || !f.CRCValid {
		return Correction{}, false
	}
	return Correction{MessageNumber: f.MessageNumber, Raw: f.Raw}, true
}
