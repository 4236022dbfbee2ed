package ubx

import (
	"bytes"
	"encoding/binary"
	"testing"

	"rtkbase/internal/frame"
)

func decodeOne(t *testing.T, wire []byte) frame.Frame {
	t.Helper()
	c := frame.NewCursor(0)
	if err := c.Append(wire); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	f, n, err := frame.Decode(c)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("consumed=%d want %d", n, len(wire))
	}
	return f
}

func TestFactoryReset(t *testing.T) {
	f := decodeOne(t, FactoryReset())
	if f.Kind != frame.KindUBX || !f.ChecksumValid {
		t.Fatalf("frame=%+v", f)
	}
	if f.Class != ClassCFG || f.ID != IDCfgCfg {
		t.Fatalf("class/id=%#02x/%#02x want CFG-CFG", f.Class, f.ID)
	}
	want := []byte{
		0x1F, 0x1F, 0x00, 0x00, // clearMask
		0x00, 0x00, 0x00, 0x00, // saveMask
		0x1F, 0x1F, 0x00, 0x00, // loadMask
		0x07, // BBR | flash | EEPROM
	}
	if !bytes.Equal(f.Payload, want) {
		t.Fatalf("payload=%x want %x", f.Payload, want)
	}
}

func TestRTCM3Outputs(t *testing.T) {
	wire, err := RTCM3Outputs()
	if err != nil {
		t.Fatalf("RTCM3Outputs() error: %v", err)
	}
	f := decodeOne(t, wire)
	if f.Class != ClassCFG || f.ID != IDCfgValSet {
		t.Fatalf("class/id=%#02x/%#02x want CFG-VALSET", f.Class, f.ID)
	}

	// 4-byte header plus six U1 items of 4-byte key + 1-byte value.
	if len(f.Payload) != 4+6*5 {
		t.Fatalf("payload length=%d want %d", len(f.Payload), 4+6*5)
	}
	if f.Payload[1] != 0x07 {
		t.Fatalf("layers=%#02x want RAM|BBR|flash", f.Payload[1])
	}
	for i := 0; i < 6; i++ {
		item := f.Payload[4+i*5 : 4+(i+1)*5]
		if item[4] != 1 {
			t.Fatalf("item %d rate=%d want 1", i, item[4])
		}
	}
}

func TestSurveyIn_AccuracyScaledToTenthMillimeter(t *testing.T) {
	wire, err := SurveyIn(50000, 60)
	if err != nil {
		t.Fatalf("SurveyIn() error: %v", err)
	}
	f := decodeOne(t, wire)

	items := parseValSet(t, f.Payload)
	if got := items[keyTmodeMode]; got != 1 {
		t.Fatalf("TMODE mode=%d want 1 (survey-in)", got)
	}
	if got := items[keyTmodeSvinAccLim]; got != 500000 {
		t.Fatalf("SVIN acc limit=%d want 500000 (0.1 mm units)", got)
	}
	if got := items[keyTmodeSvinMinDur]; got != 60 {
		t.Fatalf("SVIN min duration=%d want 60", got)
	}
	if got := items[keyMsgoutNavSvinUSB]; got != 1 {
		t.Fatalf("NAV-SVIN msgout=%d want 1", got)
	}
}

func TestFixedMode_HighPrecisionSplit(t *testing.T) {
	pos := Position{
		LatitudeDegrees:  48.6467596667,
		LongitudeDegrees: 16.25,
		AltitudeMeters:   215.25,
	}
	wire, err := FixedMode(pos, 0)
	if err != nil {
		t.Fatalf("FixedMode() error: %v", err)
	}
	f := decodeOne(t, wire)

	items := parseValSet(t, f.Payload)
	if got := items[keyTmodeMode]; got != 2 {
		t.Fatalf("TMODE mode=%d want 2 (fixed)", got)
	}
	if got := items[keyTmodePosType]; got != 1 {
		t.Fatalf("pos type=%d want 1 (LLH)", got)
	}
	if got := int32(items[keyTmodeLat]); got != 486467596 {
		t.Fatalf("lat=%d want 486467596", got)
	}
	if got := int8(items[keyTmodeLatHP]); got != 67 {
		t.Fatalf("lat hp=%d want 67", got)
	}
	if got := int32(items[keyTmodeLon]); got != 162500000 {
		t.Fatalf("lon=%d want 162500000", got)
	}
	if got := int32(items[keyTmodeHeight]); got != 21525 {
		t.Fatalf("height=%d want 21525 cm", got)
	}
	if got := items[keyTmodeFixedPosAcc]; got != uint64(DefaultAccuracyLimitMM)*10 {
		t.Fatalf("fixed pos acc=%d want %d", got, DefaultAccuracyLimitMM*10)
	}
}

func TestPrecisionParts(t *testing.T) {
	tests := []struct {
		value   float64
		scale   float64
		hpScale float64
		whole   int32
		hp      int8
	}{
		{48.6467596667, 1e7, 100, 486467596, 67},
		{215.25, 1e2, 10, 21525, 0},
		{-48.6467596667, 1e7, 100, -486467596, -67},
		{0, 1e7, 100, 0, 0},
	}
	for _, tt := range tests {
		whole, hp := precisionParts(tt.value, tt.scale, tt.hpScale)
		if whole != tt.whole || hp != tt.hp {
			t.Fatalf("precisionParts(%v, %v, %v)=(%d, %d) want (%d, %d)",
				tt.value, tt.scale, tt.hpScale, whole, hp, tt.whole, tt.hp)
		}
	}
}

func TestAckMatching(t *testing.T) {
	sent, err := RTCM3Outputs()
	if err != nil {
		t.Fatalf("RTCM3Outputs() error: %v", err)
	}

	ack := decodeOne(t, frame.EncodeUBX(ClassACK, IDAckAck, []byte{ClassCFG, IDCfgValSet}))
	if !IsAckFor(ack, sent) {
		t.Fatalf("IsAckFor() = false for matching ACK-ACK")
	}
	if IsNakFor(ack, sent) {
		t.Fatalf("IsNakFor() = true for an ACK-ACK")
	}

	nak := decodeOne(t, frame.EncodeUBX(ClassACK, IDAckNak, []byte{ClassCFG, IDCfgValSet}))
	if !IsNakFor(nak, sent) {
		t.Fatalf("IsNakFor() = false for matching ACK-NAK")
	}

	other := decodeOne(t, frame.EncodeUBX(ClassACK, IDAckAck, []byte{ClassCFG, IDCfgCfg}))
	if IsAckFor(other, sent) {
		t.Fatalf("IsAckFor() = true for ACK of a different message")
	}
}

// parseValSet walks a CFG-VALSET payload into key -> raw little-endian value.
func parseValSet(t *testing.T, payload []byte) map[uint32]uint64 {
	t.Helper()
	if len(payload) < 4 {
		t.Fatalf("valset payload too short: %d", len(payload))
	}
	items := make(map[uint32]uint64)
	rest := payload[4:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			t.Fatalf("trailing bytes in valset payload: %x", rest)
		}
		key := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		n, err := keyValueSize(key)
		if err != nil {
			t.Fatalf("keyValueSize(%#08x) error: %v", key, err)
		}
		if len(rest) < n {
			t.Fatalf("value truncated for key %#08x", key)
		}
		var v uint64
		for i := 0; i < n; i++ {
			v |= uint64(rest[i]) << (8 * i)
		}
		items[key] = v
		rest = rest[n:]
	}
	return items
}

func TestValSet_UnknownKeySize(t *testing.T) {
	if _, err := valSet([]valItem{{key: 0x70030001, value: 1}}); err == nil {
		t.Fatalf("expected error for unknown size nibble")
	}
}
