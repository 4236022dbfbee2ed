package ubx

import (
	"encoding/binary"
	"fmt"
	"math"

	"rtkbase/internal/frame"
)

// Position is the antenna reference point for fixed mode.
type Position struct {
	LatitudeDegrees  float64
	LongitudeDegrees float64
	AltitudeMeters   float64
}

// Receiver defaults matching u-blox base-station practice.
const (
	DefaultAccuracyLimitMM     = 50000
	DefaultSurveyInMinDuration = 60
)

// valItem is one key/value pair of a CFG-VALSET transaction.
type valItem struct {
	key   uint32
	value uint64
}

// valSet frames a CFG-VALSET applying items to the RAM, BBR and flash layers
// in one transactionless message.
func valSet(items []valItem) ([]byte, error) {
	const (
		version   = 0x00
		layersAll = 0x07 // RAM | BBR | flash
	)
	payload := []byte{version, layersAll, 0x00, 0x00}
	for _, it := range items {
		payload = binary.LittleEndian.AppendUint32(payload, it.key)
		n, err := keyValueSize(it.key)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			payload = append(payload, byte(it.value>>(8*i)))
		}
	}
	return frame.EncodeUBX(ClassCFG, IDCfgValSet, payload), nil
}

// keyValueSize derives the stored value width from bits 30..28 of the key.
func keyValueSize(key uint32) (int, error) {
	switch key >> 28 & 0x07 {
	case 0x01, 0x02: // 1-bit flag, one byte on the wire
		return 1, nil
	case 0x03:
		return 2, nil
	case 0x04:
		return 4, nil
	case 0x05:
		return 8, nil
	default:
		return 0, fmt.Errorf("ubx: key %#08x has unknown size nibble", key)
	}
}

// FactoryReset builds CFG-CFG clearing and reloading all settings on BBR,
// flash and EEPROM.
func FactoryReset() []byte {
	mask := []byte{0x1F, 0x1F, 0x00, 0x00}
	payload := make([]byte, 0, 13)
	payload = append(payload, mask...)             // clearMask
	payload = append(payload, 0, 0, 0, 0)          // saveMask
	payload = append(payload, mask...)             // loadMask
	payload = append(payload, 0x01|0x02|0x04)      // devBBR | devFlash | devEEPROM
	return frame.EncodeUBX(ClassCFG, IDCfgCfg, payload)
}

// RTCM3Outputs builds a CFG-VALSET enabling the base-station RTCM3 message
// set (1005, 1077, 1087, 1097, 1127, 1230) on the USB port at every epoch.
func RTCM3Outputs() ([]byte, error) {
	items := make([]valItem, 0, len(rtcm3MsgoutKeysUSB))
	for _, k := range rtcm3MsgoutKeysUSB {
		items = append(items, valItem{key: k, value: 1})
	}
	return valSet(items)
}

// SurveyIn builds a CFG-VALSET putting the receiver into survey-in timing
// mode. accuracyLimitMM is the required position accuracy in millimeters;
// minDurationSec is the minimum observation time. NAV-SVIN progress reports
// are enabled on USB so the stream shows survey state.
func SurveyIn(accuracyLimitMM uint32, minDurationSec uint32) ([]byte, error) {
	if accuracyLimitMM == 0 {
		accuracyLimitMM = DefaultAccuracyLimitMM
	}
	if minDurationSec == 0 {
		minDurationSec = DefaultSurveyInMinDuration
	}
	return valSet([]valItem{
		{key: keyTmodeMode, value: 1},
		{key: keyTmodeSvinAccLim, value: uint64(accuracyLimitMM) * 10}, // 0.1 mm units
		{key: keyTmodeSvinMinDur, value: uint64(minDurationSec)},
		{key: keyMsgoutNavSvinUSB, value: 1},
	})
}

// FixedMode builds a CFG-VALSET putting the receiver into fixed timing mode
// at the given antenna position. Latitude and longitude are split into
// 1e-7 degree and 1e-9 degree high-precision parts, height into centimeter
// and 0.1 mm parts, as the TMODE keys require.
func FixedMode(pos Position, accuracyLimitMM uint32) ([]byte, error) {
	if accuracyLimitMM == 0 {
		accuracyLimitMM = DefaultAccuracyLimitMM
	}
	lat, latHP := precisionParts(pos.LatitudeDegrees, 1e7, 100)
	lon, lonHP := precisionParts(pos.LongitudeDegrees, 1e7, 100)
	height, heightHP := precisionParts(pos.AltitudeMeters, 1e2, 10)
	return valSet([]valItem{
		{key: keyTmodeMode, value: 2},
		{key: keyTmodePosType, value: 1}, // LLH
		{key: keyTmodeFixedPosAcc, value: uint64(accuracyLimitMM) * 10},
		{key: keyTmodeHeight, value: uint64(uint32(height))},
		{key: keyTmodeHeightHP, value: uint64(byte(int8(heightHP)))},
		{key: keyTmodeLat, value: uint64(uint32(lat))},
		{key: keyTmodeLatHP, value: uint64(byte(int8(latHP)))},
		{key: keyTmodeLon, value: uint64(uint32(lon))},
		{key: keyTmodeLonHP, value: uint64(byte(int8(lonHP)))},
	})
}

// precisionParts splits value*scale into an integer part and a sub-unit
// fractional part expanded by hpScale (e.g. 100 yields hundredths of the
// scaled unit).
func precisionParts(value float64, scale float64, hpScale float64) (int32, int8) {
	scaled := value * scale
	frac, whole := math.Modf(scaled)
	return int32(math.Round(whole)), int8(math.Round(frac * hpScale))
}

// IsAckFor reports whether f is an ACK-ACK acknowledging the framed UBX
// message sent. ACK payloads carry the class and id of the message being
// acknowledged.
func IsAckFor(f frame.Frame, sent []byte) bool {
	if f.Kind != frame.KindUBX || f.Class != ClassACK || f.ID != IDAckAck {
		return false
	}
	if len(f.Payload) < 2 || len(sent) < 4 {
		return false
	}
	return f.Payload[0] == sent[2] && f.Payload[1] == sent[3]
}

// IsNakFor reports whether f is an ACK-NAK rejecting the framed UBX message.
func IsNakFor(f frame.Frame, sent []byte) bool {
	if f.Kind != frame.KindUBX || f.Class != ClassACK || f.ID != IDAckNak {
		return false
	}
	if len(f.Payload) < 2 || len(sent) < 4 {
		return false
	}
	return f.Payload[0] == sent[2] && f.Payload[1] == sent[3]
}
