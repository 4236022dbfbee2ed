package ubx

// UBX message classes and IDs used by the base station.
const (
	ClassACK = 0x05
	ClassCFG = 0x06
	ClassNAV = 0x01

	IDAckNak = 0x00
	IDAckAck = 0x01

	IDCfgCfg    = 0x09
	IDCfgValSet = 0x8A

	IDNavSvin = 0x3B
)

// Configuration database key IDs (u-blox gen-9 interface description).
// Bits 30..28 of the key encode the value size.
const (
	keyTmodeMode        = 0x20030001 // E1
	keyTmodePosType     = 0x20030002 // E1, 0=ECEF 1=LLH
	keyTmodeLat         = 0x40030009 // I4, 1e-7 deg
	keyTmodeLon         = 0x4003000A // I4, 1e-7 deg
	keyTmodeHeight      = 0x4003000B // I4, cm
	keyTmodeLatHP       = 0x2003000C // I1, 1e-9 deg
	keyTmodeLonHP       = 0x2003000D // I1, 1e-9 deg
	keyTmodeHeightHP    = 0x2003000E // I1, 0.1 mm
	keyTmodeFixedPosAcc = 0x4003000F // U4, 0.1 mm
	keyTmodeSvinMinDur  = 0x40030010 // U4, s
	keyTmodeSvinAccLim  = 0x40030011 // U4, 0.1 mm

	keyMsgoutNavSvinUSB = 0x2091008B // U1, output rate on USB
)

// CFG-MSGOUT keys (USB port) for the RTCM3 message set a base station emits:
// 1005 antenna reference point, MSM7 per constellation, 1230 GLONASS biases.
var rtcm3MsgoutKeysUSB = []uint32{
	0x209102C0, // TYPE1005
	0x209102CF, // TYPE1077
	0x209102D4, // TYPE1087
	0x2091031B, // TYPE1097
	0x209102D9, // TYPE1127
	0x20910306, // TYPE1230
}
