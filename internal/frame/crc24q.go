package frame

// crc24q implements the CRC used by RTCM3 message integrity.
// This is a table-driven CRC-24Q with polynomial 0x1864CFB, MSB first,
// initial value 0.
func crc24q(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = ((crc << 8) & 0xffffff) ^ crc24qTable[byte(crc>>16)^b]
	}
	return crc
}

var crc24qTable = func() [256]uint32 {
	var table [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 16
		for bit := 0; bit < 8; bit++ {
			if (crc & 0x800000) != 0 {
				crc = ((crc << 1) ^ 0x1864CFB) & 0xffffff
			} else {
				crc = (crc << 1) & 0xffffff
			}
		}
		table[i] = crc
	}
	return table
}()
