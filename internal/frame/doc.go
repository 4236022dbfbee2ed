package frame

// Package frame parses the mixed UBX/RTCM3 byte stream emitted by a u-blox
// GNSS receiver.
//
// It is geared toward base-station relaying:
// - Locate and validate UBX frames (sync B5 62, Fletcher-8 checksum)
// - Locate and validate RTCM3 frames (preamble D3, CRC-24Q)
// - Resynchronize one byte at a time on corruption
