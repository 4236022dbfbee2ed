package frame

import (
	"math/rand"
	"testing"
)

// crc24qBitwise is an independent shift-register implementation used to
// cross-check the table-driven version.
func crc24qBitwise(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc ^= uint32(b) << 16
		for bit := 0; bit < 8; bit++ {
			crc <<= 1
			if crc&0x1000000 != 0 {
				crc ^= 0x1864CFB
			}
		}
	}
	return crc & 0xffffff
}

func TestCRC24Q_MatchesBitwiseReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := rng.Intn(64)
		data := make([]byte, n)
		rng.Read(data)
		if got, want := crc24q(data), crc24qBitwise(data); got != want {
			t.Fatalf("crc24q(%x)=%06x want %06x", data, got, want)
		}
	}
}

func TestCRC24Q_EmptyIsZero(t *testing.T) {
	if got := crc24q(nil); got != 0 {
		t.Fatalf("crc24q(nil)=%06x want 0", got)
	}
}
