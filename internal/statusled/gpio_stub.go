//go:build !linux

package statusled

import "fmt"

func openLED(pin int) (ledDriver, error) {
	return nil, fmt.Errorf("statusled: gpio not supported on this platform")
}

var openLEDFn = openLED
