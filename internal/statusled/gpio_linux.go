//go:build linux

package statusled

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openLED requests the given BCM GPIO as a digital output via the Linux GPIO
// character device.
func openLED(pin int) (ledDriver, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("statusled: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("rtkbase-led"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodLED{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("statusled: gpio line %q not found (or busy)", lineName)
}

var openLEDFn = openLED

type gpiodLED struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLED) Set(on bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("statusled: driver not initialized")
	}
	v := 0
	if on {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodLED) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
