package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// Transport is a byte stream to and from the GNSS receiver.
type Transport interface {
	io.ReadWriteCloser
}

// deadlineReader is implemented by transports that support read timeouts
// (net.Conn does, a serial fd does not).
type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Dialer opens the receiver transport. The link calls it once per Run; the
// supervisor decides whether and when to call Run again.
type Dialer func(ctx context.Context) (Transport, error)

// SerialDialer opens a local serial device in raw mode. An empty device path
// auto-detects the first /dev/ttyACM* or /dev/ttyUSB* present, which is where
// u-blox USB receivers appear.
func SerialDialer(device string, baud int) Dialer {
	return func(ctx context.Context) (Transport, error) {
		d := strings.TrimSpace(device)
		if d == "" {
			d = autoDetectDevice()
			if d == "" {
				return nil, fmt.Errorf("receiver auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			}
		}
		b := baud
		if b == 0 {
			b = 9600
		}
		f, err := openSerial(d, b)
		if err != nil {
			return nil, fmt.Errorf("open serial %s baud=%d: %w", d, b, err)
		}
		return f, nil
	}
}

// TCPDialer connects to a receiver exposed as a TCP endpoint (e.g. ser2net
// or a networked receiver).
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial receiver %s: %w", addr, err)
		}
		return conn, nil
	}
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
