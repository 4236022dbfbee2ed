package link

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rtkbase/internal/frame"
	"rtkbase/internal/ubx"
)

// Publisher receives validated corrections. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(c frame.Correction)
}

// ConfigureConfig optionally puts the receiver into base-station mode once
// per connection, before relaying starts.
type ConfigureConfig struct {
	Enable       bool
	FactoryReset bool

	// Mode is "survey-in" or "fixed".
	Mode            string
	AccuracyLimitMM uint32

	// Survey-in only.
	SurveyInMinDurationSec uint32

	// Fixed mode only.
	Position ubx.Position

	AckTimeout time.Duration
}

// Config controls the receiver link.
type Config struct {
	// IdleTimeout faults the link when no bytes arrive for this window.
	// Transports with read deadlines (TCP) use them; serial descriptors use
	// a watchdog that closes the descriptor to unblock the read.
	IdleTimeout time.Duration

	CursorCapacity int

	Configure ConfigureConfig
}

// Link reads the receiver byte stream, frames it, and publishes CRC-valid
// RTCM3 frames. One Run call handles one connection; it returns on transport
// failure and the supervisor owns the retry policy.
type Link struct {
	cfg  Config
	dial Dialer
	pub  Publisher
	log  zerolog.Logger

	state atomic.Int32

	bytesRead       atomic.Uint64
	rtcmFrames      atomic.Uint64
	ubxFrames       atomic.Uint64
	malformedFrames atomic.Uint64
	lastFrameNano   atomic.Int64
	streamStartNano atomic.Int64
}

func New(cfg Config, dial Dialer, pub Publisher, log zerolog.Logger) *Link {
	if cfg.Configure.AckTimeout <= 0 {
		cfg.Configure.AckTimeout = 5 * time.Second
	}
	l := &Link{cfg: cfg, dial: dial, pub: pub, log: log}
	l.state.Store(int32(StateDisconnected))
	return l
}

// State returns the current link state.
func (l *Link) State() State {
	return State(l.state.Load())
}

// Snapshot is the link's health view.
type Snapshot struct {
	State           string `json:"state"`
	BytesRead       uint64 `json:"bytes_read"`
	RTCMFrames      uint64 `json:"rtcm_frames"`
	UBXFrames       uint64 `json:"ubx_frames"`
	MalformedFrames uint64 `json:"malformed_frames"`
	LastFrameUTC    string `json:"last_frame_utc,omitempty"`
}

func (l *Link) Snapshot() Snapshot {
	snap := Snapshot{
		State:           l.State().String(),
		BytesRead:       l.bytesRead.Load(),
		RTCMFrames:      l.rtcmFrames.Load(),
		UBXFrames:       l.ubxFrames.Load(),
		MalformedFrames: l.malformedFrames.Load(),
	}
	if nano := l.lastFrameNano.Load(); nano != 0 {
		snap.LastFrameUTC = time.Unix(0, nano).UTC().Format(time.RFC3339Nano)
	}
	return snap
}

// StreamedFor reports how long the current connection has been relaying
// valid frames, zero before the first one. The supervisor uses it to decide
// whether a faulted run counts as a fresh outage or a crash loop.
func (l *Link) StreamedFor() time.Duration {
	start := l.streamStartNano.Load()
	if start == 0 {
		return 0
	}
	return time.Duration(time.Now().UnixNano() - start)
}

// Run opens the transport and relays until the transport fails or ctx is
// cancelled. The byte cursor lives and dies with the connection.
func (l *Link) Run(ctx context.Context) error {
	l.streamStartNano.Store(0)
	l.setState(StateConnecting)

	conn, err := l.dial(ctx)
	if err != nil {
		l.setState(StateFaulted)
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	// Closing the transport unblocks a pending read on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	cur := frame.NewCursor(l.cfg.CursorCapacity)

	if l.cfg.Configure.Enable {
		if err := l.configure(ctx, conn, cur); err != nil {
			if ctx.Err() != nil {
				l.setState(StateDisconnected)
				return ctx.Err()
			}
			l.setState(StateFaulted)
			return fmt.Errorf("configure receiver: %w", err)
		}
	}

	// Serial descriptors cannot carry read deadlines; a watchdog closes the
	// descriptor when the receiver goes silent, which unblocks the read.
	var watch *idleWatchdog
	if _, ok := conn.(deadlineReader); !ok && l.cfg.IdleTimeout > 0 {
		watch = newIdleWatchdog(l.cfg.IdleTimeout, func() {
			_ = conn.Close()
		})
		defer watch.Stop()
	}

	buf := make([]byte, 4096)
	for {
		if err := l.readOnce(conn, cur, buf, l.cfg.IdleTimeout); err != nil {
			if ctx.Err() != nil {
				l.setState(StateDisconnected)
				return ctx.Err()
			}
			l.setState(StateFaulted)
			if watch != nil && watch.Fired() {
				return fmt.Errorf("receiver idle for %s: %w", l.cfg.IdleTimeout, err)
			}
			return fmt.Errorf("receiver read: %w", err)
		}
		if watch != nil {
			watch.Reset()
		}
		cur.Compact()
	}
}

// idleWatchdog fires once after the idle window elapses without a Reset.
type idleWatchdog struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleWatchdog(d time.Duration, onIdle func()) *idleWatchdog {
	w := &idleWatchdog{d: d}
	w.timer = time.AfterFunc(d, func() {
		w.fired.Store(true)
		onIdle()
	})
	return w
}

func (w *idleWatchdog) Reset() {
	if !w.fired.Load() {
		w.timer.Reset(w.d)
	}
}

func (w *idleWatchdog) Stop() {
	w.timer.Stop()
}

func (w *idleWatchdog) Fired() bool {
	return w.fired.Load()
}

func (l *Link) readOnce(conn Transport, cur *frame.Cursor, buf []byte, idle time.Duration) error {
	if dr, ok := conn.(deadlineReader); ok && idle > 0 {
		if err := dr.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return fmt.Errorf("set idle deadline: %w", err)
		}
	}
	n, err := conn.Read(buf)
	if n > 0 {
		l.ingest(cur, buf[:n])
	}
	return err
}

// ingest appends new bytes and drains every complete frame.
func (l *Link) ingest(cur *frame.Cursor, p []byte) {
	l.bytesRead.Add(uint64(len(p)))
	shedAppend(cur, p)
	for {
		f, _, err := frame.Decode(cur)
		if errors.Is(err, frame.ErrNeedMoreData) {
			return
		}
		l.observe(f)
	}
}

func (l *Link) observe(f frame.Frame) {
	switch f.Kind {
	case frame.KindRTCM3:
		l.rtcmFrames.Add(1)
		l.markValidFrame()
		if c, ok := f.Correction(); ok {
			l.pub.Publish(c)
		}
	case frame.KindUBX:
		l.ubxFrames.Add(1)
		l.markValidFrame()
	default:
		l.malformedFrames.Add(1)
		l.log.Debug().Str("reason", f.Reason).Msg("skipped byte")
	}
}

func (l *Link) markValidFrame() {
	l.lastFrameNano.Store(time.Now().UnixNano())
	// First valid frame of this connection flips the link to streaming.
	if l.state.CompareAndSwap(int32(StateConnecting), int32(StateStreaming)) {
		l.streamStartNano.Store(time.Now().UnixNano())
	}
}

// shedAppend buffers p, shedding the oldest buffered bytes when the cursor
// cannot fit it, and the oldest bytes of p itself when p alone exceeds the
// cursor's capacity. Decoding always makes progress.
func shedAppend(cur *frame.Cursor, p []byte) {
	for cur.Append(p) != nil {
		if cur.Buffered() == 0 {
			p = p[1:]
			continue
		}
		cur.Advance(1)
		cur.Compact()
	}
}

func (l *Link) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		l.log.Info().Str("from", old.String()).Str("to", s.String()).Msg("link state")
	}
}

// configure sends the base-station setup messages and waits for each ACK.
// Corrections decoded while waiting are published as usual.
func (l *Link) configure(ctx context.Context, conn Transport, cur *frame.Cursor) error {
	type step struct {
		name string
		msg  []byte
	}

	var steps []step
	if l.cfg.Configure.FactoryReset {
		steps = append(steps, step{"factory-reset", ubx.FactoryReset()})
	}

	rtcmMsg, err := ubx.RTCM3Outputs()
	if err != nil {
		return err
	}
	steps = append(steps, step{"rtcm3-outputs", rtcmMsg})

	switch l.cfg.Configure.Mode {
	case "fixed":
		fixedMsg, err := ubx.FixedMode(l.cfg.Configure.Position, l.cfg.Configure.AccuracyLimitMM)
		if err != nil {
			return err
		}
		steps = append(steps, step{"fixed-mode", fixedMsg})
	default:
		svinMsg, err := ubx.SurveyIn(l.cfg.Configure.AccuracyLimitMM, l.cfg.Configure.SurveyInMinDurationSec)
		if err != nil {
			return err
		}
		steps = append(steps, step{"survey-in", svinMsg})
	}

	for _, st := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := conn.Write(st.msg); err != nil {
			return fmt.Errorf("send %s: %w", st.name, err)
		}
		if err := l.awaitAck(conn, cur, st.msg); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		l.log.Info().Str("step", st.name).Msg("receiver configuration acknowledged")
	}
	return nil
}

func (l *Link) awaitAck(conn Transport, cur *frame.Cursor, sent []byte) error {
	deadline := time.Now().Add(l.cfg.Configure.AckTimeout)
	buf := make([]byte, 4096)
	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("ack timeout after %s", l.cfg.Configure.AckTimeout)
		}
		if dr, ok := conn.(deadlineReader); ok {
			if err := dr.SetReadDeadline(deadline); err != nil {
				return fmt.Errorf("set ack deadline: %w", err)
			}
		}
		n, err := conn.Read(buf)
		if n > 0 {
			l.bytesRead.Add(uint64(n))
			shedAppend(cur, buf[:n])
			for {
				f, _, derr := frame.Decode(cur)
				if errors.Is(derr, frame.ErrNeedMoreData) {
					break
				}
				if ubx.IsNakFor(f, sent) {
					return errors.New("receiver rejected configuration (ACK-NAK)")
				}
				if ubx.IsAckFor(f, sent) {
					return nil
				}
				l.observe(f)
			}
		}
		if err != nil {
			return err
		}
	}
}
