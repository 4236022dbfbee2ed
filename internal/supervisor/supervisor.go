package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rtkbase/internal/bus"
	"rtkbase/internal/link"
)

// Runner is a long-lived component: Run blocks until failure or ctx
// cancellation. The receiver link and the rover listener satisfy it.
type Runner interface {
	Run(ctx context.Context) error
}

// ReceiverLink is the supervised link surface: one Run per connection
// attempt, plus state and counters for the health snapshot. StreamedFor
// reports how long the last run actually relayed frames, which excludes
// time spent dialing and configuring.
type ReceiverLink interface {
	Runner
	State() link.State
	Snapshot() link.Snapshot
	StreamedFor() time.Duration
}

// Config controls restart policy for the receiver link.
type Config struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// HealthyStreaming is how long a link run must have relayed frames before
	// the next restart delay resets to the floor. A link that streamed for a
	// sustained period and then faulted is treated as a fresh outage, not a
	// crash loop; a link stuck in dial or configuration never qualifies.
	HealthyStreaming time.Duration
}

// Supervisor owns the lifecycle of the receiver link and the rover listener:
// it restarts the link with capped exponential backoff and tears everything
// down cooperatively on shutdown.
type Supervisor struct {
	cfg      Config
	lnk      ReceiverLink
	listener Runner
	b        *bus.Bus
	log      zerolog.Logger

	started  atomic.Bool
	restarts atomic.Uint64

	mu      sync.Mutex
	lastErr string

	startAt time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) bool
}

func New(cfg Config, lnk ReceiverLink, listener Runner, b *bus.Bus, log zerolog.Logger) *Supervisor {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.HealthyStreaming <= 0 {
		cfg.HealthyStreaming = 30 * time.Second
	}
	return &Supervisor{
		cfg:      cfg,
		lnk:      lnk,
		listener: listener,
		b:        b,
		log:      log,
		done:     make(chan struct{}),
		nowFn:    time.Now,
		sleepFn:  sleepCtx,
	}
}

// Start launches the link restart loop and the listener. It returns
// immediately; Close waits for both to unwind.
func (s *Supervisor) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("supervisor is nil")
	}
	if s.started.Swap(true) {
		return fmt.Errorf("supervisor already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startAt = s.nowFn()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.linkLoop(runCtx)
	}()

	if s.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.listener.Run(runCtx); err != nil && runCtx.Err() == nil {
				s.log.Error().Err(err).Msg("rover listener stopped")
				s.setLastErr(err.Error())
				// A dead listener leaves the base headless; unwind the process.
				cancel()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(s.done)
	}()
	return nil
}

// Close cancels the supervised components and waits for them to return.
func (s *Supervisor) Close() {
	if s == nil || !s.started.Load() {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// linkLoop runs the receiver link forever, applying backoff between
// attempts. A run that relayed frames for longer than HealthyStreaming
// resets the delay to its floor.
func (s *Supervisor) linkLoop(ctx context.Context) {
	bo := newBackoff(s.cfg.BackoffInitial, s.cfg.BackoffMax)

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.lnk.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		streamed := s.lnk.StreamedFor()
		if err != nil {
			s.setLastErr(err.Error())
		}
		if streamed >= s.cfg.HealthyStreaming {
			bo.Reset()
		}
		s.restarts.Add(1)

		delay := bo.Next()
		s.log.Warn().Err(err).Dur("streamed", streamed).Dur("retry_in", delay).Msg("receiver link down, restarting")
		if !s.sleepFn(ctx, delay) {
			return
		}
	}
}

func (s *Supervisor) setLastErr(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

// Snapshot aggregates process health for the web surface.
type Snapshot struct {
	LinkState string        `json:"link_state"`
	Link      link.Snapshot `json:"link"`
	Restarts  uint64        `json:"link_restarts"`
	LastError string        `json:"last_error,omitempty"`
	UptimeSec int64         `json:"uptime_sec"`
	Bus       bus.Stats     `json:"bus"`
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()

	snap := Snapshot{
		LinkState: s.lnk.State().String(),
		Link:      s.lnk.Snapshot(),
		Restarts:  s.restarts.Load(),
		LastError: lastErr,
		Bus:       s.b.Snapshot(),
	}
	if !s.startAt.IsZero() {
		snap.UptimeSec = int64(s.nowFn().Sub(s.startAt).Seconds())
	}
	return snap
}

// LinkState exposes the current receiver link state.
func (s *Supervisor) LinkState() link.State {
	return s.lnk.State()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
