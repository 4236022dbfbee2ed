package statusled

// Package statusled drives an optional front-panel LED mirroring the
// receiver link state on embedded boards: solid while streaming, blinking
// while connecting, off when disconnected or faulted.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rtkbase/internal/link"
)

type Config struct {
	Enable bool

	// Pin is BCM GPIO numbering.
	Pin int

	// Interval controls how often the LED is refreshed (and the blink rate).
	Interval time.Duration
}

// StateFunc supplies the current link state.
type StateFunc func() link.State

type Service struct {
	cfg   Config
	state StateFunc
	log   zerolog.Logger

	mu  sync.Mutex
	drv ledDriver

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ledDriver interface {
	Set(on bool) error
	Close() error
}

func New(cfg Config, state StateFunc, log zerolog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	return &Service{cfg: cfg, state: state, log: log}
}

// Start is best-effort: a missing GPIO chip logs a warning instead of
// failing base-station bring-up.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("statusled service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	drv, err := openLEDFn(s.cfg.Pin)
	if err != nil {
		s.log.Warn().Err(err).Int("pin", s.cfg.Pin).Msg("status led unavailable")
		return nil
	}
	s.drv = drv

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()

		on := false
		for {
			select {
			case <-childCtx.Done():
				return
			case <-t.C:
			}

			switch s.state() {
			case link.StateStreaming:
				on = true
			case link.StateConnecting:
				on = !on
			default:
				on = false
			}
			if err := drv.Set(on); err != nil {
				s.log.Warn().Err(err).Msg("status led write failed")
				return
			}
		}
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	drv := s.drv
	s.cancel = nil
	s.drv = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if drv != nil {
		_ = drv.Close()
	}
}
