package ntrip

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"rtkbase/internal/bus"
)

// ServerConfig controls the rover-facing listener.
type ServerConfig struct {
	Listen  string
	Session SessionConfig
}

// Server accepts rover connections and runs one Session per connection.
// Sessions register themselves with the correction bus after a successful
// handshake; the server only tracks them for shutdown.
type Server struct {
	cfg ServerConfig
	b   *bus.Bus
	log zerolog.Logger

	addr atomic.Value // string

	mu       sync.Mutex
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

func NewServer(cfg ServerConfig, b *bus.Bus, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		b:        b,
		log:      log,
		sessions: make(map[*Session]struct{}),
	}
}

// Run listens for rover connections until ctx is cancelled. It returns after
// all sessions have unwound.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("ntrip listen %s: %w", s.cfg.Listen, err)
	}

	s.addr.Store(ln.Addr().String())

	// Closing the listener unblocks Accept on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.log.Info().Str("listen", s.cfg.Listen).Str("mount", s.cfg.Session.Mount).Msg("rover listener up")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.closeAll()
			s.wg.Wait()
			return fmt.Errorf("ntrip accept: %w", err)
		}

		sess := newSession(s.cfg.Session, conn, s.b, s.log)
		s.track(sess)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sess)
			if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Debug().Err(err).Str("session", sess.ID()).Msg("session ended")
			}
		}()
	}

	s.closeAll()
	s.wg.Wait()
	return nil
}

// Addr reports the bound listen address once Run is up, "" before.
func (s *Server) Addr() string {
	v, _ := s.addr.Load().(string)
	return v
}

// SessionCount reports sessions in any state, handshaking included.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(sess *Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
}
