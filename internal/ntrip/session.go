package ntrip

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rtkbase/internal/bus"
	"rtkbase/internal/frame"
)

// State is the client session lifecycle.
type State int32

const (
	StateHandshaking State = iota
	StateSubscribed
	// StateDraining is set when the outbound queue overflowed: queued frames
	// are still written, but no new frames are accepted until the queue
	// empties.
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrHandshake covers malformed or rejected rover handshakes.
var ErrHandshake = errors.New("ntrip: handshake failed")

const responseOK = "ICY 200 OK\r\n\r\n"

// SessionConfig bounds a single rover connection.
type SessionConfig struct {
	Mount            string
	Password         string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	QueueSize        int
}

// Session is one connected rover. The bus enqueues corrections through
// Enqueue; a dedicated writer goroutine drains the queue to the socket so a
// slow peer never blocks the publisher.
type Session struct {
	cfg  SessionConfig
	conn net.Conn
	b    *bus.Bus
	log  zerolog.Logger

	id    string
	state atomic.Int32
	queue chan frame.Correction

	// done is closed exactly once when the session closes; the writer loop
	// selects on it so eviction terminates Run even with an empty queue.
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(cfg SessionConfig, conn net.Conn, b *bus.Bus, log zerolog.Logger) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	id := conn.RemoteAddr().String()
	return &Session{
		cfg:   cfg,
		conn:  conn,
		b:     b,
		log:   log.With().Str("session", id).Logger(),
		id:    id,
		queue: make(chan frame.Correction, cfg.QueueSize),
		done:  make(chan struct{}),
	}
}

// ID identifies the session on the health surface.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Enqueue implements bus.Subscriber. It never blocks: a full queue flips the
// session to draining and the frame is dropped for this session only. A
// draining session resumes accepting frames once its queue has emptied.
func (s *Session) Enqueue(c frame.Correction) bool {
	switch State(s.state.Load()) {
	case StateSubscribed:
		select {
		case s.queue <- c:
			return true
		default:
			if s.state.CompareAndSwap(int32(StateSubscribed), int32(StateDraining)) {
				s.log.Warn().Int("queue", cap(s.queue)).Msg("outbound queue full, draining")
			}
			return false
		}
	case StateDraining:
		if len(s.queue) > 0 {
			return false
		}
		if !s.state.CompareAndSwap(int32(StateDraining), int32(StateSubscribed)) {
			return false
		}
		select {
		case s.queue <- c:
			return true
		default:
			s.state.CompareAndSwap(int32(StateSubscribed), int32(StateDraining))
			return false
		}
	default:
		return false
	}
}

// Evict implements bus.Subscriber: forced disconnect of a slow consumer.
// The bus has already removed the subscription.
func (s *Session) Evict(reason string) {
	s.log.Warn().Str("reason", reason).Msg("session evicted")
	s.close()
}

// Run performs the handshake and then writes queued corrections to the
// socket until the connection fails, the session is evicted, or ctx is
// cancelled. The connection is always closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.close()

	// Closing the socket makes a blocked read or write return, so shutdown
	// is observable at every suspension point.
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	if err := s.handshake(); err != nil {
		s.state.Store(int32(StateClosed))
		return err
	}

	if !s.subscribe() {
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ctx.Err()
		case c := <-s.queue:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if _, err := s.conn.Write(c.Raw); err != nil {
				return fmt.Errorf("write correction: %w", err)
			}
		}
	}
}

// handshake reads the rover's request within the handshake timeout and
// validates mountpoint and credentials. Sessions that fail here are closed
// without ever subscribing.
func (s *Session) handshake() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %v", ErrHandshake, err)
	}
	defer func() {
		_ = s.conn.SetReadDeadline(time.Time{})
	}()

	r := bufio.NewReaderSize(s.conn, 1024)
	request, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: read request line: %v", ErrHandshake, err)
	}

	mount, ok := parseRequestLine(request)
	if !ok {
		s.reject("HTTP/1.0 400 Bad Request\r\n\r\n")
		return fmt.Errorf("%w: malformed request line %q", ErrHandshake, strings.TrimSpace(request))
	}

	var authorization string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: read headers: %v", ErrHandshake, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		// Header names are case-insensitive.
		if name, v, found := strings.Cut(line, ":"); found && strings.EqualFold(strings.TrimSpace(name), "Authorization") {
			authorization = strings.TrimSpace(v)
		}
	}

	if s.cfg.Mount != "" && !strings.EqualFold(mount, s.cfg.Mount) {
		s.reject("HTTP/1.0 404 Not Found\r\n\r\n")
		return fmt.Errorf("%w: unknown mountpoint %q", ErrHandshake, mount)
	}
	if s.cfg.Password != "" && !credentialsValid(authorization, s.cfg.Password) {
		s.reject("HTTP/1.0 401 Unauthorized\r\n\r\n")
		return fmt.Errorf("%w: bad credentials for mountpoint %q", ErrHandshake, mount)
	}

	if _, err := s.conn.Write([]byte(responseOK)); err != nil {
		return fmt.Errorf("%w: write response: %v", ErrHandshake, err)
	}
	s.log.Info().Str("mount", mount).Msg("rover connected")
	return nil
}

func (s *Session) reject(response string) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_, _ = s.conn.Write([]byte(response))
}

// subscribe flips the session into the bus's subscriber set. It reports
// false when the session was closed while the handshake response was in
// flight; a closed session must never re-enter the subscriber set.
func (s *Session) subscribe() bool {
	if !s.state.CompareAndSwap(int32(StateHandshaking), int32(StateSubscribed)) {
		return false
	}
	s.b.Subscribe(s)
	return true
}

// close is idempotent: it unsubscribes from the bus, marks the session
// closed and closes the socket. Closing done wakes the writer loop.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		s.b.Unsubscribe(s)
		_ = s.conn.Close()
	})
}

// parseRequestLine extracts the mountpoint from "GET /MOUNT HTTP/1.x".
func parseRequestLine(line string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 {
		return "", false
	}
	if fields[0] != "GET" {
		return "", false
	}
	if !strings.HasPrefix(fields[2], "HTTP/") {
		return "", false
	}
	mount := strings.TrimPrefix(fields[1], "/")
	if mount == "" {
		return "", false
	}
	return mount, true
}

// credentialsValid checks a Basic authorization value against the shared
// password. The user part is not interpreted.
func credentialsValid(authorization, password string) bool {
	v, found := strings.CutPrefix(authorization, "Basic ")
	if !found {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	_, pass, ok := strings.Cut(string(decoded), ":")
	return ok && pass == password
}
