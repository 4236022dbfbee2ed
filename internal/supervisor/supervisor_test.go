package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rtkbase/internal/bus"
	"rtkbase/internal/link"
)

type fakeLink struct {
	runFn    func(ctx context.Context, run int) error
	runs     int
	state    link.State
	snap     link.Snapshot
	streamed time.Duration
}

func (f *fakeLink) Run(ctx context.Context) error {
	f.runs++
	return f.runFn(ctx, f.runs)
}

func (f *fakeLink) State() link.State          { return f.state }
func (f *fakeLink) Snapshot() link.Snapshot    { return f.snap }
func (f *fakeLink) StreamedFor() time.Duration { return f.streamed }

type fakeListener struct {
	runFn func(ctx context.Context) error
}

func (f *fakeListener) Run(ctx context.Context) error { return f.runFn(ctx) }

func newTestSupervisor(cfg Config, lnk ReceiverLink, listener Runner) *Supervisor {
	b := bus.New(bus.Config{}, zerolog.Nop())
	return New(cfg, lnk, listener, b, zerolog.Nop())
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not unwind")
	}
}

func TestSupervisor_RestartsWithGrowingBackoff(t *testing.T) {
	lnk := &fakeLink{runFn: func(ctx context.Context, run int) error {
		return errors.New("link down")
	}}
	s := newTestSupervisor(Config{
		BackoffInitial:   100 * time.Millisecond,
		BackoffMax:       400 * time.Millisecond,
		HealthyStreaming: time.Hour,
	}, lnk, nil)

	var delays []time.Duration
	s.sleepFn = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return len(delays) < 5
	}

	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	require.Equal(t, 5, lnk.runs)
	require.Equal(t, uint64(5), s.restarts.Load())

	// The undithered base doubles per attempt and caps; each observed delay
	// carries at most 20% jitter around it.
	bases := []time.Duration{100, 200, 400, 400, 400}
	require.Len(t, delays, 5)
	for i, d := range delays {
		base := bases[i] * time.Millisecond
		require.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8), "delay %d", i)
		require.LessOrEqual(t, d, time.Duration(float64(base)*1.2), "delay %d", i)
	}
	require.Contains(t, s.Snapshot().LastError, "link down")
}

func TestSupervisor_HealthyStreamingResetsBackoff(t *testing.T) {
	// Every run streams well past the healthy threshold before faulting.
	lnk := &fakeLink{streamed: 2 * time.Hour}
	lnk.runFn = func(ctx context.Context, run int) error {
		return errors.New("link down")
	}
	s := newTestSupervisor(Config{
		BackoffInitial:   100 * time.Millisecond,
		BackoffMax:       time.Minute,
		HealthyStreaming: time.Hour,
	}, lnk, nil)

	var delays []time.Duration
	s.sleepFn = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return len(delays) < 4
	}

	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	// Backoff resets to the floor after each sustained run.
	for i, d := range delays {
		require.GreaterOrEqual(t, d, 80*time.Millisecond, "delay %d", i)
		require.LessOrEqual(t, d, 120*time.Millisecond, "delay %d", i)
	}
}

func TestSupervisor_SlowRunWithoutStreamingKeepsBackoffGrowing(t *testing.T) {
	// Each run wastes a long time in dial/configuration but never relays a
	// frame; that must not count as healthy streaming.
	now := time.Unix(1000, 0)
	lnk := &fakeLink{streamed: 0}
	lnk.runFn = func(ctx context.Context, run int) error {
		now = now.Add(2 * time.Hour)
		return errors.New("configure receiver: ack timeout")
	}
	s := newTestSupervisor(Config{
		BackoffInitial:   100 * time.Millisecond,
		BackoffMax:       time.Minute,
		HealthyStreaming: time.Hour,
	}, lnk, nil)
	s.nowFn = func() time.Time { return now }

	var delays []time.Duration
	s.sleepFn = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return len(delays) < 3
	}

	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	bases := []time.Duration{100, 200, 400}
	require.Len(t, delays, 3)
	for i, d := range delays {
		base := bases[i] * time.Millisecond
		require.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8), "delay %d", i)
		require.LessOrEqual(t, d, time.Duration(float64(base)*1.2), "delay %d", i)
	}
}

func TestSupervisor_CloseStopsBlockedLink(t *testing.T) {
	lnk := &fakeLink{runFn: func(ctx context.Context, run int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s := newTestSupervisor(Config{}, lnk, nil)
	require.NoError(t, s.Start(context.Background()))

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	require.Equal(t, 1, lnk.runs)
}

func TestSupervisor_ListenerFailureUnwindsEverything(t *testing.T) {
	lnk := &fakeLink{runFn: func(ctx context.Context, run int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	listener := &fakeListener{runFn: func(ctx context.Context) error {
		return errors.New("listen tcp: address in use")
	}}
	s := newTestSupervisor(Config{}, lnk, listener)

	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)
	require.Contains(t, s.Snapshot().LastError, "address in use")
}

func TestSupervisor_StartTwiceRejected(t *testing.T) {
	lnk := &fakeLink{runFn: func(ctx context.Context, run int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s := newTestSupervisor(Config{}, lnk, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	s.Close()
}

func TestSupervisor_Snapshot(t *testing.T) {
	now := time.Unix(1000, 0)
	lnk := &fakeLink{
		state: link.StateStreaming,
		snap:  link.Snapshot{BytesRead: 42, RTCMFrames: 7},
		runFn: func(ctx context.Context, run int) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s := newTestSupervisor(Config{}, lnk, nil)
	s.nowFn = func() time.Time { return now }

	require.NoError(t, s.Start(context.Background()))
	now = now.Add(90 * time.Second)

	snap := s.Snapshot()
	require.Equal(t, "streaming", snap.LinkState)
	require.Equal(t, uint64(42), snap.Link.BytesRead)
	require.Equal(t, uint64(7), snap.Link.RTCMFrames)
	require.Equal(t, int64(90), snap.UptimeSec)
	require.Zero(t, snap.Restarts)

	s.Close()
}
