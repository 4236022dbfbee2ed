package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rtkbase/internal/frame"
)

// Subscriber is the bus-facing side of a client session. Enqueue must never
// block: it reports false when the session's bounded queue cannot accept the
// frame. Evict is called at most once, off the publish lock, when the session
// exceeded the drop budget and must be disconnected.
type Subscriber interface {
	ID() string
	Enqueue(c frame.Correction) bool
	Evict(reason string)
}

// Config bounds the slow-consumer policy.
type Config struct {
	// DropLimit is how many dropped frames within DropWindow force eviction.
	DropLimit int
	// DropWindow is the rolling window the limit applies to.
	DropWindow time.Duration
}

// Bus distributes validated corrections from the single receiver link to all
// subscribed sessions. Publish never blocks on a slow session; it drops the
// frame for that session only and evicts it once drops exceed the budget.
type Bus struct {
	cfg Config
	log zerolog.Logger

	published atomic.Uint64

	mu   sync.Mutex
	subs map[Subscriber]*subState

	nowFn func() time.Time
}

type subState struct {
	drops       uint64
	windowStart time.Time
	windowDrops int
}

// SubscriberStats is a point-in-time view of one subscription.
type SubscriberStats struct {
	ID            string `json:"id"`
	DroppedFrames uint64 `json:"dropped_frames"`
}

// Stats is a point-in-time view of the bus.
type Stats struct {
	PublishedFrames uint64            `json:"published_frames"`
	Subscribers     []SubscriberStats `json:"subscribers"`
}

func New(cfg Config, log zerolog.Logger) *Bus {
	if cfg.DropLimit <= 0 {
		cfg.DropLimit = 50
	}
	if cfg.DropWindow <= 0 {
		cfg.DropWindow = 10 * time.Second
	}
	return &Bus{
		cfg:   cfg,
		log:   log,
		subs:  make(map[Subscriber]*subState),
		nowFn: time.Now,
	}
}

// Subscribe registers s for subsequent publishes. Registering an already
// subscribed session is a no-op.
func (b *Bus) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[s]; !ok {
		b.subs[s] = &subState{}
	}
	n := len(b.subs)
	b.mu.Unlock()
	b.log.Info().Str("session", s.ID()).Int("subscribers", n).Msg("session subscribed")
}

// Unsubscribe removes s. It is idempotent; unsubscribing an unknown session
// is a no-op.
func (b *Bus) Unsubscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.subs[s]
	delete(b.subs, s)
	n := len(b.subs)
	b.mu.Unlock()
	if ok {
		b.log.Info().Str("session", s.ID()).Int("subscribers", n).Msg("session unsubscribed")
	}
}

// Publish hands c to every subscriber's queue without blocking. Called only
// by the receiver link, so per-subscriber delivery order equals publish
// order. Sessions whose queue is full have the frame dropped for them alone;
// a session that overflows its drop budget is unsubscribed and evicted.
func (b *Bus) Publish(c frame.Correction) {
	b.published.Add(1)
	now := b.nowFn()

	var evicted []Subscriber
	b.mu.Lock()
	for s, st := range b.subs {
		if s.Enqueue(c) {
			continue
		}
		st.drops++
		if st.windowStart.IsZero() || now.Sub(st.windowStart) > b.cfg.DropWindow {
			st.windowStart = now
			st.windowDrops = 0
		}
		st.windowDrops++
		if st.windowDrops >= b.cfg.DropLimit {
			delete(b.subs, s)
			evicted = append(evicted, s)
		}
	}
	b.mu.Unlock()

	for _, s := range evicted {
		b.log.Warn().Str("session", s.ID()).
			Int("drop_limit", b.cfg.DropLimit).
			Dur("drop_window", b.cfg.DropWindow).
			Msg("evicting slow consumer")
		s.Evict("slow consumer")
	}
}

// SubscriberCount reports the current number of subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Snapshot returns aggregate distribution statistics for the health surface.
func (b *Bus) Snapshot() Stats {
	b.mu.Lock()
	subs := make([]SubscriberStats, 0, len(b.subs))
	for s, st := range b.subs {
		subs = append(subs, SubscriberStats{ID: s.ID(), DroppedFrames: st.drops})
	}
	b.mu.Unlock()
	return Stats{
		PublishedFrames: b.published.Load(),
		Subscribers:     subs,
	}
}
