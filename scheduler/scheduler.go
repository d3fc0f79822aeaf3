// Package scheduler implements B4AE's global traffic scheduler: the
// single, process-wide constant-rate queue that paces every session's
// outbound ciphertexts and mixes in cover traffic so a global passive
// observer cannot correlate wire activity with any one session.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/session"
)

// Item is one queued ciphertext: the unit the scheduler dequeues and hands
// to the Emitter. CorrelationID is an opaque per-item identifier for logs
// and metrics labels; it carries no session identity and is never derived
// from one.
type Item struct {
	SessionID     session.ID
	Counter       uint64
	Kind          session.ItemKind
	Ciphertext    []byte
	EnqueuedAt    time.Time
	CorrelationID uuid.UUID
}

// Emitter is the scheduler's only outbound collaborator: handing an Item to
// the transport layer. The scheduler never reorders or inspects ciphertext
// bytes; it only paces and mixes.
type Emitter interface {
	Emit(Item) error
}

// Config controls the scheduler's rate, cover floor, and per-session queue
// depth. All fields are fixed at construction and immutable for the process
// lifetime.
type Config struct {
	RateItemsPerSecond int           // [10, 1000], default 100
	MinCoverFraction   float64       // [0.2, 1.0], default 0.2
	QueueDepth         int           // default 1024
	CoverWindow        time.Duration // rolling window for the cover floor, default 60s
}

// DefaultConfig returns the scheduler's recommended defaults.
func DefaultConfig() Config {
	return Config{
		RateItemsPerSecond: 100,
		MinCoverFraction:   0.2,
		QueueDepth:         1024,
		CoverWindow:        60 * time.Second,
	}
}

// Validate enforces the configured bounds on RateItemsPerSecond and
// MinCoverFraction.
func (c Config) Validate() error {
	if c.RateItemsPerSecond < 10 || c.RateItemsPerSecond > 1000 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "scheduler.Config.Validate", "rate must be within [10, 1000] items/s")
	}
	if c.MinCoverFraction < 0.2 || c.MinCoverFraction > 1.0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "scheduler.Config.Validate", "min cover fraction must be within [0.2, 1.0]")
	}
	if c.QueueDepth <= 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "scheduler.Config.Validate", "queue depth must be positive")
	}
	return nil
}

// Metrics receives scheduler observability counters.
type Metrics interface {
	ItemEmitted(kind session.ItemKind)
	QueueDepthBySession(id session.ID, depth int)
	RateDeviation(deviation time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ItemEmitted(session.ItemKind)                {}
func (noopMetrics) QueueDepthBySession(session.ID, int)         {}
func (noopMetrics) RateDeviation(time.Duration)                 {}

// Scheduler is the single process-wide dequeue-and-emit task. Every active
// session feeds it through Enqueue; a single goroutine ticks at the
// configured rate and drains the queue.
type Scheduler struct {
	cfg      Config
	emitter  Emitter
	sessions *session.Manager
	metrics  Metrics

	mu           sync.Mutex
	queue        []Item
	perSession   map[session.ID]int // queued-but-not-yet-emitted count, for backpressure
	history      []historyEntry     // rolling window of recent emission kinds, oldest first

	limiter *rate.Limiter

	stop chan struct{}
	done chan struct{}
}

type historyEntry struct {
	at   time.Time
	kind session.ItemKind
}

// New constructs a Scheduler bound to a session registry and an outbound
// Emitter. Call Start to begin the tick loop.
func New(cfg Config, sessions *session.Manager, emitter Emitter, metrics Metrics) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Scheduler{
		cfg:        cfg,
		emitter:    emitter,
		sessions:   sessions,
		metrics:    metrics,
		perSession: make(map[session.ID]int),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateItemsPerSecond), 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Enqueue adds a real-message item to the unified queue. It returns
// ApplicationBackpressure if the item's session has reached QueueDepth
// items still awaiting emission; no item is ever dropped silently.
func (s *Scheduler) Enqueue(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perSession[item.SessionID] >= s.cfg.QueueDepth {
		return b4aeerr.New(b4aeerr.KindApplicationBackpressure, "scheduler.Scheduler.Enqueue", "per-session queue depth exceeded")
	}
	item.EnqueuedAt = timeNow()
	if item.CorrelationID == uuid.Nil {
		item.CorrelationID = uuid.New()
	}
	s.queue = append(s.queue, item)
	s.perSession[item.SessionID]++
	s.metrics.QueueDepthBySession(item.SessionID, s.perSession[item.SessionID])
	return nil
}

// DiscardSession removes all queued-but-unemitted items belonging to id, as
// required when a session closes.
func (s *Scheduler) DiscardSession(id session.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	for _, it := range s.queue {
		if it.SessionID == id {
			continue
		}
		kept = append(kept, it)
	}
	s.queue = kept
	delete(s.perSession, id)
}

// Start launches the tick loop as a background goroutine inside an
// errgroup; done is closed once the loop has returned, so shutdown can wait
// on it.
func (s *Scheduler) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.run(gctx)
		return nil
	})
	go func() {
		_ = g.Wait()
		close(s.done)
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	interval := time.Second / time.Duration(s.cfg.RateItemsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastTick time.Time
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if !lastTick.IsZero() {
				s.metrics.RateDeviation(now.Sub(lastTick) - interval)
			}
			lastTick = now
			s.tick()
		}
	}
}

// tick dequeues and emits exactly one item, or emits one cover message if
// the queue is empty or the cover floor demands it. It never blocks.
func (s *Scheduler) tick() {
	item, ok := s.nextEmittable()
	if !ok {
		return
	}
	if err := s.emitter.Emit(item); err != nil {
		return
	}
	s.recordEmission(item.Kind)
	s.metrics.ItemEmitted(item.Kind)
}

// nextEmittable picks the item for this tick: a real item from the queue
// unless the rolling cover floor is unmet, in which case a cover message
// from the round-robin session set takes priority; falls back to whichever
// of the two is available.
func (s *Scheduler) nextEmittable() (Item, bool) {
	coverDue := s.coverFloorUnmet()

	real, hasReal := s.popQueue()
	if hasReal && !coverDue {
		return real, true
	}

	cover, hasCover := s.emitCover()
	if hasCover {
		if hasReal {
			// Put the skipped real item back at the front so ordering within
			// its own session is preserved.
			s.pushFront(real)
		}
		return cover, true
	}
	if hasReal {
		return real, true
	}
	return Item{}, false
}

// popQueue returns and removes the oldest queued item whose session is
// still live, discarding any stale entries for sessions that closed after
// being enqueued.
func (s *Scheduler) popQueue() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		it := s.queue[0]
		s.queue = s.queue[1:]
		s.perSession[it.SessionID]--
		if s.perSession[it.SessionID] <= 0 {
			delete(s.perSession, it.SessionID)
		}
		if sess := s.sessions.Lookup(it.SessionID); sess != nil && !sess.Closed() {
			return it, true
		}
		// Stale: session closed between enqueue and dequeue; drop and retry.
	}
	return Item{}, false
}

func (s *Scheduler) pushFront(it Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]Item{it}, s.queue...)
	s.perSession[it.SessionID]++
}

// emitCover asks the session registry, round-robin, for a cover message.
func (s *Scheduler) emitCover() (Item, bool) {
	sess := s.sessions.NextForCover()
	if sess == nil {
		return Item{}, false
	}
	enc, err := sess.EmitCover()
	if err != nil {
		return Item{}, false
	}
	return Item{SessionID: sess.ID(), Counter: enc.Counter, Kind: enc.Kind, Ciphertext: enc.Ciphertext, EnqueuedAt: timeNow(), CorrelationID: uuid.New()}, true
}

// coverFloorUnmet reports whether the fraction of cover items emitted over
// the rolling window is below MinCoverFraction.
func (s *Scheduler) coverFloorUnmet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimHistoryLocked()
	if len(s.history) == 0 {
		return true
	}
	var cover int
	for _, h := range s.history {
		if h.kind == session.KindCover {
			cover++
		}
	}
	return float64(cover)/float64(len(s.history)) < s.cfg.MinCoverFraction
}

func (s *Scheduler) recordEmission(kind session.ItemKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, historyEntry{at: timeNow(), kind: kind})
	s.trimHistoryLocked()
}

func (s *Scheduler) trimHistoryLocked() {
	cutoff := timeNow().Add(-s.cfg.CoverWindow)
	i := 0
	for i < len(s.history) && s.history[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.history = s.history[i:]
	}
}

// timeNow is a seam for deterministic tests.
var timeNow = time.Now
