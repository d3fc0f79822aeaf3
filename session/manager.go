package session

import (
	"sync"
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// Metrics receives session lifecycle counters. A nil Metrics is replaced
// with a no-op implementation.
type Metrics interface {
	SessionCreated()
	SessionClosed(reason string)
	SessionRekeyed()
}

type noopMetrics struct{}

func (noopMetrics) SessionCreated()          {}
func (noopMetrics) SessionClosed(string)     {}
func (noopMetrics) SessionRekeyed()          {}

// Manager is the process-wide registry of live sessions, indexed by ID. The
// scheduler holds only IDs and looks sessions up through this registry on
// every cover-traffic request, which keeps the session and scheduler
// packages from referencing each other directly.
type Manager struct {
	mu       sync.RWMutex
	sessions map[ID]*Session
	order    []ID // round-robin cursor for cover-message selection
	cursor   int
	metrics  Metrics

	cleanupInterval time.Duration
	stop            chan struct{}
	done            chan struct{}
}

// NewManager constructs an empty session registry. Its cleanup loop, which
// closes idle sessions and drops already-closed ones, runs once Start is
// called.
func NewManager(cleanupInterval time.Duration, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		sessions:        make(map[ID]*Session),
		metrics:         metrics,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Register inserts a newly established session into the registry.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.id] = s
	m.order = append(m.order, s.id)
	m.metrics.SessionCreated()
}

// Lookup returns the session for id, or nil if unknown. A nil return is a
// no-op for callers such as the scheduler's cover-request path, which must
// tolerate stale IDs gracefully.
func (m *Manager) Lookup(id ID) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// NextForCover returns the next session in round-robin order willing to
// emit a cover message, or nil if no session is registered.
func (m *Manager) NextForCover() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.order)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (m.cursor + i) % n
		id := m.order[idx]
		s, ok := m.sessions[id]
		if ok && !s.Closed() {
			m.cursor = (idx + 1) % n
			return s
		}
	}
	return nil
}

// Close removes a session from the registry and zeroes its key material.
func (m *Manager) Close(id ID, reason string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.removeFromOrder(id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	m.metrics.SessionClosed(reason)
}

func (m *Manager) removeFromOrder(id ID) {
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start runs the idle-session cleanup loop until Stop is called. Session
// age is not checked here.
func (m *Manager) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Stop halts the cleanup loop and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) sweep() {
	now := time.Now()
	m.mu.RLock()
	stale := make([]ID, 0)
	for id, s := range m.sessions {
		if s.Idle(now) || s.Closed() {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range stale {
		m.Close(id, "idle_timeout")
	}
}

// ErrUnknownSession is returned by callers (not Manager itself) when an
// inbound frame names a session ID the registry has never seen.
var ErrUnknownSession = b4aeerr.New(b4aeerr.KindInvalidInput, "session.Manager.Lookup", "unknown session id")
