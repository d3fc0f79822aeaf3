package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive"
	"github.com/b4ae-project/b4ae/session"
)

type recordingEmitter struct {
	mu    sync.Mutex
	items []Item
}

func (r *recordingEmitter) Emit(it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, it)
	return nil
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *recordingEmitter) snapshot() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	root, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	send, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	recv, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	id, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	var sid session.ID
	copy(sid[:], id)
	s, err := session.NewSession(session.Params{
		ID: sid, Mode: mode.ModeB, Role: session.RoleInitiator,
		RootKey: root, SendChainKey: send, RecvChainKey: recv,
		Policy: session.DefaultRekeyPolicy(), IdleTimeout: time.Hour, Now: time.Now(),
	})
	require.NoError(t, err)
	return s
}

func TestConfigValidateBounds(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.RateItemsPerSecond = 1
	require.Error(t, bad.Validate())

	bad = cfg
	bad.MinCoverFraction = 0.1
	require.Error(t, bad.Validate())
}

func TestEnqueueBackpressure(t *testing.T) {
	mgr := session.NewManager(time.Hour, nil)
	sess := newTestSession(t)
	mgr.Register(sess)

	cfg := DefaultConfig()
	cfg.QueueDepth = 2
	sched, err := New(cfg, mgr, &recordingEmitter{}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, sched.Enqueue(Item{SessionID: sess.ID(), Kind: session.KindReal, Ciphertext: []byte("x")}))
	}
	err = sched.Enqueue(Item{SessionID: sess.ID(), Kind: session.KindReal, Ciphertext: []byte("x")})
	require.Error(t, err)
}

func TestDiscardSessionRemovesQueuedItems(t *testing.T) {
	mgr := session.NewManager(time.Hour, nil)
	sess := newTestSession(t)
	mgr.Register(sess)

	sched, err := New(DefaultConfig(), mgr, &recordingEmitter{}, nil)
	require.NoError(t, err)
	require.NoError(t, sched.Enqueue(Item{SessionID: sess.ID(), Kind: session.KindReal}))
	sched.DiscardSession(sess.ID())

	item, ok := sched.popQueue()
	require.False(t, ok)
	require.Equal(t, Item{}, item)
}

func TestSchedulerEmitsAtConfiguredRate(t *testing.T) {
	mgr := session.NewManager(time.Hour, nil)
	sess := newTestSession(t)
	mgr.Register(sess)

	cfg := DefaultConfig()
	cfg.RateItemsPerSecond = 200
	emitter := &recordingEmitter{}
	sched, err := New(cfg, mgr, emitter, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	time.Sleep(250 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	n := emitter.count()
	want := float64(cfg.RateItemsPerSecond) * 0.25
	require.InEpsilonf(t, want, float64(n), 0.5, "emitted %d items, want ~%.0f", n, want)
}

func TestCoverFloorEnforced(t *testing.T) {
	mgr := session.NewManager(time.Hour, nil)
	sess := newTestSession(t)
	mgr.Register(sess)

	cfg := DefaultConfig()
	cfg.RateItemsPerSecond = 200
	cfg.MinCoverFraction = 0.5
	emitter := &recordingEmitter{}
	sched, err := New(cfg, mgr, emitter, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	time.Sleep(200 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	items := emitter.snapshot()
	require.NotEmpty(t, items)
	var cover int
	for _, it := range items {
		if it.Kind == session.KindCover {
			cover++
		}
	}
	require.GreaterOrEqual(t, float64(cover)/float64(len(items)), cfg.MinCoverFraction-0.1)
}
