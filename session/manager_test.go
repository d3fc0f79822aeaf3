package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerRegisterLookupClose(t *testing.T) {
	m := NewManager(time.Minute, nil)
	alice, _ := pairedSessions(t)
	m.Register(alice)

	require.Equal(t, 1, m.Count())
	require.Same(t, alice, m.Lookup(alice.ID()))

	m.Close(alice.ID(), "test")
	require.Equal(t, 0, m.Count())
	require.Nil(t, m.Lookup(alice.ID()))
	require.True(t, alice.Closed())
}

func TestManagerNextForCoverRoundRobin(t *testing.T) {
	m := NewManager(time.Minute, nil)
	a, _ := pairedSessions(t)
	b, _ := pairedSessions(t)
	m.Register(a)
	m.Register(b)

	seen := map[ID]bool{}
	for i := 0; i < 2; i++ {
		s := m.NextForCover()
		require.NotNil(t, s)
		seen[s.ID()] = true
	}
	require.Len(t, seen, 2)
}

func TestManagerNextForCoverEmpty(t *testing.T) {
	m := NewManager(time.Minute, nil)
	require.Nil(t, m.NextForCover())
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(10*time.Millisecond, nil)
	m.Start()
	m.Stop()
}
