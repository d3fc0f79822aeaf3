package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive"
)

func testParams(t *testing.T, role Role) Params {
	t.Helper()
	root, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	send, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	recv, err := primitive.RandomBytes(32)
	require.NoError(t, err)
	var id ID
	copy(id[:], mustRandom(t, 32))
	return Params{
		ID:           id,
		Mode:         mode.ModeB,
		Role:         role,
		RootKey:      root,
		SendChainKey: send,
		RecvChainKey: recv,
		Policy:       DefaultRekeyPolicy(),
		IdleTimeout:  15 * time.Minute,
		Now:          time.Now(),
	}
}

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b, err := primitive.RandomBytes(n)
	require.NoError(t, err)
	return b
}

// pairedSessions builds two Session values that share a session ID and
// mirror chain keys across roles, as the handshake engine would produce on
// both ends of one handshake.
func pairedSessions(t *testing.T) (alice, bob *Session) {
	t.Helper()
	root := mustRandom(t, 32)
	var id ID
	copy(id[:], mustRandom(t, 32))

	aliceSend, bobRecv := mustRandom(t, 32), mustRandom(t, 32)
	bobSend, aliceRecv := mustRandom(t, 32), mustRandom(t, 32)

	now := time.Now()
	a, err := NewSession(Params{
		ID: id, Mode: mode.ModeB, Role: RoleInitiator,
		RootKey: append([]byte{}, root...), SendChainKey: aliceSend, RecvChainKey: aliceRecv,
		Policy: DefaultRekeyPolicy(), IdleTimeout: time.Hour, Now: now,
	})
	require.NoError(t, err)
	b, err := NewSession(Params{
		ID: id, Mode: mode.ModeB, Role: RoleResponder,
		RootKey: append([]byte{}, root...), SendChainKey: bobSend, RecvChainKey: bobRecv,
		Policy: DefaultRekeyPolicy(), IdleTimeout: time.Hour, Now: now,
	})
	require.NoError(t, err)
	return a, b
}

func TestRoundTrip(t *testing.T) {
	alice, bob := pairedSessions(t)

	msg := []byte("hello")
	enc, err := alice.Encrypt(msg)
	require.NoError(t, err)

	out, ok, err := bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, msg, out)
}

func TestRoundTripLargePayload(t *testing.T) {
	alice, bob := pairedSessions(t)
	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = byte(i)
	}
	enc, err := alice.Encrypt(big)
	require.NoError(t, err)
	out, ok, err := bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, big, out)
}

func TestSessionIsolation(t *testing.T) {
	alice1, bob1 := pairedSessions(t)
	_, bob2 := pairedSessions(t)

	enc, err := alice1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, _, err = bob2.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindAuthenticationFailed))
	_ = bob1
}

func TestReplayRejection(t *testing.T) {
	alice, bob := pairedSessions(t)
	enc, err := alice.Encrypt([]byte("once"))
	require.NoError(t, err)

	_, ok, err := bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindReplayDetected), "replay must be reported as ReplayDetected, not an authentication failure")
	require.False(t, b4aeerr.Fatal(b4aeerr.KindReplayDetected), "a replay must not be fatal to the session")

	// The session must still be usable after a rejected replay: the recv
	// chain must not have been re-stepped or otherwise desynced.
	enc2, err := alice.Encrypt([]byte("still works"))
	require.NoError(t, err)
	out, ok, err := bob.Decrypt(enc2.Counter, ItemKind(enc2.Kind), enc2.Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("still works"), out)
}

func TestDecryptAcceptsOutOfOrderWithinWindow(t *testing.T) {
	alice, bob := pairedSessions(t)

	var encs []*Encrypted
	for _, msg := range []string{"one", "two", "three"} {
		enc, err := alice.Encrypt([]byte(msg))
		require.NoError(t, err)
		encs = append(encs, enc)
	}

	// Deliver out of order: 3, 1, 2. Message 3 forces the recv chain to
	// skip past the keys for 1 and 2, which must still be derivable when
	// those frames arrive afterward.
	out3, ok, err := bob.Decrypt(encs[2].Counter, ItemKind(encs[2].Kind), encs[2].Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("three"), out3)

	out1, ok, err := bob.Decrypt(encs[0].Counter, ItemKind(encs[0].Kind), encs[0].Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("one"), out1)

	out2, ok, err := bob.Decrypt(encs[1].Counter, ItemKind(encs[1].Kind), encs[1].Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("two"), out2)
}

func TestCoverMessageDroppedSilently(t *testing.T) {
	alice, bob := pairedSessions(t)
	enc, err := alice.EmitCover()
	require.NoError(t, err)
	require.Equal(t, KindCover, enc.Kind)

	out, ok, err := bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, out)
}

func TestCoverConsumesSequenceSpace(t *testing.T) {
	alice, _ := pairedSessions(t)
	_, err := alice.EmitCover()
	require.NoError(t, err)
	enc, err := alice.Encrypt([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), enc.Counter)
}

func TestRekeyThenDecryptSucceeds(t *testing.T) {
	alice, bob := pairedSessions(t)

	_, err := alice.Rekey()
	require.NoError(t, err)
	_, err = bob.Rekey()
	require.NoError(t, err)

	enc, err := alice.Encrypt([]byte("after rekey"))
	require.NoError(t, err)
	out, ok, err := bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("after rekey"), out)
}

func TestOldCiphertextFailsAfterRekey(t *testing.T) {
	alice, bob := pairedSessions(t)
	enc, err := alice.Encrypt([]byte("pre-rekey"))
	require.NoError(t, err)

	_, err = alice.Rekey()
	require.NoError(t, err)
	_, err = bob.Rekey()
	require.NoError(t, err)

	_, _, err = bob.Decrypt(enc.Counter, ItemKind(enc.Kind), enc.Ciphertext)
	require.Error(t, err)
}

func TestNeedsRekeyByMessageCount(t *testing.T) {
	alice, _ := pairedSessions(t)
	alice.policy.MaxMessages = 2
	require.False(t, alice.NeedsRekey(time.Now()))
	_, err := alice.Encrypt([]byte("a"))
	require.NoError(t, err)
	_, err = alice.Encrypt([]byte("b"))
	require.NoError(t, err)
	_, err = alice.Encrypt([]byte("c"))
	require.NoError(t, err)
	require.True(t, alice.NeedsRekey(time.Now()))
}

func TestEncryptRejectsOversizedPlaintext(t *testing.T) {
	alice, _ := pairedSessions(t)
	huge := make([]byte, MaxPlaintext)
	_, err := alice.Encrypt(huge)
	require.Error(t, err)
}

func TestCloseZeroesKeys(t *testing.T) {
	alice, _ := pairedSessions(t)
	alice.Close()
	require.True(t, alice.Closed())
	_, err := alice.Encrypt([]byte("x"))
	require.Error(t, err)
}
