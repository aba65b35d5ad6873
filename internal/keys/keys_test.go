package keys

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govibe/internal/store/memstore"
)

func TestSealOpenRoundtrip(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	sealed, err := Seal([]byte("meet at noon"), bob.Public, alice.Private)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "meet at noon")

	out, err := Open(sealed, alice.Public, bob.Private)
	require.NoError(t, err)
	assert.Equal(t, "meet at noon", string(out))
}

func TestOpenRejectsTampering(t *testing.T) {
	alice, _ := Generate()
	bob, _ := Generate()

	sealed, err := Seal([]byte("secret"), bob.Public, alice.Private)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = Open(sealed, alice.Public, bob.Private)
	assert.ErrorIs(t, err, ErrDecrypt)

	// Wrong key fails the same way.
	mallory, _ := Generate()
	fresh, _ := Seal([]byte("secret"), bob.Public, alice.Private)
	_, err = Open(fresh, alice.Public, mallory.Private)
	assert.ErrorIs(t, err, ErrDecrypt)

	// Too short to even hold the nonce.
	_, err = Open([]byte("short"), alice.Public, bob.Private)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncodeDecodePublic(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	round, err := DecodePublic(EncodePublic(kp.Public))
	require.NoError(t, err)
	assert.Equal(t, kp.Public, round)

	_, err = DecodePublic("not base64!!")
	assert.Error(t, err)
	_, err = DecodePublic("c2hvcnQ=")
	assert.Error(t, err, "wrong decoded length rejected")
}

func TestRingEnsureIsStableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.db")
	ctx := context.Background()

	ring, err := OpenRing(path)
	require.NoError(t, err)

	_, err = ring.Load(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoKey)

	first, err := ring.Ensure(ctx, "alice")
	require.NoError(t, err)
	second, err := ring.Ensure(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, second, "ensure never regenerates an existing key")

	other, err := ring.Ensure(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.Private, other.Private)

	require.NoError(t, ring.Close())

	reopened, err := OpenRing(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, loaded, "keypair survives process restart")
}

func TestRingStoreReplaces(t *testing.T) {
	ring, err := OpenRing(filepath.Join(t.TempDir(), "keyring.db"))
	require.NoError(t, err)
	defer ring.Close()
	ctx := context.Background()

	old, err := ring.Ensure(ctx, "alice")
	require.NoError(t, err)

	fresh, err := Generate()
	require.NoError(t, err)
	require.NoError(t, ring.Store(ctx, "alice", fresh))

	loaded, err := ring.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, fresh, loaded)
	assert.NotEqual(t, old, loaded)
}

func TestPublishAndLookup(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	kp, err := Generate()
	require.NoError(t, err)

	// First publish creates the user document.
	require.NoError(t, Publish(ctx, st, "alice", kp.Public))
	got, err := Lookup(ctx, st, "alice")
	require.NoError(t, err)
	assert.Equal(t, kp.Public, got)

	// Republish rotates in place without clobbering other fields.
	require.NoError(t, st.Update(ctx, "users/alice", map[string]any{"isOnline": true}))
	rotated, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Publish(ctx, st, "alice", rotated.Public))

	got, err = Lookup(ctx, st, "alice")
	require.NoError(t, err)
	assert.Equal(t, rotated.Public, got)
	doc, _ := st.Get(ctx, "users/alice")
	assert.Equal(t, true, doc.Data["isOnline"])

	_, err = Lookup(ctx, st, "nobody")
	assert.Error(t, err)
}
