// Package keys manages the member's long-lived asymmetric keypair: local
// generation, a sqlite-backed keyring for the private half, and publication
// of the public half through the document store so peers can discover it.
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"

	"govibe/internal/store"
)

// KeyPair holds one curve25519 keypair. The private key never leaves the
// local keyring.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// Generate creates a fresh keypair from the system's entropy source.
func Generate() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("key generation failed: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// EncodePublic renders a public key for storage in a document field.
func EncodePublic(pub [32]byte) string {
	return base64.StdEncoding.EncodeToString(pub[:])
}

// DecodePublic parses a stored public key. Rejects anything that is not
// exactly 32 decoded bytes.
func DecodePublic(s string) ([32]byte, error) {
	var pub [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return pub, fmt.Errorf("malformed public key: %w", err)
	}
	if len(raw) != 32 {
		return pub, fmt.Errorf("malformed public key: %d bytes", len(raw))
	}
	copy(pub[:], raw)
	return pub, nil
}

// Seal encrypts a message for the peer. The random nonce is prepended to the
// returned ciphertext.
func Seal(msg []byte, peerPub, ownPriv [32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], msg, &nonce, &peerPub, &ownPriv), nil
}

var ErrDecrypt = errors.New("keys: decryption failed")

// Open decrypts a Seal output from the peer.
func Open(sealed []byte, peerPub, ownPriv [32]byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	out, ok := box.Open(nil, sealed[24:], &nonce, &peerPub, &ownPriv)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}

// Publish writes the member's public key onto their user document so peers
// can fetch it by id. Creates the document on first publish.
func Publish(ctx context.Context, st store.Store, memberID string, pub [32]byte) error {
	path := "users/" + memberID
	fields := map[string]any{"publicKey": EncodePublic(pub)}
	err := st.Update(ctx, path, fields)
	if err == store.ErrNotFound {
		return st.Set(ctx, path, fields)
	}
	return err
}

// Lookup fetches a member's published public key.
func Lookup(ctx context.Context, st store.Store, memberID string) ([32]byte, error) {
	var pub [32]byte
	doc, err := st.Get(ctx, "users/"+memberID)
	if err != nil {
		return pub, err
	}
	encoded, _ := doc.Data["publicKey"].(string)
	if encoded == "" {
		return pub, fmt.Errorf("member %s has no published key", memberID)
	}
	return DecodePublic(encoded)
}
