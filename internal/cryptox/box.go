package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// BoxKeySize is the size of X25519 public and private keys.
const BoxKeySize = 32

var ErrSealedOpen = errors.New("sealed box could not be opened")

// GenerateBoxKeyPair creates the X25519 key pair a role receives shares on.
func GenerateBoxKeyPair() (public, private []byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate box key: %w", err)
	}
	return pub[:], priv[:], nil
}

func toBoxKey(b []byte) (*[BoxKeySize]byte, error) {
	if len(b) != BoxKeySize {
		return nil, fmt.Errorf("box key must be %d bytes, got %d", BoxKeySize, len(b))
	}
	var k [BoxKeySize]byte
	copy(k[:], b)
	return &k, nil
}

// SealFor encrypts msg to the holder of the private key matching public.
// The sender stays anonymous and cannot open the result.
func SealFor(public, msg []byte) ([]byte, error) {
	pub, err := toBoxKey(public)
	if err != nil {
		return nil, err
	}
	return box.SealAnonymous(nil, msg, pub, rand.Reader)
}

// OpenSealed opens a box produced by SealFor.
func OpenSealed(public, private, sealed []byte) ([]byte, error) {
	pub, err := toBoxKey(public)
	if err != nil {
		return nil, err
	}
	priv, err := toBoxKey(private)
	if err != nil {
		return nil, err
	}
	out, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	if !ok {
		return nil, ErrSealedOpen
	}
	return out, nil
}
