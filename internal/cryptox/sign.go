package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// SignatureAlgEd25519 is the only signature algorithm recorded on ledger entries.
const SignatureAlgEd25519 = "Ed25519"

// GenerateSigningKey creates the Ed25519 key pair a role signs ledger entries with.
func GenerateSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return pub, priv, nil
}

// Sign signs msg. A private key of the wrong size is reported, not panicked on.
func Sign(private []byte, msg []byte) ([]byte, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(private))
	}
	return ed25519.Sign(ed25519.PrivateKey(private), msg), nil
}

// Verify reports whether sig is a valid signature of msg by public.
func Verify(public, msg, sig []byte) bool {
	if len(public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(public), msg, sig)
}
