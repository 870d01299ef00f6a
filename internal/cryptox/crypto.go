// Package cryptox holds the cryptographic primitives of the vault: the
// password verifier, master-key derivation, the AEAD envelope used for every
// wrapped key and encrypted value, anonymous sealed boxes for shares,
// Ed25519 signatures for the ledger and XOR secret splitting for recovery.
package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/minmer/recreatio-sub002/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	verifierDomain  = "recreatio/verifier"
	masterKeyInfo   = "recreatio/master-key"
	MasterKeyLength = 32
)

// HashVerifier turns the client secret H3 into the storage-safe verifier H4.
// It shares nothing with DeriveMasterKey except the input, so a leaked
// verifier does not yield a master key.
func HashVerifier(h3 []byte) []byte {
	h := sha256.New()
	h.Write([]byte(verifierDomain))
	h.Write(h3)
	return h.Sum(nil)
}

// DeriveMasterKey derives the symmetric master key for subjectID from H3
// using HKDF-SHA256 with the subject id as salt. It is deterministic, so the
// same login always reconstructs the same key.
func DeriveMasterKey(h3 []byte, subjectID string) ([]byte, error) {
	if len(h3) != common.SecretSize {
		return nil, common.ErrInvalidSecret
	}
	r := hkdf.New(sha256.New, h3, []byte(subjectID), []byte(masterKeyInfo))
	key := make([]byte, MasterKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}
