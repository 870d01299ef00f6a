package client

import (
	"crypto/sha256"

	"github.com/minmer/recreatio-sub002/internal/common"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for H1.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// NewSalt returns a fresh per-user salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(common.SecretSize)
}

// DeriveH3 turns a password into the secret sent to the server:
// H1 = argon2id(password, salt), H2 = SHA-256(H1), H3 = SHA-256(H2).
// Only H3 ever leaves the client.
func DeriveH3(password, salt []byte) []byte {
	h1 := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, common.SecretSize)
	defer common.WipeByteArray(h1)

	h2 := sha256.Sum256(h1)
	h3 := sha256.Sum256(h2[:])
	common.WipeByteArray(h2[:])
	return h3[:]
}
