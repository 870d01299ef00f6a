package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"
)

var ErrShareMismatch = errors.New("shares have different lengths")

// SplitSecret splits secret into n shares that must all be combined to
// recover it (n-of-n XOR split). Any n-1 shares are uniformly random.
func SplitSecret(secret []byte, n int) ([][]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("cannot split into %d shares", n)
	}
	shares := make([][]byte, n)
	last := make([]byte, len(secret))
	copy(last, secret)
	for i := 0; i < n-1; i++ {
		s := make([]byte, len(secret))
		if _, err := rand.Read(s); err != nil {
			return nil, err
		}
		for j := range last {
			last[j] ^= s[j]
		}
		shares[i] = s
	}
	shares[n-1] = last
	return shares, nil
}

// CombineShares reverses SplitSecret.
func CombineShares(shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, errors.New("no shares")
	}
	out := make([]byte, len(shares[0]))
	for _, s := range shares {
		if len(s) != len(out) {
			return nil, ErrShareMismatch
		}
		for j := range out {
			out[j] ^= s[j]
		}
	}
	return out, nil
}
