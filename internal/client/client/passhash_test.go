package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveH3(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")

	h3 := DeriveH3([]byte("correct horse"), salt)
	assert.Len(t, h3, 32)
	assert.Equal(t, h3, DeriveH3([]byte("correct horse"), salt))
	assert.NotEqual(t, h3, DeriveH3([]byte("correct horse!"), salt))
	assert.NotEqual(t, h3, DeriveH3([]byte("correct horse"), NewSalt()))
}

func TestNewSalt(t *testing.T) {
	a, b := NewSalt(), NewSalt()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
