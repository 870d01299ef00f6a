// Package sessioncache keeps master keys of sessions that did not ask for
// secure mode. Entries live in process memory only and expire after a TTL.
package sessioncache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/minmer/recreatio-sub002/internal/common"
)

// Cache maps session ids to master keys.
type Cache struct {
	lru *expirable.LRU[string, []byte]
}

// New returns a cache holding at most size keys, each for at most ttl.
// A ttl of zero disables expiry.
func New(size int, ttl time.Duration) *Cache {
	onEvict := func(_ string, key []byte) { common.WipeByteArray(key) }
	return &Cache{lru: expirable.NewLRU[string, []byte](size, onEvict, ttl)}
}

// Set stores a copy of key under sessionID.
func (c *Cache) Set(sessionID string, key []byte) {
	c.lru.Add(sessionID, append([]byte(nil), key...))
}

// Get returns a copy of the key cached for sessionID.
func (c *Cache) Get(sessionID string) ([]byte, bool) {
	key, ok := c.lru.Get(sessionID)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), key...), true
}

// Remove drops sessionID and wipes its key.
func (c *Cache) Remove(sessionID string) {
	c.lru.Remove(sessionID)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.lru.Purge()
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
