// Package keyring materializes the role keys an account can reach through the
// role graph.
package keyring

import (
	"fmt"
	"sort"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type entry struct {
	rel   models.RelationshipType
	read  []byte
	write []byte
}

// Ring maps role ids to the read and write keys held for them. A role with a
// write key always has its read key too.
type Ring struct {
	entries map[string]*entry
}

func NewRing() *Ring {
	return &Ring{entries: map[string]*entry{}}
}

func (r *Ring) ReadKey(roleID string) ([]byte, bool) {
	e, ok := r.entries[roleID]
	if !ok || e.read == nil {
		return nil, false
	}
	return e.read, true
}

func (r *Ring) WriteKey(roleID string) ([]byte, bool) {
	e, ok := r.entries[roleID]
	if !ok || e.write == nil {
		return nil, false
	}
	return e.write, true
}

func (r *Ring) Has(roleID string) bool {
	_, ok := r.entries[roleID]
	return ok
}

// Relationship is the strongest capability held on roleID, or "" when the
// role is not in the ring.
func (r *Ring) Relationship(roleID string) models.RelationshipType {
	if e, ok := r.entries[roleID]; ok {
		return e.rel
	}
	return ""
}

// RoleIDs returns every role in the ring, sorted.
func (r *Ring) RoleIDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Ring) Len() int { return len(r.entries) }

// grant records keys for roleID and reports whether the capability improved.
// A relationship that needs a write key is capped at Read when write is nil.
func (r *Ring) grant(roleID string, rel models.RelationshipType, read, write []byte) bool {
	if read == nil {
		return false
	}
	if write == nil && rel.GrantsWrite() {
		rel = models.RelationshipRead
	}
	if !rel.GrantsWrite() {
		write = nil
	}

	cur, ok := r.entries[roleID]
	if ok && cur.rel.Rank() >= rel.Rank() {
		return false
	}
	r.entries[roleID] = &entry{rel: rel, read: read, write: write}
	return true
}

// Keys is the key pair of a single role.
type Keys struct {
	Read  []byte
	Write []byte
}

// Root is a role the account holds directly, with keys already unwrapped.
type Root struct {
	RoleID       string
	Relationship models.RelationshipType
	Keys         Keys
}

// weaker returns the weaker of two relationships.
func weaker(a, b models.RelationshipType) models.RelationshipType {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

func EdgeAAD(parentID, childID, kind string) []byte {
	return []byte(fmt.Sprintf("edge:%s:%s:%s", parentID, childID, kind))
}

func MembershipAAD(accountID, roleID, kind string) []byte {
	return []byte(fmt.Sprintf("membership:%s:%s:%s", accountID, roleID, kind))
}

func KeyEntryAAD(keyID, ownerRoleID string) []byte {
	return []byte(fmt.Sprintf("key:%s:%s", keyID, ownerRoleID))
}

func RoleAAD(roleID string) []byte {
	return []byte("role:" + roleID)
}

func FieldAAD(fieldID string) []byte {
	return []byte("field:" + fieldID)
}
