package models

import "time"

const (
	RoleTypeMaster  = "MasterRole"
	RoleTypeDefault = "Role"
)

// RelationshipType is the capability an edge or membership confers.
// Owner implies Write implies Read.
type RelationshipType string

const (
	RelationshipOwner RelationshipType = "Owner"
	RelationshipWrite RelationshipType = "Write"
	RelationshipRead  RelationshipType = "Read"
)

func (r RelationshipType) Valid() bool {
	return r.Rank() > 0
}

// Rank orders relationships by strength; unknown values rank 0.
func (r RelationshipType) Rank() int {
	switch r {
	case RelationshipRead:
		return 1
	case RelationshipWrite:
		return 2
	case RelationshipOwner:
		return 3
	}
	return 0
}

// GrantsWrite reports whether the relationship carries the write key.
func (r RelationshipType) GrantsWrite() bool {
	return r.Rank() >= 2
}

// Role is the unit of capability and of encrypted attribute ownership.
// EncryptedBlob holds the role's private material, sealed under the master
// key for master roles and under the role's write key otherwise.
type Role struct {
	ID                  string
	RoleType            string
	EncryptedBlob       []byte
	PublicSigningKey    []byte
	PublicSigningKeyAlg string
	PublicEncryptionKey []byte
	CreatedUTC          time.Time
	UpdatedUTC          time.Time
}

// RoleEdge grants the parent role's holders a capability on the child.
// EncryptedReadKey is the child read key under the parent read key;
// EncryptedWriteKey is the child write key under the parent write key and is
// empty for Read edges.
type RoleEdge struct {
	ID                string
	ParentRoleID      string
	ChildRoleID       string
	RelationshipType  RelationshipType
	EncryptedReadKey  []byte
	EncryptedWriteKey []byte
	CreatedUTC        time.Time
}

// Membership attaches a role directly to an account. Keys are wrapped under
// the keys of the account's master role; the master role membership itself
// carries none.
type Membership struct {
	AccountID         string
	RoleID            string
	RelationshipType  RelationshipType
	EncryptedReadKey  []byte
	EncryptedWriteKey []byte
	CreatedUTC        time.Time
}
