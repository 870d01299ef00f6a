package models

import "time"

type PermissionType string

const (
	PermissionRead  PermissionType = "Read"
	PermissionWrite PermissionType = "Write"
)

func (p PermissionType) Valid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// PendingRoleShare offers the target role a relationship to the source role.
// The source keys are sealed to the target's public encryption key and stay
// inert until the target accepts.
type PendingRoleShare struct {
	ID               string
	SourceRoleID     string
	TargetRoleID     string
	RelationshipType RelationshipType
	SealedReadKey    []byte
	SealedWriteKey   []byte
	CreatedUTC       time.Time
	AcceptedUTC      *time.Time
}

// PendingDataShare offers the target role one field's data key.
type PendingDataShare struct {
	ID             string
	FieldID        string
	TargetRoleID   string
	PermissionType PermissionType
	SealedDataKey  []byte
	CreatedUTC     time.Time
	AcceptedUTC    *time.Time
}

// DataKeyGrant is an accepted data share: KeyEntryID holds the field's data
// key wrapped under RoleID's read key.
type DataKeyGrant struct {
	ID             string
	FieldID        string
	RoleID         string
	KeyEntryID     string
	PermissionType PermissionType
	CreatedUTC     time.Time
}
