package models

import "time"

// RoleRecoveryPlan is a draft until ActivatedUTC is set. EncryptedRoleKeys
// holds the target role keys under the plan's recovery key, which exists
// only as the XOR of the trustee shares.
type RoleRecoveryPlan struct {
	ID                string
	TargetRoleID      string
	CreatedByRoleID   string
	EncryptedRoleKeys []byte
	CreatedUTC        time.Time
	ActivatedUTC      *time.Time
}

// RoleRecoveryPlanShare attaches a trustee to a draft plan.
type RoleRecoveryPlanShare struct {
	ID               string
	PlanID           string
	SharedWithRoleID string
	EncryptedShare   []byte
	CreatedUTC       time.Time
}

// RoleRecoveryShare is a live trustee share produced by activating a plan.
type RoleRecoveryShare struct {
	ID               string
	PlanID           string
	TargetRoleID     string
	SharedWithRoleID string
	EncryptedShare   []byte
	CreatedUTC       time.Time
	RevokedUTC       *time.Time
}
