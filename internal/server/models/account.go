// Package models defines server-side data models persisted in the database.
package models

import "time"

type AccountState string

const (
	AccountPendingEmailConfirmation AccountState = "PendingEmailConfirmation"
	AccountActive                   AccountState = "Active"
	AccountLocked                   AccountState = "Locked"
	AccountDisabled                 AccountState = "Disabled"
	AccountDeleted                  AccountState = "Deleted"
)

// Account is a login identity. StoredVerifier is the only password-derived
// value ever persisted for it.
type Account struct {
	ID               string
	LoginID          string
	UserSalt         []byte
	StoredVerifier   []byte
	State            AccountState
	FailedLoginCount int
	LockedUntilUTC   *time.Time
	MasterRoleID     string
	CreatedUTC       time.Time
	UpdatedUTC       time.Time
}

// Session is a login of an account. Only a hash of the session id handed to
// the client is stored.
type Session struct {
	ID          string
	AccountID   string
	TokenHash   []byte
	SecureMode  bool
	DeviceInfo  string
	CreatedUTC  time.Time
	LastSeenUTC time.Time
	RevokedUTC  *time.Time
}

func (s *Session) Active() bool {
	return s.RevokedUTC == nil
}
