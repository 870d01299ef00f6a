package models

import "time"

const KeyTypeDataKey = "DataKey"

// FieldTypeNick names a role; it is shown as the role label rather than as data.
const FieldTypeNick = "nick"

// RoleField is an encrypted attribute of a role. The value is encrypted under
// a data key, and the data key is wrapped as the KeyEntry DataKeyID.
type RoleField struct {
	ID             string
	RoleID         string
	FieldType      string
	DataKeyID      string
	EncryptedValue []byte
	CreatedUTC     time.Time
	UpdatedUTC     time.Time
}

// KeyEntry is a wrapped key. OwnerRoleID is the role whose read key wraps it.
type KeyEntry struct {
	ID          string
	KeyType     string
	OwnerRoleID string
	WrappedKey  []byte
	CreatedUTC  time.Time
}
