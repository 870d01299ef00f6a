package models

import "time"

type LedgerChain string

const (
	ChainAuth     LedgerChain = "auth"
	ChainKey      LedgerChain = "key"
	ChainBusiness LedgerChain = "business"
)

// Chains lists every chain in lock order.
var Chains = []LedgerChain{ChainAuth, ChainKey, ChainBusiness}

func (c LedgerChain) Valid() bool {
	switch c {
	case ChainAuth, ChainKey, ChainBusiness:
		return true
	}
	return false
}

// LedgerEntry is one row of a hash chain. Sequence is assigned by the store
// and only breaks timestamp ties; it is not part of the hash.
type LedgerEntry struct {
	ID           string
	Chain        LedgerChain
	Sequence     int64
	TimestampUTC time.Time
	EventType    string
	Actor        string
	PayloadJSON  string
	PreviousHash []byte
	Hash         []byte
	SignerRoleID string
	Signature    []byte
	SignatureAlg string
}
