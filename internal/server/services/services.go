// Package services contains server-side business logic: accounts and
// sessions, field resolution, the role graph, recovery plans and ledger
// auditing. Every mutation runs in one transaction that ends with a single
// ledger append.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/keyring"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
)

// Storage bundles the handles every service needs. DB is used for plain
// reads, Tx for units of work; both must belong to the same backend.
type Storage struct {
	DB    dbx.DBTX
	Tx    dbx.Transactor
	Repos repomanager.RepositoryManager
}

// Caller is an authenticated session. MasterKey is nil when the session is in
// secure mode and the request carried no secret.
type Caller struct {
	AccountID    string
	MasterRoleID string
	SessionID    string
	SecureMode   bool
	MasterKey    []byte
}

func (c *Caller) requireKey() error {
	if c == nil || len(c.MasterKey) == 0 {
		return common.ErrMasterKeyUnavailable
	}
	return nil
}

// roleSecrets is the plaintext of Role.EncryptedBlob. Read and write keys
// are present only in master role blobs.
type roleSecrets struct {
	DisplayName       string    `json:"displayName"`
	CreatedUTC        time.Time `json:"createdUtc"`
	ReadKey           []byte    `json:"readKey,omitempty"`
	WriteKey          []byte    `json:"writeKey,omitempty"`
	SigningPrivateKey []byte    `json:"signingPrivateKey"`
	BoxPrivateKey     []byte    `json:"boxPrivateKey"`
}

func (s roleSecrets) keys() keyring.Keys {
	return keyring.Keys{Read: s.ReadKey, Write: s.WriteKey}
}

// newRole generates the key material of a fresh role. For master roles the
// blob is sealed under blobKey (the master key) and carries the role keys;
// otherwise blobKey is ignored and the blob is sealed under the write key.
func newRole(id, roleType, displayName string, blobKey []byte, now time.Time) (*models.Role, keyring.Keys, roleSecrets, error) {
	read, err := cryptox.GenerateKey()
	if err != nil {
		return nil, keyring.Keys{}, roleSecrets{}, err
	}
	write, err := cryptox.GenerateKey()
	if err != nil {
		return nil, keyring.Keys{}, roleSecrets{}, err
	}
	signPub, signPriv, err := cryptox.GenerateSigningKey()
	if err != nil {
		return nil, keyring.Keys{}, roleSecrets{}, err
	}
	boxPub, boxPriv, err := cryptox.GenerateBoxKeyPair()
	if err != nil {
		return nil, keyring.Keys{}, roleSecrets{}, err
	}

	secrets := roleSecrets{
		DisplayName:       displayName,
		CreatedUTC:        now,
		SigningPrivateKey: signPriv,
		BoxPrivateKey:     boxPriv,
	}
	sealKey := write
	if roleType == models.RoleTypeMaster {
		secrets.ReadKey, secrets.WriteKey = read, write
		sealKey = blobKey
	}
	blob, err := cryptox.EncryptJSON(secrets, sealKey, keyring.RoleAAD(id))
	if err != nil {
		return nil, keyring.Keys{}, roleSecrets{}, err
	}

	role := &models.Role{
		ID:                  id,
		RoleType:            roleType,
		EncryptedBlob:       blob,
		PublicSigningKey:    signPub,
		PublicSigningKeyAlg: cryptox.SignatureAlgEd25519,
		PublicEncryptionKey: boxPub,
		CreatedUTC:          now,
		UpdatedUTC:          now,
	}
	return role, keyring.Keys{Read: read, Write: write}, secrets, nil
}

// openMasterRole decrypts the master role blob. A failure after a verified
// secret means corrupted key material and is reported as common.ErrIntegrity.
func openMasterRole(role *models.Role, masterKey []byte) (roleSecrets, error) {
	var s roleSecrets
	if err := cryptox.DecryptJSON(role.EncryptedBlob, masterKey, keyring.RoleAAD(role.ID), &s); err != nil {
		return roleSecrets{}, fmt.Errorf("%w: master role %s: %v", common.ErrIntegrity, role.ID, err)
	}
	if len(s.ReadKey) == 0 || len(s.WriteKey) == 0 {
		return roleSecrets{}, fmt.Errorf("%w: master role %s has no keys", common.ErrIntegrity, role.ID)
	}
	return s, nil
}

// base carries what every service shares.
type base struct {
	st     Storage
	ledger *ledger.Ledger
	log    logging.Logger
	now    func() time.Time
}

func newBase(st Storage, log logging.Logger) base {
	return base{st: st, ledger: ledger.New(st.Repos), log: log, now: func() time.Time { return time.Now().UTC() }}
}

// access is the key material a caller holds for the duration of a request.
type access struct {
	caller      *Caller
	master      roleSecrets
	memberships []*models.Membership
	ring        *keyring.Ring
}

// loadAccess opens the caller's master role, unwraps the keys of the roles
// the account holds directly and resolves the rest of the ring.
func (b *base) loadAccess(ctx context.Context, db dbx.DBTX, c *Caller) (*access, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	role, err := b.st.Repos.Roles(db).GetByID(ctx, c.MasterRoleID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: master role %s missing", common.ErrIntegrity, c.MasterRoleID)
		}
		return nil, err
	}
	master, err := openMasterRole(role, c.MasterKey)
	if err != nil {
		return nil, err
	}

	memberships, err := b.st.Repos.Memberships(db).ListByAccount(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}

	roots := []keyring.Root{{RoleID: c.MasterRoleID, Relationship: models.RelationshipOwner, Keys: master.keys()}}
	for _, m := range memberships {
		if m.RoleID == c.MasterRoleID || len(m.EncryptedReadKey) == 0 {
			continue
		}
		read, err := cryptox.Decrypt(master.ReadKey, m.EncryptedReadKey, keyring.MembershipAAD(c.AccountID, m.RoleID, "read"))
		if err != nil {
			b.log.Warn(ctx, "membership key does not open", "account_id", c.AccountID, "role_id", m.RoleID)
			continue
		}
		root := keyring.Root{RoleID: m.RoleID, Relationship: m.RelationshipType, Keys: keyring.Keys{Read: read}}
		if len(m.EncryptedWriteKey) > 0 {
			if write, err := cryptox.Decrypt(master.WriteKey, m.EncryptedWriteKey, keyring.MembershipAAD(c.AccountID, m.RoleID, "write")); err == nil {
				root.Keys.Write = write
			}
		}
		roots = append(roots, root)
	}

	ring, err := keyring.NewResolver(b.st.Repos.Edges(db)).Resolve(ctx, roots)
	if err != nil {
		return nil, err
	}
	return &access{caller: c, master: master, memberships: memberships, ring: ring}, nil
}

// ownerRoots are the roles the account owns directly.
func (a *access) ownerRoots() []string {
	roots := []string{a.caller.MasterRoleID}
	for _, m := range a.memberships {
		if m.RoleID != a.caller.MasterRoleID && m.RelationshipType == models.RelationshipOwner {
			roots = append(roots, m.RoleID)
		}
	}
	return roots
}

func (b *base) ownershipClosure(ctx context.Context, db dbx.DBTX, a *access) (map[string]struct{}, error) {
	return keyring.OwnershipClosure(ctx, b.st.Repos.Edges(db), a.ownerRoots())
}

// masterSigner signs on behalf of the caller's master role.
func (a *access) masterSigner() *ledger.Signer {
	return &ledger.Signer{RoleID: a.caller.MasterRoleID, PrivateKey: a.master.SigningPrivateKey}
}

// roleSecrets opens the blob of a role the caller holds the write key for.
func (b *base) roleSecrets(ctx context.Context, db dbx.DBTX, a *access, roleID string) (roleSecrets, error) {
	if roleID == a.caller.MasterRoleID {
		return a.master, nil
	}
	write, ok := a.ring.WriteKey(roleID)
	if !ok {
		return roleSecrets{}, common.ErrForbidden
	}
	role, err := b.st.Repos.Roles(db).GetByID(ctx, roleID)
	if err != nil {
		return roleSecrets{}, err
	}
	var s roleSecrets
	if err := cryptox.DecryptJSON(role.EncryptedBlob, write, keyring.RoleAAD(roleID), &s); err != nil {
		return roleSecrets{}, fmt.Errorf("%w: role %s blob: %v", common.ErrIntegrity, roleID, err)
	}
	return s, nil
}

// roleSigner signs as roleID when its blob can be opened, and as the
// caller's master role otherwise.
func (b *base) roleSigner(ctx context.Context, db dbx.DBTX, a *access, roleID string) (*ledger.Signer, error) {
	s, err := b.roleSecrets(ctx, db, a, roleID)
	switch {
	case err == nil:
		return &ledger.Signer{RoleID: roleID, PrivateKey: s.SigningPrivateKey}, nil
	case errors.Is(err, common.ErrForbidden):
		return a.masterSigner(), nil
	}
	return nil, err
}

func newID() string {
	return uuid.NewString()
}

// shortID is the label fallback for roles without a readable nick.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
