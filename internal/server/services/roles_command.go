package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/keyring"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/edges"
)

type FieldInput struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// CreateRoleRequest creates a role under ParentRoleID, or held directly by the
// account when ParentRoleID is empty. Relationship defaults to Owner and
// RoleKind to models.RoleTypeDefault.
type CreateRoleRequest struct {
	ParentRoleID string
	Relationship models.RelationshipType
	RoleKind     string
	Fields       []FieldInput
}

// PendingShares lists the invitations addressed to roles the caller can
// accept for.
type PendingShares struct {
	Roles []*models.PendingRoleShare `json:"roles"`
	Data  []*models.PendingDataShare `json:"data"`
}

// RoleCommandService mutates the role graph and role fields. Data item writes
// need the owning role's write key, edges need the parent's write key and
// ownership of the child, and shares are accepted with the target's write key.
type RoleCommandService struct {
	base
}

func NewRoleCommandService(st Storage, log logging.Logger) *RoleCommandService {
	return &RoleCommandService{base: newBase(st, log.With("service", "role_command"))}
}

func normalizeFields(in []FieldInput) ([]FieldInput, error) {
	seen := map[string]bool{}
	out := make([]FieldInput, 0, len(in))
	for _, f := range in {
		t := NormalizeFieldType(f.Type)
		if t == "" || seen[t] {
			return nil, fmt.Errorf("%w: field type %q", common.ErrInvalidInput, f.Type)
		}
		seen[t] = true
		out = append(out, FieldInput{Type: t, Value: f.Value})
	}
	return out, nil
}

func (s *RoleCommandService) CreateRole(ctx context.Context, c *Caller, req CreateRoleRequest) (string, error) {
	rel := req.Relationship
	if rel == "" {
		rel = models.RelationshipOwner
	}
	if !rel.Valid() {
		return "", fmt.Errorf("%w: relationship %q", common.ErrInvalidInput, rel)
	}
	kind := strings.TrimSpace(req.RoleKind)
	if kind == "" {
		kind = models.RoleTypeDefault
	}
	if kind == models.RoleTypeMaster {
		return "", fmt.Errorf("%w: role kind %q is reserved", common.ErrInvalidInput, kind)
	}
	fields, err := normalizeFields(req.Fields)
	if err != nil {
		return "", err
	}

	roleID := newID()
	err = s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		now := s.now()
		displayName := ""
		for _, f := range fields {
			if f.Type == models.FieldTypeNick {
				displayName = f.Value
			}
		}
		role, keys, _, err := newRole(roleID, kind, displayName, nil, now)
		if err != nil {
			return err
		}
		if err := s.st.Repos.Roles(tx).Create(ctx, role); err != nil {
			return err
		}

		signer := a.masterSigner()
		events := []ledger.Event{{Chain: models.ChainKey, Type: ledger.EventRoleCreated, Actor: c.AccountID,
			Payload: map[string]string{"roleId": roleID, "roleKind": kind}, Signer: signer}}

		if req.ParentRoleID == "" {
			m := &models.Membership{AccountID: c.AccountID, RoleID: roleID, RelationshipType: rel, CreatedUTC: now}
			m.EncryptedReadKey, err = cryptox.Encrypt(a.master.ReadKey, keys.Read, keyring.MembershipAAD(c.AccountID, roleID, "read"))
			if err != nil {
				return err
			}
			if rel.GrantsWrite() {
				m.EncryptedWriteKey, err = cryptox.Encrypt(a.master.WriteKey, keys.Write, keyring.MembershipAAD(c.AccountID, roleID, "write"))
				if err != nil {
					return err
				}
			}
			if err := s.st.Repos.Memberships(tx).Create(ctx, m); err != nil {
				return err
			}
		} else {
			parentWrite, ok := a.ring.WriteKey(req.ParentRoleID)
			if !ok {
				return common.ErrForbidden
			}
			parentRead, _ := a.ring.ReadKey(req.ParentRoleID)
			read, write, err := keyring.WrapEdge(req.ParentRoleID, keyring.Keys{Read: parentRead, Write: parentWrite}, roleID, keys, rel)
			if err != nil {
				return err
			}
			edge := &models.RoleEdge{ID: newID(), ParentRoleID: req.ParentRoleID, ChildRoleID: roleID, RelationshipType: rel,
				EncryptedReadKey: read, EncryptedWriteKey: write, CreatedUTC: now}
			if err := s.st.Repos.Edges(tx).Upsert(ctx, edge); err != nil {
				return err
			}
			events = append(events, ledger.Event{Chain: models.ChainKey, Type: ledger.EventRoleEdgeCreated, Actor: c.AccountID,
				Payload: map[string]string{"parentRoleId": req.ParentRoleID, "childRoleId": roleID, "relationship": string(rel)}, Signer: signer})
		}

		for _, f := range fields {
			field, err := createField(ctx, s.st.Repos, tx, roleID, keys.Read, f.Type, f.Value, now)
			if err != nil {
				return err
			}
			events = append(events, ledger.Event{Chain: models.ChainKey, Type: ledger.EventDataKeyCreated, Actor: c.AccountID,
				Payload: map[string]string{"roleId": roleID, "keyEntryId": field.DataKeyID}, Signer: signer})
		}

		_, err = s.ledger.Append(ctx, tx, events...)
		return err
	})
	if err != nil {
		return "", err
	}
	return roleID, nil
}

// CreateDataItem adds a field to a role the caller can write.
func (s *RoleCommandService) CreateDataItem(ctx context.Context, c *Caller, roleID string, item FieldInput) (string, error) {
	fields, err := normalizeFields([]FieldInput{item})
	if err != nil {
		return "", err
	}
	item = fields[0]

	var fieldID string
	err = s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		if _, ok := a.ring.WriteKey(roleID); !ok {
			return common.ErrForbidden
		}
		existing, err := s.st.Repos.Fields(tx).ListByRoles(ctx, []string{roleID})
		if err != nil {
			return err
		}
		for _, f := range existing {
			if NormalizeFieldType(f.FieldType) == item.Type {
				return fmt.Errorf("%w: role already has a %q field", common.ErrInvalidInput, item.Type)
			}
		}

		read, _ := a.ring.ReadKey(roleID)
		field, err := createField(ctx, s.st.Repos, tx, roleID, read, item.Type, item.Value, s.now())
		if err != nil {
			return err
		}
		fieldID = field.ID

		signer, err := s.roleSigner(ctx, tx, a, roleID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx,
			ledger.Event{Chain: models.ChainKey, Type: ledger.EventDataKeyCreated, Actor: c.AccountID,
				Payload: map[string]string{"roleId": roleID, "keyEntryId": field.DataKeyID}, Signer: signer},
			ledger.Event{Chain: models.ChainBusiness, Type: ledger.EventDataItemCreated, Actor: c.AccountID,
				Payload: map[string]string{"roleId": roleID, "fieldId": field.ID, "fieldType": item.Type}, Signer: signer},
		)
		return err
	})
	return fieldID, err
}

// fieldKey opens the data key of a field for writing: through the owning
// role's keys, or through a Write data grant held by a ring role.
func (s *RoleCommandService) fieldKey(ctx context.Context, tx dbx.DBTX, a *access, f *models.RoleField) ([]byte, string, error) {
	if _, ok := a.ring.WriteKey(f.RoleID); ok {
		entries, err := s.st.Repos.Keys(tx).GetByIDs(ctx, []string{f.DataKeyID})
		if err != nil {
			return nil, "", err
		}
		if len(entries) == 0 {
			return nil, "", fmt.Errorf("%w: key entry %s missing", common.ErrIntegrity, f.DataKeyID)
		}
		read, _ := a.ring.ReadKey(f.RoleID)
		key, err := unwrapDataKey(read, entries[0])
		return key, f.RoleID, err
	}

	grants, err := s.st.Repos.Shares(tx).ListGrantsByRoles(ctx, a.ring.RoleIDs())
	if err != nil {
		return nil, "", err
	}
	for _, g := range grants {
		if g.FieldID != f.ID || g.PermissionType != models.PermissionWrite {
			continue
		}
		entries, err := s.st.Repos.Keys(tx).GetByIDs(ctx, []string{g.KeyEntryID})
		if err != nil {
			return nil, "", err
		}
		if len(entries) == 0 {
			continue
		}
		read, _ := a.ring.ReadKey(g.RoleID)
		key, err := unwrapDataKey(read, entries[0])
		return key, g.RoleID, err
	}
	return nil, "", common.ErrForbidden
}

// UpdateDataItem replaces a field value, keeping its data key.
func (s *RoleCommandService) UpdateDataItem(ctx context.Context, c *Caller, fieldID, value string) error {
	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		f, err := s.st.Repos.Fields(tx).GetByID(ctx, fieldID)
		if err != nil {
			return err
		}
		dataKey, via, err := s.fieldKey(ctx, tx, a, f)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(dataKey)

		blob, err := cryptox.Encrypt(dataKey, []byte(value), keyring.FieldAAD(f.ID))
		if err != nil {
			return err
		}
		if err := s.st.Repos.Fields(tx).UpdateValue(ctx, f.ID, blob, s.now()); err != nil {
			return err
		}

		signer, err := s.roleSigner(ctx, tx, a, via)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainBusiness, Type: ledger.EventDataItemUpdated, Actor: c.AccountID,
			Payload: map[string]string{"roleId": f.RoleID, "fieldId": f.ID, "via": via}, Signer: signer})
		return err
	})
}

// DeleteDataItem removes a field together with its shares, grants and keys.
func (s *RoleCommandService) DeleteDataItem(ctx context.Context, c *Caller, fieldID string) error {
	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		f, err := s.st.Repos.Fields(tx).GetByID(ctx, fieldID)
		if err != nil {
			return err
		}
		if _, ok := a.ring.WriteKey(f.RoleID); !ok {
			return common.ErrForbidden
		}

		grantKeys, err := s.st.Repos.Shares(tx).DeleteByField(ctx, f.ID)
		if err != nil {
			return err
		}
		if err := s.st.Repos.Fields(tx).Delete(ctx, f.ID); err != nil {
			return err
		}
		if err := s.st.Repos.Keys(tx).DeleteByIDs(ctx, append(grantKeys, f.DataKeyID)); err != nil {
			return err
		}

		signer, err := s.roleSigner(ctx, tx, a, f.RoleID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainBusiness, Type: ledger.EventDataItemDeleted, Actor: c.AccountID,
			Payload: map[string]any{"roleId": f.RoleID, "fieldId": f.ID, "revokedGrants": len(grantKeys)}, Signer: signer})
		return err
	})
}

// CreateRoleEdge links an owned child under a parent the caller can write.
// The relationship decides which child keys must be at hand.
func (s *RoleCommandService) CreateRoleEdge(ctx context.Context, c *Caller, parentID, childID string, rel models.RelationshipType) error {
	if !rel.Valid() {
		return fmt.Errorf("%w: relationship %q", common.ErrInvalidInput, rel)
	}
	if parentID == "" || childID == "" || parentID == childID {
		return fmt.Errorf("%w: edge %q -> %q", common.ErrInvalidInput, parentID, childID)
	}

	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		parentWrite, ok := a.ring.WriteKey(parentID)
		if !ok {
			return common.ErrForbidden
		}
		closure, err := s.ownershipClosure(ctx, tx, a)
		if err != nil {
			return err
		}
		if _, owned := closure[childID]; !owned {
			return common.ErrForbidden
		}
		childRead, ok := a.ring.ReadKey(childID)
		if !ok {
			return common.ErrForbidden
		}
		childWrite, hasWrite := a.ring.WriteKey(childID)
		if rel.GrantsWrite() && !hasWrite {
			return common.ErrForbidden
		}

		parentRead, _ := a.ring.ReadKey(parentID)
		read, write, err := keyring.WrapEdge(parentID, keyring.Keys{Read: parentRead, Write: parentWrite},
			childID, keyring.Keys{Read: childRead, Write: childWrite}, rel)
		if err != nil {
			return err
		}
		edge := &models.RoleEdge{ID: newID(), ParentRoleID: parentID, ChildRoleID: childID, RelationshipType: rel,
			EncryptedReadKey: read, EncryptedWriteKey: write, CreatedUTC: s.now()}
		if err := s.st.Repos.Edges(tx).Upsert(ctx, edge); err != nil {
			return err
		}

		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainKey, Type: ledger.EventRoleEdgeCreated, Actor: c.AccountID,
			Payload: map[string]string{"parentRoleId": parentID, "childRoleId": childID, "relationship": string(rel)}, Signer: a.masterSigner()})
		return err
	})
}

// DeleteRoleParent removes the edge parentID -> childID.
func (s *RoleCommandService) DeleteRoleParent(ctx context.Context, c *Caller, parentID, childID string) error {
	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		if _, ok := a.ring.WriteKey(parentID); !ok {
			return common.ErrForbidden
		}
		if err := s.st.Repos.Edges(tx).Delete(ctx, parentID, childID); err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainKey, Type: ledger.EventRoleEdgeDeleted, Actor: c.AccountID,
			Payload: map[string]string{"parentRoleId": parentID, "childRoleId": childID}, Signer: a.masterSigner()})
		return err
	})
}

// ShareRole offers targetID a relationship to an owned source role. The
// source keys are sealed to the target and stay inert until accepted.
func (s *RoleCommandService) ShareRole(ctx context.Context, c *Caller, sourceID, targetID string, rel models.RelationshipType) (string, error) {
	if !rel.Valid() {
		return "", fmt.Errorf("%w: relationship %q", common.ErrInvalidInput, rel)
	}
	if sourceID == targetID {
		return "", fmt.Errorf("%w: role cannot be shared with itself", common.ErrInvalidInput)
	}

	shareID := newID()
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		closure, err := s.ownershipClosure(ctx, tx, a)
		if err != nil {
			return err
		}
		if _, owned := closure[sourceID]; !owned {
			return common.ErrForbidden
		}
		read, ok := a.ring.ReadKey(sourceID)
		if !ok {
			return common.ErrForbidden
		}
		target, err := s.st.Repos.Roles(tx).GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		share := &models.PendingRoleShare{ID: shareID, SourceRoleID: sourceID, TargetRoleID: targetID, RelationshipType: rel, CreatedUTC: s.now()}
		if share.SealedReadKey, err = cryptox.SealFor(target.PublicEncryptionKey, read); err != nil {
			return err
		}
		if rel.GrantsWrite() {
			write, ok := a.ring.WriteKey(sourceID)
			if !ok {
				return common.ErrForbidden
			}
			if share.SealedWriteKey, err = cryptox.SealFor(target.PublicEncryptionKey, write); err != nil {
				return err
			}
		}
		if err := s.st.Repos.Shares(tx).CreateRoleShare(ctx, share); err != nil {
			return err
		}

		signer, err := s.roleSigner(ctx, tx, a, sourceID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainBusiness, Type: ledger.EventRoleShared, Actor: c.AccountID,
			Payload: map[string]string{"shareId": shareID, "sourceRoleId": sourceID, "targetRoleId": targetID, "relationship": string(rel)}, Signer: signer})
		return err
	})
	if err != nil {
		return "", err
	}
	return shareID, nil
}

// ShareDataItem offers targetID the data key of one field of a role the
// caller can write.
func (s *RoleCommandService) ShareDataItem(ctx context.Context, c *Caller, fieldID, targetID string, perm models.PermissionType) (string, error) {
	if perm == "" {
		perm = models.PermissionRead
	}
	if !perm.Valid() {
		return "", fmt.Errorf("%w: permission %q", common.ErrInvalidInput, perm)
	}

	shareID := newID()
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		f, err := s.st.Repos.Fields(tx).GetByID(ctx, fieldID)
		if err != nil {
			return err
		}
		if _, ok := a.ring.WriteKey(f.RoleID); !ok {
			return common.ErrForbidden
		}
		dataKey, _, err := s.fieldKey(ctx, tx, a, f)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(dataKey)

		target, err := s.st.Repos.Roles(tx).GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		sealed, err := cryptox.SealFor(target.PublicEncryptionKey, dataKey)
		if err != nil {
			return err
		}
		share := &models.PendingDataShare{ID: shareID, FieldID: f.ID, TargetRoleID: targetID, PermissionType: perm,
			SealedDataKey: sealed, CreatedUTC: s.now()}
		if err := s.st.Repos.Shares(tx).CreateDataShare(ctx, share); err != nil {
			return err
		}

		signer, err := s.roleSigner(ctx, tx, a, f.RoleID)
		if err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainBusiness, Type: ledger.EventDataItemShared, Actor: c.AccountID,
			Payload: map[string]string{"shareId": shareID, "fieldId": f.ID, "targetRoleId": targetID, "permission": string(perm)}, Signer: signer})
		return err
	})
	if err != nil {
		return "", err
	}
	return shareID, nil
}

// targetSecrets opens the blob of a share target; accepting needs its write key.
func (s *RoleCommandService) targetSecrets(ctx context.Context, tx dbx.DBTX, a *access, targetID string) (*models.Role, roleSecrets, error) {
	secrets, err := s.roleSecrets(ctx, tx, a, targetID)
	if err != nil {
		return nil, roleSecrets{}, err
	}
	role, err := s.st.Repos.Roles(tx).GetByID(ctx, targetID)
	if err != nil {
		return nil, roleSecrets{}, err
	}
	return role, secrets, nil
}

func openRoleShare(target *models.Role, secrets roleSecrets, share *models.PendingRoleShare) (keyring.Keys, error) {
	var keys keyring.Keys
	var err error
	keys.Read, err = cryptox.OpenSealed(target.PublicEncryptionKey, secrets.BoxPrivateKey, share.SealedReadKey)
	if err != nil {
		return keyring.Keys{}, fmt.Errorf("%w: role share %s: %v", common.ErrIntegrity, share.ID, err)
	}
	if len(share.SealedWriteKey) > 0 {
		keys.Write, err = cryptox.OpenSealed(target.PublicEncryptionKey, secrets.BoxPrivateKey, share.SealedWriteKey)
		if err != nil {
			return keyring.Keys{}, fmt.Errorf("%w: role share %s: %v", common.ErrIntegrity, share.ID, err)
		}
	}
	return keys, nil
}

// AcceptRoleShare turns a pending role share into an edge from the target to
// the source role. An existing edge at least as strong as the share is kept.
func (s *RoleCommandService) AcceptRoleShare(ctx context.Context, c *Caller, shareID string) error {
	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		share, err := s.st.Repos.Shares(tx).GetRoleShare(ctx, shareID)
		if err != nil {
			return err
		}
		if share.AcceptedUTC != nil {
			return common.ErrShareNotPending
		}
		target, secrets, err := s.targetSecrets(ctx, tx, a, share.TargetRoleID)
		if err != nil {
			return err
		}

		current, err := findEdge(ctx, s.st.Repos.Edges(tx), target.ID, share.SourceRoleID)
		if err != nil {
			return err
		}
		effective := share.RelationshipType
		now := s.now()
		if current != nil && current.RelationshipType.Rank() >= share.RelationshipType.Rank() {
			effective = current.RelationshipType
		} else if err := s.grantShare(ctx, tx, a, target, secrets, share, now); err != nil {
			return err
		}

		if err := s.st.Repos.Shares(tx).MarkRoleShareAccepted(ctx, share.ID, now); err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainKey, Type: ledger.EventRoleShareAccepted, Actor: c.AccountID,
			Payload: map[string]string{"shareId": share.ID, "parentRoleId": target.ID, "childRoleId": share.SourceRoleID,
				"relationship": string(share.RelationshipType), "effectiveRelationship": string(effective)},
			Signer: &ledger.Signer{RoleID: target.ID, PrivateKey: secrets.SigningPrivateKey}})
		return err
	})
}

// grantShare opens the share and writes the edge it describes.
func (s *RoleCommandService) grantShare(ctx context.Context, tx dbx.DBTX, a *access, target *models.Role,
	secrets roleSecrets, share *models.PendingRoleShare, now time.Time) error {
	sourceKeys, err := openRoleShare(target, secrets, share)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(sourceKeys.Read)
	defer common.WipeByteArray(sourceKeys.Write)

	targetRead, _ := a.ring.ReadKey(target.ID)
	targetWrite, _ := a.ring.WriteKey(target.ID)
	read, write, err := keyring.WrapEdge(target.ID, keyring.Keys{Read: targetRead, Write: targetWrite},
		share.SourceRoleID, sourceKeys, share.RelationshipType)
	if err != nil {
		return err
	}

	edge := &models.RoleEdge{ID: newID(), ParentRoleID: target.ID, ChildRoleID: share.SourceRoleID,
		RelationshipType: share.RelationshipType, EncryptedReadKey: read, EncryptedWriteKey: write, CreatedUTC: now}
	return s.st.Repos.Edges(tx).Upsert(ctx, edge)
}

// findEdge returns the parentID -> childID edge, or nil when there is none.
func findEdge(ctx context.Context, repo edges.Repository, parentID, childID string) (*models.RoleEdge, error) {
	list, err := repo.ListByParents(ctx, []string{parentID})
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		if e.ChildRoleID == childID {
			return e, nil
		}
	}
	return nil, nil
}

// AcceptDataShare wraps the shared data key under the target's read key and
// records the grant.
func (s *RoleCommandService) AcceptDataShare(ctx context.Context, c *Caller, shareID string) error {
	return s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.loadAccess(ctx, tx, c)
		if err != nil {
			return err
		}
		share, err := s.st.Repos.Shares(tx).GetDataShare(ctx, shareID)
		if err != nil {
			return err
		}
		if share.AcceptedUTC != nil {
			return common.ErrShareNotPending
		}
		target, secrets, err := s.targetSecrets(ctx, tx, a, share.TargetRoleID)
		if err != nil {
			return err
		}

		dataKey, err := cryptox.OpenSealed(target.PublicEncryptionKey, secrets.BoxPrivateKey, share.SealedDataKey)
		if err != nil {
			return fmt.Errorf("%w: data share %s: %v", common.ErrIntegrity, share.ID, err)
		}
		defer common.WipeByteArray(dataKey)

		now := s.now()
		targetRead, _ := a.ring.ReadKey(target.ID)
		entry := &models.KeyEntry{ID: newID(), KeyType: models.KeyTypeDataKey, OwnerRoleID: target.ID, CreatedUTC: now}
		entry.WrappedKey, err = cryptox.Encrypt(targetRead, dataKey, keyring.KeyEntryAAD(entry.ID, target.ID))
		if err != nil {
			return err
		}

		if err := s.st.Repos.Shares(tx).MarkDataShareAccepted(ctx, share.ID, now); err != nil {
			return err
		}
		if err := s.st.Repos.Keys(tx).Create(ctx, entry); err != nil {
			return err
		}
		grant := &models.DataKeyGrant{ID: newID(), FieldID: share.FieldID, RoleID: target.ID, KeyEntryID: entry.ID,
			PermissionType: share.PermissionType, CreatedUTC: now}
		if err := s.st.Repos.Shares(tx).CreateGrant(ctx, grant); err != nil {
			return err
		}

		signer := &ledger.Signer{RoleID: target.ID, PrivateKey: secrets.SigningPrivateKey}
		_, err = s.ledger.Append(ctx, tx,
			ledger.Event{Chain: models.ChainKey, Type: ledger.EventDataKeyCreated, Actor: c.AccountID,
				Payload: map[string]string{"roleId": target.ID, "keyEntryId": entry.ID}, Signer: signer},
			ledger.Event{Chain: models.ChainKey, Type: ledger.EventDataShareAccepted, Actor: c.AccountID,
				Payload: map[string]string{"shareId": share.ID, "fieldId": share.FieldID, "roleId": target.ID,
					"permission": string(share.PermissionType)}, Signer: signer},
		)
		return err
	})
}

// ListPendingShares returns open invitations for ring roles the caller can
// write, since only those can accept.
func (s *RoleCommandService) ListPendingShares(ctx context.Context, c *Caller) (*PendingShares, error) {
	a, err := s.loadAccess(ctx, s.st.DB, c)
	if err != nil {
		return nil, err
	}
	var targets []string
	for _, id := range a.ring.RoleIDs() {
		if _, ok := a.ring.WriteKey(id); ok {
			targets = append(targets, id)
		}
	}

	out := &PendingShares{Roles: []*models.PendingRoleShare{}, Data: []*models.PendingDataShare{}}
	if len(targets) == 0 {
		return out, nil
	}
	roles, err := s.st.Repos.Shares(s.st.DB).ListPendingRoleShares(ctx, targets)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	data, err := s.st.Repos.Shares(s.st.DB).ListPendingDataShares(ctx, targets)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if roles != nil {
		out.Roles = roles
	}
	if data != nil {
		out.Data = data
	}
	return out, nil
}
