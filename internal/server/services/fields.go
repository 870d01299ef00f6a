package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/keyring"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
)

// ResolutionKind says how far field resolution got.
type ResolutionKind int

const (
	// NotFound: no read key for the role, or the key entry is missing.
	NotFound ResolutionKind = iota
	// Unreadable: the key material exists but is of the wrong type or does
	// not open.
	Unreadable
	Resolved
)

func (k ResolutionKind) String() string {
	switch k {
	case Resolved:
		return "Resolved"
	case Unreadable:
		return "Unreadable"
	}
	return "NotFound"
}

// Resolution is the outcome of decrypting one field. Callers outside this
// package only ever see Resolved values; the other kinds collapse to absent.
type Resolution struct {
	Kind  ResolutionKind
	Value string
}

// NormalizeFieldType folds field types to their case-insensitive key.
func NormalizeFieldType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

type FieldValueService struct{}

func NewFieldValueService() *FieldValueService {
	return &FieldValueService{}
}

// TryGetPlainValue decrypts f with keys from ring. keyEntries must hold the
// entry named by f.DataKeyID; nothing here ever returns an error.
func (s *FieldValueService) TryGetPlainValue(f *models.RoleField, ring *keyring.Ring, keyEntries map[string]*models.KeyEntry) Resolution {
	readKey, ok := ring.ReadKey(f.RoleID)
	if !ok {
		return Resolution{Kind: NotFound}
	}
	entry, ok := keyEntries[f.DataKeyID]
	if !ok {
		return Resolution{Kind: NotFound}
	}
	if entry.KeyType != models.KeyTypeDataKey {
		return Resolution{Kind: Unreadable}
	}

	dataKey, err := cryptox.Decrypt(readKey, entry.WrappedKey, keyring.KeyEntryAAD(entry.ID, entry.OwnerRoleID))
	if err != nil {
		return Resolution{Kind: Unreadable}
	}
	defer common.WipeByteArray(dataKey)

	plain, err := cryptox.Decrypt(dataKey, f.EncryptedValue, keyring.FieldAAD(f.ID))
	if err != nil {
		return Resolution{Kind: Unreadable}
	}
	return Resolution{Kind: Resolved, Value: string(plain)}
}

// PlainValue folds TryGetPlainValue into (value, ok).
func (s *FieldValueService) PlainValue(f *models.RoleField, ring *keyring.Ring, keyEntries map[string]*models.KeyEntry) (string, bool) {
	r := s.TryGetPlainValue(f, ring, keyEntries)
	return r.Value, r.Kind == Resolved
}

// ResolvedField is a field the caller can read. Grant is set when the value
// was reached through an accepted data share rather than the field's role.
type ResolvedField struct {
	Field *models.RoleField
	Value string
	Grant *models.DataKeyGrant
}

type FieldQueryService struct {
	repos  repomanager.RepositoryManager
	values *FieldValueService
}

func NewFieldQueryService(repos repomanager.RepositoryManager) *FieldQueryService {
	return &FieldQueryService{repos: repos, values: NewFieldValueService()}
}

// Resolve returns the readable fields of roleIDs plus every field shared
// with a role in ring, oldest first. Key entries are fetched in one call.
func (s *FieldQueryService) Resolve(ctx context.Context, db dbx.DBTX, ring *keyring.Ring, roleIDs []string) ([]ResolvedField, error) {
	fields, err := s.repos.Fields(db).ListByRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	grants, err := s.repos.Shares(db).ListGrantsByRoles(ctx, ring.RoleIDs())
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]*models.RoleField, len(fields))
	for _, f := range fields {
		loaded[f.ID] = f
	}
	var missing []string
	for _, g := range grants {
		if _, ok := loaded[g.FieldID]; !ok {
			missing = append(missing, g.FieldID)
		}
	}
	if len(missing) > 0 {
		shared, err := s.repos.Fields(db).GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, f := range shared {
			loaded[f.ID] = f
		}
	}

	keyIDs := make([]string, 0, len(fields)+len(grants))
	for _, f := range fields {
		keyIDs = append(keyIDs, f.DataKeyID)
	}
	for _, g := range grants {
		keyIDs = append(keyIDs, g.KeyEntryID)
	}
	entries := map[string]*models.KeyEntry{}
	if len(keyIDs) > 0 {
		list, err := s.repos.Keys(db).GetByIDs(ctx, keyIDs)
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			entries[e.ID] = e
		}
	}

	out := make([]ResolvedField, 0, len(fields))
	seen := map[string]struct{}{}
	for _, f := range fields {
		if v, ok := s.values.PlainValue(f, ring, entries); ok {
			out = append(out, ResolvedField{Field: f, Value: v})
			seen[f.ID] = struct{}{}
		}
	}
	for _, g := range grants {
		f, ok := loaded[g.FieldID]
		if !ok {
			continue
		}
		if _, done := seen[f.ID]; done {
			continue
		}
		view := *f
		view.RoleID, view.DataKeyID = g.RoleID, g.KeyEntryID
		if v, ok := s.values.PlainValue(&view, ring, entries); ok {
			out = append(out, ResolvedField{Field: f, Value: v, Grant: g})
			seen[f.ID] = struct{}{}
		}
	}
	return out, nil
}

// Load maps role id to field type to plaintext. Fields that cannot be
// resolved are left out, so an unreadable field looks like an unset one.
// When a role has several fields of one type, the oldest wins.
func (s *FieldQueryService) Load(ctx context.Context, db dbx.DBTX, ring *keyring.Ring, roleIDs []string) (map[string]map[string]string, error) {
	resolved, err := s.Resolve(ctx, db, ring, roleIDs)
	if err != nil {
		return nil, err
	}
	out := map[string]map[string]string{}
	for _, r := range resolved {
		byType, ok := out[r.Field.RoleID]
		if !ok {
			byType = map[string]string{}
			out[r.Field.RoleID] = byType
		}
		t := NormalizeFieldType(r.Field.FieldType)
		if _, taken := byType[t]; !taken {
			byType[t] = r.Value
		}
	}
	return out, nil
}

// sealField encrypts value under a fresh data key wrapped with roleReadKey.
// The returned entities are not persisted.
func sealField(roleID string, roleReadKey []byte, fieldType, value string, now time.Time) (*models.RoleField, *models.KeyEntry, error) {
	dataKey, err := cryptox.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(dataKey)

	entry := &models.KeyEntry{ID: newID(), KeyType: models.KeyTypeDataKey, OwnerRoleID: roleID, CreatedUTC: now}
	entry.WrappedKey, err = cryptox.Encrypt(roleReadKey, dataKey, keyring.KeyEntryAAD(entry.ID, roleID))
	if err != nil {
		return nil, nil, err
	}

	f := &models.RoleField{
		ID:         newID(),
		RoleID:     roleID,
		FieldType:  fieldType,
		DataKeyID:  entry.ID,
		CreatedUTC: now,
		UpdatedUTC: now,
	}
	f.EncryptedValue, err = cryptox.Encrypt(dataKey, []byte(value), keyring.FieldAAD(f.ID))
	if err != nil {
		return nil, nil, err
	}
	return f, entry, nil
}

// createField persists a sealed field and its key entry.
func createField(ctx context.Context, repos repomanager.RepositoryManager, tx dbx.DBTX, roleID string, roleReadKey []byte, fieldType, value string, now time.Time) (*models.RoleField, error) {
	f, entry, err := sealField(roleID, roleReadKey, fieldType, value, now)
	if err != nil {
		return nil, err
	}
	if err := repos.Keys(tx).Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store data key: %w", err)
	}
	if err := repos.Fields(tx).Create(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to store field: %w", err)
	}
	return f, nil
}

// unwrapDataKey opens the data key of f through entry with the given role
// read key.
func unwrapDataKey(readKey []byte, entry *models.KeyEntry) ([]byte, error) {
	if entry.KeyType != models.KeyTypeDataKey {
		return nil, fmt.Errorf("%w: key entry %s is %s", common.ErrIntegrity, entry.ID, entry.KeyType)
	}
	key, err := cryptox.Decrypt(readKey, entry.WrappedKey, keyring.KeyEntryAAD(entry.ID, entry.OwnerRoleID))
	if err != nil {
		return nil, fmt.Errorf("%w: key entry %s: %v", common.ErrIntegrity, entry.ID, err)
	}
	return key, nil
}
