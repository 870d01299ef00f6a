// Package ledger appends to and verifies the three hash-chained audit logs.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
)

// Auth chain events.
const (
	EventRegistrationCreated = "RegistrationCreated"
	EventLoginSuccess        = "LoginSuccess"
	EventLoginFailed         = "LoginFailed"
	EventAccountLocked       = "AccountLocked"
	EventPasswordChanged     = "PasswordChanged"
	EventLogout              = "Logout"
	EventSecureModeChanged   = "SecureModeChanged"
)

// Key chain events.
const (
	EventMasterRoleCreated     = "MasterRoleCreated"
	EventMasterRoleReEncrypted = "MasterRoleReEncrypted"
	EventRoleCreated           = "RoleCreated"
	EventDataKeyCreated        = "DataKeyCreated"
	EventRoleEdgeCreated       = "RoleEdgeCreated"
	EventRoleEdgeDeleted       = "RoleEdgeDeleted"
	EventRoleShareAccepted     = "RoleShareAccepted"
	EventDataShareAccepted     = "DataShareAccepted"
	EventRecoveryPlanActivated = "RecoveryPlanActivated"
	EventRecoverySharesRevoked = "RecoverySharesRevoked"
)

// Business chain events.
const (
	EventDataItemCreated      = "DataItemCreated"
	EventDataItemUpdated      = "DataItemUpdated"
	EventDataItemDeleted      = "DataItemDeleted"
	EventRoleShared           = "RoleShared"
	EventDataItemShared       = "DataItemShared"
	EventRecoveryPlanPrepared = "RecoveryPlanPrepared"
)

// Signer signs an entry's hash on behalf of a role.
type Signer struct {
	RoleID     string
	PrivateKey []byte
}

// Event is an entry to be appended. Payload is marshalled to JSON.
type Event struct {
	Chain   models.LedgerChain
	Type    string
	Actor   string
	Payload any
	Signer  *Signer
}

// Canonical is the byte string an entry's hash covers. The timestamp is
// rendered at microsecond precision, which is what Postgres stores.
func Canonical(e *models.LedgerEntry) []byte {
	parts := []string{
		e.TimestampUTC.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		e.EventType,
		e.Actor,
		e.PayloadJSON,
		e.SignerRoleID,
		e.SignatureAlg,
	}
	return []byte(strings.Join(parts, "|"))
}

// ComputeHash chains an entry to its predecessor.
func ComputeHash(previousHash []byte, e *models.LedgerEntry) []byte {
	h := sha256.New()
	h.Write(previousHash)
	h.Write(Canonical(e))
	return h.Sum(nil)
}

type Ledger struct {
	repos repomanager.RepositoryManager
	now   func() time.Time
}

func New(repos repomanager.RepositoryManager) *Ledger {
	return &Ledger{repos: repos, now: time.Now}
}

// Append writes events inside tx. It locks each touched chain in the fixed
// order of models.Chains, so it must be called once per transaction, after
// every other write. Events of one chain keep their relative order.
func (l *Ledger) Append(ctx context.Context, tx dbx.DBTX, events ...Event) ([]*models.LedgerEntry, error) {
	byChain := map[models.LedgerChain][]Event{}
	for _, ev := range events {
		if !ev.Chain.Valid() {
			return nil, fmt.Errorf("unknown ledger chain %q", ev.Chain)
		}
		byChain[ev.Chain] = append(byChain[ev.Chain], ev)
	}

	repo := l.repos.Ledger(tx)
	var out []*models.LedgerEntry
	for _, chain := range models.Chains {
		evs := byChain[chain]
		if len(evs) == 0 {
			continue
		}
		if err := repo.Lock(ctx, chain); err != nil {
			return nil, err
		}

		prevHash := []byte{}
		var prevTime time.Time
		last, err := repo.Last(ctx, chain)
		switch {
		case err == nil:
			prevHash, prevTime = last.Hash, last.TimestampUTC
		case !errors.Is(err, common.ErrorNotFound):
			return nil, err
		}

		for _, ev := range evs {
			ts := l.now().UTC().Truncate(time.Microsecond)
			if ts.Before(prevTime) {
				ts = prevTime
			}
			e, err := buildEntry(chain, ev, ts, prevHash)
			if err != nil {
				return nil, err
			}
			if err := repo.Insert(ctx, e); err != nil {
				return nil, err
			}
			out = append(out, e)
			prevHash, prevTime = e.Hash, e.TimestampUTC
		}
	}
	return out, nil
}

func buildEntry(chain models.LedgerChain, ev Event, ts time.Time, prevHash []byte) (*models.LedgerEntry, error) {
	payload := "{}"
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", ev.Type, err)
		}
		payload = string(b)
	}

	e := &models.LedgerEntry{
		ID:           uuid.NewString(),
		Chain:        chain,
		TimestampUTC: ts,
		EventType:    ev.Type,
		Actor:        ev.Actor,
		PayloadJSON:  payload,
		PreviousHash: prevHash,
	}
	if ev.Signer != nil {
		e.SignerRoleID = ev.Signer.RoleID
		e.SignatureAlg = cryptox.SignatureAlgEd25519
	}
	e.Hash = ComputeHash(prevHash, e)
	if ev.Signer != nil {
		sig, err := cryptox.Sign(ev.Signer.PrivateKey, e.Hash)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", ev.Type, err)
		}
		e.Signature = sig
	}
	return e, nil
}

// Summary reports what Verify found. It is never a verdict; callers decide
// which counters they tolerate.
type Summary struct {
	Chain                  models.LedgerChain `json:"chain"`
	RoleID                 string             `json:"roleId,omitempty"`
	Total                  int                `json:"total"`
	Unsigned               int                `json:"unsigned"`
	HashMismatches         int                `json:"hashMismatches"`
	PreviousHashMismatches int                `json:"previousHashMismatches"`
	SignaturesVerified     int                `json:"signaturesVerified"`
	SignaturesMissing      int                `json:"signaturesMissing"`
	SignaturesInvalid      int                `json:"signaturesInvalid"`
	RoleSignedEntries      int                `json:"roleSignedEntries"`
	RoleInvalidSignatures  int                `json:"roleInvalidSignatures"`
}

type Verifier struct {
	repos repomanager.RepositoryManager
}

func NewVerifier(repos repomanager.RepositoryManager) *Verifier {
	return &Verifier{repos: repos}
}

// Verify replays chain from its first entry. Each stored hash is compared with
// the hash recomputed from the entry, and each previousHash with the hash
// recomputed for the entry before it. An edited entry therefore counts as a
// hash mismatch and breaks the link of its successor; an edited entry whose
// hash was also rewritten still breaks that link.
// roleID, when set, restricts the Role* counters to entries it signed.
func (v *Verifier) Verify(ctx context.Context, db dbx.DBTX, chain models.LedgerChain, roleID string) (*Summary, error) {
	if !chain.Valid() {
		return nil, fmt.Errorf("%w: unknown ledger %q", common.ErrInvalidInput, chain)
	}
	entries, err := v.repos.Ledger(db).List(ctx, chain)
	if err != nil {
		return nil, err
	}

	keys, err := v.signerKeys(ctx, db, entries)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Chain: chain, RoleID: roleID, Total: len(entries)}
	var prevHash []byte
	for _, e := range entries {
		recomputed := ComputeHash(e.PreviousHash, e)
		if !bytes.Equal(recomputed, e.Hash) {
			sum.HashMismatches++
		}
		if !bytes.Equal(e.PreviousHash, prevHash) {
			sum.PreviousHashMismatches++
		}
		prevHash = recomputed

		if e.SignerRoleID == "" {
			sum.Unsigned++
			continue
		}
		forRole := roleID != "" && e.SignerRoleID == roleID
		if forRole {
			sum.RoleSignedEntries++
		}

		pub, ok := keys[e.SignerRoleID]
		switch {
		case !ok || len(e.Signature) == 0:
			sum.SignaturesMissing++
		case e.SignatureAlg != cryptox.SignatureAlgEd25519 || !cryptox.Verify(pub, e.Hash, e.Signature):
			sum.SignaturesInvalid++
			if forRole {
				sum.RoleInvalidSignatures++
			}
		default:
			sum.SignaturesVerified++
		}
	}
	return sum, nil
}

// signerKeys fetches every signer's public key in one call.
func (v *Verifier) signerKeys(ctx context.Context, db dbx.DBTX, entries []*models.LedgerEntry) (map[string][]byte, error) {
	seen := map[string]struct{}{}
	var ids []string
	for _, e := range entries {
		if e.SignerRoleID == "" {
			continue
		}
		if _, ok := seen[e.SignerRoleID]; !ok {
			seen[e.SignerRoleID] = struct{}{}
			ids = append(ids, e.SignerRoleID)
		}
	}
	keys := map[string][]byte{}
	if len(ids) == 0 {
		return keys, nil
	}
	sort.Strings(ids)

	roles, err := v.repos.Roles(db).GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if len(r.PublicSigningKey) > 0 {
			keys[r.ID] = r.PublicSigningKey
		}
	}
	return keys, nil
}
