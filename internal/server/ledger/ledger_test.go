package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	ledgerrepo "github.com/minmer/recreatio-sub002/internal/server/repositories/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/memory"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := New(memory.NewManager())
	l.now = c.now
	return l, memory.NewStore()
}

func appendTx(t *testing.T, l *Ledger, store *memory.Store, events ...Event) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		_, err := l.Append(ctx, tx, events...)
		return err
	})
	require.NoError(t, err)
}

// editedRepos serves one stored entry as if it had been rewritten in place.
type editedRepos struct {
	repomanager.RepositoryManager
	chain models.LedgerChain
	index int
	edit  func(*models.LedgerEntry)
}

func edited(chain models.LedgerChain, index int, edit func(*models.LedgerEntry)) editedRepos {
	return editedRepos{RepositoryManager: memory.NewManager(), chain: chain, index: index, edit: edit}
}

func (r editedRepos) Ledger(db dbx.DBTX) ledgerrepo.Repository {
	return editedLedger{Repository: r.RepositoryManager.Ledger(db), r: r}
}

type editedLedger struct {
	ledgerrepo.Repository
	r editedRepos
}

func (l editedLedger) List(ctx context.Context, chain models.LedgerChain) ([]*models.LedgerEntry, error) {
	entries, err := l.Repository.List(ctx, chain)
	if err == nil && chain == l.r.chain && l.r.index < len(entries) {
		l.r.edit(entries[l.r.index])
	}
	return entries, err
}

func TestAppend_ChainsEntries(t *testing.T) {
	l, store := newLedger(t)
	appendTx(t, l, store,
		Event{Chain: models.ChainAuth, Type: EventRegistrationCreated, Actor: "a-1", Payload: map[string]string{"loginId": "alice"}},
		Event{Chain: models.ChainAuth, Type: EventLoginSuccess, Actor: "a-1"},
	)
	appendTx(t, l, store, Event{Chain: models.ChainAuth, Type: EventLogout, Actor: "a-1"})

	entries, err := memory.NewManager().Ledger(store).List(context.Background(), models.ChainAuth)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Empty(t, entries[0].PreviousHash)
	assert.NotNil(t, entries[0].PreviousHash, "the first link is stored as an empty value, not NULL")
	assert.Equal(t, `{"loginId":"alice"}`, entries[0].PayloadJSON)
	assert.Equal(t, "{}", entries[1].PayloadJSON)
	for i, e := range entries {
		assert.Equal(t, ComputeHash(e.PreviousHash, e), e.Hash)
		if i > 0 {
			assert.Equal(t, entries[i-1].Hash, e.PreviousHash)
		}
	}
}

func TestAppend_ChainsAreIndependent(t *testing.T) {
	l, store := newLedger(t)
	appendTx(t, l, store,
		Event{Chain: models.ChainBusiness, Type: EventDataItemCreated, Actor: "a-1"},
		Event{Chain: models.ChainAuth, Type: EventRegistrationCreated, Actor: "a-1"},
		Event{Chain: models.ChainKey, Type: EventMasterRoleCreated, Actor: "a-1"},
	)

	repo := memory.NewManager().Ledger(store)
	for _, chain := range models.Chains {
		entries, err := repo.List(context.Background(), chain)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Empty(t, entries[0].PreviousHash)
	}
}

func TestAppend_TimestampsNeverGoBackwards(t *testing.T) {
	l, store := newLedger(t)
	appendTx(t, l, store, Event{Chain: models.ChainAuth, Type: EventLoginSuccess, Actor: "a-1"})

	l.now = func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) }
	appendTx(t, l, store, Event{Chain: models.ChainAuth, Type: EventLogout, Actor: "a-1"})

	entries, err := memory.NewManager().Ledger(store).List(context.Background(), models.ChainAuth)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[1].TimestampUTC.Before(entries[0].TimestampUTC))
}

func TestAppend_RejectsUnknownChain(t *testing.T) {
	l, store := newLedger(t)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		_, err := l.Append(ctx, tx, Event{Chain: "audit", Type: "X"})
		return err
	})
	assert.Error(t, err)
}

func seedSigner(t *testing.T, store *memory.Store, roleID string) []byte {
	t.Helper()
	pub, priv, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)
	require.NoError(t, memory.NewManager().Roles(store).Create(context.Background(), &models.Role{
		ID: roleID, RoleType: models.RoleTypeMaster, PublicSigningKey: pub, PublicSigningKeyAlg: cryptox.SignatureAlgEd25519,
	}))
	return priv
}

func TestVerify_CleanChain(t *testing.T) {
	l, store := newLedger(t)
	priv := seedSigner(t, store, "r-1")
	appendTx(t, l, store,
		Event{Chain: models.ChainKey, Type: EventMasterRoleCreated, Actor: "a-1", Signer: &Signer{RoleID: "r-1", PrivateKey: priv}},
		Event{Chain: models.ChainKey, Type: EventRoleCreated, Actor: "a-1", Signer: &Signer{RoleID: "r-1", PrivateKey: priv}},
		Event{Chain: models.ChainKey, Type: EventRoleEdgeDeleted, Actor: "a-1"},
	)

	sum, err := NewVerifier(memory.NewManager()).Verify(context.Background(), store, models.ChainKey, "r-1")
	require.NoError(t, err)
	assert.Equal(t, &Summary{
		Chain: models.ChainKey, RoleID: "r-1", Total: 3, Unsigned: 1,
		SignaturesVerified: 2, RoleSignedEntries: 2,
	}, sum)
}

func TestVerify_DetectsPayloadTampering(t *testing.T) {
	l, store := newLedger(t)
	for i := 0; i < 4; i++ {
		appendTx(t, l, store, Event{Chain: models.ChainBusiness, Type: EventDataItemUpdated, Actor: "a-1", Payload: map[string]int{"n": i}})
	}
	repos := edited(models.ChainBusiness, 1, func(e *models.LedgerEntry) { e.PayloadJSON = `{"n":99}` })

	sum, err := NewVerifier(repos).Verify(context.Background(), store, models.ChainBusiness, "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.HashMismatches)
	assert.Equal(t, 1, sum.PreviousHashMismatches)
}

func TestVerify_DetectsRehashedEntry(t *testing.T) {
	l, store := newLedger(t)
	for i := 0; i < 3; i++ {
		appendTx(t, l, store, Event{Chain: models.ChainAuth, Type: EventLoginSuccess, Actor: "a-1"})
	}
	repos := edited(models.ChainAuth, 1, func(e *models.LedgerEntry) {
		e.Actor = "mallory"
		e.Hash = ComputeHash(e.PreviousHash, e)
	})

	sum, err := NewVerifier(repos).Verify(context.Background(), store, models.ChainAuth, "")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.HashMismatches)
	assert.Equal(t, 1, sum.PreviousHashMismatches)
}

func TestVerify_SignatureProblems(t *testing.T) {
	l, store := newLedger(t)
	priv := seedSigner(t, store, "r-1")
	_, otherPriv, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)

	appendTx(t, l, store,
		Event{Chain: models.ChainKey, Type: EventRoleCreated, Actor: "a-1", Signer: &Signer{RoleID: "r-1", PrivateKey: priv}},
		Event{Chain: models.ChainKey, Type: EventRoleCreated, Actor: "a-1", Signer: &Signer{RoleID: "r-1", PrivateKey: otherPriv}},
		Event{Chain: models.ChainKey, Type: EventRoleCreated, Actor: "a-1", Signer: &Signer{RoleID: "ghost", PrivateKey: otherPriv}},
	)

	sum, err := NewVerifier(memory.NewManager()).Verify(context.Background(), store, models.ChainKey, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.SignaturesVerified)
	assert.Equal(t, 1, sum.SignaturesInvalid)
	assert.Equal(t, 1, sum.SignaturesMissing)
	assert.Equal(t, 2, sum.RoleSignedEntries)
	assert.Equal(t, 1, sum.RoleInvalidSignatures)
	assert.Equal(t, 0, sum.HashMismatches)
}

func TestVerify_UnknownChain(t *testing.T) {
	_, err := NewVerifier(memory.NewManager()).Verify(context.Background(), memory.NewStore(), "audit", "")
	assert.Error(t, err)
}

func TestLedger_ChainIntegrityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := New(memory.NewManager())
		store := memory.NewStore()
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		offsets := rapid.SliceOfN(rapid.IntRange(-5, 5), 1, 20).Draw(rt, "offsets")
		actors := rapid.SliceOfN(rapid.StringMatching(`[a-z|]{0,8}`), len(offsets), len(offsets)).Draw(rt, "actors")

		for i, off := range offsets {
			at := start.Add(time.Duration(off) * time.Second)
			l.now = func() time.Time { return at }
			err := store.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
				_, err := l.Append(ctx, tx, Event{Chain: models.ChainAuth, Type: EventLoginFailed, Actor: actors[i], Payload: i})
				return err
			})
			if err != nil {
				rt.Fatalf("append: %v", err)
			}
		}

		sum, err := NewVerifier(memory.NewManager()).Verify(context.Background(), store, models.ChainAuth, "")
		if err != nil {
			rt.Fatalf("verify: %v", err)
		}
		if sum.Total != len(offsets) || sum.HashMismatches != 0 || sum.PreviousHashMismatches != 0 || sum.Unsigned != len(offsets) {
			rt.Fatalf("unexpected summary %+v", sum)
		}
	})
}
