package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	ledgerrepo "github.com/minmer/recreatio-sub002/internal/server/repositories/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_VerifyAfterActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	bob := h.caller(t, "bob", "Bob")
	familyID, _, noteID := family(t, h, alice)

	shareID, err := h.commands.ShareDataItem(ctx, alice, noteID, bob.MasterRoleID, models.PermissionRead)
	require.NoError(t, err)
	require.NoError(t, h.commands.AcceptDataShare(ctx, bob, shareID))
	_, err = h.accounts.Login(ctx, LoginRequest{LoginID: "alice", H3: secret("wrong")})
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	for _, chain := range models.Chains {
		sum, err := h.ledger.Verify(ctx, alice, string(chain), "")
		require.NoError(t, err, chain)
		assert.Equal(t, chain, sum.Chain)
		assert.Equal(t, alice.MasterRoleID, sum.RoleID)
		assert.Positive(t, sum.Total, chain)
		assert.Zero(t, sum.HashMismatches, chain)
		assert.Zero(t, sum.PreviousHashMismatches, chain)
		assert.Zero(t, sum.SignaturesInvalid, chain)
		assert.Zero(t, sum.SignaturesMissing, chain)
		assert.Equal(t, sum.Total, sum.Unsigned+sum.SignaturesVerified, chain)
	}

	auth, err := h.ledger.Verify(ctx, alice, "auth", "")
	require.NoError(t, err)
	assert.Equal(t, 1, auth.Unsigned, "only the failed login is unsigned")
	assert.Equal(t, 2, auth.RoleSignedEntries)

	business, err := h.ledger.Verify(ctx, alice, "business", familyID)
	require.NoError(t, err)
	assert.Equal(t, business.Total, business.RoleSignedEntries)
}

// editedRepos serves one ledger entry as if it had been edited in storage.
type editedRepos struct {
	repomanager.RepositoryManager
	chain models.LedgerChain
	index int
	edit  func(*models.LedgerEntry)
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

func TestLedgerService_DetectsTampering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	family(t, h, alice)

	repos := editedRepos{RepositoryManager: h.st.Repos, chain: models.ChainKey, index: 1, edit: func(e *models.LedgerEntry) {
		e.PayloadJSON = `{"roleId":"someone-else"}`
	}}
	svc := NewLedgerService(Storage{DB: h.store, Tx: h.store, Repos: repos}, nil, nil, discardLogger())

	sum, err := svc.Verify(ctx, alice, "key", "")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.HashMismatches)
	assert.Equal(t, 1, sum.PreviousHashMismatches)
}

func TestLedgerService_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")

	_, err := h.ledger.Verify(ctx, alice, "audit", "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = h.ledger.Export(ctx, alice, "auth")
	assert.ErrorIs(t, err, ErrExportDisabled)
}

type memObjects struct{ keys []string }

func (m *memObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.keys = append(m.keys, aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func TestLedgerService_ExportIsLimitedToOperators(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.caller(t, "alice", "Alice")
	ops := h.caller(t, "ops", "Operator")

	objects := &memObjects{}
	svc := NewLedgerService(h.st, ledger.NewExporter(h.st.Repos, objects, nil, "ledger"), []string{" ops "}, discardLogger())

	_, err := svc.Export(ctx, alice, "auth")
	require.ErrorIs(t, err, common.ErrForbidden)
	assert.Empty(t, objects.keys, "nothing is uploaded for a refused export")

	_, err = svc.Export(ctx, &Caller{AccountID: "gone"}, "auth")
	require.ErrorIs(t, err, common.ErrForbidden)

	out, err := svc.Export(ctx, ops, "auth")
	require.NoError(t, err)
	assert.Equal(t, len(h.chain(t, models.ChainAuth)), out.Entries)
	assert.Equal(t, []string{out.Key}, objects.keys)

	// Verification stays open to every session: it only returns counters.
	sum, err := svc.Verify(ctx, alice, "auth", "")
	require.NoError(t, err)
	assert.Equal(t, out.Entries, sum.Total)
}
