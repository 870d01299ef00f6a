package services

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/config"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/memory"
	"github.com/minmer/recreatio-sub002/internal/sessioncache"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	store    *memory.Store
	st       Storage
	cache    *sessioncache.Cache
	clock    *testClock
	accounts *AccountService
	queries  *RoleQueryService
	commands *RoleCommandService
	recovery *RecoveryService
	ledger   *LedgerService
}

func discardLogger() logging.Logger {
	return logging.Discard()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	st := Storage{DB: store, Tx: store, Repos: memory.NewManager()}
	cfg := &config.Config{
		SecretKey:                   "test-secret",
		AccessTokenValidityDuration: time.Hour,
		LockoutThreshold:            5,
		LockoutDuration:             15 * time.Minute,
	}
	log := discardLogger()
	h := &harness{
		store:    store,
		st:       st,
		cache:    sessioncache.New(64, time.Hour),
		clock:    &testClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		queries:  NewRoleQueryService(st, log),
		commands: NewRoleCommandService(st, log),
		recovery: NewRecoveryService(st, log),
		ledger:   NewLedgerService(st, nil, nil, log),
	}
	h.accounts = NewAccountService(st, h.cache, cfg, log)
	h.accounts.now = h.clock.now
	return h
}

// secret stands in for the client-side H3 derivation.
func secret(password string) []byte {
	sum := sha256.Sum256([]byte("h3:" + password))
	return sum[:]
}

func (h *harness) register(t *testing.T, loginID, password, displayName string) string {
	t.Helper()
	id, err := h.accounts.Register(context.Background(), RegisterRequest{
		LoginID: loginID, UserSalt: []byte("salt-" + loginID), H3: secret(password), DisplayName: displayName,
	})
	require.NoError(t, err)
	return id
}

func (h *harness) login(t *testing.T, loginID, password string, secure bool) *LoginResult {
	t.Helper()
	res, err := h.accounts.Login(context.Background(), LoginRequest{LoginID: loginID, H3: secret(password), SecureMode: secure})
	require.NoError(t, err)
	return res
}

// caller registers and logs in a fresh account and returns its session.
func (h *harness) caller(t *testing.T, loginID, displayName string) *Caller {
	t.Helper()
	h.register(t, loginID, "pw-"+loginID, displayName)
	res := h.login(t, loginID, "pw-"+loginID, false)
	c, err := h.accounts.Authenticate(context.Background(), res.AccessToken, nil)
	require.NoError(t, err)
	require.NotNil(t, c.MasterKey)
	return c
}

func (h *harness) chain(t *testing.T, chain models.LedgerChain) []*models.LedgerEntry {
	t.Helper()
	entries, err := h.st.Repos.Ledger(h.store).List(context.Background(), chain)
	require.NoError(t, err)
	return entries
}

func countEvents(entries []*models.LedgerEntry, eventType string) int {
	n := 0
	for _, e := range entries {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func (h *harness) roleView(t *testing.T, c *Caller, roleID string) (RoleView, bool) {
	t.Helper()
	views, err := h.queries.List(context.Background(), c)
	require.NoError(t, err)
	for _, v := range views {
		if v.RoleID == roleID {
			return v, true
		}
	}
	return RoleView{}, false
}
