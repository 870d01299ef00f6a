package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/client/client"
	"github.com/minmer/recreatio-sub002/internal/client/config"
	"github.com/minmer/recreatio-sub002/internal/client/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSvc struct {
	needPassword bool
	err          error

	gotLogin    string
	gotName     string
	gotPassword string
	gotSecure   bool
	gotOld      string
	gotChains   []string
	gotRole     string
	gotChain    string
	secureOn    *bool
	loggedOut   bool
	closed      bool

	summaries []*api.LedgerSummary
}

func (f *fakeSvc) Register(_ context.Context, loginID, name string, pw []byte) (string, error) {
	f.gotLogin, f.gotName, f.gotPassword = loginID, name, string(pw)
	return "acc-1", f.err
}

func (f *fakeSvc) Login(_ context.Context, loginID string, pw []byte, secure bool) (*api.LoginResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotLogin, f.gotPassword, f.gotSecure = loginID, string(pw), secure
	return &api.LoginResponse{SessionID: "s-1", SecureMode: secure}, nil
}

func (f *fakeSvc) Logout(context.Context) error {
	f.loggedOut = true
	return f.err
}

func (f *fakeSvc) NeedsPassword(context.Context) (bool, error) {
	return f.needPassword, nil
}

func (f *fakeSvc) ChangePassword(_ context.Context, old, pw []byte) error {
	f.gotOld, f.gotPassword = string(old), string(pw)
	return f.err
}

func (f *fakeSvc) SetSecureMode(_ context.Context, pw []byte, enabled bool) error {
	f.gotPassword = string(pw)
	f.secureOn = &enabled
	return f.err
}

func (f *fakeSvc) Roles(_ context.Context, pw []byte) ([]api.RoleView, error) {
	f.gotPassword = string(pw)
	return []api.RoleView{{RoleID: "r-1", RoleKind: "account", Label: "alice", Relationship: "Owner", CanWrite: true,
		Fields: map[string]string{"nick": "alice", "email": "a@x"}}}, f.err
}

func (f *fakeSvc) Verify(_ context.Context, pw []byte, chains []string, roleID string) ([]*api.LedgerSummary, error) {
	f.gotPassword, f.gotChains, f.gotRole = string(pw), chains, roleID
	return f.summaries, f.err
}

func (f *fakeSvc) Export(_ context.Context, pw []byte, chain string) (*services.ExportResult, error) {
	f.gotPassword, f.gotChain = string(pw), chain
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExportResult{Key: "ledgers/auth/x.jsonl", Entries: 3, Path: "/tmp/auth-x.jsonl"}, nil
}

func (f *fakeSvc) Close() error {
	f.closed = true
	return nil
}

// stubPasswords answers password prompts in order.
func stubPasswords(t *testing.T, pws ...string) {
	t.Helper()
	old := getPassword
	t.Cleanup(func() { getPassword = old })
	i := 0
	getPassword = func(string, io.Writer) ([]byte, error) {
		if i >= len(pws) {
			return nil, errors.New("unexpected prompt")
		}
		i++
		return []byte(pws[i-1]), nil
	}
}

func newTestApp(svc *fakeSvc, input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return &App{config: &config.Config{RequestTimeout: time.Second}, svc: svc, reader: rdr(input), out: &out}, &out
}

func TestRun_UsageAndUnknown(t *testing.T) {
	svc := &fakeSvc{}
	app, out := newTestApp(svc, "")
	require.ErrorIs(t, app.Run(context.Background(), nil), errUsage)
	assert.Contains(t, out.String(), "verify")
	assert.True(t, svc.closed)

	app, _ = newTestApp(&fakeSvc{}, "")
	err := app.Run(context.Background(), []string{"frobnicate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRegister(t *testing.T) {
	stubPasswords(t, "pw", "pw")
	svc := &fakeSvc{}
	app, out := newTestApp(svc, "")

	require.NoError(t, app.Run(context.Background(), []string{"register", "alice", "Alice", "Smith"}))
	assert.Equal(t, "alice", svc.gotLogin)
	assert.Equal(t, "Alice Smith", svc.gotName)
	assert.Equal(t, "pw", svc.gotPassword)
	assert.Contains(t, out.String(), "Registered account acc-1")
}

func TestRegister_PromptsLoginAndChecksRepeat(t *testing.T) {
	stubPasswords(t, "pw", "other")
	svc := &fakeSvc{}
	app, _ := newTestApp(svc, "bob\n")

	err := app.Run(context.Background(), []string{"register"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
	assert.Empty(t, svc.gotLogin)
}

func TestLogin(t *testing.T) {
	stubPasswords(t, "pw")
	svc := &fakeSvc{}
	app, out := newTestApp(svc, "")

	require.NoError(t, app.Run(context.Background(), []string{"login", "-secure", "alice"}))
	assert.Equal(t, "alice", svc.gotLogin)
	assert.True(t, svc.gotSecure)
	assert.Contains(t, out.String(), "secure session s-1")

	stubPasswords(t, "pw")
	svc = &fakeSvc{err: client.ErrUnauthorized}
	app, _ = newTestApp(svc, "")
	require.ErrorIs(t, app.Run(context.Background(), []string{"login", "alice"}), client.ErrUnauthorized)

	app, _ = newTestApp(&fakeSvc{}, "")
	require.ErrorIs(t, app.Run(context.Background(), []string{"login", "-nope"}), errUsage)
}

func TestLogoutAndPasswd(t *testing.T) {
	svc := &fakeSvc{}
	app, out := newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"logout"}))
	assert.True(t, svc.loggedOut)
	assert.Contains(t, out.String(), "Logged out")

	stubPasswords(t, "old", "new", "new")
	svc = &fakeSvc{}
	app, out = newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"passwd"}))
	assert.Equal(t, "old", svc.gotOld)
	assert.Equal(t, "new", svc.gotPassword)
	assert.Contains(t, out.String(), "Log in again")
}

func TestSecure(t *testing.T) {
	svc := &fakeSvc{}
	app, _ := newTestApp(svc, "")
	require.ErrorIs(t, app.Run(context.Background(), []string{"secure", "maybe"}), errUsage)

	app, _ = newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"secure", "on"}))
	require.NotNil(t, svc.secureOn)
	assert.True(t, *svc.secureOn)
	assert.Empty(t, svc.gotPassword, "plain sessions are not asked for the password")

	stubPasswords(t, "pw")
	svc = &fakeSvc{needPassword: true}
	app, _ = newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"secure", "off"}))
	assert.False(t, *svc.secureOn)
	assert.Equal(t, "pw", svc.gotPassword)
}

func TestRoles_PrintsTable(t *testing.T) {
	svc := &fakeSvc{}
	app, out := newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"roles"}))

	s := out.String()
	assert.Contains(t, s, "ROLE")
	assert.Contains(t, s, "r-1")
	assert.Contains(t, s, "email=a@x,nick=alice")
}

func TestVerify(t *testing.T) {
	svc := &fakeSvc{summaries: []*api.LedgerSummary{{Chain: "auth", Total: 4, SignaturesVerified: 3, Unsigned: 1}}}
	app, out := newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"verify", "-role", "r-1", "auth"}))
	assert.Equal(t, []string{"auth"}, svc.gotChains)
	assert.Equal(t, "r-1", svc.gotRole)
	assert.Contains(t, out.String(), "auth")

	svc = &fakeSvc{summaries: []*api.LedgerSummary{{Chain: "key", Total: 2, HashMismatches: 1}}}
	app, _ = newTestApp(svc, "")
	err := app.Run(context.Background(), []string{"verify"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tampered")
	assert.Empty(t, svc.gotChains)
}

func TestExport(t *testing.T) {
	svc := &fakeSvc{}
	app, _ := newTestApp(svc, "")
	require.ErrorIs(t, app.Run(context.Background(), []string{"export"}), errUsage)

	app, out := newTestApp(svc, "")
	require.NoError(t, app.Run(context.Background(), []string{"export", "auth"}))
	assert.Equal(t, "auth", svc.gotChain)
	assert.Contains(t, out.String(), "Exported 3 entries")
	assert.Contains(t, out.String(), "/tmp/auth-x.jsonl")

	svc = &fakeSvc{err: client.ErrSecretNeeded}
	app, _ = newTestApp(svc, "")
	err := app.Run(context.Background(), []string{"export", "auth"})
	require.ErrorIs(t, err, client.ErrSecretNeeded)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "not logged in; run login first", Describe(client.ErrNoSession))
	assert.Equal(t, "server unavailable", Describe(fmt.Errorf("x: %w", client.ErrUnavailable)))
	assert.Equal(t, "permission denied", Describe(client.ErrForbidden))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestNewApp_CreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	app, err := NewApp(context.Background(), &config.Config{ServerEndpointAddr: "127.0.0.1:1", RequestTimeout: time.Second, DataDir: dir})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "cli.db"))

	err = app.Run(context.Background(), []string{"roles"})
	require.ErrorIs(t, err, client.ErrNoSession)
}
