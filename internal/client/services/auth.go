// Package services contains the CLI's application services. The session
// service turns passwords into H3 secrets, keeps the access token in the
// local database and restores it for every command.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/minmer/recreatio-sub002/internal/api"
	"github.com/minmer/recreatio-sub002/internal/client/client"
	"github.com/minmer/recreatio-sub002/internal/client/repositories/metadata"
	"github.com/minmer/recreatio-sub002/internal/common"
)

// Client is the part of the vault API the CLI uses.
type Client interface {
	Register(ctx context.Context, loginID string, salt, h3 []byte, displayName string) (string, error)
	GetSalt(ctx context.Context, loginID string) ([]byte, error)
	Login(ctx context.Context, loginID string, h3 []byte, secure bool, device string) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, oldH3, newH3 []byte) error
	SetSecureMode(ctx context.Context, enabled bool) error
	VerifyLedger(ctx context.Context, chain, roleID string) (*api.LedgerSummary, error)
	ExportLedger(ctx context.Context, chain string) (*api.ExportLedgerResponse, error)
	ListRoles(ctx context.Context) ([]api.RoleView, error)
	SetSession(accessToken string, secret []byte)
	Close() error
}

// DeviceInfo is reported to the server on login.
const DeviceInfo = "recreatio-cli"

type SessionService struct {
	client  Client
	store   *metadata.SessionStore
	http    *http.Client
	dataDir string
}

func NewSessionService(c Client, store *metadata.SessionStore, dataDir string) *SessionService {
	return &SessionService{client: c, store: store, http: http.DefaultClient, dataDir: dataDir}
}

// Register creates the account with a fresh salt. It does not log in.
func (s *SessionService) Register(ctx context.Context, loginID, displayName string, password []byte) (string, error) {
	salt := client.NewSalt()
	h3 := client.DeriveH3(password, salt)
	defer common.WipeByteArray(h3)

	id, err := s.client.Register(ctx, loginID, salt, h3, displayName)
	if err != nil {
		return "", fmt.Errorf("register error: %w", err)
	}
	return id, nil
}

// Login opens a session and remembers it. The salt is taken from the local
// database when this login id was used before.
func (s *SessionService) Login(ctx context.Context, loginID string, password []byte, secure bool) (*api.LoginResponse, error) {
	salt, err := s.store.Salt(ctx, loginID)
	if errors.Is(err, common.ErrorNotFound) {
		salt, err = s.client.GetSalt(ctx, loginID)
	}
	if err != nil {
		return nil, fmt.Errorf("get salt error: %w", err)
	}

	h3 := client.DeriveH3(password, salt)
	defer common.WipeByteArray(h3)

	resp, err := s.client.Login(ctx, loginID, h3, secure, DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	err = s.store.Save(ctx, &metadata.Session{
		LoginID:     loginID,
		Salt:        salt,
		AccessToken: resp.AccessToken,
		SecureMode:  resp.SecureMode,
	})
	if err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return resp, nil
}

// Resume installs the stored session on the client. Secure sessions need the
// password to rebuild the H3 secret; without it client.ErrSecretNeeded is
// returned.
func (s *SessionService) Resume(ctx context.Context, password []byte) (*metadata.Session, error) {
	sess, err := s.store.Load(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, client.ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	var secret []byte
	if sess.SecureMode {
		if len(password) == 0 {
			return nil, client.ErrSecretNeeded
		}
		secret = client.DeriveH3(password, sess.Salt)
	}
	s.client.SetSession(sess.AccessToken, secret)
	return sess, nil
}

// NeedsPassword reports whether the stored session is a secure one.
func (s *SessionService) NeedsPassword(ctx context.Context) (bool, error) {
	sess, err := s.store.Load(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return false, client.ErrNoSession
	}
	if err != nil {
		return false, err
	}
	return sess.SecureMode, nil
}

// forget drops the stored token when the server no longer accepts it.
func (s *SessionService) forget(ctx context.Context, err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		if cerr := s.store.Clear(ctx); cerr != nil {
			return errors.Join(err, cerr)
		}
	}
	return err
}

// Logout revokes the session on the server and forgets it locally. A token
// the server already rejects is forgotten as well.
func (s *SessionService) Logout(ctx context.Context) error {
	sess, err := s.store.Load(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return client.ErrNoSession
	}
	if err != nil {
		return err
	}
	// Logout needs only the token, even for secure sessions.
	s.client.SetSession(sess.AccessToken, nil)

	if err := s.client.Logout(ctx); err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("logout error: %w", err)
	}
	return s.store.Clear(ctx)
}

// ChangePassword keeps the salt and re-keys the account. The server revokes
// every session, so the local one is forgotten.
func (s *SessionService) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	sess, err := s.Resume(ctx, oldPassword)
	if err != nil {
		return err
	}

	oldH3 := client.DeriveH3(oldPassword, sess.Salt)
	defer common.WipeByteArray(oldH3)
	newH3 := client.DeriveH3(newPassword, sess.Salt)
	defer common.WipeByteArray(newH3)

	if err := s.client.ChangePassword(ctx, oldH3, newH3); err != nil {
		return fmt.Errorf("change password error: %w", s.forget(ctx, err))
	}
	return s.store.Clear(ctx)
}

// SetSecureMode toggles secure mode for the account. The current session
// keeps its mode; the flag applies to later logins.
func (s *SessionService) SetSecureMode(ctx context.Context, password []byte, enabled bool) error {
	if _, err := s.Resume(ctx, password); err != nil {
		return err
	}
	if err := s.client.SetSecureMode(ctx, enabled); err != nil {
		return fmt.Errorf("secure mode error: %w", s.forget(ctx, err))
	}
	return nil
}

// Roles lists the roles reachable from the account.
func (s *SessionService) Roles(ctx context.Context, password []byte) ([]api.RoleView, error) {
	if _, err := s.Resume(ctx, password); err != nil {
		return nil, err
	}
	roles, err := s.client.ListRoles(ctx)
	if err != nil {
		return nil, s.forget(ctx, err)
	}
	return roles, nil
}

func (s *SessionService) Close() error {
	return s.client.Close()
}
