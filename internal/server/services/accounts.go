package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/cryptox"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/auth"
	"github.com/minmer/recreatio-sub002/internal/server/config"
	"github.com/minmer/recreatio-sub002/internal/server/keyring"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/sessioncache"
)

// MaxLoginIDLength is the longest accepted login id, in characters.
const MaxLoginIDLength = 256

// anonymousActor is the ledger actor for attempts on unknown login ids.
const anonymousActor = "anonymous"

type RegisterRequest struct {
	LoginID     string
	UserSalt    []byte
	H3          []byte
	DisplayName string
}

type LoginRequest struct {
	LoginID    string
	H3         []byte
	SecureMode bool
	DeviceInfo string
}

// LoginResult is returned on a successful login. SessionID is the raw,
// unguessable session id; AccessToken carries it for later requests.
type LoginResult struct {
	AccountID   string
	SessionID   string
	SecureMode  bool
	AccessToken string
}

// AccountService handles registration, login, logout, password changes and
// session checks. Master keys live only in memory: per request, or in the
// session cache for sessions outside secure mode.
type AccountService struct {
	base
	cache            *sessioncache.Cache
	jwtSecret        []byte
	tokenValidity    time.Duration
	lockoutThreshold int
	lockoutDuration  time.Duration
}

func NewAccountService(st Storage, cache *sessioncache.Cache, cfg *config.Config, log logging.Logger) *AccountService {
	threshold := cfg.LockoutThreshold
	if threshold < 1 {
		threshold = 1
	}
	return &AccountService{
		base:             newBase(st, log.With("service", "accounts")),
		cache:            cache,
		jwtSecret:        []byte(cfg.SecretKey),
		tokenValidity:    cfg.AccessTokenValidityDuration,
		lockoutThreshold: threshold,
		lockoutDuration:  cfg.LockoutDuration,
	}
}

// normalizeLoginID trims id and checks its length. Login ids are case-sensitive.
func normalizeLoginID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || utf8.RuneCountInString(id) > MaxLoginIDLength {
		return "", common.ErrInvalidLoginID
	}
	return id, nil
}

func checkSecret(h3 []byte) error {
	if len(h3) != common.SecretSize {
		return common.ErrInvalidSecret
	}
	return nil
}

func verifierMatches(stored, h3 []byte) bool {
	return subtle.ConstantTimeCompare(stored, cryptox.HashVerifier(h3)) == 1
}

func hashSessionID(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// Register creates the account, its master role and a nick field holding the
// display name. Invalid or taken login ids are rejected before any key
// material is generated.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	loginID, err := normalizeLoginID(req.LoginID)
	if err != nil {
		return "", err
	}
	if err := checkSecret(req.H3); err != nil {
		return "", err
	}
	if len(req.UserSalt) == 0 {
		return "", fmt.Errorf("%w: empty salt", common.ErrInvalidInput)
	}
	_, err = s.st.Repos.Accounts(s.st.DB).GetByLoginID(ctx, loginID)
	switch {
	case err == nil:
		return "", common.ErrLoginIDTaken
	case !errors.Is(err, common.ErrorNotFound):
		return "", err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = loginID
	}

	now := s.now()
	accountID, masterRoleID := newID(), newID()
	masterKey, err := cryptox.DeriveMasterKey(req.H3, accountID)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(masterKey)

	role, keys, secrets, err := newRole(masterRoleID, models.RoleTypeMaster, displayName, masterKey, now)
	if err != nil {
		return "", err
	}
	account := &models.Account{
		ID:             accountID,
		LoginID:        loginID,
		UserSalt:       req.UserSalt,
		StoredVerifier: cryptox.HashVerifier(req.H3),
		State:          models.AccountActive,
		MasterRoleID:   masterRoleID,
		CreatedUTC:     now,
		UpdatedUTC:     now,
	}

	err = s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.st.Repos.Roles(tx).Create(ctx, role); err != nil {
			return err
		}
		if err := s.st.Repos.Accounts(tx).Create(ctx, account); err != nil {
			return err
		}
		if err := s.st.Repos.Memberships(tx).Create(ctx, &models.Membership{
			AccountID: accountID, RoleID: masterRoleID, RelationshipType: models.RelationshipOwner, CreatedUTC: now,
		}); err != nil {
			return err
		}
		nick, err := createField(ctx, s.st.Repos, tx, masterRoleID, keys.Read, models.FieldTypeNick, displayName, now)
		if err != nil {
			return err
		}

		signer := &ledger.Signer{RoleID: masterRoleID, PrivateKey: secrets.SigningPrivateKey}
		_, err = s.ledger.Append(ctx, tx,
			ledger.Event{Chain: models.ChainAuth, Type: ledger.EventRegistrationCreated, Actor: accountID,
				Payload: map[string]string{"accountId": accountID, "loginId": loginID}, Signer: signer},
			ledger.Event{Chain: models.ChainKey, Type: ledger.EventMasterRoleCreated, Actor: accountID,
				Payload: map[string]string{"roleId": masterRoleID}, Signer: signer},
			ledger.Event{Chain: models.ChainKey, Type: ledger.EventDataKeyCreated, Actor: accountID,
				Payload: map[string]string{"roleId": masterRoleID, "keyEntryId": nick.DataKeyID}, Signer: signer},
		)
		return err
	})
	if err != nil {
		return "", err
	}

	s.log.Info(ctx, "account registered", "account_id", accountID)
	return accountID, nil
}

// GetSalt returns the salt the client needs to derive H3.
func (s *AccountService) GetSalt(ctx context.Context, loginID string) ([]byte, error) {
	id, err := normalizeLoginID(loginID)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	a, err := s.st.Repos.Accounts(s.st.DB).GetByLoginID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.UserSalt, nil
}

// CheckAvailability reports whether loginID can be registered. It never fails:
// malformed ids and lookup errors are reported as unavailable.
func (s *AccountService) CheckAvailability(ctx context.Context, loginID string) bool {
	id, err := normalizeLoginID(loginID)
	if err != nil {
		return false
	}
	_, err = s.st.Repos.Accounts(s.st.DB).GetByLoginID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return true
	}
	if err != nil {
		s.log.Error(ctx, "availability lookup failed", "error", err)
	}
	return false
}

// loginOutcome is what the login transaction decided. ok is false for a
// failed attempt, whose reason goes to the log.
type loginOutcome struct {
	ok           bool
	reason       string
	accountID    string
	sessionRowID string
	rawSession   string
	secureMode   bool
	masterKey    []byte
	// evicted lists sessions revoked by a lockout; their cached keys go.
	evicted []string
}

// Login checks H3 against the stored verifier. Every failure is returned as
// common.ErrInvalidCredentials; the reason only reaches the log and the
// ledger. Failed attempts are committed even though the call fails.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var out loginOutcome
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = s.login(ctx, tx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			s.log.Error(ctx, "master role failed integrity check", "login_id", req.LoginID, "error", err)
		}
		return nil, err
	}
	for _, id := range out.evicted {
		s.cache.Remove(id)
	}
	if !out.ok {
		s.log.Warn(ctx, "login failed", "login_id", req.LoginID, "reason", out.reason)
		return nil, common.ErrInvalidCredentials
	}

	if !out.secureMode {
		s.cache.Set(out.sessionRowID, out.masterKey)
	}
	common.WipeByteArray(out.masterKey)

	token, err := auth.GenerateToken(auth.Identity{AccountID: out.accountID, SessionID: out.rawSession}, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return nil, common.ErrorInternal
	}
	s.log.Info(ctx, "login succeeded", "account_id", out.accountID, "secure_mode", out.secureMode)
	return &LoginResult{AccountID: out.accountID, SessionID: out.rawSession, SecureMode: out.secureMode, AccessToken: token}, nil
}

// login runs inside the transaction. A failed attempt returns a nil error so
// its state change and ledger entries commit.
func (s *AccountService) login(ctx context.Context, tx dbx.DBTX, req LoginRequest) (loginOutcome, error) {
	now := s.now()
	accounts := s.st.Repos.Accounts(tx)

	fail := func(actor, reason string, extra ...ledger.Event) (loginOutcome, error) {
		events := append(extra, ledger.Event{Chain: models.ChainAuth, Type: ledger.EventLoginFailed, Actor: actor,
			Payload: map[string]string{"loginId": req.LoginID, "reason": reason}})
		if _, err := s.ledger.Append(ctx, tx, events...); err != nil {
			return loginOutcome{}, err
		}
		return loginOutcome{reason: reason}, nil
	}

	loginID, err := normalizeLoginID(req.LoginID)
	if err != nil {
		return fail(anonymousActor, "malformed login id")
	}
	account, err := accounts.GetByLoginID(ctx, loginID)
	if errors.Is(err, common.ErrorNotFound) {
		return fail(anonymousActor, "unknown login id")
	}
	if err != nil {
		return loginOutcome{}, err
	}

	if account.State == models.AccountLocked {
		if account.LockedUntilUTC != nil && now.Before(*account.LockedUntilUTC) {
			return fail(account.ID, "account locked")
		}
		if err := accounts.UpdateLoginState(ctx, account.ID, models.AccountActive, 0, nil, now); err != nil {
			return loginOutcome{}, err
		}
		account.State, account.FailedLoginCount, account.LockedUntilUTC = models.AccountActive, 0, nil
	}
	if account.State != models.AccountActive {
		return fail(account.ID, "account "+string(account.State))
	}
	if err := checkSecret(req.H3); err != nil {
		return fail(account.ID, "malformed secret")
	}

	if !verifierMatches(account.StoredVerifier, req.H3) {
		failed := account.FailedLoginCount + 1
		if failed >= s.lockoutThreshold {
			until := now.Add(s.lockoutDuration)
			if err := accounts.UpdateLoginState(ctx, account.ID, models.AccountLocked, failed, &until, now); err != nil {
				return loginOutcome{}, err
			}
			// A locked account keeps no live session.
			revoked, err := s.st.Repos.Sessions(tx).RevokeAllForAccount(ctx, account.ID, now)
			if err != nil {
				return loginOutcome{}, err
			}
			out, err := fail(account.ID, "verifier mismatch", ledger.Event{Chain: models.ChainAuth, Type: ledger.EventAccountLocked,
				Actor: account.ID, Payload: map[string]any{"failedCount": failed, "lockedUntilUtc": until, "revokedSessions": len(revoked)}})
			out.evicted = revoked
			return out, err
		}
		if err := accounts.UpdateLoginState(ctx, account.ID, models.AccountActive, failed, nil, now); err != nil {
			return loginOutcome{}, err
		}
		return fail(account.ID, "verifier mismatch")
	}

	if account.FailedLoginCount != 0 {
		if err := accounts.UpdateLoginState(ctx, account.ID, models.AccountActive, 0, nil, now); err != nil {
			return loginOutcome{}, err
		}
	}

	masterKey, err := cryptox.DeriveMasterKey(req.H3, account.ID)
	if err != nil {
		return loginOutcome{}, err
	}
	role, err := s.st.Repos.Roles(tx).GetByID(ctx, account.MasterRoleID)
	if err != nil {
		common.WipeByteArray(masterKey)
		return loginOutcome{}, fmt.Errorf("%w: master role: %v", common.ErrIntegrity, err)
	}
	master, err := openMasterRole(role, masterKey)
	if err != nil {
		common.WipeByteArray(masterKey)
		return loginOutcome{}, err
	}

	rawSessionID, err := common.MakeRandURLString(32)
	if err != nil {
		common.WipeByteArray(masterKey)
		return loginOutcome{}, err
	}
	sess := &models.Session{
		ID:          newID(),
		AccountID:   account.ID,
		TokenHash:   hashSessionID(rawSessionID),
		SecureMode:  req.SecureMode,
		DeviceInfo:  req.DeviceInfo,
		CreatedUTC:  now,
		LastSeenUTC: now,
	}
	if err := s.st.Repos.Sessions(tx).Create(ctx, sess); err != nil {
		common.WipeByteArray(masterKey)
		return loginOutcome{}, err
	}

	_, err = s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainAuth, Type: ledger.EventLoginSuccess, Actor: account.ID,
		Payload: map[string]any{"sessionId": sess.ID, "secureMode": req.SecureMode},
		Signer:  &ledger.Signer{RoleID: account.MasterRoleID, PrivateKey: master.SigningPrivateKey}})
	if err != nil {
		common.WipeByteArray(masterKey)
		return loginOutcome{}, err
	}

	return loginOutcome{
		ok:           true,
		accountID:    account.ID,
		sessionRowID: sess.ID,
		rawSession:   rawSessionID,
		secureMode:   req.SecureMode,
		masterKey:    masterKey,
	}, nil
}

// RequireSession resolves a token identity to a live session.
func (s *AccountService) RequireSession(ctx context.Context, id auth.Identity) (*Caller, error) {
	sess, err := s.st.Repos.Sessions(s.st.DB).GetByTokenHash(ctx, hashSessionID(id.SessionID))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrSessionRevoked
	}
	if err != nil {
		return nil, err
	}
	if sess.AccountID != id.AccountID {
		return nil, common.ErrInvalidToken
	}
	if !sess.Active() {
		return nil, common.ErrSessionRevoked
	}

	account, err := s.st.Repos.Accounts(s.st.DB).GetByID(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if account.State == models.AccountDisabled || account.State == models.AccountDeleted {
		return nil, common.ErrorUnauthorized
	}
	if account.State == models.AccountLocked && account.LockedUntilUTC != nil && s.now().Before(*account.LockedUntilUTC) {
		return nil, common.ErrorUnauthorized
	}

	if err := s.st.Repos.Sessions(s.st.DB).Touch(ctx, sess.ID, s.now()); err != nil {
		s.log.Warn(ctx, "session touch failed", "session_id", sess.ID, "error", err)
	}
	return &Caller{AccountID: account.ID, MasterRoleID: account.MasterRoleID, SessionID: sess.ID, SecureMode: sess.SecureMode}, nil
}

// MasterKey returns the caller's master key: from the cache outside secure
// mode, otherwise derived from h3 after checking it against the verifier.
func (s *AccountService) MasterKey(ctx context.Context, c *Caller, h3 []byte) ([]byte, error) {
	if !c.SecureMode {
		if key, ok := s.cache.Get(c.SessionID); ok {
			return key, nil
		}
	}
	if h3 == nil {
		return nil, common.ErrMasterKeyUnavailable
	}
	if err := checkSecret(h3); err != nil {
		return nil, err
	}

	account, err := s.st.Repos.Accounts(s.st.DB).GetByID(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	if !verifierMatches(account.StoredVerifier, h3) {
		s.log.Warn(ctx, "per-request secret rejected", "account_id", c.AccountID)
		return nil, common.ErrInvalidCredentials
	}
	key, err := cryptox.DeriveMasterKey(h3, account.ID)
	if err != nil {
		return nil, err
	}
	if !c.SecureMode {
		s.cache.Set(c.SessionID, key)
	}
	return key, nil
}

// Authenticate parses an access token and loads its session. The master key
// is attached when it is available; its absence is not an error here.
func (s *AccountService) Authenticate(ctx context.Context, token string, h3 []byte) (*Caller, error) {
	id, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	c, err := s.RequireSession(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := s.MasterKey(ctx, c, h3)
	switch {
	case err == nil:
		c.MasterKey = key
	case !errors.Is(err, common.ErrMasterKeyUnavailable):
		return nil, err
	}
	return c, nil
}

// sessionSigner signs as the master role when the caller's key is at hand.
func (s *AccountService) sessionSigner(ctx context.Context, tx dbx.DBTX, c *Caller) *ledger.Signer {
	if c.requireKey() != nil {
		return nil
	}
	role, err := s.st.Repos.Roles(tx).GetByID(ctx, c.MasterRoleID)
	if err != nil {
		return nil
	}
	master, err := openMasterRole(role, c.MasterKey)
	if err != nil {
		return nil
	}
	return &ledger.Signer{RoleID: c.MasterRoleID, PrivateKey: master.SigningPrivateKey}
}

func (s *AccountService) Logout(ctx context.Context, c *Caller) error {
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.st.Repos.Sessions(tx).Revoke(ctx, c.SessionID, s.now()); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrSessionRevoked
			}
			return err
		}
		_, err := s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainAuth, Type: ledger.EventLogout, Actor: c.AccountID,
			Payload: map[string]string{"sessionId": c.SessionID}, Signer: s.sessionSigner(ctx, tx, c)})
		return err
	})
	s.cache.Remove(c.SessionID)
	return err
}

// ChangePassword re-encrypts the master role blob under the key derived from
// newH3, replaces the verifier and revokes every session of the account.
func (s *AccountService) ChangePassword(ctx context.Context, c *Caller, oldH3, newH3 []byte) error {
	if checkSecret(oldH3) != nil || checkSecret(newH3) != nil {
		return common.ErrInvalidSecret
	}

	var revoked []string
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.st.Repos.Accounts(tx).GetByID(ctx, c.AccountID)
		if err != nil {
			return err
		}
		if !verifierMatches(account.StoredVerifier, oldH3) {
			return common.ErrInvalidCredentials
		}

		oldKey, err := cryptox.DeriveMasterKey(oldH3, account.ID)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(oldKey)
		role, err := s.st.Repos.Roles(tx).GetByID(ctx, account.MasterRoleID)
		if err != nil {
			return fmt.Errorf("%w: master role: %v", common.ErrIntegrity, err)
		}
		master, err := openMasterRole(role, oldKey)
		if err != nil {
			return err
		}

		newKey, err := cryptox.DeriveMasterKey(newH3, account.ID)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(newKey)
		blob, err := cryptox.EncryptJSON(master, newKey, keyring.RoleAAD(role.ID))
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.st.Repos.Roles(tx).UpdateBlob(ctx, role.ID, blob, now); err != nil {
			return err
		}
		if err := s.st.Repos.Accounts(tx).UpdateVerifier(ctx, account.ID, cryptox.HashVerifier(newH3), now); err != nil {
			return err
		}
		revoked, err = s.st.Repos.Sessions(tx).RevokeAllForAccount(ctx, account.ID, now)
		if err != nil {
			return err
		}

		signer := &ledger.Signer{RoleID: role.ID, PrivateKey: master.SigningPrivateKey}
		_, err = s.ledger.Append(ctx, tx,
			ledger.Event{Chain: models.ChainAuth, Type: ledger.EventPasswordChanged, Actor: account.ID,
				Payload: map[string]int{"revokedSessions": len(revoked)}, Signer: signer},
			ledger.Event{Chain: models.ChainKey, Type: ledger.EventMasterRoleReEncrypted, Actor: account.ID,
				Payload: map[string]string{"roleId": role.ID}, Signer: signer},
		)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			s.log.Warn(ctx, "password change rejected", "account_id", c.AccountID)
		}
		return err
	}

	for _, id := range revoked {
		s.cache.Remove(id)
	}
	s.cache.Remove(c.SessionID)
	s.log.Info(ctx, "password changed", "account_id", c.AccountID, "revoked_sessions", len(revoked))
	return nil
}

// SetSecureMode toggles the key cache for the caller's session. Enabling it
// drops the cached key; disabling it caches the key when the request has one.
func (s *AccountService) SetSecureMode(ctx context.Context, c *Caller, secure bool) error {
	err := s.st.Tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.st.Repos.Sessions(tx).SetSecureMode(ctx, c.SessionID, secure); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrSessionRevoked
			}
			return err
		}
		_, err := s.ledger.Append(ctx, tx, ledger.Event{Chain: models.ChainAuth, Type: ledger.EventSecureModeChanged, Actor: c.AccountID,
			Payload: map[string]any{"sessionId": c.SessionID, "secureMode": secure}, Signer: s.sessionSigner(ctx, tx, c)})
		return err
	})
	if err != nil {
		return err
	}

	c.SecureMode = secure
	if secure {
		s.cache.Remove(c.SessionID)
	} else if len(c.MasterKey) > 0 {
		s.cache.Set(c.SessionID, c.MasterKey)
	}
	return nil
}
