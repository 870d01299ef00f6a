package metadata

import (
	"context"
	"database/sql"
	"errors"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/dbx"
)

const (
	keyLoginID     = "login_id"
	keySalt        = "salt"
	keyAccessToken = "access_token"
	keySecureMode  = "secure_mode"
)

// Session is what the CLI remembers between invocations. The H3 secret is
// never stored; secure sessions prompt for the password on every command.
type Session struct {
	LoginID     string
	Salt        []byte
	AccessToken string
	SecureMode  bool
}

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save replaces the stored session in one transaction.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		secure := []byte{0}
		if sess.SecureMode {
			secure = []byte{1}
		}
		return NewSQLiteRepository(tx).Put(ctx, map[string][]byte{
			keyLoginID:     []byte(sess.LoginID),
			keySalt:        sess.Salt,
			keyAccessToken: []byte(sess.AccessToken),
			keySecureMode:  secure,
		})
	})
}

// Load returns the stored session, or common.ErrorNotFound when there is
// none.
func (s *SessionStore) Load(ctx context.Context) (*Session, error) {
	repo := NewSQLiteRepository(s.db)
	values, err := repo.All(ctx)
	if err != nil {
		return nil, err
	}
	token, ok := values[keyAccessToken]
	if !ok || len(token) == 0 {
		return nil, common.ErrorNotFound
	}
	secure := values[keySecureMode]
	return &Session{
		LoginID:     string(values[keyLoginID]),
		Salt:        values[keySalt],
		AccessToken: string(token),
		SecureMode:  len(secure) == 1 && secure[0] == 1,
	}, nil
}

// Clear forgets the token but keeps the login id and salt, so the next login
// can skip GetSalt.
func (s *SessionStore) Clear(ctx context.Context) error {
	return NewSQLiteRepository(s.db).Delete(ctx, keyAccessToken, keySecureMode)
}

// Salt returns the remembered salt for loginID.
func (s *SessionStore) Salt(ctx context.Context, loginID string) ([]byte, error) {
	repo := NewSQLiteRepository(s.db)
	saved, err := repo.Get(ctx, keyLoginID)
	if err != nil {
		return nil, err
	}
	if string(saved) != loginID {
		return nil, common.ErrorNotFound
	}
	salt, err := repo.Get(ctx, keySalt)
	if errors.Is(err, common.ErrorNotFound) || (err == nil && len(salt) == 0) {
		return nil, common.ErrorNotFound
	}
	return salt, err
}
