package memory

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type accountRepo struct{ h handle }

func (r *accountRepo) Create(_ context.Context, a *models.Account) error {
	return r.h.write(func(s *state) error {
		for _, existing := range s.accounts {
			if existing.v.LoginID == a.LoginID {
				return common.ErrLoginIDTaken
			}
		}
		s.accounts[a.ID] = row[models.Account]{n: s.next(), v: *a}
		return nil
	})
}

func (r *accountRepo) GetByLoginID(_ context.Context, loginID string) (*models.Account, error) {
	var out *models.Account
	err := r.h.read(func(s *state) error {
		found := s.accounts.filter(func(a models.Account) bool { return a.LoginID == loginID })
		if len(found) == 0 {
			return common.ErrorNotFound
		}
		out = found[0]
		return nil
	})
	return out, err
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	var out *models.Account
	err := r.h.read(func(s *state) error {
		a, ok := s.accounts[id]
		if !ok {
			return common.ErrorNotFound
		}
		v := a.v
		out = &v
		return nil
	})
	return out, err
}

func (r *accountRepo) update(id string, fn func(*models.Account)) error {
	return r.h.write(func(s *state) error {
		a, ok := s.accounts[id]
		if !ok {
			return common.ErrorNotFound
		}
		fn(&a.v)
		s.accounts[id] = a
		return nil
	})
}

func (r *accountRepo) UpdateLoginState(_ context.Context, id string, st models.AccountState, failedCount int, lockedUntil *time.Time, now time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.State = st
		a.FailedLoginCount = failedCount
		a.LockedUntilUTC = nil
		if lockedUntil != nil {
			t := *lockedUntil
			a.LockedUntilUTC = &t
		}
		a.UpdatedUTC = now
	})
}

func (r *accountRepo) UpdateVerifier(_ context.Context, id string, verifier []byte, now time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.StoredVerifier = append([]byte(nil), verifier...)
		a.UpdatedUTC = now
	})
}

type sessionRepo struct{ h handle }

func (r *sessionRepo) Create(_ context.Context, sess *models.Session) error {
	return r.h.write(func(s *state) error {
		s.sessions[sess.ID] = row[models.Session]{n: s.next(), v: *sess}
		return nil
	})
}

func (r *sessionRepo) GetByTokenHash(_ context.Context, tokenHash []byte) (*models.Session, error) {
	var out *models.Session
	err := r.h.read(func(s *state) error {
		found := s.sessions.filter(func(v models.Session) bool { return string(v.TokenHash) == string(tokenHash) })
		if len(found) == 0 {
			return common.ErrorNotFound
		}
		out = found[0]
		return nil
	})
	return out, err
}

func (r *sessionRepo) update(id string, activeOnly bool, fn func(*models.Session)) error {
	return r.h.write(func(s *state) error {
		sess, ok := s.sessions[id]
		if !ok || (activeOnly && sess.v.RevokedUTC != nil) {
			return common.ErrorNotFound
		}
		fn(&sess.v)
		s.sessions[id] = sess
		return nil
	})
}

func (r *sessionRepo) Touch(_ context.Context, id string, now time.Time) error {
	return r.update(id, false, func(s *models.Session) { s.LastSeenUTC = now })
}

func (r *sessionRepo) SetSecureMode(_ context.Context, id string, secure bool) error {
	return r.update(id, true, func(s *models.Session) { s.SecureMode = secure })
}

func (r *sessionRepo) Revoke(_ context.Context, id string, now time.Time) error {
	return r.update(id, true, func(s *models.Session) { t := now; s.RevokedUTC = &t })
}

func (r *sessionRepo) RevokeAllForAccount(_ context.Context, accountID string, now time.Time) ([]string, error) {
	var ids []string
	err := r.h.write(func(s *state) error {
		active := s.sessions.filter(func(v models.Session) bool { return v.AccountID == accountID && v.RevokedUTC == nil })
		for _, sess := range active {
			stored := s.sessions[sess.ID]
			t := now
			stored.v.RevokedUTC = &t
			s.sessions[sess.ID] = stored
			ids = append(ids, sess.ID)
		}
		return nil
	})
	return ids, err
}
