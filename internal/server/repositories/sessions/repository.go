package sessions

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash []byte) (*models.Session, error)
	Touch(ctx context.Context, id string, now time.Time) error
	SetSecureMode(ctx context.Context, id string, secure bool) error
	Revoke(ctx context.Context, id string, now time.Time) error
	// RevokeAllForAccount revokes every active session of the account and
	// returns the ids it revoked.
	RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) ([]string, error)
}
