package accounts

import (
	"context"
	"time"

	"github.com/minmer/recreatio-sub002/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByLoginID(ctx context.Context, loginID string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// UpdateLoginState stores the outcome of a login attempt.
	UpdateLoginState(ctx context.Context, id string, state models.AccountState, failedCount int, lockedUntil *time.Time, now time.Time) error
	UpdateVerifier(ctx context.Context, id string, verifier []byte, now time.Time) error
}
