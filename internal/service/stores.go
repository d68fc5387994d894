package service

import (
	"context"
	"time"

	"go-calc-api/internal/model"
)

// Store interfaces are defined on the consumer side so tests can substitute
// in-memory fakes for the pgx-backed repositories.

type UserStore interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByLogin(ctx context.Context, login string) (model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// BlacklistStore is a time-indexed set of revoked token identifiers. Insert
// reports whether the jti was newly added; the single-use refresh guarantee
// rests on that answer being atomic.
type BlacklistStore interface {
	Insert(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	Contains(ctx context.Context, jti string) (bool, error)
	CleanExpired(ctx context.Context) (int64, error)
}

type CalculationStore interface {
	Create(ctx context.Context, c model.Calculation) error
	FindByID(ctx context.Context, userID string, id string) (model.Calculation, error)
	ListByUser(ctx context.Context, userID string) ([]model.Calculation, error)
	Update(ctx context.Context, c model.Calculation) error
	Delete(ctx context.Context, userID string, id string) error
}

// WelcomeNotifier delivers the optional post-registration email. A nil
// notifier disables it.
type WelcomeNotifier interface {
	SendWelcome(user model.User) error
}
