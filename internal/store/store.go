// Package store is the relational persistence layer for users, profiles and
// the single-use verification/reset tokens. Every "active" lookup excludes
// soft-deleted users.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AnshRaj112/serenify-auth/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique constraint
	// (duplicate email or Google id).
	ErrConflict = errors.New("already exists")
)

type Users interface {
	FindActiveUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindActiveUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindActiveUserByProviderID(ctx context.Context, providerID string) (*models.User, error)
	// CreateUserWithProfile inserts both rows atomically.
	CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error
	UpdateUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error)
	SoftDeleteUser(ctx context.Context, id uuid.UUID) error
}

type Profiles interface {
	InsertProfile(ctx context.Context, profile *models.Profile) error
	FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch models.ProfilePatch) (*models.Profile, error)
}

type VerificationTokens interface {
	InsertVerificationToken(ctx context.Context, t *models.EmailVerificationToken) error
	FindVerificationToken(ctx context.Context, token string) (*models.EmailVerificationToken, error)
	// DeleteVerificationToken reports whether this call removed the row.
	DeleteVerificationToken(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error)
}

type PasswordResetTokens interface {
	InsertPasswordResetToken(ctx context.Context, t *models.PasswordResetToken) error
	FindPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	DeletePasswordResetToken(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenRegistry tracks which refresh token ids a user may still
// redeem. It backs revocation for the token service.
type RefreshTokenRegistry interface {
	// AddRefreshToken records tokenID, keeping at most keep ids (oldest dropped).
	AddRefreshToken(ctx context.Context, userID uuid.UUID, tokenID string, keep int) error
	RemoveRefreshToken(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error)
	HasRefreshToken(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error)
	ClearRefreshTokens(ctx context.Context, userID uuid.UUID) error
}

// Store is everything the auth flows need from the database.
type Store interface {
	Users
	Profiles
	VerificationTokens
	PasswordResetTokens
	RefreshTokenRegistry
}
