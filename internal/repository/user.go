package repository

import (
	"context"
	"errors"

	"portfolio-advisor/internal/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a uniqueness constraint is violated.
	ErrAlreadyExists = errors.New("record already exists")
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// SetRefreshToken overwrites the stored refresh token. A nil token clears it.
	SetRefreshToken(ctx context.Context, id int64, token *string) error
	// RotateRefreshToken replaces the stored token with next only if it still equals current.
	RotateRefreshToken(ctx context.Context, id int64, current, next string) (bool, error)
}

// PreferencesRepository manages the investment preference record of a user.
type PreferencesRepository interface {
	Init(ctx context.Context) error
	GetByUserID(ctx context.Context, userID int64) (*domain.InvestmentPreferences, error)
	Upsert(ctx context.Context, prefs *domain.InvestmentPreferences) error
}
