package repository

import (
	"context"
	"encoding/json"

	"portfolio-advisor/internal/domain"
)

// PortfolioRepository exposes persistence operations for portfolio history.
type PortfolioRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, portfolio *domain.Portfolio) (int64, error)
	// Latest returns the most recently created portfolio of the user.
	Latest(ctx context.Context, userID int64) (*domain.Portfolio, error)
	// History returns every portfolio of the user, oldest first.
	History(ctx context.Context, userID int64) ([]domain.Portfolio, error)
	Update(ctx context.Context, id int64, portfolioJSON json.RawMessage, riskProfile string) (*domain.Portfolio, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
	// DeleteByUserThrough removes the user's portfolios with id <= lastID.
	DeleteByUserThrough(ctx context.Context, userID, lastID int64) (int64, error)
}
