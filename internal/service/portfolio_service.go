package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/storage"
)

// Archiver keeps a copy of a user's portfolio history outside the database.
type Archiver interface {
	Save(ctx context.Context, userID int64, history []domain.Portfolio) (string, error)
	List(ctx context.Context, userID int64) ([]storage.ArchiveEntry, error)
}

// PortfolioService scopes portfolio CRUD to the authenticated user.
// actorID is the caller, userID the owner named in the request.
type PortfolioService interface {
	Create(ctx context.Context, actorID int64, portfolioJSON json.RawMessage, riskProfile string) (*domain.Portfolio, error)
	Latest(ctx context.Context, actorID, userID int64) (*domain.Portfolio, error)
	History(ctx context.Context, actorID, userID int64) ([]domain.Portfolio, error)
	// Update rewrites the most recently created portfolio of the user.
	Update(ctx context.Context, actorID, userID int64, portfolioJSON json.RawMessage, riskProfile string) (*domain.Portfolio, error)
	// Delete removes every portfolio of the user and returns how many rows went away.
	Delete(ctx context.Context, actorID, userID int64) (int64, error)
	Archives(ctx context.Context, actorID, userID int64) ([]storage.ArchiveEntry, error)
}

type portfolioService struct {
	portfolios repository.PortfolioRepository
	archive    Archiver
	logger     logrus.FieldLogger
}

// NewPortfolioService builds the service. archive may be nil, which disables archiving.
func NewPortfolioService(portfolios repository.PortfolioRepository, archive Archiver, logger logrus.FieldLogger) PortfolioService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &portfolioService{
		portfolios: portfolios,
		archive:    archive,
		logger:     logger,
	}
}

func (s *portfolioService) Create(ctx context.Context, actorID int64, portfolioJSON json.RawMessage, riskProfile string) (*domain.Portfolio, error) {
	riskProfile = strings.TrimSpace(riskProfile)
	if isEmptyJSON(portfolioJSON) || riskProfile == "" {
		return nil, validationError("Portfolio JSON and risk profile are required", "portfolioJSON", "riskProfile")
	}
	if !json.Valid(portfolioJSON) {
		return nil, validationError("Portfolio JSON must be valid JSON", "portfolioJSON")
	}

	portfolio := &domain.Portfolio{
		UserID:        actorID,
		PortfolioJSON: portfolioJSON,
		RiskProfile:   riskProfile,
	}
	if _, err := s.portfolios.Create(ctx, portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

func (s *portfolioService) Latest(ctx context.Context, actorID, userID int64) (*domain.Portfolio, error) {
	if err := authorizeOwner(actorID, userID); err != nil {
		return nil, err
	}
	portfolio, err := s.portfolios.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("Portfolio not found")
		}
		return nil, err
	}
	return portfolio, nil
}

func (s *portfolioService) History(ctx context.Context, actorID, userID int64) ([]domain.Portfolio, error) {
	if err := authorizeOwner(actorID, userID); err != nil {
		return nil, err
	}
	history, err := s.portfolios.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, notFoundError("No portfolio history found for this user")
	}
	return history, nil
}

func (s *portfolioService) Update(ctx context.Context, actorID, userID int64, portfolioJSON json.RawMessage, riskProfile string) (*domain.Portfolio, error) {
	if err := authorizeOwner(actorID, userID); err != nil {
		return nil, err
	}
	riskProfile = strings.TrimSpace(riskProfile)
	if isEmptyJSON(portfolioJSON) || riskProfile == "" {
		return nil, validationError("Updated portfolio JSON and risk profile are required", "updatedPortfolioJSON", "riskProfile")
	}
	if !json.Valid(portfolioJSON) {
		return nil, validationError("Updated portfolio JSON must be valid JSON", "updatedPortfolioJSON")
	}

	latest, err := s.portfolios.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("Portfolio not found for this user")
		}
		return nil, err
	}

	updated, err := s.portfolios.Update(ctx, latest.ID, portfolioJSON, riskProfile)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("Portfolio not found for this user")
		}
		return nil, err
	}
	return updated, nil
}

func (s *portfolioService) Delete(ctx context.Context, actorID, userID int64) (int64, error) {
	if err := authorizeOwner(actorID, userID); err != nil {
		return 0, err
	}

	var (
		deleted int64
		err     error
	)
	if s.archive != nil {
		deleted, err = s.archiveAndDelete(ctx, userID)
	} else {
		deleted, err = s.portfolios.DeleteByUser(ctx, userID)
	}
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, notFoundError("No portfolios found for this user to delete")
	}
	return deleted, nil
}

// archiveAndDelete snapshots the history and removes only the rows in the snapshot,
// so a portfolio created meanwhile survives until the next delete.
func (s *portfolioService) archiveAndDelete(ctx context.Context, userID int64) (int64, error) {
	history, err := s.portfolios.History(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, nil
	}
	var lastID int64
	for _, p := range history {
		lastID = max(lastID, p.ID)
	}

	location, err := s.archive.Save(ctx, userID, history)
	if err != nil {
		return 0, fmt.Errorf("archive portfolios of user %d: %w", userID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"count":    len(history),
		"location": location,
	}).Info("portfolio history archived")

	return s.portfolios.DeleteByUserThrough(ctx, userID, lastID)
}

func (s *portfolioService) Archives(ctx context.Context, actorID, userID int64) ([]storage.ArchiveEntry, error) {
	if err := authorizeOwner(actorID, userID); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return []storage.ArchiveEntry{}, nil
	}
	entries, err := s.archive.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list archives of user %d: %w", userID, err)
	}
	return entries, nil
}

func authorizeOwner(actorID, userID int64) error {
	if actorID != userID {
		return forbiddenError("You can only access your own portfolios")
	}
	return nil
}

// isEmptyJSON treats absent, null and blank-string blobs as missing.
func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var text string
	if trimmed[0] == '"' && json.Unmarshal(trimmed, &text) == nil {
		return strings.TrimSpace(text) == ""
	}
	return false
}
