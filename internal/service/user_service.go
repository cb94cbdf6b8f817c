package service

import (
	"context"
	"errors"
	"strings"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/repository"
)

// Profile is a user together with their investment preferences, which may be nil.
type Profile struct {
	User        *domain.User
	Preferences *domain.InvestmentPreferences
}

// ProfileInput holds optional profile changes; empty values keep the stored value.
type ProfileInput struct {
	Username             string
	Email                string
	Age                  *int
	Location             string
	Occupation           string
	InvestmentExperience string
}

// PreferencesInput holds optional preference changes; empty values keep the stored value.
type PreferencesInput struct {
	GoalType                 string
	TargetAmount             *float64
	TargetYears              *int
	RiskTolerance            string
	VolatilityTolerance      string
	PreferredSectors         []string
	ExcludedSectors          []string
	InitialInvestment        *float64
	LiquidityNeedsPercentage *float64
	PortfolioStyle           string
}

// UserService serves profile reads and updates.
type UserService interface {
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	UpdateDetails(ctx context.Context, userID int64, profile ProfileInput, prefs *PreferencesInput) (*Profile, error)
	// PreferencesByEmail returns nil without error when the user or their preferences do not exist.
	PreferencesByEmail(ctx context.Context, email string) (*domain.InvestmentPreferences, error)
}

type userService struct {
	users repository.UserRepository
	prefs repository.PreferencesRepository
}

func NewUserService(users repository.UserRepository, prefs repository.PreferencesRepository) UserService {
	return &userService{
		users: users,
		prefs: prefs,
	}
}

func (s *userService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("User not found")
		}
		return nil, err
	}
	prefs, err := s.loadPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: sanitizeUser(user), Preferences: prefs}, nil
}

func (s *userService) UpdateDetails(ctx context.Context, userID int64, in ProfileInput, prefsIn *PreferencesInput) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("User not found")
		}
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	if username == user.Username {
		username = ""
	}
	if email == user.Email {
		email = ""
	}
	if err := checkAvailable(ctx, s.users, user.ID, email, username); err != nil {
		return nil, err
	}

	user.Username = keep(username, user.Username)
	user.Email = keep(email, user.Email)
	if in.Age != nil {
		user.Age = in.Age
	}
	user.Location = keep(in.Location, user.Location)
	user.Occupation = keep(in.Occupation, user.Occupation)
	user.InvestmentExperience = keep(in.InvestmentExperience, user.InvestmentExperience)

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, conflictError("A user with the given email address or username already exists.")
		}
		return nil, err
	}

	prefs, err := s.loadPreferences(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if prefsIn != nil {
		if prefs == nil {
			prefs = &domain.InvestmentPreferences{UserID: user.ID}
		}
		mergePreferences(prefs, prefsIn)
		if err := s.prefs.Upsert(ctx, prefs); err != nil {
			return nil, err
		}
	}

	return &Profile{User: sanitizeUser(user), Preferences: prefs}, nil
}

func (s *userService) PreferencesByEmail(ctx context.Context, email string) (*domain.InvestmentPreferences, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, validationError("email query parameter is required", "email")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.loadPreferences(ctx, user.ID)
}

func (s *userService) loadPreferences(ctx context.Context, userID int64) (*domain.InvestmentPreferences, error) {
	prefs, err := s.prefs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return prefs, nil
}

func mergePreferences(dst *domain.InvestmentPreferences, in *PreferencesInput) {
	dst.GoalType = keep(in.GoalType, dst.GoalType)
	dst.RiskTolerance = keep(in.RiskTolerance, dst.RiskTolerance)
	dst.VolatilityTolerance = keep(in.VolatilityTolerance, dst.VolatilityTolerance)
	dst.PortfolioStyle = keep(in.PortfolioStyle, dst.PortfolioStyle)
	if in.TargetAmount != nil {
		dst.TargetAmount = in.TargetAmount
	}
	if in.TargetYears != nil {
		dst.TargetYears = in.TargetYears
	}
	if in.InitialInvestment != nil {
		dst.InitialInvestment = in.InitialInvestment
	}
	if in.LiquidityNeedsPercentage != nil {
		dst.LiquidityNeedsPercentage = in.LiquidityNeedsPercentage
	}
	if in.PreferredSectors != nil {
		dst.PreferredSectors = cleanSectors(in.PreferredSectors)
	}
	if in.ExcludedSectors != nil {
		dst.ExcludedSectors = cleanSectors(in.ExcludedSectors)
	}
}

func cleanSectors(sectors []string) []string {
	out := make([]string, 0, len(sectors))
	for _, sector := range sectors {
		if sector = strings.TrimSpace(sector); sector != "" {
			out = append(out, sector)
		}
	}
	return out
}

func keep(next, current string) string {
	if next = strings.TrimSpace(next); next != "" {
		return next
	}
	return current
}
