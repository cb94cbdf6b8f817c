package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/token"
)

const invalidCredentialsMessage = "Invalid user credentials"

// Tokens is the subset of the token manager used by the session flows.
type Tokens interface {
	IssueAccess(userID int64) (string, error)
	IssueRefresh(userID int64) (string, error)
	Verify(raw string, kind token.Kind) (*token.Claims, error)
}

// SessionConfig tunes the credential lifecycle.
type SessionConfig struct {
	MinPasswordLength int
	BcryptCost        int
	// RevealUnknownEmail answers 404 for unknown login emails instead of a generic 401.
	RevealUnknownEmail bool
	// RevokeOnReuse clears the stored refresh token when a rotated-out token is presented.
	RevokeOnReuse bool
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username             string
	Email                string
	Password             string
	Age                  *int
	Location             string
	Occupation           string
	InvestmentExperience string
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User *domain.User
	TokenPair
}

// SessionService describes the credential lifecycle: register, login, refresh, logout, change password.
type SessionService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID int64) error
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	// Authenticate resolves the user behind an access token.
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

type sessionService struct {
	users     repository.UserRepository
	tokens    Tokens
	cfg       SessionConfig
	dummyHash []byte
	logger    logrus.FieldLogger
}

func NewSessionService(users repository.UserRepository, tokens Tokens, cfg SessionConfig, logger logrus.FieldLogger) (SessionService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 1
	}
	if logger == nil {
		logger = logrus.New()
	}

	// compared against when the email is unknown so both failure paths cost one bcrypt check
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(seed)), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &sessionService{
		users:     users,
		tokens:    tokens,
		cfg:       cfg,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

func (s *sessionService) Register(ctx context.Context, in RegisterInput) (*domain.User, string, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	var missing []string
	if username == "" {
		missing = append(missing, "username")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(in.Password) == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, "", validationError("Missing required fields: "+strings.Join(missing, ", "), missing...)
	}
	if len(in.Password) < s.cfg.MinPasswordLength {
		return nil, "", validationError(fmt.Sprintf("password must be at least %d characters", s.cfg.MinPasswordLength), "password")
	}

	if err := checkAvailable(ctx, s.users, 0, email, username); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:             username,
		Email:                email,
		PasswordHash:         string(hash),
		Age:                  in.Age,
		Location:             strings.TrimSpace(in.Location),
		Occupation:           strings.TrimSpace(in.Occupation),
		InvestmentExperience: strings.TrimSpace(in.InvestmentExperience),
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, "", conflictError("A user with the given email address or username already exists.")
		}
		return nil, "", err
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, "", err
	}
	return sanitizeUser(user), access, nil
}

func (s *sessionService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("Email and password are required", "email", "password")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if s.cfg.RevealUnknownEmail {
			return nil, notFoundError("User with email does not exist")
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, authenticationError(invalidCredentialsMessage)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, authenticationError(invalidCredentialsMessage)
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}
	// login is a rotation point: any previously issued refresh token stops working here
	if err := s.users.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		return nil, err
	}

	return &LoginResult{User: sanitizeUser(user), TokenPair: *pair}, nil
}

func (s *sessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, UnauthenticatedError("unauthorized request")
	}

	claims, err := s.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, UnauthenticatedError("Invalid refresh token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, UnauthenticatedError("Invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, UnauthenticatedError("Invalid refresh token")
		}
		return nil, err
	}

	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(refreshToken)) != 1 {
		s.logger.WithField("user_id", user.ID).Warn("stale refresh token presented")
		if s.cfg.RevokeOnReuse && user.RefreshToken != nil {
			if err := s.users.SetRefreshToken(ctx, user.ID, nil); err != nil {
				return nil, err
			}
		}
		return nil, authenticationError("Refresh token is expired or used")
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, err
	}
	rotated, err := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// a concurrent refresh or logout won the compare-and-swap
		return nil, authenticationError("Refresh token is expired or used")
	}
	return pair, nil
}

func (s *sessionService) Logout(ctx context.Context, userID int64) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

func (s *sessionService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return validationError("Old password and new password are required", "oldPassword", "newPassword")
	}
	if len(newPassword) < s.cfg.MinPasswordLength {
		return validationError(fmt.Sprintf("password must be at least %d characters", s.cfg.MinPasswordLength), "newPassword")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return UnauthenticatedError("user no longer exists")
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return authenticationError("Invalid old password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	// TODO: revoke outstanding refresh tokens here once clients handle a forced re-login after a password change.
	return s.users.UpdatePassword(ctx, user.ID, string(hash))
}

func (s *sessionService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, UnauthenticatedError("JWT token not received.")
	}
	claims, err := s.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		return nil, UnauthenticatedError("Failed to verify JWT")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, UnauthenticatedError("Failed to verify JWT")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, UnauthenticatedError("Failed to verify JWT")
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *sessionService) issuePair(userID int64) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// checkAvailable fails with a conflict when email or username belongs to a user other than selfID.
func checkAvailable(ctx context.Context, users repository.UserRepository, selfID int64, email, username string) error {
	if email != "" {
		existing, err := users.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != selfID:
			return conflictError("A user with the given email address already exists.")
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return err
		}
	}
	if username != "" {
		existing, err := users.GetByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != selfID:
			return conflictError("A user with the given username already exists.")
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return err
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	clean.RefreshToken = nil
	return &clean
}
