package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerAlice(t *testing.T, svc SessionService) int64 {
	t.Helper()
	user, access, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@x.com",
		Password: "pw123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.Empty(t, user.PasswordHash)
	return user.ID
}

func assertKind(t *testing.T, err error, kind error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, status, svcErr.Status)
}

func TestRegisterLoginRefreshReplay(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	userID := registerAlice(t, svc)

	login, err := svc.Login(ctx, "alice@x.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, userID, login.User.ID)

	stored, err := f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, login.RefreshToken, *stored.RefreshToken)

	pair, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	_, err = svc.Refresh(ctx, login.RefreshToken)
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)

	// the replay did not end the session: the current token still works
	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, next.AccessToken)

	user, err := svc.Authenticate(ctx, next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, user.ID)
	assert.Nil(t, user.RefreshToken)
}

func TestRegisterRejectsDuplicatesAndMissingFields(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	registerAlice(t, svc)

	_, _, err := svc.Register(ctx, RegisterInput{Username: "alice2", Email: "ALICE@x.com", Password: "pw"})
	assertKind(t, err, ErrConflict, http.StatusBadRequest)

	_, _, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: "pw"})
	assertKind(t, err, ErrConflict, http.StatusBadRequest)

	_, _, err = svc.Register(ctx, RegisterInput{Email: "bob@x.com"})
	assertKind(t, err, ErrValidation, http.StatusBadRequest)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, []string{"username", "password"}, svcErr.Details)

	_, err = f.users.GetByEmail(ctx, "other@x.com")
	assert.Error(t, err, "no row may be created for a rejected registration")
}

func TestRegisterEnforcesMinPasswordLength(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{MinPasswordLength: 8})

	_, _, err := svc.Register(context.Background(), RegisterInput{Username: "bob", Email: "bob@x.com", Password: "short"})
	assertKind(t, err, ErrValidation, http.StatusBadRequest)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	registerAlice(t, svc)

	_, err := svc.Login(ctx, "alice@x.com", "wrong")
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)
	wrongPassword := err.Error()

	_, err = svc.Login(ctx, "nobody@x.com", "pw123")
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)
	assert.Equal(t, wrongPassword, err.Error(), "unknown email must look like a wrong password")

	_, err = svc.Login(ctx, "", "pw123")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)

	// emails are case-insensitive
	_, err = svc.Login(ctx, " Alice@X.com ", "pw123")
	assert.NoError(t, err)
}

func TestLoginRevealsUnknownEmailWhenConfigured(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{RevealUnknownEmail: true})

	_, err := svc.Login(context.Background(), "nobody@x.com", "pw123")
	assertKind(t, err, ErrNotFound, http.StatusNotFound)
}

func TestLoginInvalidatesPreviousRefreshToken(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	registerAlice(t, svc)

	first, err := svc.Login(ctx, "alice@x.com", "pw123")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice@x.com", "pw123")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)
}

func TestLogoutThenRefreshFails(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	userID := registerAlice(t, svc)

	login, err := svc.Login(ctx, "alice@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, userID))
	// logout is idempotent
	require.NoError(t, svc.Logout(ctx, userID))

	_, err = svc.Refresh(ctx, login.RefreshToken)
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)
}

func TestRefreshRejectsMalformedTokens(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	userID := registerAlice(t, svc)

	_, err := svc.Refresh(ctx, "")
	assertKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)

	_, err = svc.Refresh(ctx, "not-a-jwt")
	assertKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)

	// an access token is not a refresh token
	access, err := f.tokens.IssueAccess(userID)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, access)
	assertKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)
}

func TestRevokeOnReuseEndsSession(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{RevokeOnReuse: true})
	ctx := context.Background()
	registerAlice(t, svc)

	login, err := svc.Login(ctx, "alice@x.com", "pw123")
	require.NoError(t, err)
	pair, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, login.RefreshToken)
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	userID := registerAlice(t, svc)

	err := svc.ChangePassword(ctx, userID, "", "new")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)

	err = svc.ChangePassword(ctx, userID, "wrong", "new-pw")
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)

	require.NoError(t, svc.ChangePassword(ctx, userID, "pw123", "new-pw"))

	_, err = svc.Login(ctx, "alice@x.com", "pw123")
	assertKind(t, err, ErrAuthentication, http.StatusUnauthorized)
	_, err = svc.Login(ctx, "alice@x.com", "new-pw")
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	svc := f.sessions(t, SessionConfig{})
	ctx := context.Background()
	userID := registerAlice(t, svc)

	_, err := svc.Authenticate(ctx, "")
	assertKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)

	refresh, err := f.tokens.IssueRefresh(userID)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, refresh)
	assertKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)

	ghost, err := f.tokens.IssueAccess(userID + 1)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, ghost)
	assertKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)
}
