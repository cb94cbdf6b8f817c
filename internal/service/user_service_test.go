package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfileWithoutPreferences(t *testing.T) {
	f := newFixture(t)
	userID := registerAlice(t, f.sessions(t, SessionConfig{}))
	svc := NewUserService(f.users, f.prefs)

	profile, err := svc.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.User.Username)
	assert.Empty(t, profile.User.PasswordHash)
	assert.Nil(t, profile.Preferences)

	_, err = svc.GetProfile(context.Background(), userID+1)
	assertKind(t, err, ErrNotFound, http.StatusNotFound)
}

func TestUpdateDetailsKeepsUnsetValues(t *testing.T) {
	f := newFixture(t)
	sessions := f.sessions(t, SessionConfig{})
	userID := registerAlice(t, sessions)
	svc := NewUserService(f.users, f.prefs)
	ctx := context.Background()

	age := 41
	profile, err := svc.UpdateDetails(ctx, userID, ProfileInput{Age: &age, Occupation: "engineer"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.User.Username)
	assert.Equal(t, "alice@x.com", profile.User.Email)
	assert.Equal(t, "engineer", profile.User.Occupation)
	require.NotNil(t, profile.User.Age)
	assert.Equal(t, 41, *profile.User.Age)
	assert.Nil(t, profile.Preferences)

	amount := 100000.0
	years := 15
	profile, err = svc.UpdateDetails(ctx, userID, ProfileInput{}, &PreferencesInput{
		GoalType:         "retirement",
		TargetAmount:     &amount,
		TargetYears:      &years,
		RiskTolerance:    "medium",
		PreferredSectors: []string{" tech ", "", "energy"},
	})
	require.NoError(t, err)
	require.NotNil(t, profile.Preferences)
	assert.Equal(t, "retirement", profile.Preferences.GoalType)
	assert.Equal(t, []string{"tech", "energy"}, profile.Preferences.PreferredSectors)
	assert.Equal(t, "engineer", profile.User.Occupation)

	profile, err = svc.UpdateDetails(ctx, userID, ProfileInput{}, &PreferencesInput{PortfolioStyle: "growth"})
	require.NoError(t, err)
	assert.Equal(t, "retirement", profile.Preferences.GoalType)
	assert.Equal(t, "growth", profile.Preferences.PortfolioStyle)
	require.NotNil(t, profile.Preferences.TargetYears)
	assert.Equal(t, 15, *profile.Preferences.TargetYears)

	reloaded, err := svc.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, profile.Preferences.ID, reloaded.Preferences.ID)
}

func TestUpdateDetailsRejectsTakenIdentity(t *testing.T) {
	f := newFixture(t)
	sessions := f.sessions(t, SessionConfig{})
	userID := registerAlice(t, sessions)
	_, _, err := sessions.Register(context.Background(), RegisterInput{Username: "bob", Email: "bob@x.com", Password: "pw"})
	require.NoError(t, err)
	svc := NewUserService(f.users, f.prefs)

	_, err = svc.UpdateDetails(context.Background(), userID, ProfileInput{Email: "bob@x.com"}, nil)
	assertKind(t, err, ErrConflict, http.StatusBadRequest)
	_, err = svc.UpdateDetails(context.Background(), userID, ProfileInput{Username: "bob"}, nil)
	assertKind(t, err, ErrConflict, http.StatusBadRequest)

	// re-submitting your own identity is fine
	_, err = svc.UpdateDetails(context.Background(), userID, ProfileInput{Username: "alice", Email: "Alice@x.com"}, nil)
	assert.NoError(t, err)
}

func TestPreferencesByEmail(t *testing.T) {
	f := newFixture(t)
	userID := registerAlice(t, f.sessions(t, SessionConfig{}))
	svc := NewUserService(f.users, f.prefs)
	ctx := context.Background()

	_, err := svc.PreferencesByEmail(ctx, "")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)

	prefs, err := svc.PreferencesByEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, prefs)

	prefs, err = svc.PreferencesByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Nil(t, prefs)

	_, err = svc.UpdateDetails(ctx, userID, ProfileInput{}, &PreferencesInput{GoalType: "education"})
	require.NoError(t, err)
	prefs, err = svc.PreferencesByEmail(ctx, "ALICE@x.com")
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.Equal(t, "education", prefs.GoalType)
}
