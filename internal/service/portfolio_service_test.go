package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/storage"
)

type fakeArchiver struct {
	saved   map[int64][][]domain.Portfolio
	saveErr error
	// onSave runs after the snapshot was taken, before the delete
	onSave func()
}

func (a *fakeArchiver) Save(_ context.Context, userID int64, history []domain.Portfolio) (string, error) {
	if a.saveErr != nil {
		return "", a.saveErr
	}
	if a.onSave != nil {
		a.onSave()
	}
	if a.saved == nil {
		a.saved = make(map[int64][][]domain.Portfolio)
	}
	a.saved[userID] = append(a.saved[userID], history)
	return "s3://bucket/key.json", nil
}

func (a *fakeArchiver) List(_ context.Context, userID int64) ([]storage.ArchiveEntry, error) {
	entries := make([]storage.ArchiveEntry, len(a.saved[userID]))
	for i := range entries {
		entries[i] = storage.ArchiveEntry{Key: "key.json"}
	}
	return entries, nil
}

func TestPortfolioLifecycle(t *testing.T) {
	f := newFixture(t)
	userID := registerAlice(t, f.sessions(t, SessionConfig{}))
	svc := NewPortfolioService(f.portfolios, nil, quietLogger())
	ctx := context.Background()

	_, err := svc.Latest(ctx, userID, userID)
	assertKind(t, err, ErrNotFound, http.StatusNotFound)
	_, err = svc.History(ctx, userID, userID)
	assertKind(t, err, ErrNotFound, http.StatusNotFound)

	first, err := svc.Create(ctx, userID, json.RawMessage(`{"AAPL":0.6,"BND":0.4}`), "moderate")
	require.NoError(t, err)
	assert.Equal(t, userID, first.UserID)
	second, err := svc.Create(ctx, userID, json.RawMessage(`{"AAPL":1}`), "aggressive")
	require.NoError(t, err)

	latest, err := svc.Latest(ctx, userID, userID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	updated, err := svc.Update(ctx, userID, userID, json.RawMessage(`{"BND":1}`), "conservative")
	require.NoError(t, err)
	assert.Equal(t, second.ID, updated.ID, "update rewrites the most recent portfolio")
	assert.Equal(t, "conservative", updated.RiskProfile)

	history, err := svc.History(ctx, userID, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.False(t, history[1].CreatedAt.Before(history[0].CreatedAt))

	deleted, err := svc.Delete(ctx, userID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = svc.Latest(ctx, userID, userID)
	assertKind(t, err, ErrNotFound, http.StatusNotFound)
	_, err = svc.Delete(ctx, userID, userID)
	assertKind(t, err, ErrNotFound, http.StatusNotFound)
	_, err = svc.Update(ctx, userID, userID, json.RawMessage(`{}`), "x")
	assertKind(t, err, ErrNotFound, http.StatusNotFound)

	archives, err := svc.Archives(ctx, userID, userID)
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestPortfolioValidation(t *testing.T) {
	f := newFixture(t)
	userID := registerAlice(t, f.sessions(t, SessionConfig{}))
	svc := NewPortfolioService(f.portfolios, nil, quietLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, userID, nil, "moderate")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)
	_, err = svc.Create(ctx, userID, json.RawMessage(`null`), "moderate")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)
	_, err = svc.Create(ctx, userID, json.RawMessage(`{}`), "  ")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)

	_, err = svc.Create(ctx, userID, json.RawMessage(`""`), "low")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)
	_, err = svc.Create(ctx, userID, json.RawMessage(` "  " `), "low")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)

	_, err = svc.Update(ctx, userID, userID, nil, "x")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)
	_, err = svc.Update(ctx, userID, userID, json.RawMessage(`""`), "x")
	assertKind(t, err, ErrValidation, http.StatusBadRequest)

	created, err := svc.Create(ctx, userID, json.RawMessage(`"AAPL"`), "low")
	require.NoError(t, err)
	assert.JSONEq(t, `"AAPL"`, string(created.PortfolioJSON))
}

func TestPortfolioAccessIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	sessions := f.sessions(t, SessionConfig{})
	aliceID := registerAlice(t, sessions)
	bob, _, err := sessions.Register(context.Background(), RegisterInput{Username: "bob", Email: "bob@x.com", Password: "pw"})
	require.NoError(t, err)
	svc := NewPortfolioService(f.portfolios, nil, quietLogger())
	ctx := context.Background()

	_, err = svc.Create(ctx, aliceID, json.RawMessage(`{}`), "low")
	require.NoError(t, err)

	_, err = svc.Latest(ctx, bob.ID, aliceID)
	assertKind(t, err, ErrForbidden, http.StatusForbidden)
	_, err = svc.History(ctx, bob.ID, aliceID)
	assertKind(t, err, ErrForbidden, http.StatusForbidden)
	_, err = svc.Update(ctx, bob.ID, aliceID, json.RawMessage(`{}`), "x")
	assertKind(t, err, ErrForbidden, http.StatusForbidden)
	_, err = svc.Delete(ctx, bob.ID, aliceID)
	assertKind(t, err, ErrForbidden, http.StatusForbidden)
	_, err = svc.Archives(ctx, bob.ID, aliceID)
	assertKind(t, err, ErrForbidden, http.StatusForbidden)

	_, err = svc.Latest(ctx, aliceID, aliceID)
	assert.NoError(t, err)
}

func TestDeleteArchivesHistoryFirst(t *testing.T) {
	f := newFixture(t)
	userID := registerAlice(t, f.sessions(t, SessionConfig{}))
	archive := &fakeArchiver{}
	svc := NewPortfolioService(f.portfolios, archive, quietLogger())
	ctx := context.Background()

	_, err := svc.Delete(ctx, userID, userID)
	assertKind(t, err, ErrNotFound, http.StatusNotFound)
	assert.Empty(t, archive.saved)

	_, err = svc.Create(ctx, userID, json.RawMessage(`{"A":1}`), "low")
	require.NoError(t, err)
	_, err = svc.Create(ctx, userID, json.RawMessage(`{"B":1}`), "high")
	require.NoError(t, err)

	archive.saveErr = errors.New("bucket unreachable")
	_, err = svc.Delete(ctx, userID, userID)
	require.Error(t, err)
	history, err := svc.History(ctx, userID, userID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "a failed archive must leave the portfolios in place")

	archive.saveErr = nil
	deleted, err := svc.Delete(ctx, userID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	require.Len(t, archive.saved[userID], 1)
	assert.Len(t, archive.saved[userID][0], 2)

	entries, err := svc.Archives(ctx, userID, userID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeleteKeepsPortfoliosCreatedAfterSnapshot(t *testing.T) {
	f := newFixture(t)
	userID := registerAlice(t, f.sessions(t, SessionConfig{}))
	archive := &fakeArchiver{}
	svc := NewPortfolioService(f.portfolios, archive, quietLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, userID, json.RawMessage(`{"A":1}`), "low")
	require.NoError(t, err)

	var late *domain.Portfolio
	archive.onSave = func() {
		late, err = svc.Create(ctx, userID, json.RawMessage(`{"LATE":1}`), "high")
		require.NoError(t, err)
	}

	deleted, err := svc.Delete(ctx, userID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, archive.saved[userID], 1)
	assert.Len(t, archive.saved[userID][0], 1)

	remaining, err := svc.History(ctx, userID, userID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, late.ID, remaining[0].ID)

	archive.onSave = nil
	deleted, err = svc.Delete(ctx, userID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, archive.saved[userID], 2)
	assert.Equal(t, late.ID, archive.saved[userID][1][0].ID)
}
