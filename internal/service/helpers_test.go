package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"portfolio-advisor/internal/repository"
	"portfolio-advisor/internal/repository/sqlstore"
	"portfolio-advisor/internal/token"
)

type fixture struct {
	users      repository.UserRepository
	prefs      repository.PreferencesRepository
	portfolios repository.PortfolioRepository
	tokens     *token.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := sqlstore.Open(sqlstore.Options{Driver: sqlstore.DriverSQLite, Path: filepath.Join(t.TempDir(), "advisor.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := fixture{
		users:      sqlstore.NewUserRepository(db),
		prefs:      sqlstore.NewPreferencesRepository(db),
		portfolios: sqlstore.NewPortfolioRepository(db),
	}
	ctx := context.Background()
	require.NoError(t, f.users.Init(ctx))
	require.NoError(t, f.prefs.Init(ctx))
	require.NoError(t, f.portfolios.Init(ctx))

	f.tokens, err = token.NewManager(token.Config{
		AccessSecret:  "access-secret",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    240 * time.Hour,
	})
	require.NoError(t, err)
	return f
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func (f fixture) sessions(t *testing.T, cfg SessionConfig) SessionService {
	t.Helper()
	cfg.BcryptCost = bcrypt.MinCost
	svc, err := NewSessionService(f.users, f.tokens, cfg, quietLogger())
	require.NoError(t, err)
	return svc
}
