package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/repository"
)

const createPreferencesTableSQLite = `
CREATE TABLE IF NOT EXISTS investment_preferences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL UNIQUE,
	goal_type TEXT NOT NULL DEFAULT '',
	target_amount REAL NULL,
	target_years INTEGER NULL,
	risk_tolerance TEXT NOT NULL DEFAULT '',
	volatility_tolerance TEXT NOT NULL DEFAULT '',
	preferred_sectors TEXT NOT NULL DEFAULT '[]',
	excluded_sectors TEXT NOT NULL DEFAULT '[]',
	initial_investment REAL NULL,
	liquidity_needs_percentage REAL NULL,
	portfolio_style TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
`

const createPreferencesTablePostgres = `
CREATE TABLE IF NOT EXISTS investment_preferences (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	goal_type TEXT NOT NULL DEFAULT '',
	target_amount DOUBLE PRECISION NULL,
	target_years INTEGER NULL,
	risk_tolerance TEXT NOT NULL DEFAULT '',
	volatility_tolerance TEXT NOT NULL DEFAULT '',
	preferred_sectors TEXT NOT NULL DEFAULT '[]',
	excluded_sectors TEXT NOT NULL DEFAULT '[]',
	initial_investment DOUBLE PRECISION NULL,
	liquidity_needs_percentage DOUBLE PRECISION NULL,
	portfolio_style TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PreferencesRepository struct {
	db *sqlx.DB
}

func NewPreferencesRepository(db *sqlx.DB) repository.PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func (r *PreferencesRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema(r.db, createPreferencesTableSQLite, createPreferencesTablePostgres)); err != nil {
		return fmt.Errorf("create investment_preferences table: %w", err)
	}
	return nil
}

func (r *PreferencesRepository) GetByUserID(ctx context.Context, userID int64) (*domain.InvestmentPreferences, error) {
	var row preferencesRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
SELECT id, user_id, goal_type, target_amount, target_years, risk_tolerance, volatility_tolerance, preferred_sectors, excluded_sectors, initial_investment, liquidity_needs_percentage, portfolio_style, created_at, updated_at
FROM investment_preferences
WHERE user_id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("investment preferences: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan investment preferences: %w", err)
	}
	return row.toDomain()
}

func (r *PreferencesRepository) Upsert(ctx context.Context, prefs *domain.InvestmentPreferences) error {
	preferred, err := encodeSectors(prefs.PreferredSectors)
	if err != nil {
		return err
	}
	excluded, err := encodeSectors(prefs.ExcludedSectors)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = r.db.QueryRowxContext(ctx, r.db.Rebind(`
INSERT INTO investment_preferences (user_id, goal_type, target_amount, target_years, risk_tolerance, volatility_tolerance, preferred_sectors, excluded_sectors, initial_investment, liquidity_needs_percentage, portfolio_style, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	goal_type = excluded.goal_type,
	target_amount = excluded.target_amount,
	target_years = excluded.target_years,
	risk_tolerance = excluded.risk_tolerance,
	volatility_tolerance = excluded.volatility_tolerance,
	preferred_sectors = excluded.preferred_sectors,
	excluded_sectors = excluded.excluded_sectors,
	initial_investment = excluded.initial_investment,
	liquidity_needs_percentage = excluded.liquidity_needs_percentage,
	portfolio_style = excluded.portfolio_style,
	updated_at = excluded.updated_at
RETURNING id`),
		prefs.UserID,
		prefs.GoalType,
		nullFloat(prefs.TargetAmount),
		nullInt(prefs.TargetYears),
		prefs.RiskTolerance,
		prefs.VolatilityTolerance,
		preferred,
		excluded,
		nullFloat(prefs.InitialInvestment),
		nullFloat(prefs.LiquidityNeedsPercentage),
		prefs.PortfolioStyle,
		now,
		now,
	).Scan(&prefs.ID)
	if err != nil {
		return fmt.Errorf("upsert investment preferences: %w", err)
	}

	stored, err := r.GetByUserID(ctx, prefs.UserID)
	if err != nil {
		return err
	}
	*prefs = *stored
	return nil
}

type preferencesRow struct {
	ID                       int64           `db:"id"`
	UserID                   int64           `db:"user_id"`
	GoalType                 string          `db:"goal_type"`
	TargetAmount             sql.NullFloat64 `db:"target_amount"`
	TargetYears              sql.NullInt64   `db:"target_years"`
	RiskTolerance            string          `db:"risk_tolerance"`
	VolatilityTolerance      string          `db:"volatility_tolerance"`
	PreferredSectors         string          `db:"preferred_sectors"`
	ExcludedSectors          string          `db:"excluded_sectors"`
	InitialInvestment        sql.NullFloat64 `db:"initial_investment"`
	LiquidityNeedsPercentage sql.NullFloat64 `db:"liquidity_needs_percentage"`
	PortfolioStyle           string          `db:"portfolio_style"`
	CreatedAt                time.Time       `db:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at"`
}

func (row preferencesRow) toDomain() (*domain.InvestmentPreferences, error) {
	prefs := &domain.InvestmentPreferences{
		ID:                       row.ID,
		UserID:                   row.UserID,
		GoalType:                 row.GoalType,
		TargetAmount:             floatPtr(row.TargetAmount),
		RiskTolerance:            row.RiskTolerance,
		VolatilityTolerance:      row.VolatilityTolerance,
		InitialInvestment:        floatPtr(row.InitialInvestment),
		LiquidityNeedsPercentage: floatPtr(row.LiquidityNeedsPercentage),
		PortfolioStyle:           row.PortfolioStyle,
		CreatedAt:                row.CreatedAt.UTC(),
		UpdatedAt:                row.UpdatedAt.UTC(),
	}
	if row.TargetYears.Valid {
		years := int(row.TargetYears.Int64)
		prefs.TargetYears = &years
	}
	if err := json.Unmarshal([]byte(row.PreferredSectors), &prefs.PreferredSectors); err != nil {
		return nil, fmt.Errorf("decode preferred sectors: %w", err)
	}
	if err := json.Unmarshal([]byte(row.ExcludedSectors), &prefs.ExcludedSectors); err != nil {
		return nil, fmt.Errorf("decode excluded sectors: %w", err)
	}
	return prefs, nil
}

func encodeSectors(sectors []string) (string, error) {
	if sectors == nil {
		sectors = []string{}
	}
	b, err := json.Marshal(sectors)
	if err != nil {
		return "", fmt.Errorf("encode sectors: %w", err)
	}
	return string(b), nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
