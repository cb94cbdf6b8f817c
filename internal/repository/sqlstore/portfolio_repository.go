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

const (
	createPortfoliosTableSQLite = `
CREATE TABLE IF NOT EXISTS portfolios (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	portfolio_json TEXT NOT NULL,
	risk_profile TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_portfolios_user_created ON portfolios(user_id, created_at);
`
	createPortfoliosTablePostgres = `
CREATE TABLE IF NOT EXISTS portfolios (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	portfolio_json JSONB NOT NULL,
	risk_profile TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_portfolios_user_created ON portfolios(user_id, created_at);
`
)

const selectPortfolioColumns = `
SELECT id, user_id, portfolio_json, risk_profile, created_at, updated_at
FROM portfolios`

type PortfolioRepository struct {
	db *sqlx.DB
}

func NewPortfolioRepository(db *sqlx.DB) repository.PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema(r.db, createPortfoliosTableSQLite, createPortfoliosTablePostgres)); err != nil {
		return fmt.Errorf("create portfolios table: %w", err)
	}
	return nil
}

func (r *PortfolioRepository) Create(ctx context.Context, portfolio *domain.Portfolio) (int64, error) {
	now := time.Now().UTC()
	portfolio.CreatedAt = now
	portfolio.UpdatedAt = now

	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
INSERT INTO portfolios (user_id, portfolio_json, risk_profile, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`),
		portfolio.UserID,
		string(portfolio.PortfolioJSON),
		portfolio.RiskProfile,
		portfolio.CreatedAt,
		portfolio.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert portfolio: %w", err)
	}

	portfolio.ID = id
	return id, nil
}

func (r *PortfolioRepository) Latest(ctx context.Context, userID int64) (*domain.Portfolio, error) {
	return r.getOne(ctx, selectPortfolioColumns+`
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1`, userID)
}

func (r *PortfolioRepository) History(ctx context.Context, userID int64) ([]domain.Portfolio, error) {
	var rows []portfolioRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(selectPortfolioColumns+`
WHERE user_id=?
ORDER BY created_at ASC, id ASC`), userID)
	if err != nil {
		return nil, fmt.Errorf("query portfolios: %w", err)
	}

	portfolios := make([]domain.Portfolio, len(rows))
	for i := range rows {
		portfolios[i] = rows[i].toDomain()
	}
	return portfolios, nil
}

func (r *PortfolioRepository) Update(ctx context.Context, id int64, portfolioJSON json.RawMessage, riskProfile string) (*domain.Portfolio, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE portfolios
SET portfolio_json=?, risk_profile=?, updated_at=?
WHERE id=?`),
		string(portfolioJSON),
		riskProfile,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("update portfolio: %w", err)
	}
	if err := requireAffected(res, "update portfolio"); err != nil {
		return nil, err
	}
	return r.getOne(ctx, selectPortfolioColumns+` WHERE id=?`, id)
}

func (r *PortfolioRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM portfolios WHERE user_id=?`), userID)
	if err != nil {
		return 0, fmt.Errorf("delete portfolios: %w", err)
	}
	return deletedRows(res)
}

func (r *PortfolioRepository) DeleteByUserThrough(ctx context.Context, userID, lastID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM portfolios WHERE user_id=? AND id<=?`), userID, lastID)
	if err != nil {
		return 0, fmt.Errorf("delete portfolios through %d: %w", lastID, err)
	}
	return deletedRows(res)
}

func deletedRows(res sql.Result) (int64, error) {
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("portfolio delete rows affected: %w", err)
	}
	return aff, nil
}

type portfolioRow struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	PortfolioJSON string    `db:"portfolio_json"`
	RiskProfile   string    `db:"risk_profile"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row portfolioRow) toDomain() domain.Portfolio {
	return domain.Portfolio{
		ID:            row.ID,
		UserID:        row.UserID,
		PortfolioJSON: json.RawMessage(row.PortfolioJSON),
		RiskProfile:   row.RiskProfile,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (r *PortfolioRepository) getOne(ctx context.Context, query string, arg any) (*domain.Portfolio, error) {
	var row portfolioRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("portfolio: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan portfolio: %w", err)
	}
	portfolio := row.toDomain()
	return &portfolio, nil
}
