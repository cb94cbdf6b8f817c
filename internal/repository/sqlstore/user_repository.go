package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"portfolio-advisor/internal/domain"
	"portfolio-advisor/internal/repository"
)

const createUsersTableSQLite = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	age INTEGER NULL,
	location TEXT NOT NULL DEFAULT '',
	occupation TEXT NOT NULL DEFAULT '',
	investment_experience TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const createUsersTablePostgres = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	age INTEGER NULL,
	location TEXT NOT NULL DEFAULT '',
	occupation TEXT NOT NULL DEFAULT '',
	investment_experience TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectUserColumns = `
SELECT id, username, email, password_hash, age, location, occupation, investment_experience, refresh_token, created_at, updated_at
FROM users`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema(r.db, createUsersTableSQLite, createUsersTablePostgres)); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
INSERT INTO users (username, email, password_hash, age, location, occupation, investment_experience, refresh_token, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`),
		user.Username,
		user.Email,
		user.PasswordHash,
		nullInt(user.Age),
		user.Location,
		user.Occupation,
		user.InvestmentExperience,
		nullString(user.RefreshToken),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert user: %w", repository.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	user.ID = id
	return id, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, selectUserColumns+` WHERE id = ?`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, selectUserColumns+` WHERE email = ?`, email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, selectUserColumns+` WHERE username = ?`, username)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE users
SET username=?, email=?, age=?, location=?, occupation=?, investment_experience=?, updated_at=?
WHERE id=?`),
		user.Username,
		user.Email,
		nullInt(user.Age),
		user.Location,
		user.Occupation,
		user.InvestmentExperience,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user profile: %w", repository.ErrAlreadyExists)
		}
		return fmt.Errorf("update user profile: %w", err)
	}
	return requireAffected(res, "update user profile")
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE users
SET password_hash=?, updated_at=?
WHERE id=?`),
		passwordHash,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res, "update password")
}

func (r *UserRepository) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE users
SET refresh_token=?, updated_at=?
WHERE id=?`),
		nullString(token),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return requireAffected(res, "set refresh token")
}

func (r *UserRepository) RotateRefreshToken(ctx context.Context, id int64, current, next string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE users
SET refresh_token=?, updated_at=?
WHERE id=? AND refresh_token=?`),
		next,
		time.Now().UTC(),
		id,
		current,
	)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh token rows affected: %w", err)
	}
	return aff == 1, nil
}

type userRow struct {
	ID                   int64          `db:"id"`
	Username             string         `db:"username"`
	Email                string         `db:"email"`
	PasswordHash         string         `db:"password_hash"`
	Age                  sql.NullInt64  `db:"age"`
	Location             string         `db:"location"`
	Occupation           string         `db:"occupation"`
	InvestmentExperience string         `db:"investment_experience"`
	RefreshToken         sql.NullString `db:"refresh_token"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user := &domain.User{
		ID:                   row.ID,
		Username:             row.Username,
		Email:                row.Email,
		PasswordHash:         row.PasswordHash,
		Location:             row.Location,
		Occupation:           row.Occupation,
		InvestmentExperience: row.InvestmentExperience,
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
	if row.Age.Valid {
		age := int(row.Age.Int64)
		user.Age = &age
	}
	if row.RefreshToken.Valid {
		token := row.RefreshToken.String
		user.RefreshToken = &token
	}
	return user, nil
}

func requireAffected(res sql.Result, op string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if aff == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
