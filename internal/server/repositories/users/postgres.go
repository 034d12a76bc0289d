package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/dbx"
	"github.com/prashikshan/portal-auth/internal/server/models"
)

const (
	uniqueViolation = "23505"
	// invalidTextRepresentation is raised for an id that is not a UUID.
	invalidTextRepresentation = "22P02"
)

const userColumns = `id, email, password_hash, name, role, phone, bio, skills,
		is_active, is_verified, failed_login_count, locked_until, token_version,
		created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, name, role, phone, bio, skills)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query,
		models.NormalizeEmail(user.Email), user.PasswordHash, user.Name, string(user.Role),
		user.Phone, user.Bio, user.Skills)

	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, models.NormalizeEmail(email))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query :=
		`UPDATE users SET failed_login_count = failed_login_count + 1
		 WHERE id = $1
		 RETURNING failed_login_count`

	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func (r *PostgresRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	query :=
		`UPDATE users SET failed_login_count = 0, locked_until = NULL
		 WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	query :=
		`UPDATE users SET locked_until = $2
		 WHERE id = $1`
	return r.exec(ctx, query, id, until)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	query :=
		`UPDATE users SET is_active = $2, updated_at = NOW()
		 WHERE id = $1`
	return r.exec(ctx, query, id, active)
}

func (r *PostgresRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	query :=
		`UPDATE users SET is_verified = $2, updated_at = NOW()
		 WHERE id = $1`
	return r.exec(ctx, query, id, verified)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	query :=
		`UPDATE users SET password_hash = $2, updated_at = NOW()
		 WHERE id = $1`
	return r.exec(ctx, query, id, hash)
}

func (r *PostgresRepository) IncrementTokenVersion(ctx context.Context, id string) (int64, error) {
	query :=
		`UPDATE users SET token_version = token_version + 1
		 WHERE id = $1
		 RETURNING token_version`

	var version int64
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&version); err != nil {
		return 0, mapError(err)
	}
	return version, nil
}

// exec runs a single-row update and reports common.ErrorNotFound when no row
// matched.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// mapError turns "no such row" and "not a valid id" into common.ErrorNotFound.
// Anything else is an infrastructure failure.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u           models.User
		role        string
		lockedUntil sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.Phone, &u.Bio, &u.Skills,
		&u.Active, &u.Verified, &u.FailedLoginCount, &lockedUntil, &u.TokenVersion,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	return &u, nil
}
