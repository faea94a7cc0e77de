package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/job"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Schema is the DDL for the tables the store depends on.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'applicant',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_applications (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	company      TEXT NOT NULL,
	role         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'Applied',
	applied_date TIMESTAMPTZ NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	salary       TEXT NOT NULL DEFAULT '',
	job_url      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_applications_user_status
	ON job_applications (user_id, status);
CREATE INDEX IF NOT EXISTS idx_job_applications_applied_date
	ON job_applications (applied_date DESC);
`

// EnsureSchema creates the tables and indexes when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = $2, email = $3, password_hash = $4, role = $5, updated_at = $6
		WHERE id = $1
	`, u.ID, u.Name, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.Role, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	users := []user.User{}
	err := s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// --- JobStore ---------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, app job.Application) (job.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_applications
			(id, user_id, company, role, status, applied_date, notes, location, salary, job_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, app.ID, app.UserID, app.Company, app.Role, app.Status, app.AppliedDate,
		app.Notes, app.Location, app.Salary, app.JobURL, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return job.Application{}, err
	}
	return app, nil
}

func (s *Store) UpdateJob(ctx context.Context, app job.Application) (job.Application, error) {
	app.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_applications
		SET company = $2, role = $3, status = $4, applied_date = $5,
			notes = $6, location = $7, salary = $8, job_url = $9, updated_at = $10
		WHERE id = $1
	`, app.ID, app.Company, app.Role, app.Status, app.AppliedDate,
		app.Notes, app.Location, app.Salary, app.JobURL, app.UpdatedAt)
	if err != nil {
		return job.Application{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return job.Application{}, storage.ErrNotFound
	}
	return s.GetJob(ctx, app.ID)
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Application, error) {
	var app job.Application
	err := s.db.GetContext(ctx, &app, `SELECT * FROM job_applications WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Application{}, storage.ErrNotFound
	}
	if err != nil {
		return job.Application{}, err
	}
	return app, nil
}

func (s *Store) ListJobs(ctx context.Context, filter storage.JobFilter) ([]job.Application, error) {
	query := `SELECT * FROM job_applications`
	clauses := []string{}
	args := []any{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	// Sort column must come from the whitelist: it is spliced into the
	// statement, not bound as a parameter.
	field := filter.SortBy
	if !storage.ValidSortField(field) {
		field = "applied_date"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", field, direction)

	apps := []job.Application{}
	if err := s.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_applications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
