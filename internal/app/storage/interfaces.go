package storage

import (
	"context"
	"errors"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/job"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
)

// ErrNotFound is returned when a record does not exist. Handlers also use it
// for records the caller does not own, so absence and lack of ownership are
// indistinguishable to clients.
var ErrNotFound = errors.New("record not found")

// JobFilter narrows and orders job listings. A zero UserID scans all users
// (admin listings only).
type JobFilter struct {
	UserID   string
	Status   job.Status
	SortBy   string // applied_date, company, role, status, created_at
	SortDesc bool
}

// SortFields lists the columns a listing may be ordered by.
func SortFields() []string {
	return []string{"applied_date", "company", "role", "status", "created_at"}
}

// ValidSortField reports whether the field may be used in a filter.
func ValidSortField(field string) bool {
	for _, f := range SortFields() {
		if f == field {
			return true
		}
	}
	return false
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// JobStore persists job application records.
type JobStore interface {
	CreateJob(ctx context.Context, app job.Application) (job.Application, error)
	UpdateJob(ctx context.Context, app job.Application) (job.Application, error)
	GetJob(ctx context.Context, id string) (job.Application, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]job.Application, error)
	DeleteJob(ctx context.Context, id string) error
}
