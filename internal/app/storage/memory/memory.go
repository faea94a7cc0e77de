package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/job"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	users        map[string]user.User
	usersByEmail map[string]string
	jobs         map[string]job.Application
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		users:        make(map[string]user.User),
		usersByEmail: make(map[string]string),
		jobs:         make(map[string]job.Application),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, fmt.Errorf("user with email %s already exists", email)
	}

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}

	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email != original.Email {
		if _, exists := s.usersByEmail[u.Email]; exists {
			return user.User{}, fmt.Errorf("user with email %s already exists", u.Email)
		}
		delete(s.usersByEmail, original.Email)
		s.usersByEmail[u.Email] = u.ID
	}

	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// JobStore implementation -----------------------------------------------------

func (s *Store) CreateJob(_ context.Context, app job.Application) (job.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.ID == "" {
		app.ID = s.nextIDLocked()
	} else if _, exists := s.jobs[app.ID]; exists {
		return job.Application{}, fmt.Errorf("job application %s already exists", app.ID)
	}

	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	s.jobs[app.ID] = app
	return app, nil
}

func (s *Store) UpdateJob(_ context.Context, app job.Application) (job.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.jobs[app.ID]
	if !ok {
		return job.Application{}, storage.ErrNotFound
	}

	app.UserID = original.UserID
	app.CreatedAt = original.CreatedAt
	app.UpdatedAt = time.Now().UTC()
	s.jobs[app.ID] = app
	return app, nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.jobs[id]
	if !ok {
		return job.Application{}, storage.ErrNotFound
	}
	return app, nil
}

func (s *Store) ListJobs(_ context.Context, filter storage.JobFilter) ([]job.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]job.Application, 0)
	for _, app := range s.jobs {
		if filter.UserID != "" && app.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		out = append(out, app)
	}

	sortJobs(out, filter)
	return out, nil
}

func (s *Store) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func sortJobs(apps []job.Application, filter storage.JobFilter) {
	field := filter.SortBy
	if field == "" {
		field = "applied_date"
	}

	less := func(a, b job.Application) bool {
		switch field {
		case "company":
			return a.Company < b.Company
		case "role":
			return a.Role < b.Role
		case "status":
			return a.Status < b.Status
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.AppliedDate.Before(b.AppliedDate)
		}
	}

	sort.SliceStable(apps, func(i, j int) bool {
		if filter.SortDesc {
			return less(apps[j], apps[i])
		}
		return less(apps[i], apps[j])
	})
}
