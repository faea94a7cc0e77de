package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
	"github.com/jobtrackhq/jobtrack/internal/auth"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// ErrInvalidCredentials is returned when the email or password does not
// match. Callers surface it as a generic authentication failure without
// saying which part was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service manages user accounts and login.
type Service struct {
	store  storage.UserStore
	issuer *auth.Issuer
	log    *logger.Logger
}

// New constructs a user service.
func New(store storage.UserStore, issuer *auth.Issuer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, issuer: issuer, log: log}
}

// Register creates an account. The role defaults to applicant when empty.
func (s *Service) Register(ctx context.Context, name, email, password string, role user.Role) (user.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" || email == "" {
		return user.User{}, fmt.Errorf("name and email are required")
	}
	if !strings.Contains(email, "@") {
		return user.User{}, fmt.Errorf("email is not valid")
	}
	if len(password) < 6 {
		return user.User{}, fmt.Errorf("password must be at least 6 characters")
	}
	if role == "" {
		role = user.RoleApplicant
	}
	if !role.Valid() {
		return user.User{}, fmt.Errorf("unknown role %s", role)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return user.User{}, fmt.Errorf("user with email %s already exists", email)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("user_id", created.ID).
		WithField("role", created.Role).
		Info("user registered")
	return created, nil
}

// Authenticate checks credentials and returns the user plus a session token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user.User, string, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, "", ErrInvalidCredentials
		}
		return user.User{}, "", err
	}

	if !auth.CheckPassword(u.PasswordHash, password) {
		return user.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(u)
	if err != nil {
		return user.User{}, "", fmt.Errorf("issue token: %w", err)
	}

	s.log.WithField("user_id", u.ID).Info("user authenticated")
	return u, token, nil
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns all users, ordered by registration time.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}
