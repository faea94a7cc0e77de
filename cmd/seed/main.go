// Package main seeds the job tracker with the default demo accounts: an
// admin and a regular applicant. Existing rows with the same email are left
// untouched, so the command is safe to re-run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
	"github.com/jobtrackhq/jobtrack/internal/app/storage/postgres"
	"github.com/jobtrackhq/jobtrack/internal/auth"
	"github.com/jobtrackhq/jobtrack/internal/config"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

type seedUser struct {
	name     string
	email    string
	password string
	role     user.Role
}

var seedUsers = []seedUser{
	{name: "Admin User", email: "admin@example.com", password: "admin123", role: user.RoleAdmin},
	{name: "Test User", email: "user@example.com", password: "user123", role: user.RoleApplicant},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewDefault("seed")

	if cfg.Database.DSN == "" {
		log.Error("a database DSN is required to seed (set JOBTRACK_DATABASE_DSN)")
		os.Exit(1)
	}

	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Error("connect database")
		os.Exit(1)
	}
	defer db.Close()

	store := postgres.New(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("ensure schema")
		os.Exit(1)
	}

	for _, s := range seedUsers {
		if _, err := store.GetUserByEmail(ctx, s.email); err == nil {
			log.WithField("email", s.email).Info("user already exists, skipping")
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			log.WithError(err).WithField("email", s.email).Error("lookup user")
			os.Exit(1)
		}

		hash, err := auth.HashPassword(s.password)
		if err != nil {
			log.WithError(err).Error("hash password")
			os.Exit(1)
		}
		created, err := store.CreateUser(ctx, user.User{
			Name:         s.name,
			Email:        s.email,
			PasswordHash: hash,
			Role:         s.role,
		})
		if err != nil {
			log.WithError(err).WithField("email", s.email).Error("create user")
			os.Exit(1)
		}
		log.WithField("email", created.Email).WithField("role", string(created.Role)).Info("seeded user")
	}

	log.Info("seeding complete")
}
