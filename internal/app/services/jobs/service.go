package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/job"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/notification"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// ErrForbidden is returned when a caller lacks the role an operation
// requires.
var ErrForbidden = errors.New("forbidden")

// ValidationError reports request fields that are missing, unknown, or carry
// invalid values. The whole request is rejected; nothing is partially
// applied.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.Fields, ", "))
}

// Publisher receives domain events produced by successful mutations. The
// realtime Notifier satisfies it; tests supply recorders. The reference is
// injected explicitly so event routing is visible in the wiring, never
// ambient.
type Publisher interface {
	Publish(event notification.Event)
}

// updatableFields is the closed set of fields a PUT may touch. A request
// naming any other field is rejected as a whole.
var updatableFields = map[string]struct{}{
	"company":     {},
	"role":        {},
	"status":      {},
	"appliedDate": {},
	"notes":       {},
	"location":    {},
	"salary":      {},
	"jobUrl":      {},
}

// Service implements the job application resource: CRUD with ownership
// checks, plus domain event emission after successful mutations.
type Service struct {
	store    storage.JobStore
	notifier Publisher
	log      *logger.Logger
}

// New constructs a job service. A nil notifier disables event emission.
func New(store storage.JobStore, notifier Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Service{store: store, notifier: notifier, log: log}
}

// CreateInput carries the fields accepted when creating a record.
type CreateInput struct {
	Company     string
	Role        string
	Status      job.Status
	AppliedDate time.Time
	Notes       string
	Location    string
	Salary      string
	JobURL      string
}

// ListOptions narrows and orders listings.
type ListOptions struct {
	Status   job.Status
	SortBy   string
	SortDesc bool
}

// Create stores a new application owned by the actor and notifies them.
func (s *Service) Create(ctx context.Context, actor user.User, in CreateInput) (job.Application, error) {
	in.Company = strings.TrimSpace(in.Company)
	in.Role = strings.TrimSpace(in.Role)

	var invalid []string
	if in.Company == "" {
		invalid = append(invalid, "company")
	}
	if in.Role == "" {
		invalid = append(invalid, "role")
	}
	if in.Status == "" {
		in.Status = job.StatusApplied
	} else if !in.Status.Valid() {
		invalid = append(invalid, "status")
	}
	if len(invalid) > 0 {
		return job.Application{}, &ValidationError{Fields: invalid}
	}

	if in.AppliedDate.IsZero() {
		in.AppliedDate = time.Now().UTC()
	}

	created, err := s.store.CreateJob(ctx, job.Application{
		UserID:      actor.ID,
		Company:     in.Company,
		Role:        in.Role,
		Status:      in.Status,
		AppliedDate: in.AppliedDate,
		Notes:       strings.TrimSpace(in.Notes),
		Location:    strings.TrimSpace(in.Location),
		Salary:      strings.TrimSpace(in.Salary),
		JobURL:      strings.TrimSpace(in.JobURL),
	})
	if err != nil {
		return job.Application{}, err
	}

	s.log.WithField("job_id", created.ID).
		WithField("user_id", actor.ID).
		Info("job application created")

	s.publish(actor.ID, "New Job Application Added",
		fmt.Sprintf("You've added a new application for %s at %s", created.Role, created.Company))
	return created, nil
}

// List returns the actor's own records.
func (s *Service) List(ctx context.Context, actor user.User, opts ListOptions) ([]job.Application, error) {
	filter, err := buildFilter(actor.ID, opts)
	if err != nil {
		return nil, err
	}
	return s.store.ListJobs(ctx, filter)
}

// ListAll returns every user's records. Admin only.
func (s *Service) ListAll(ctx context.Context, actor user.User, opts ListOptions) ([]job.Application, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	filter, err := buildFilter("", opts)
	if err != nil {
		return nil, err
	}
	return s.store.ListJobs(ctx, filter)
}

// Get fetches one of the actor's own records. Records owned by others are
// reported as not found.
func (s *Service) Get(ctx context.Context, actor user.User, id string) (job.Application, error) {
	app, err := s.store.GetJob(ctx, id)
	if err != nil {
		return job.Application{}, err
	}
	if app.UserID != actor.ID {
		return job.Application{}, storage.ErrNotFound
	}
	return app, nil
}

// Update applies a whitelisted field set to a record. The actor must own the
// record, or be an admin updating any record. When the update changes the
// status field, exactly one event is emitted to the record's owner — never
// to the admin performing the change.
func (s *Service) Update(ctx context.Context, actor user.User, id string, fields map[string]any) (job.Application, error) {
	var unknown []string
	for name := range fields {
		if _, ok := updatableFields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return job.Application{}, &ValidationError{Fields: unknown}
	}

	app, err := s.store.GetJob(ctx, id)
	if err != nil {
		return job.Application{}, err
	}
	if !actor.IsAdmin() && app.UserID != actor.ID {
		return job.Application{}, storage.ErrNotFound
	}

	oldStatus := app.Status
	if err := applyFields(&app, fields); err != nil {
		return job.Application{}, err
	}

	updated, err := s.store.UpdateJob(ctx, app)
	if err != nil {
		return job.Application{}, err
	}

	s.log.WithField("job_id", updated.ID).
		WithField("actor_id", actor.ID).
		Info("job application updated")

	// The event target is whoever owns the record, computed once here. An
	// admin updating someone else's record notifies that user, not
	// themselves.
	if _, touched := fields["status"]; touched && oldStatus != updated.Status {
		s.publish(updated.UserID, "Application Status Updated",
			fmt.Sprintf("Your application for %s at %s has been updated to %s",
				updated.Role, updated.Company, updated.Status))
	}
	return updated, nil
}

// Delete removes one of the actor's own records and notifies them.
func (s *Service) Delete(ctx context.Context, actor user.User, id string) error {
	app, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if app.UserID != actor.ID {
		return storage.ErrNotFound
	}

	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}

	s.log.WithField("job_id", id).
		WithField("user_id", actor.ID).
		Info("job application deleted")

	s.publish(actor.ID, "Job Application Deleted",
		fmt.Sprintf("Your application for %s at %s has been deleted", app.Role, app.Company))
	return nil
}

// publish hands an event to the notifier. Emission happens only after the
// store commit succeeded and can never fail the surrounding request.
func (s *Service) publish(targetUserID, title, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(notification.Event{
		TargetUserID: targetUserID,
		Title:        title,
		Message:      message,
	})
}

func buildFilter(userID string, opts ListOptions) (storage.JobFilter, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return storage.JobFilter{}, &ValidationError{Fields: []string{"status"}}
	}
	if opts.SortBy != "" && !storage.ValidSortField(opts.SortBy) {
		return storage.JobFilter{}, &ValidationError{Fields: []string{"sortBy"}}
	}
	return storage.JobFilter{
		UserID:   userID,
		Status:   opts.Status,
		SortBy:   opts.SortBy,
		SortDesc: opts.SortDesc,
	}, nil
}

func applyFields(app *job.Application, fields map[string]any) error {
	var invalid []string

	setString := func(name string, dst *string, required bool) {
		raw, ok := fields[name]
		if !ok {
			return
		}
		value, isString := raw.(string)
		value = strings.TrimSpace(value)
		if !isString || (required && value == "") {
			invalid = append(invalid, name)
			return
		}
		*dst = value
	}

	setString("company", &app.Company, true)
	setString("role", &app.Role, true)
	setString("notes", &app.Notes, false)
	setString("location", &app.Location, false)
	setString("salary", &app.Salary, false)
	setString("jobUrl", &app.JobURL, false)

	if raw, ok := fields["status"]; ok {
		value, isString := raw.(string)
		status := job.Status(strings.TrimSpace(value))
		if !isString || !status.Valid() {
			invalid = append(invalid, "status")
		} else {
			app.Status = status
		}
	}

	if raw, ok := fields["appliedDate"]; ok {
		value, isString := raw.(string)
		parsed, err := parseDate(value)
		if !isString || err != nil {
			invalid = append(invalid, "appliedDate")
		} else {
			app.AppliedDate = parsed
		}
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return &ValidationError{Fields: invalid}
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
