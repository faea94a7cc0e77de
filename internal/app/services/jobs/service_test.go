package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/job"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/notification"
	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/storage"
	"github.com/jobtrackhq/jobtrack/internal/app/storage/memory"
)

// eventRecorder captures published events in order.
type eventRecorder struct {
	events []notification.Event
}

func (r *eventRecorder) Publish(event notification.Event) {
	r.events = append(r.events, event)
}

var (
	owner = user.User{ID: "u1", Role: user.RoleApplicant}
	other = user.User{ID: "u2", Role: user.RoleApplicant}
	admin = user.User{ID: "a1", Role: user.RoleAdmin}
)

func newService() (*Service, *eventRecorder) {
	recorder := &eventRecorder{}
	return New(memory.New(), recorder, nil), recorder
}

func TestCreateDefaultsAndNotifies(t *testing.T) {
	svc, recorder := newService()

	created, err := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != job.StatusApplied {
		t.Fatalf("expected default status Applied, got %s", created.Status)
	}
	if created.AppliedDate.IsZero() {
		t.Fatalf("expected applied date to default to now")
	}
	if created.UserID != owner.ID {
		t.Fatalf("expected owner %s, got %s", owner.ID, created.UserID)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected one event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.TargetUserID != owner.ID || event.Title != "New Job Application Added" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestCreateRequiresCompanyAndRole(t *testing.T) {
	svc, recorder := newService()

	_, err := svc.Create(context.Background(), owner, CreateInput{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("expected company and role flagged, got %v", verr.Fields)
	}
	if len(recorder.events) != 0 {
		t.Fatalf("failed create must not emit events")
	}
}

func TestUpdateStatusChangeEmitsOneEvent(t *testing.T) {
	svc, recorder := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	recorder.events = nil

	updated, err := svc.Update(context.Background(), owner, created.ID, map[string]any{"status": "Interview"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != job.StatusInterview {
		t.Fatalf("expected status Interview, got %s", updated.Status)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.TargetUserID != owner.ID || event.Title != "Application Status Updated" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestUpdateNonStatusFieldEmitsNoEvent(t *testing.T) {
	svc, recorder := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	recorder.events = nil

	if _, err := svc.Update(context.Background(), owner, created.ID, map[string]any{"notes": "phone screen went well"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(recorder.events) != 0 {
		t.Fatalf("expected no events for non-status update, got %d", len(recorder.events))
	}
}

func TestUpdateSameStatusEmitsNoEvent(t *testing.T) {
	svc, recorder := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	recorder.events = nil

	if _, err := svc.Update(context.Background(), owner, created.ID, map[string]any{"status": "Applied"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(recorder.events) != 0 {
		t.Fatalf("resubmitting the same status must not emit an event")
	}
}

func TestAdminUpdateTargetsRecordOwner(t *testing.T) {
	svc, recorder := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	recorder.events = nil

	if _, err := svc.Update(context.Background(), admin, created.ID, map[string]any{"status": "Offer"}); err != nil {
		t.Fatalf("admin update: %v", err)
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected one event, got %d", len(recorder.events))
	}
	if got := recorder.events[0].TargetUserID; got != owner.ID {
		t.Fatalf("event must target the record owner %s, got %s", owner.ID, got)
	}
}

func TestUpdateRejectsFieldsOutsideWhitelist(t *testing.T) {
	svc, recorder := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	recorder.events = nil

	_, err := svc.Update(context.Background(), owner, created.ID, map[string]any{
		"status": "Interview",
		"userId": "u2",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0] != "userId" {
		t.Fatalf("expected userId flagged, got %v", verr.Fields)
	}

	// The whole request is rejected: no partial status change, no event.
	current, _ := svc.Get(context.Background(), owner, created.ID)
	if current.Status != job.StatusApplied {
		t.Fatalf("expected status unchanged, got %s", current.Status)
	}
	if len(recorder.events) != 0 {
		t.Fatalf("rejected update must not emit events")
	}
}

func TestUpdateOwnershipEnforced(t *testing.T) {
	svc, _ := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})

	if _, err := svc.Update(context.Background(), other, created.ID, map[string]any{"status": "Interview"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not-found for other user's update, got %v", err)
	}
}

func TestGetHidesOtherUsersRecords(t *testing.T) {
	svc, _ := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})

	if _, err := svc.Get(context.Background(), other, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDeleteNotifiesOwner(t *testing.T) {
	svc, recorder := newService()
	created, _ := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"})
	recorder.events = nil

	if err := svc.Delete(context.Background(), owner, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(recorder.events) != 1 || recorder.events[0].Title != "Job Application Deleted" {
		t.Fatalf("expected deletion event, got %+v", recorder.events)
	}

	if _, err := svc.Get(context.Background(), owner, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	svc, _ := newService()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, company := range []string{"Acme", "Globex", "Initech"} {
		input := CreateInput{Company: company, Role: "Engineer", AppliedDate: base.AddDate(0, 0, i)}
		if i == 2 {
			input.Status = job.StatusInterview
		}
		if _, err := svc.Create(context.Background(), owner, input); err != nil {
			t.Fatalf("create %s: %v", company, err)
		}
	}
	if _, err := svc.Create(context.Background(), other, CreateInput{Company: "Umbrella", Role: "Analyst"}); err != nil {
		t.Fatalf("create for other: %v", err)
	}

	list, err := svc.List(context.Background(), owner, ListOptions{SortBy: "applied_date", SortDesc: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 own records, got %d", len(list))
	}
	if list[0].Company != "Initech" {
		t.Fatalf("expected newest first, got %s", list[0].Company)
	}

	filtered, err := svc.List(context.Background(), owner, ListOptions{Status: job.StatusInterview})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Company != "Initech" {
		t.Fatalf("expected one Interview record, got %+v", filtered)
	}
}

func TestListAllRequiresAdmin(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Create(context.Background(), owner, CreateInput{Company: "Acme", Role: "Engineer"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), other, CreateInput{Company: "Globex", Role: "Analyst"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.ListAll(context.Background(), owner, ListOptions{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}

	all, err := svc.ListAll(context.Background(), admin, ListOptions{})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records across users, got %d", len(all))
	}
}
