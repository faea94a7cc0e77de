package job

import "time"

// Status tracks where an application stands in the hiring pipeline.
type Status string

const (
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusOffer     Status = "Offer"
	StatusRejected  Status = "Rejected"
	StatusAccepted  Status = "Accepted"
)

// Statuses lists every valid status in pipeline order.
func Statuses() []Status {
	return []Status{StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusAccepted}
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusAccepted:
		return true
	}
	return false
}

// Application is one tracked job application, owned by exactly one user.
type Application struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Company     string    `json:"company" db:"company"`
	Role        string    `json:"role" db:"role"`
	Status      Status    `json:"status" db:"status"`
	AppliedDate time.Time `json:"applied_date" db:"applied_date"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	Location    string    `json:"location,omitempty" db:"location"`
	Salary      string    `json:"salary,omitempty" db:"salary"`
	JobURL      string    `json:"job_url,omitempty" db:"job_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
