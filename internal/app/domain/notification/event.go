package notification

import "time"

// Event is a notification-worthy fact produced by a state change, addressed
// to one user. The producer has already authorized the target; delivery adds
// no authorization of its own. Events are fire-and-forget values, never
// persisted.
type Event struct {
	TargetUserID string
	Title        string
	Message      string
}

// Notification is the wire shape delivered to a client connection. The
// timestamp is assigned at delivery time, not by the producer.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
