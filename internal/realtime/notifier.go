package realtime

import (
	"time"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/notification"
	"github.com/jobtrackhq/jobtrack/internal/app/metrics"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// Notifier fans a domain event out to every live connection of its target
// user. It trusts the producer's targeting and performs no authorization of
// its own; access control happened when each connection was admitted.
type Notifier struct {
	registry *Registry
	log      *logger.Logger
	now      func() time.Time
}

// NewNotifier constructs a notifier over the registry.
func NewNotifier(registry *Registry, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDefault("notifier")
	}
	return &Notifier{registry: registry, now: time.Now, log: log}
}

// Publish delivers the event to each connection currently in the target
// user's channel, stamping a server-side timestamp. A failed send evicts that
// connection and does not affect delivery to the others. Publishing to an
// offline user is a silent no-op.
func (n *Notifier) Publish(event notification.Event) {
	conns := n.registry.ChannelFor(event.TargetUserID)
	if len(conns) == 0 {
		return
	}

	note := notification.Notification{
		Title:     event.Title,
		Message:   event.Message,
		Timestamp: n.now().UTC(),
	}

	for _, c := range conns {
		if err := c.writeJSON(note); err != nil {
			metrics.NotificationFailed()
			n.log.WithError(err).
				WithField("user_id", event.TargetUserID).
				Warn("notification delivery failed; evicting connection")
			n.registry.Remove(c)
			_ = c.conn.Close()
			continue
		}
		metrics.NotificationDelivered()
	}
}
