// Package realtime delivers notification events to authenticated client
// connections. The Registry owns every live connection and its per-user
// grouping; the Notifier fans events out to the connections of exactly one
// user. Delivery is best-effort: there is no queueing, retry, or persistence,
// and an offline user simply misses the event.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/app/metrics"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// writeTimeout bounds a single delivery so one stalled peer cannot park the
// publishing goroutine; a timed-out write surfaces as a delivery error and
// evicts the connection.
const writeTimeout = 5 * time.Second

// Conn is the transport-level surface the registry needs from a connection.
// *websocket.Conn satisfies it directly; tests supply fakes.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// TokenVerifier gates admission. Satisfied by *auth.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (user.User, error)
}

// Connection is one admitted transport session, bound to a single user for
// its entire lifetime. Re-authentication is not supported: a connection whose
// token loses validity must be closed and re-established.
type Connection struct {
	userID string

	writeMu sync.Mutex
	conn    Conn
}

// UserID returns the identity the connection was admitted under.
func (c *Connection) UserID() string { return c.userID }

// writeJSON serializes writes; the underlying transport does not allow
// concurrent writers. Each write carries its own deadline.
func (c *Connection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Registry owns the set of live connections grouped by user ID. It is the
// only component permitted to mutate that set.
type Registry struct {
	verifier TokenVerifier
	log      *logger.Logger

	mu       sync.RWMutex
	channels map[string][]*Connection
}

// NewRegistry constructs a registry admitting connections through the given
// verifier.
func NewRegistry(verifier TokenVerifier, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	return &Registry{
		verifier: verifier,
		log:      log,
		channels: make(map[string][]*Connection),
	}
}

// Admit verifies the handshake token and, on success, binds the connection to
// the resolved user's channel. On failure no membership is created, not even
// transiently.
func (r *Registry) Admit(ctx context.Context, token string, conn Conn) (*Connection, error) {
	u, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("handshake rejected: %w", err)
	}

	c := &Connection{userID: u.ID, conn: conn}

	r.mu.Lock()
	r.channels[u.ID] = append(r.channels[u.ID], c)
	r.mu.Unlock()

	metrics.ConnectionAdmitted()
	r.log.WithField("user_id", u.ID).Debug("connection admitted")
	return c, nil
}

// Remove drops the connection from its channel. It is idempotent: removing a
// connection that is already gone is a no-op.
func (r *Registry) Remove(c *Connection) {
	if c == nil {
		return
	}

	r.mu.Lock()
	conns, ok := r.channels[c.userID]
	removed := false
	if ok {
		for i, existing := range conns {
			if existing == c {
				conns = append(conns[:i], conns[i+1:]...)
				removed = true
				break
			}
		}
		if len(conns) == 0 {
			delete(r.channels, c.userID)
		} else {
			r.channels[c.userID] = conns
		}
	}
	r.mu.Unlock()

	if removed {
		metrics.ConnectionClosed()
		r.log.WithField("user_id", c.userID).Debug("connection removed")
	}
}

// ChannelFor returns a snapshot of the live connections for a user, in
// admission order. An offline user yields an empty slice, not an error.
func (r *Registry) ChannelFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.channels[userID]
	out := make([]*Connection, len(conns))
	copy(out, conns)
	return out
}

// Len reports the total number of live connections across all channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.channels {
		total += len(conns)
	}
	return total
}
