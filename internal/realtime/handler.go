package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

// handshakeTimeout bounds how long a client may take to present its token
// after the upgrade. Purely an availability safeguard; correct clients send
// the handshake frame immediately.
const handshakeTimeout = 10 * time.Second

// handshakePayload is the first frame a client sends after the upgrade.
type handshakePayload struct {
	Token string `json:"token"`
}

// Handler upgrades HTTP requests to WebSocket connections, authenticates
// them, and parks them in the registry until the transport closes.
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler constructs the realtime endpoint. checkOrigin decides which
// browser origins may connect; nil allows all (origin policy is enforced by
// the surrounding CORS configuration in that case).
func NewHandler(registry *Registry, checkOrigin func(*http.Request) bool, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			CheckOrigin:      checkOrigin,
		},
		log: log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	var payload handshakePayload
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	if err := ws.ReadJSON(&payload); err != nil {
		h.reject(ws)
		return
	}

	conn, err := h.registry.Admit(r.Context(), payload.Token, ws)
	if err != nil {
		h.log.WithError(err).Warn("realtime handshake rejected")
		h.reject(ws)
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	// The read loop exists to detect transport closure; inbound frames
	// carry no meaning after the handshake and are discarded.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.registry.Remove(conn)
	_ = ws.Close()
}

// reject closes the transport with a generic authentication failure. Clients
// are not told whether the token was malformed or merely invalid.
func (h *Handler) reject(ws *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication error"),
		deadline,
	)
	_ = ws.Close()
}
