package websocket

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/pscheid92/chainpulse/internal/gateway"
)

const maxMessageSize = 64 * 1024

// HandlerConfig configures the upgrade endpoint.
type HandlerConfig struct {
	CheckOrigin func(r *http.Request) bool
	QueueSize   int
}

// Handler upgrades HTTP requests to WebSocket connections and runs one
// read loop per connection, feeding frames to the session handler.
type Handler struct {
	hub      *gateway.Hub
	sessions *gateway.SessionHandler
	limits   *ConnectionLimits
	clock    clockwork.Clock
	metrics  *metrics.GatewayMetrics
	upgrader websocket.Upgrader
	queue    int
}

func NewHandler(hub *gateway.Hub, sessions *gateway.SessionHandler, limits *ConnectionLimits, clock clockwork.Clock, m *metrics.GatewayMetrics, cfg HandlerConfig) *Handler {
	return &Handler{
		hub:      hub,
		sessions: sessions,
		limits:   limits,
		clock:    clock,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		queue: cfg.QueueSize,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if h.limits != nil {
		if ok, reason := h.limits.Acquire(ip); !ok {
			h.metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
			slog.WarnContext(r.Context(), "Connection refused", "remote_addr", ip, "reason", reason)
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
		defer h.limits.Release(ip)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "remote_addr", ip, "error", err)
		return
	}

	writer := newClientWriter(conn, h.clock, h.metrics, h.queue)
	c, err := h.hub.Connect(r.Context(), ip, writer)
	if errors.Is(err, domain.ErrCapacityExceeded) {
		rejectAtCapacity(writer)
		return
	}

	h.readLoop(conn, c)
	h.hub.Disconnect(c, gateway.ReasonClientClosed)
}

// rejectAtCapacity closes with 1013 (try again later).
func rejectAtCapacity(w *clientWriter) {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		w.updateWriteDeadline()
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, domain.ErrCapacityExceeded.Error())
		_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = w.conn.Close()
	})
}

func (h *Handler) readLoop(conn *websocket.Conn, c *gateway.Connection) {
	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				slog.DebugContext(c.Context(), "WebSocket read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(h.clock.Now().Add(pongDeadline))
		h.sessions.Handle(c.Context(), c, data)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
