package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/gateway"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// clientWriter owns every write to one WebSocket. Frames are queued by the
// gateway without blocking and written by a single goroutine, which also
// sends keepalive pings.
type clientWriter struct {
	conn    *websocket.Conn
	clock   clockwork.Clock
	metrics *metrics.GatewayMetrics

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ gateway.Outbox = (*clientWriter)(nil)

func newClientWriter(conn *websocket.Conn, clock clockwork.Clock, m *metrics.GatewayMetrics, queueSize int) *clientWriter {
	w := &clientWriter{
		conn:    conn,
		clock:   clock,
		metrics: m,
		send:    make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
	w.configurePongHandler()
	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue implements gateway.Outbox.
func (w *clientWriter) Enqueue(frame []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.send <- frame:
		return true
	default:
		return false
	}
}

func (w *clientWriter) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.send:
			start := w.clock.Now()
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = w.conn.Close()
				return
			}
			w.metrics.WriteDuration.Observe(w.clock.Since(start).Seconds())
		case <-ticker.Chan():
			w.updateWriteDeadline()
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.metrics.PingFailures.Inc()
				_ = w.conn.Close()
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close implements gateway.Outbox. It stops the write loop, then sends a
// close frame carrying reason and closes the socket.
func (w *clientWriter) Close(reason string) {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		w.updateWriteDeadline()
		_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode(reason), reason))
		_ = w.conn.Close()
	})
}

func closeCode(reason string) int {
	switch reason {
	case gateway.ReasonShutdown:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseNormalClosure
	}
}

// configurePongHandler makes every pong extend the read deadline. Pongs do
// not count as application heartbeats.
func (w *clientWriter) configurePongHandler() {
	w.updateReadDeadline()
	w.conn.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		return nil
	})
}

func (w *clientWriter) updateWriteDeadline() {
	_ = w.conn.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
}

func (w *clientWriter) updateReadDeadline() {
	_ = w.conn.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}
