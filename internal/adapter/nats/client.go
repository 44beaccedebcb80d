package nats

import (
	"fmt"
	"log/slog"
	"time"

	gonats "github.com/nats-io/nats.go"
)

const (
	reconnectWait  = 2 * time.Second
	connectTimeout = 5 * time.Second
)

// Connect dials NATS and keeps reconnecting for as long as the gateway runs.
func Connect(url, name string) (*gonats.Conn, error) {
	nc, err := gonats.Connect(url,
		gonats.Name(name),
		gonats.MaxReconnects(-1),
		gonats.ReconnectWait(reconnectWait),
		gonats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		gonats.Timeout(connectTimeout),
		gonats.DisconnectErrHandler(func(_ *gonats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		gonats.ReconnectHandler(func(nc *gonats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	slog.Info("NATS connected", "url", nc.ConnectedUrl())
	return nc, nil
}
