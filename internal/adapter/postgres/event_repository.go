package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/chainpulse/internal/domain"
)

var eventColumns = []string{"message_id", "channel", "type", "payload", "user_id", "occurred_at"}

type copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// EventRepo writes archived events to gateway_events.
type EventRepo struct {
	db copier
}

func NewEventRepo(db copier) *EventRepo {
	return &EventRepo{db: db}
}

// WriteEvents bulk-inserts events with COPY. The batch is all or nothing.
func (r *EventRepo) WriteEvents(ctx context.Context, events []*domain.Message) (int64, error) {
	rows := pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
		e := events[i]
		var payload []byte
		if len(e.Data) > 0 {
			payload = e.Data
		}
		var userID *string
		if e.UserID != "" {
			userID = &e.UserID
		}
		return []any{e.ID, e.Channel, string(e.Type), payload, userID, e.Timestamp}, nil
	})

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"gateway_events"}, eventColumns, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to copy events: %w", err)
	}
	return n, nil
}
