package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecorder appends every event to the pool_events table.
type PostgresRecorder struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresRecorder constructs a recorder.
func NewPostgresRecorder(db *pgxpool.Pool, logger *slog.Logger) *PostgresRecorder {
	return &PostgresRecorder{db: db, logger: logger}
}

// Handle implements Handler; failures are logged, never propagated.
func (r *PostgresRecorder) Handle(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("encode pool event", slog.String("event", event.EventName()), slog.Any("error", err))
		return
	}
	if _, err := r.db.Exec(ctx, `INSERT INTO pool_events (id, name, payload) VALUES ($1, $2, $3)`,
		uuid.New(), event.EventName(), payload); err != nil {
		r.logger.Error("record pool event", slog.String("event", event.EventName()), slog.Any("error", err))
	}
}
