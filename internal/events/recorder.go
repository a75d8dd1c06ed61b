package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

// Execer is the single pool method the recorder needs; pgxmock satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgRecorder appends lifecycle events to the appointment_events audit trail.
// Recording is best effort: a failed insert is logged and swallowed so the
// audit trail can never fail a committed transition.
type PgRecorder struct {
	db     Execer
	logger *logging.Logger
}

func NewPgRecorder(db Execer, logger *logging.Logger) *PgRecorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &PgRecorder{db: db, logger: logger}
}

func (r *PgRecorder) Record(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal event payload failed", "event_type", eventType, "error", err)
		data = nil
	}

	if err := r.insert(ctx, appointmentID, eventType, data); err != nil {
		r.logger.Error("insert event failed",
			"event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}

func (r *PgRecorder) insert(ctx context.Context, appointmentID uuid.UUID, eventType string, payload []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, eventType, appointmentID, payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}
	return nil
}
