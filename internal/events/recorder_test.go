package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInsertsEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs("APPOINTMENT_CREATED", apptID, []byte(`{"status":"scheduled"}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := NewPgRecorder(mock, nil)
	rec.Record(context.Background(), apptID, "APPOINTMENT_CREATED", map[string]any{"status": "scheduled"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSwallowsInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs("APPOINTMENT_CANCELLED", apptID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	rec := NewPgRecorder(mock, nil)
	// Must not panic or propagate; audit failures never break a transition.
	rec.Record(context.Background(), apptID, "APPOINTMENT_CANCELLED", map[string]any{"reason": "patient request"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordNilPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	apptID := uuid.New()
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs("APPOINTMENT_CONFIRMED", apptID, []byte(`null`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := NewPgRecorder(mock, nil)
	rec.Record(context.Background(), apptID, "APPOINTMENT_CONFIRMED", nil)

	assert.NoError(t, mock.ExpectationsWereMet())
}
