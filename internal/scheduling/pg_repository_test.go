package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{
	"id", "doctor_id", "patient_id", "date", "start_time", "appointment_at",
	"duration_minutes", "status", "notes",
	"confirmation_sent", "reminder_24h_sent", "reminder_24h_sent_at", "reschedule_notified_at",
	"created_at", "updated_at",
}

func apptRow(id, doctorID, patientID uuid.UUID, status Status) *pgxmock.Rows {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := time.Now()

	return pgxmock.NewRows(apptCols).AddRow(
		id, doctorID, patientID, date, "09:00:00", at,
		30, status, (*string)(nil),
		false, false, (*time.Time)(nil), (*time.Time)(nil),
		now, now,
	)
}

func TestCreateAppointmentTranslatesUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepositoryWithQuerier(mock)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"09:00:00", pgxmock.AnyArg(), 30, (*string)(nil),
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_key"})

	_, err = repo.CreateAppointment(context.Background(), CreateParams{
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		Date:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:       TimeOfDay{Hour: 9},
		DurationMinutes: 30,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentReturnsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepositoryWithQuerier(mock)

	doctorID := uuid.New()
	patientID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(
			pgxmock.AnyArg(), doctorID, patientID, pgxmock.AnyArg(),
			"09:00:00", pgxmock.AnyArg(), 30, (*string)(nil),
		).
		WillReturnRows(apptRow(id, doctorID, patientID, StatusScheduled))

	appt, err := repo.CreateAppointment(context.Background(), CreateParams{
		DoctorID:        doctorID,
		PatientID:       patientID,
		Date:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:       TimeOfDay{Hour: 9},
		DurationMinutes: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, id, appt.ID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, TimeOfDay{Hour: 9}, appt.StartTime)
	assert.False(t, appt.Reminder24hSent)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleAppointmentTranslatesUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepositoryWithQuerier(mock)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), "10:00:00", pgxmock.AnyArg(),
			(*int)(nil), (*string)(nil), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_key"})

	_, err = repo.RescheduleAppointment(context.Background(), uuid.New(), RescheduleParams{
		Date:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:  TimeOfDay{Hour: 10},
		NotifiedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointmentByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepositoryWithQuerier(mock)

	id := uuid.New()
	mock.ExpectQuery("SELECT").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(apptCols))

	_, err = repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReminderSentCompareAndSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepositoryWithQuerier(mock)

	id := uuid.New()
	at := time.Now()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	won, err := repo.MarkReminderSent(context.Background(), id, at)
	require.NoError(t, err)
	assert.True(t, won)

	// A second marker loses the compare-and-set.
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err = repo.MarkReminderSent(context.Background(), id, at)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConfirmationSentCompareAndSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepositoryWithQuerier(mock)

	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	won, err := repo.MarkConfirmationSent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, won)

	mock.ExpectExec("UPDATE appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err = repo.MarkConfirmationSent(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, mock.ExpectationsWereMet())
}
