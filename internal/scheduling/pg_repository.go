package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the subset of pgxpool.Pool the repository uses. Tests
// substitute a pgxmock pool.
type PgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db PgxQuerier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithQuerier allows injecting mocks for tests.
func NewPgRepositoryWithQuerier(q PgxQuerier) *PgRepository {
	return &PgRepository{db: q}
}

const appointmentColumns = `
	id, doctor_id, patient_id, date, start_time::text, appointment_at,
	duration_minutes, status, notes,
	confirmation_sent, reminder_24h_sent, reminder_24h_sent_at, reschedule_notified_at,
	created_at, updated_at`

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var phone *string

	err := row.Scan(
		&p.ID,
		&p.DoctorID,
		&p.Name,
		&phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Phone = phone
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var startTime string
	var notes *string
	var reminderSentAt, rescheduleNotifiedAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&startTime,
		&a.AppointmentAt,
		&a.DurationMinutes,
		&a.Status,
		&notes,
		&a.ConfirmationSent,
		&a.Reminder24hSent,
		&reminderSentAt,
		&rescheduleNotifiedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	tod, err := ParseTimeOfDay(startTime)
	if err != nil {
		return nil, fmt.Errorf("scan start_time %q: %w", startTime, err)
	}

	a.StartTime = tod
	a.Notes = notes
	a.Reminder24hSentAt = reminderSentAt
	a.RescheduleNotifiedAt = rescheduleNotifiedAt
	return &a, nil
}

// isUniqueViolation matches the partial unique index over active slots.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindActiveBySlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime TimeOfDay) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3::time AND status <> 'cancelled'
	`, doctorID, date, startTime.String())
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error) {
	id := uuid.New()
	appointmentAt := p.StartTime.On(p.Date)

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, date, start_time, appointment_at, duration_minutes, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::time, $6, $7, 'scheduled', $8, now(), now())
		RETURNING `+appointmentColumns,
		id, p.DoctorID, p.PatientID, p.Date, p.StartTime.String(), appointmentAt, p.DurationMinutes, p.Notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, p RescheduleParams) (*Appointment, error) {
	appointmentAt := p.StartTime.On(p.Date)

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_time = $3::time,
		    appointment_at = $4,
		    duration_minutes = COALESCE($5, duration_minutes),
		    notes = COALESCE($6, notes),
		    status = 'scheduled',
		    confirmation_sent = FALSE,
		    reminder_24h_sent = FALSE,
		    reminder_24h_sent_at = NULL,
		    reschedule_notified_at = $7,
		    updated_at = now()
		WHERE id = $1
		  AND status NOT IN ('cancelled', 'completed')
		RETURNING `+appointmentColumns,
		id, p.Date, p.StartTime.String(), appointmentAt, p.DurationMinutes, p.Notes, p.NotifiedAt)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, to, fromStrs)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, notes)

	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]Appointment, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY appointment_at
		LIMIT $4 OFFSET $5
	`, doctorID, f.From, f.To, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) MarkConfirmationSent(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET confirmation_sent = TRUE,
		    updated_at = now()
		WHERE id = $1
		  AND confirmation_sent = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark confirmation sent: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PgRepository) FindDueReminders(ctx context.Context, from, to time.Time, limit int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND reminder_24h_sent = FALSE
		  AND appointment_at > $1
		  AND appointment_at <= $2
		ORDER BY appointment_at
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET reminder_24h_sent = TRUE,
		    reminder_24h_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND reminder_24h_sent = FALSE
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
