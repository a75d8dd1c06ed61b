package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CreateParams struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	StartTime       TimeOfDay
	DurationMinutes int
	Notes           *string
}

type RescheduleParams struct {
	Date            time.Time
	StartTime       TimeOfDay
	DurationMinutes *int       // nil keeps the current duration
	Notes           *string    // nil keeps the current notes
	NotifiedAt      time.Time  // stamped into reschedule_notified_at
}

type ListFilter struct {
	From   *time.Time // inclusive lower bound on the appointment date
	To     *time.Time // inclusive upper bound
	Limit  int
	Offset int
}

// Repository contains all store interactions needed by the service. Writes
// that land on an occupied slot must surface ErrSlotTaken; the store's
// uniqueness constraint over active rows is the authoritative guard.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindActiveBySlot is the fast-path conflict pre-check. A nil result with
	// ErrAppointmentNotFound means the slot looked free at read time; only
	// the write itself decides.
	FindActiveBySlot(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime TimeOfDay) (*Appointment, error)

	CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, p RescheduleParams) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes *string) (*Appointment, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]Appointment, error)

	// Notification bookkeeping. Both marks are compare-and-set on their
	// flag so concurrent dispatchers send at most once.
	MarkConfirmationSent(ctx context.Context, id uuid.UUID) (bool, error)

	FindDueReminders(ctx context.Context, from, to time.Time, limit int) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
