package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSecretary Role = "secretary"
	RoleDoctor    Role = "doctor"
)

// Principal is the authenticated caller as resolved by the identity layer.
// DoctorID is only meaningful when Roles contains RoleDoctor.
type Principal struct {
	Subject  string
	Roles    []Role
	DoctorID uuid.UUID
}

func (p Principal) HasRole(r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeOfDay is a clinic-local wall clock time with second precision.
// Inputs are assumed pre-normalized to the clinic zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t time.Time
	var err error
	switch len(s) {
	case 5:
		t, err = time.Parse("15:04", s)
	case 8:
		t, err = time.Parse("15:04:05", s)
	default:
		return TimeOfDay{}, fmt.Errorf("time must be HH:MM or HH:MM:SS")
	}
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time must be HH:MM or HH:MM:SS")
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// On composes the clinic-local instant of this time on the given date.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, t.Second, 0, date.Location())
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return d, nil
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	StartTime       TimeOfDay
	AppointmentAt   time.Time // derived: StartTime on Date
	DurationMinutes int
	Status          Status
	Notes           *string

	// Notification bookkeeping, mutated only by lifecycle transitions.
	ConfirmationSent     bool
	Reminder24hSent      bool
	Reminder24hSentAt    *time.Time
	RescheduleNotifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotKey identifies the schedulable unit this appointment occupies.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.DoctorID, a.Date, a.StartTime)
}

func SlotKey(doctorID uuid.UUID, date time.Time, startTime TimeOfDay) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, date.Format("2006-01-02"), startTime)
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}

type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
