package scheduling

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 480
	DefaultDurationMinutes = 30
	MaxNotesLength         = 2000
)

type CreateInput struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            string // YYYY-MM-DD
	Time            string // HH:MM or HH:MM:SS
	DurationMinutes *int
	Notes           *string
}

type RescheduleInput struct {
	Date            string
	Time            string
	DurationMinutes *int
	Notes           *string
}

// slot is a validated (date, time) destination for a write.
type slot struct {
	Date time.Time
	Time TimeOfDay
}

func validateSlot(dateStr, timeStr string, duration *int, notes *string) (slot, error) {
	verr := newValidationError()

	var s slot
	date, err := ParseDate(dateStr)
	if err != nil {
		verr.add("date", err.Error())
	} else {
		s.Date = date
	}

	tod, err := ParseTimeOfDay(timeStr)
	if err != nil {
		verr.add("time", err.Error())
	} else {
		s.Time = tod
	}

	if duration != nil && (*duration < MinDurationMinutes || *duration > MaxDurationMinutes) {
		verr.add("durationMinutes", "must be between 15 and 480")
	}

	if notes != nil && utf8.RuneCountInString(*notes) > MaxNotesLength {
		verr.add("notes", "must be at most 2000 characters")
	}

	return s, verr.orNil()
}

func (in CreateInput) validate() (slot, error) {
	s, err := validateSlot(in.Date, in.Time, in.DurationMinutes, in.Notes)
	if err != nil {
		return s, err
	}

	verr := newValidationError()
	if in.DoctorID == uuid.Nil {
		verr.add("doctorId", "is required")
	}
	if in.PatientID == uuid.Nil {
		verr.add("patientId", "is required")
	}
	return s, verr.orNil()
}

func (in RescheduleInput) validate() (slot, error) {
	return validateSlot(in.Date, in.Time, in.DurationMinutes, in.Notes)
}

// validateNotes counts characters, not bytes, matching the char_length
// constraint on the column.
func validateNotes(notes *string) error {
	verr := newValidationError()
	if notes != nil && utf8.RuneCountInString(*notes) > MaxNotesLength {
		verr.add("notes", "must be at most 2000 characters")
	}
	return verr.orNil()
}
