package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	DoctorID        string  `json:"doctor_id"`
	PatientID       string  `json:"patient_id"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type UpdateNotesRequest struct {
	Notes *string `json:"notes"`
}

type AppointmentResponse struct {
	ID                   uuid.UUID  `json:"id"`
	DoctorID             uuid.UUID  `json:"doctor_id"`
	PatientID            uuid.UUID  `json:"patient_id"`
	Date                 string     `json:"date"`
	Time                 string     `json:"time"`
	AppointmentAt        time.Time  `json:"appointment_at"`
	DurationMinutes      int        `json:"duration_minutes"`
	Status               string     `json:"status"`
	Notes                *string    `json:"notes,omitempty"`
	ConfirmationSent     bool       `json:"confirmation_sent"`
	Reminder24hSent      bool       `json:"reminder_24h_sent"`
	Reminder24hSentAt    *time.Time `json:"reminder_24h_sent_at,omitempty"`
	RescheduleNotifiedAt *time.Time `json:"reschedule_notified_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                   a.ID,
		DoctorID:             a.DoctorID,
		PatientID:            a.PatientID,
		Date:                 a.Date.Format("2006-01-02"),
		Time:                 a.StartTime.String(),
		AppointmentAt:        a.AppointmentAt,
		DurationMinutes:      a.DurationMinutes,
		Status:               string(a.Status),
		Notes:                a.Notes,
		ConfirmationSent:     a.ConfirmationSent,
		Reminder24hSent:      a.Reminder24hSent,
		Reminder24hSentAt:    a.Reminder24hSentAt,
		RescheduleNotifiedAt: a.RescheduleNotifiedAt,
		CreatedAt:            a.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
