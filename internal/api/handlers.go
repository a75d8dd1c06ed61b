package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/identity"
	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

// SchedulingService is what the handlers need from the lifecycle core.
type SchedulingService interface {
	Create(ctx context.Context, principal scheduling.Principal, in scheduling.CreateInput) (*scheduling.Appointment, error)
	Reschedule(ctx context.Context, principal scheduling.Principal, id uuid.UUID, in scheduling.RescheduleInput) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, principal scheduling.Principal, id uuid.UUID) (*scheduling.Appointment, error)
	Confirm(ctx context.Context, principal scheduling.Principal, id uuid.UUID) (*scheduling.Appointment, error)
	UpdateNotes(ctx context.Context, principal scheduling.Principal, id uuid.UUID, notes *string) (*scheduling.Appointment, error)
	Get(ctx context.Context, principal scheduling.Principal, id uuid.UUID) (*scheduling.Appointment, error)
	ListByDoctor(ctx context.Context, principal scheduling.Principal, doctorID uuid.UUID, f scheduling.ListFilter) ([]scheduling.Appointment, error)
}

func createAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), principal, scheduling.CreateInput{
			DoctorID:        doctorID,
			PatientID:       patientID,
			Date:            req.Date,
			Time:            req.Time,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, id, ok := principalAndID(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), principal, id, scheduling.RescheduleInput{
			Date:            req.Date,
			Time:            req.Time,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, id, ok := principalAndID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), principal, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, id, ok := principalAndID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), principal, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateNotesHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, id, ok := principalAndID(w, r)
		if !ok {
			return
		}

		var req UpdateNotesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateNotes(r.Context(), principal, id, req.Notes)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, id, ok := principalAndID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), principal, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listDoctorAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := identity.PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
			return
		}

		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		appts, err := svc.ListByDoctor(r.Context(), principal, doctorID, filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseListFilter(r *http.Request) (scheduling.ListFilter, error) {
	var f scheduling.ListFilter

	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errors.New("from must be YYYY-MM-DD")
		}
		f.From = &d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errors.New("to must be YYYY-MM-DD")
		}
		f.To = &d
	}

	return f, nil
}

func principalAndID(w http.ResponseWriter, r *http.Request) (scheduling.Principal, uuid.UUID, bool) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal on request")
		return scheduling.Principal{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return scheduling.Principal{}, uuid.Nil, false
	}

	return principal, id, true
}

func handleServiceError(w http.ResponseWriter, err error) {
	var verr *scheduling.ValidationError

	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr.Fields)
	case errors.Is(err, scheduling.ErrForbidden):
		// Deliberately uniform, so ownership failures cannot be used to
		// enumerate doctors or appointments.
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "that time is already taken, pick another")
	case errors.Is(err, scheduling.ErrAppointmentClosed):
		writeError(w, http.StatusConflict, "appointment_closed", "appointment can no longer be changed")
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", "doctor not found")
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", "patient not found")
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, retry shortly")
	}
}
