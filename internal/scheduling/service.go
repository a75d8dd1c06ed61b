package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/config"
	"github.com/medagenda/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/medagenda/clinic-scheduling/internal/redis"
	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

const (
	EventAppointmentCreated      = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled  = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled    = "APPOINTMENT_CANCELLED"
	EventAppointmentConfirmed    = "APPOINTMENT_CONFIRMED"
	EventAppointmentNotesUpdated = "APPOINTMENT_NOTES_UPDATED"
	EventAppointmentReminded     = "APPOINTMENT_REMINDED"
)

type NotificationKind string

const (
	NotificationConfirmation NotificationKind = "confirmation"
	NotificationReschedule   NotificationKind = "reschedule"
	NotificationReminder     NotificationKind = "reminder"
)

// Notification is what the service hands to the messaging collaborator
// after a transition has committed.
type Notification struct {
	Kind         NotificationKind
	Appointment  Appointment
	PatientName  string
	PatientPhone *string
}

// NotificationPort delivers a notification. It is invoked at most once per
// successful transition, strictly after the write committed; a failure is
// logged and never surfaces as a scheduling failure.
type NotificationPort interface {
	Notify(ctx context.Context, n Notification) error
}

// EventRecorder appends to the audit trail, best effort.
type EventRecorder interface {
	Record(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any)
}

// Service applies appointment lifecycle transitions. Create and Reschedule
// submit their writes optimistically: the store's uniqueness constraint over
// active slots arbitrates races, and the pre-check plus the per-slot lock
// only shave the conflict window.
type Service struct {
	repo     Repository
	guard    Guard
	locker   redisclient.Locker
	notifier NotificationPort
	events   EventRecorder
	metrics  *metrics.SchedulingMetrics
	cfg      config.Config
	logger   *logging.Logger

	now func() time.Time
}

func NewService(
	repo Repository,
	locker redisclient.Locker,
	notifier NotificationPort,
	events EventRecorder,
	m *metrics.SchedulingMetrics,
	cfg config.Config,
	logger *logging.Logger,
) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		events:   events,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create books a new appointment for a doctor's patient.
func (s *Service) Create(ctx context.Context, principal Principal, in CreateInput) (*Appointment, error) {
	start := time.Now()
	appt, err := s.create(ctx, principal, in)
	s.metrics.ObserveOperation("create", outcomeOf(err), time.Since(start))
	return appt, err
}

func (s *Service) create(ctx context.Context, principal Principal, in CreateInput) (*Appointment, error) {
	sl, err := in.validate()
	if err != nil {
		return nil, err
	}

	if err := s.guard.Authorize(principal, in.DoctorID); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetDoctorByID(ctx, in.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.DoctorID != in.DoctorID {
		return nil, &ValidationError{Fields: map[string]string{
			"patientId": "patient does not belong to this doctor",
		}}
	}

	duration := DefaultDurationMinutes
	if in.DurationMinutes != nil {
		duration = *in.DurationMinutes
	}

	// Cheap rejection before attempting the write. Read-time emptiness proves
	// nothing; the insert below is the actual guard.
	if existing, err := s.repo.FindActiveBySlot(ctx, in.DoctorID, sl.Date, sl.Time); err == nil && existing != nil {
		return nil, ErrSlotTaken
	} else if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		s.logger.Warn("slot pre-check failed, proceeding to write", "doctor_id", in.DoctorID, "error", err)
	}

	var created *Appointment
	key := SlotKey(in.DoctorID, sl.Date, sl.Time)

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateAppointment(lockCtx, CreateParams{
			DoctorID:        in.DoctorID,
			PatientID:       in.PatientID,
			Date:            sl.Date,
			StartTime:       sl.Time,
			DurationMinutes: duration,
			Notes:           in.Notes,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.recordEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       created.Date.Format("2006-01-02"),
		"time":       created.StartTime.String(),
	})

	if s.sendNotification(ctx, NotificationConfirmation, created, patient) {
		won, err := s.repo.MarkConfirmationSent(ctx, created.ID)
		if err != nil {
			s.logger.Error("mark confirmation sent failed", "appointment_id", created.ID, "error", err)
		} else if won {
			created.ConfirmationSent = true
		}
	}

	return created, nil
}

// Reschedule moves an appointment to a new slot. Ownership stays with the
// original doctor; the notification flags reset because the confirmation
// and reminder already sent describe a slot that no longer applies.
func (s *Service) Reschedule(ctx context.Context, principal Principal, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	start := time.Now()
	appt, err := s.reschedule(ctx, principal, id, in)
	s.metrics.ObserveOperation("reschedule", outcomeOf(err), time.Since(start))
	return appt, err
}

func (s *Service) reschedule(ctx context.Context, principal Principal, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	sl, err := in.validate()
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.guard.Authorize(principal, current.DoctorID); err != nil {
		return nil, err
	}

	if current.Status == StatusCancelled || current.Status == StatusCompleted {
		return nil, ErrAppointmentClosed
	}

	var updated *Appointment
	key := SlotKey(current.DoctorID, sl.Date, sl.Time)

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		appt, err := s.repo.RescheduleAppointment(lockCtx, id, RescheduleParams{
			Date:            sl.Date,
			StartTime:       sl.Time,
			DurationMinutes: in.DurationMinutes,
			Notes:           in.Notes,
			NotifiedAt:      s.now(),
		})
		if err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotTaken):
			return nil, ErrSlotTaken
		case errors.Is(err, ErrAppointmentNotFound):
			// The row existed above; a concurrent transition closed it.
			return nil, ErrAppointmentClosed
		default:
			return nil, fmt.Errorf("reschedule appointment: %w", err)
		}
	}

	s.recordEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from_date": current.Date.Format("2006-01-02"),
		"from_time": current.StartTime.String(),
		"to_date":   updated.Date.Format("2006-01-02"),
		"to_time":   updated.StartTime.String(),
	})
	s.notifyPatient(ctx, NotificationReschedule, updated)

	return updated, nil
}

// Cancel releases the appointment's slot. There is no uncancel.
func (s *Service) Cancel(ctx context.Context, principal Principal, id uuid.UUID) (*Appointment, error) {
	start := time.Now()
	appt, err := s.cancel(ctx, principal, id)
	s.metrics.ObserveOperation("cancel", outcomeOf(err), time.Since(start))
	return appt, err
}

func (s *Service) cancel(ctx context.Context, principal Principal, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.guard.Authorize(principal, current.DoctorID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, []Status{StatusScheduled, StatusConfirmed}, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAppointmentClosed
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.recordEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"date": updated.Date.Format("2006-01-02"),
		"time": updated.StartTime.String(),
	})

	return updated, nil
}

// Confirm applies the scheduled to confirmed transition driven by the
// patient-facing confirmation flow.
func (s *Service) Confirm(ctx context.Context, principal Principal, id uuid.UUID) (*Appointment, error) {
	start := time.Now()
	appt, err := s.confirm(ctx, principal, id)
	s.metrics.ObserveOperation("confirm", outcomeOf(err), time.Since(start))
	return appt, err
}

func (s *Service) confirm(ctx context.Context, principal Principal, id uuid.UUID) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.guard.Authorize(principal, current.DoctorID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, []Status{StatusScheduled}, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAppointmentClosed
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.recordEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})

	return updated, nil
}

// UpdateNotes replaces the free-text notes. No slot or state implication.
func (s *Service) UpdateNotes(ctx context.Context, principal Principal, id uuid.UUID, notes *string) (*Appointment, error) {
	start := time.Now()
	appt, err := s.updateNotes(ctx, principal, id, notes)
	s.metrics.ObserveOperation("update_notes", outcomeOf(err), time.Since(start))
	return appt, err
}

func (s *Service) updateNotes(ctx context.Context, principal Principal, id uuid.UUID, notes *string) (*Appointment, error) {
	if err := validateNotes(notes); err != nil {
		return nil, err
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.guard.Authorize(principal, current.DoctorID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateNotes(ctx, id, notes)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update notes: %w", err)
	}

	s.recordEvent(ctx, updated.ID, EventAppointmentNotesUpdated, map[string]any{})

	return updated, nil
}

// Get returns a single appointment the principal may see.
func (s *Service) Get(ctx context.Context, principal Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.guard.Authorize(principal, appt.DoctorID); err != nil {
		return nil, err
	}

	return appt, nil
}

// ListByDoctor returns a doctor's appointments, optionally date-bounded.
func (s *Service) ListByDoctor(ctx context.Context, principal Principal, doctorID uuid.UUID, f ListFilter) ([]Appointment, error) {
	if err := s.guard.Authorize(principal, doctorID); err != nil {
		return nil, err
	}

	appts, err := s.repo.ListByDoctor(ctx, doctorID, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// SendDueReminders sweeps active appointments starting within the reminder
// lead window and sends each at most one reminder. Called periodically by
// the reminder worker; safe to run concurrently thanks to the
// compare-and-set mark.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.FindDueReminders(ctx, now, now.Add(s.cfg.ReminderLead), 100)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		appt := &due[i]

		won, err := s.repo.MarkReminderSent(ctx, appt.ID, now)
		if err != nil {
			s.logger.Error("mark reminder sent failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		if !won {
			continue
		}

		appt.Reminder24hSent = true
		appt.Reminder24hSentAt = &now

		s.notifyPatient(ctx, NotificationReminder, appt)
		s.recordEvent(ctx, appt.ID, EventAppointmentReminded, map[string]any{
			"appointment_at": appt.AppointmentAt,
		})
		sent++
	}

	return sent, nil
}

// notifyPatient loads the patient contact and dispatches, all best effort.
func (s *Service) notifyPatient(ctx context.Context, kind NotificationKind, appt *Appointment) {
	if s.notifier == nil {
		return
	}

	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		s.logger.Warn("load patient for notification failed", "appointment_id", appt.ID, "error", err)
		s.metrics.NotificationFailure(string(kind))
		return
	}

	s.sendNotification(ctx, kind, appt, patient)
}

// sendNotification reports whether a message was actually dispatched, so the
// caller can mark confirmation bookkeeping only on delivery.
func (s *Service) sendNotification(ctx context.Context, kind NotificationKind, appt *Appointment, patient *Patient) bool {
	if s.notifier == nil {
		return false
	}

	// The write already committed; the dispatch must survive request
	// cancellation but not hang forever.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	n := Notification{
		Kind:         kind,
		Appointment:  *appt,
		PatientName:  patient.Name,
		PatientPhone: patient.Phone,
	}
	if err := s.notifier.Notify(notifyCtx, n); err != nil {
		s.logger.Error("notification dispatch failed",
			"kind", kind, "appointment_id", appt.ID, "error", err)
		s.metrics.NotificationFailure(string(kind))
		return false
	}

	return patient.Phone != nil && *patient.Phone != ""
}

func (s *Service) recordEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, appointmentID, eventType, payload)
}

func outcomeOf(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotTaken):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAppointmentClosed):
		return "closed"
	case errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.As(err, &verr):
		return "validation_failed"
	default:
		return "error"
	}
}
