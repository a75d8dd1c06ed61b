package notify

import (
	"context"
	"fmt"

	"github.com/medagenda/clinic-scheduling/internal/scheduling"
	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

// Sender delivers a rendered message to a patient contact. The real gateway
// (WhatsApp, SMS) lives behind this interface; only delivery, no retry
// policy, belongs here.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Service implements the scheduling notification port on top of a Sender.
type Service struct {
	sender Sender
	logger *logging.Logger
}

func NewService(sender Sender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sender: sender, logger: logger}
}

// Notify renders and sends one message for a lifecycle transition.
func (s *Service) Notify(ctx context.Context, n scheduling.Notification) error {
	if s.sender == nil {
		s.logger.Debug("no sender configured, dropping notification", "kind", n.Kind)
		return nil
	}
	if n.PatientPhone == nil || *n.PatientPhone == "" {
		s.logger.Debug("patient has no phone, dropping notification",
			"kind", n.Kind, "appointment_id", n.Appointment.ID)
		return nil
	}

	body := renderBody(n)
	if err := s.sender.Send(ctx, *n.PatientPhone, body); err != nil {
		return fmt.Errorf("notify %s: %w", n.Kind, err)
	}
	return nil
}

func renderBody(n scheduling.Notification) string {
	when := fmt.Sprintf("%s at %s",
		n.Appointment.Date.Format("Monday, January 2"),
		n.Appointment.AppointmentAt.Format("3:04 PM"))

	switch n.Kind {
	case scheduling.NotificationConfirmation:
		return fmt.Sprintf("Hi %s, your appointment is booked for %s. Reply YES to confirm.", n.PatientName, when)
	case scheduling.NotificationReschedule:
		return fmt.Sprintf("Hi %s, your appointment was moved to %s. Reply YES to confirm the new time.", n.PatientName, when)
	case scheduling.NotificationReminder:
		return fmt.Sprintf("Hi %s, a reminder: your appointment is %s.", n.PatientName, when)
	default:
		return fmt.Sprintf("Hi %s, update on your appointment: %s.", n.PatientName, when)
	}
}

// LogSender writes messages to the log instead of a gateway. Default in dev.
type LogSender struct {
	Logger *logging.Logger
}

func (l LogSender) Send(_ context.Context, to, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("outbound message", "to", to, "body", body)
	return nil
}
