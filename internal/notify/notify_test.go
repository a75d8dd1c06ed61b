package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

type recordingSender struct {
	to   string
	body string
	err  error
	sent int
}

func (r *recordingSender) Send(_ context.Context, to, body string) error {
	r.sent++
	r.to = to
	r.body = body
	return r.err
}

func strPtr(s string) *string { return &s }

func sampleNotification(kind scheduling.NotificationKind) scheduling.Notification {
	return scheduling.Notification{
		Kind: kind,
		Appointment: scheduling.Appointment{
			Date:          time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			StartTime:     scheduling.TimeOfDay{Hour: 15, Minute: 30},
			AppointmentAt: time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC),
		},
		PatientName:  "Ana Souza",
		PatientPhone: strPtr("+5511999990000"),
	}
}

func TestNotifySendsRenderedMessage(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, nil)

	err := svc.Notify(context.Background(), sampleNotification(scheduling.NotificationConfirmation))
	require.NoError(t, err)

	assert.Equal(t, 1, sender.sent)
	assert.Equal(t, "+5511999990000", sender.to)
	assert.Contains(t, sender.body, "Ana Souza")
	assert.Contains(t, sender.body, "Monday, June 2")
	assert.Contains(t, sender.body, "3:30 PM")
	assert.Contains(t, sender.body, "Reply YES to confirm")
}

func TestNotifyBodyVariesByKind(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, nil)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, sampleNotification(scheduling.NotificationReschedule)))
	assert.Contains(t, sender.body, "was moved to")

	require.NoError(t, svc.Notify(ctx, sampleNotification(scheduling.NotificationReminder)))
	assert.Contains(t, sender.body, "a reminder")
}

func TestNotifyDropsWithoutPhone(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, nil)

	n := sampleNotification(scheduling.NotificationConfirmation)
	n.PatientPhone = nil
	require.NoError(t, svc.Notify(context.Background(), n))

	n.PatientPhone = strPtr("")
	require.NoError(t, svc.Notify(context.Background(), n))

	assert.Equal(t, 0, sender.sent)
}

func TestNotifyDropsWithoutSender(t *testing.T) {
	svc := NewService(nil, nil)
	err := svc.Notify(context.Background(), sampleNotification(scheduling.NotificationConfirmation))
	assert.NoError(t, err)
}

func TestNotifyWrapsSenderError(t *testing.T) {
	gatewayErr := errors.New("gateway timeout")
	sender := &recordingSender{err: gatewayErr}
	svc := NewService(sender, nil)

	err := svc.Notify(context.Background(), sampleNotification(scheduling.NotificationReminder))
	require.Error(t, err)
	assert.ErrorIs(t, err, gatewayErr)
	assert.Contains(t, err.Error(), "notify reminder")
}
