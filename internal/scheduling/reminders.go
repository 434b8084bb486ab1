package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brightclinic/scheduling/pkg/logging"
)

// Dispatcher delivers one reminder over its channel. Implementations live at
// the notification edge (SMS/email gateways); the scheduler only records the
// outcome on the reminder row.
type Dispatcher interface {
	Dispatch(ctx context.Context, rem Reminder) error
}

// LogDispatcher is the dev/sandbox dispatcher: it logs instead of sending.
type LogDispatcher struct {
	Logger *logging.Logger
}

func (d *LogDispatcher) Dispatch(_ context.Context, rem Reminder) error {
	d.Logger.Info("reminder dispatched",
		"reminder_id", rem.ID,
		"appointment_id", rem.AppointmentID,
		"channel", string(rem.Channel),
		"scheduled_for", rem.ScheduledFor)
	return nil
}

// newReminderFor builds the reminder row for an appointment, or nil when the
// appointment asks for no reminder. Reminders for appointments closer than
// the lead time fire immediately rather than in the past.
func newReminderFor(appt *Appointment, leadTime time.Duration, now time.Time) *Reminder {
	if appt.ReminderChannel == nil {
		return nil
	}

	scheduledFor := appt.StartTime.Add(-leadTime)
	if scheduledFor.Before(now) {
		scheduledFor = now
	}

	return &Reminder{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Channel:       *appt.ReminderChannel,
		ScheduledFor:  scheduledFor,
	}
}

// DispatchDueReminders loads due unsent reminders and pushes each through the
// dispatcher, marking sent or recording the failure. Delivery is at-least-once;
// MarkReminderSent is idempotent so a crash between dispatch and mark only
// risks a duplicate send, never a lost one.
func (s *Service) DispatchDueReminders(ctx context.Context, dispatcher Dispatcher, limit int) (sent, failed int, err error) {
	due, err := s.store.ListDueReminders(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, 0, err
	}

	for i := range due {
		rem := due[i]
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}

		if dispatchErr := dispatcher.Dispatch(ctx, rem); dispatchErr != nil {
			failed++
			s.metrics.ObserveReminder("failed")
			if _, markErr := s.store.MarkReminderFailed(ctx, rem.ID, dispatchErr.Error()); markErr != nil {
				s.logger.Error("mark reminder failed", "reminder_id", rem.ID, "error", markErr)
			}
			continue
		}

		if _, markErr := s.store.MarkReminderSent(ctx, rem.ID, time.Now().UTC()); markErr != nil {
			s.logger.Error("mark reminder sent", "reminder_id", rem.ID, "error", markErr)
			continue
		}
		sent++
		s.metrics.ObserveReminder("sent")
		s.logEvent(ctx, rem.AppointmentID, EventReminderSent, map[string]any{
			"reminder_id": rem.ID.String(),
			"channel":     string(rem.Channel),
		})
	}

	return sent, failed, nil
}
