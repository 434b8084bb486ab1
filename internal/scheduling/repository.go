package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrWorkingHoursNotFound = errors.New("working hours not configured")
	ErrReminderNotFound     = errors.New("reminder not found")
)

// Patch carries the mutable appointment fields of an update. Nil fields are
// left untouched; the store never interprets the combination, callers are
// responsible for coherent patches (e.g. cancellation fields together).
type Patch struct {
	// ExpectStatus makes the update compare-and-swap: the row is only
	// touched while its status still matches. A miss surfaces as
	// ErrAppointmentNotFound from the store.
	ExpectStatus *Status

	Status             *Status
	StartTime          *time.Time
	EndTime            *time.Time
	Room               *string
	Notes              *string
	ActualCostCents    *int64
	CancellationReason *string
	CancelledBy        *string
	CancelledAt        *time.Time
	FeedbackText       *string
	FeedbackRating     *int
	ReminderSentAt     *time.Time
}

// Store contains all persistence interactions needed by the scheduler.
type Store interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, draft Draft) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch Patch) (*Appointment, error)

	// Range queries back the conflict scans; both return occupying
	// appointments only (cancelled and no-show rows are filtered out).
	ListByStaffAndDateRange(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByRoomAndDateRange(ctx context.Context, room string, from, to time.Time) ([]Appointment, error)

	// ListByDateRange returns every appointment overlapping [from, to),
	// regardless of status. Used by the statistics aggregator.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error)
	ListByStatus(ctx context.Context, status Status, day *time.Time) ([]Appointment, error)

	// GetWorkingHours resolves the staff row for the weekday, falling back
	// to the clinic-wide row (NULL staff id) when the staff member has none.
	GetWorkingHours(ctx context.Context, staffID uuid.UUID, weekday time.Weekday) (*WorkingHours, error)
	ListBlockedSlots(ctx context.Context, staffID uuid.UUID, room string, from, to time.Time) ([]BlockedTimeSlot, error)

	// Reminders
	CreateReminder(ctx context.Context, rem Reminder) (*Reminder, error)
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (*Reminder, error)
	MarkReminderFailed(ctx context.Context, id uuid.UUID, sendErr string) (*Reminder, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
