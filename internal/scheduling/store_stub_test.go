package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used by the unit tests. It mirrors the
// SQL store's semantics: occupying-only range queries, compare-and-swap
// updates, idempotent reminder marking.
type memStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	hours        []WorkingHours
	blocked      []BlockedTimeSlot
	reminders    map[uuid.UUID]*Reminder
	events       []EventLog

	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		appointments: make(map[uuid.UUID]*Appointment),
		reminders:    make(map[uuid.UUID]*Reminder),
	}
}

func (m *memStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (m *memStore) CreateAppointment(_ context.Context, draft Draft) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:                 uuid.New(),
		PatientID:          draft.PatientID,
		StaffID:            draft.StaffID,
		ServiceID:          draft.ServiceID,
		Room:               draft.Room,
		StartTime:          draft.StartTime,
		EndTime:            draft.EndTime,
		Status:             StatusScheduled,
		Priority:           draft.Priority,
		ParentID:           draft.ParentID,
		Notes:              draft.Notes,
		EstimatedCostCents: draft.EstimatedCostCents,
		ReminderChannel:    draft.ReminderChannel,
		CreatedBy:          draft.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.appointments[appt.ID] = appt
	cp := *appt
	return &cp, nil
}

func (m *memStore) UpdateAppointment(_ context.Context, id uuid.UUID, patch Patch) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if patch.ExpectStatus != nil && appt.Status != *patch.ExpectStatus {
		return nil, ErrAppointmentNotFound
	}

	if patch.Status != nil {
		appt.Status = *patch.Status
	}
	if patch.StartTime != nil {
		appt.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		appt.EndTime = *patch.EndTime
	}
	if patch.Room != nil {
		appt.Room = *patch.Room
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}
	if patch.ActualCostCents != nil {
		appt.ActualCostCents = patch.ActualCostCents
	}
	if patch.CancellationReason != nil {
		appt.CancellationReason = patch.CancellationReason
	}
	if patch.CancelledBy != nil {
		appt.CancelledBy = patch.CancelledBy
	}
	if patch.CancelledAt != nil {
		appt.CancelledAt = patch.CancelledAt
	}
	if patch.FeedbackText != nil {
		appt.FeedbackText = patch.FeedbackText
	}
	if patch.FeedbackRating != nil {
		appt.FeedbackRating = patch.FeedbackRating
	}
	if patch.ReminderSentAt != nil {
		appt.ReminderSentAt = patch.ReminderSentAt
	}
	appt.UpdatedAt = time.Now().UTC()

	cp := *appt
	return &cp, nil
}

func (m *memStore) ListByStaffAndDateRange(_ context.Context, staffID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.appointments {
		if appt.StaffID == staffID && appt.Status.Occupying() && Overlaps(from, to, appt.StartTime, appt.EndTime) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memStore) ListByRoomAndDateRange(_ context.Context, room string, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.appointments {
		if appt.Room != "" && appt.Room == room && appt.Status.Occupying() && Overlaps(from, to, appt.StartTime, appt.EndTime) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memStore) ListByDateRange(_ context.Context, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.appointments {
		if Overlaps(from, to, appt.StartTime, appt.EndTime) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (m *memStore) ListByStatus(_ context.Context, status Status, day *time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.appointments {
		if appt.Status != status {
			continue
		}
		if day != nil {
			dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
			if appt.StartTime.Before(dayStart) || !appt.StartTime.Before(dayStart.Add(24*time.Hour)) {
				continue
			}
		}
		out = append(out, *appt)
	}
	return out, nil
}

func (m *memStore) GetWorkingHours(_ context.Context, staffID uuid.UUID, weekday time.Weekday) (*WorkingHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fallback *WorkingHours
	for i := range m.hours {
		wh := m.hours[i]
		if wh.Weekday != weekday {
			continue
		}
		if wh.StaffID != nil && *wh.StaffID == staffID {
			cp := wh
			return &cp, nil
		}
		if wh.StaffID == nil {
			cp := wh
			fallback = &cp
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrWorkingHoursNotFound
}

func (m *memStore) ListBlockedSlots(_ context.Context, staffID uuid.UUID, room string, _, _ time.Time) ([]BlockedTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BlockedTimeSlot
	for _, b := range m.blocked {
		if b.StaffID == nil || *b.StaffID == staffID || (room != "" && b.Room == room) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) CreateReminder(_ context.Context, rem Reminder) (*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rem.ID == uuid.Nil {
		rem.ID = uuid.New()
	}
	rem.CreatedAt = time.Now().UTC()
	m.reminders[rem.ID] = &rem
	cp := rem
	return &cp, nil
}

func (m *memStore) ListDueReminders(_ context.Context, now time.Time, limit int) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, rem := range m.reminders {
		if !rem.Sent && !rem.ScheduledFor.After(now) {
			out = append(out, *rem)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) (*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rem, ok := m.reminders[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	rem.Sent = true
	if rem.SentAt == nil {
		rem.SentAt = &at
	}
	cp := *rem
	return &cp, nil
}

func (m *memStore) MarkReminderFailed(_ context.Context, id uuid.UUID, sendErr string) (*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rem, ok := m.reminders[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	rem.RetryCount++
	rem.LastError = &sendErr
	cp := *rem
	return &cp, nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// stubLocker runs the critical section inline and records the keys it was
// asked to lock.
type stubLocker struct {
	mu       sync.Mutex
	lastKeys []string
	fail     error
}

func (l *stubLocker) WithScheduleLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.lastKeys = append([]string(nil), keys...)
	fail := l.fail
	l.mu.Unlock()
	if fail != nil {
		return fail
	}
	return fn(ctx)
}
