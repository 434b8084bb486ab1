package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Occupying reports whether an appointment in this status blocks the calendar.
// Cancelled and no-show appointments free their interval.
func (s Status) Occupying() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ReminderChannel string

const (
	ChannelSMS      ReminderChannel = "sms"
	ChannelEmail    ReminderChannel = "email"
	ChannelWhatsApp ReminderChannel = "whatsapp"
)

func (c ReminderChannel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp:
		return true
	}
	return false
}

// Appointment is the central scheduling entity. All foreign ids are opaque
// references; the scheduler never dereferences them beyond conflict checks.
// Times are UTC with half-open interval semantics: [StartTime, EndTime).
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	Room      string // empty = no room assigned

	StartTime time.Time
	EndTime   time.Time

	Status   Status
	Priority Priority

	// ParentID links a generated occurrence back to its series parent.
	// Series are exactly one level deep: a parent never has a ParentID.
	ParentID *uuid.UUID

	Notes              string
	EstimatedCostCents *int64
	ActualCostCents    *int64

	CancellationReason *string
	CancelledBy        *string
	CancelledAt        *time.Time

	FeedbackText   *string
	FeedbackRating *int

	ReminderChannel *ReminderChannel
	ReminderSentAt  *time.Time

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Draft carries the caller-supplied fields of a new appointment.
type Draft struct {
	PatientID uuid.UUID
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	Room      string

	StartTime time.Time
	EndTime   time.Time

	Priority           Priority
	ParentID           *uuid.UUID
	Notes              string
	EstimatedCostCents *int64
	ReminderChannel    *ReminderChannel
	CreatedBy          string
}

// WorkingHours describes one weekday of a staff member's schedule.
// A nil StaffID marks the clinic-wide default row used when the staff member
// has no row of their own. Minutes count from midnight.
type WorkingHours struct {
	ID               int64
	StaffID          *uuid.UUID
	Weekday          time.Weekday
	StartMinute      int
	EndMinute        int
	BreakStartMinute *int
	BreakEndMinute   *int
	IsWorkingDay     bool
}

// BlockedTimeSlot marks a staff- or room-scoped interval unavailable
// (vacation, maintenance, holiday). RecursWeekly re-projects the interval
// onto every later week on the same weekday.
type BlockedTimeSlot struct {
	ID           int64
	StaffID      *uuid.UUID
	Room         string
	StartTime    time.Time
	EndTime      time.Time
	Reason       string
	RecursWeekly bool
}

// IntervalOn returns the blocked interval projected onto the given UTC day,
// and whether the block applies to that day at all.
func (b *BlockedTimeSlot) IntervalOn(day time.Time) (start, end time.Time, ok bool) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	if !b.RecursWeekly {
		if b.EndTime.After(dayStart) && b.StartTime.Before(dayEnd) {
			return b.StartTime, b.EndTime, true
		}
		return time.Time{}, time.Time{}, false
	}

	if day.Before(b.StartTime.Truncate(24*time.Hour)) || b.StartTime.Weekday() != day.Weekday() {
		return time.Time{}, time.Time{}, false
	}

	start = time.Date(day.Year(), day.Month(), day.Day(),
		b.StartTime.Hour(), b.StartTime.Minute(), 0, 0, time.UTC)
	end = start.Add(b.EndTime.Sub(b.StartTime))
	return start, end, true
}

type RecurrenceFrequency string

const (
	FreqDaily   RecurrenceFrequency = "daily"
	FreqWeekly  RecurrenceFrequency = "weekly"
	FreqMonthly RecurrenceFrequency = "monthly"
)

func (f RecurrenceFrequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return true
	}
	return false
}

// RecurrencePattern is consumed once to materialize a finite series; it is
// not persisted as a live object afterwards.
type RecurrencePattern struct {
	Frequency RecurrenceFrequency
	Interval  int // every N units, >= 1
	// Weekdays narrows weekly patterns to specific days. Empty = the
	// parent's weekday only.
	Weekdays []time.Weekday
	EndDate  time.Time
	// MaxOccurrences caps the series size including the parent. 0 = no cap.
	MaxOccurrences int
}

// Reminder is written by the scheduler and consumed by an external
// dispatcher under an at-least-once contract; MarkSent is idempotent.
type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Channel       ReminderChannel
	ScheduledFor  time.Time
	Sent          bool
	SentAt        *time.Time
	RetryCount    int
	LastError     *string
	CreatedAt     time.Time
}

// Slot is a candidate appointment interval evaluated for availability.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
	Reason    string // set when unavailable
}

type ConflictType string

const (
	ConflictStaffBusy    ConflictType = "staff_busy"
	ConflictRoomOccupied ConflictType = "room_occupied"
)

// Conflict describes one overlap between a proposed interval and an
// existing appointment. Conflicts are data, not errors: callers decide
// whether to pick another slot or force the creation.
type Conflict struct {
	Type          ConflictType
	Description   string
	AppointmentID uuid.UUID
	Suggestion    string
}

type StatusCount struct {
	Status     Status
	Count      int
	Percentage float64
}

type HourBucket struct {
	Hour  int // 0-23
	Count int
}

type DayBucket struct {
	Date  string // YYYY-MM-DD
	Count int
}

// Statistics is a read-only aggregate over a date range.
type Statistics struct {
	RangeStart time.Time
	RangeEnd   time.Time

	Total     int
	Today     int
	ThisWeek  int
	ThisMonth int

	ByStatus []StatusCount

	CompletionRate   float64
	CancellationRate float64
	NoShowRate       float64

	BusiestHours []HourBucket
	DailyTrend   []DayBucket
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
