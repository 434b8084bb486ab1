package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, patient_id, staff_id, service_id, room,
		start_time, end_time, status, priority, parent_id, notes,
		estimated_cost_cents, actual_cost_cents,
		cancellation_reason, cancelled_by, cancelled_at,
		feedback_text, feedback_rating,
		reminder_channel, reminder_sent_at,
		created_by, created_at, updated_at`

const reminderColumns = `id, appointment_id, channel, scheduled_for, sent,
		sent_at, retry_count, last_error, created_at`

// pgDB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgStore struct {
	db pgDB
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PgStore{db: pool}
}

// NewPgStoreWithDB allows injecting a mock database for testing.
func NewPgStoreWithDB(db pgDB) *PgStore {
	return &PgStore{db: db}
}

// Scan helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var channel *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.StaffID,
		&a.ServiceID,
		&a.Room,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Priority,
		&a.ParentID,
		&a.Notes,
		&a.EstimatedCostCents,
		&a.ActualCostCents,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.FeedbackText,
		&a.FeedbackRating,
		&channel,
		&a.ReminderSentAt,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if channel != nil {
		c := ReminderChannel(*channel)
		a.ReminderChannel = &c
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanWorkingHours(row pgx.Row) (*WorkingHours, error) {
	var wh WorkingHours
	var weekday int

	err := row.Scan(
		&wh.ID,
		&wh.StaffID,
		&weekday,
		&wh.StartMinute,
		&wh.EndMinute,
		&wh.BreakStartMinute,
		&wh.BreakEndMinute,
		&wh.IsWorkingDay,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkingHoursNotFound
		}
		return nil, err
	}

	wh.Weekday = time.Weekday(weekday)
	return &wh, nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rem Reminder

	err := row.Scan(
		&rem.ID,
		&rem.AppointmentID,
		&rem.Channel,
		&rem.ScheduledFor,
		&rem.Sent,
		&rem.SentAt,
		&rem.RetryCount,
		&rem.LastError,
		&rem.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	return &rem, nil
}

// Interface methods

func (r *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgStore) CreateAppointment(ctx context.Context, draft Draft) (*Appointment, error) {
	id := uuid.New()

	var channel *string
	if draft.ReminderChannel != nil {
		c := string(*draft.ReminderChannel)
		channel = &c
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, staff_id, service_id, room,
			start_time, end_time, status, priority, parent_id, notes,
			estimated_cost_cents, reminder_channel, created_by,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, draft.PatientID, draft.StaffID, draft.ServiceID, draft.Room,
		draft.StartTime, draft.EndTime, draft.Priority, draft.ParentID,
		draft.Notes, draft.EstimatedCostCents, channel, draft.CreatedBy)

	return scanAppointment(row)
}

func (r *PgStore) UpdateAppointment(ctx context.Context, id uuid.UUID, patch Patch) (*Appointment, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	next := 2

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.StartTime != nil {
		add("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if patch.Room != nil {
		add("room", *patch.Room)
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.ActualCostCents != nil {
		add("actual_cost_cents", *patch.ActualCostCents)
	}
	if patch.CancellationReason != nil {
		add("cancellation_reason", *patch.CancellationReason)
	}
	if patch.CancelledBy != nil {
		add("cancelled_by", *patch.CancelledBy)
	}
	if patch.CancelledAt != nil {
		add("cancelled_at", *patch.CancelledAt)
	}
	if patch.FeedbackText != nil {
		add("feedback_text", *patch.FeedbackText)
	}
	if patch.FeedbackRating != nil {
		add("feedback_rating", *patch.FeedbackRating)
	}
	if patch.ReminderSentAt != nil {
		add("reminder_sent_at", *patch.ReminderSentAt)
	}

	where := "WHERE id = $1"
	if patch.ExpectStatus != nil {
		where += fmt.Sprintf(" AND status = $%d", next)
		args = append(args, *patch.ExpectStatus)
	}

	query := fmt.Sprintf(`
		UPDATE appointments
		SET %s
		%s
		RETURNING %s
	`, strings.Join(sets, ", "), where, appointmentColumns)

	return scanAppointment(r.db.QueryRow(ctx, query, args...))
}

func (r *PgStore) ListByStaffAndDateRange(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE staff_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND status NOT IN ('cancelled', 'no_show')
		ORDER BY start_time
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgStore) ListByRoomAndDateRange(ctx context.Context, room string, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE room = $1
		  AND room <> ''
		  AND start_time < $3
		  AND end_time > $2
		  AND status NOT IN ('cancelled', 'no_show')
		ORDER BY start_time
	`, room, from, to)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgStore) ListByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time < $2
		  AND end_time > $1
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgStore) ListByStatus(ctx context.Context, status Status, day *time.Time) ([]Appointment, error) {
	if day == nil {
		rows, err := r.db.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE status = $1
			ORDER BY start_time
		`, status)
		if err != nil {
			return nil, err
		}
		return scanAppointments(rows)
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, status, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// GetWorkingHours prefers the staff member's own row; the clinic-wide row
// (NULL staff_id) is the fallback.
func (r *PgStore) GetWorkingHours(ctx context.Context, staffID uuid.UUID, weekday time.Weekday) (*WorkingHours, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, staff_id, weekday, start_minute, end_minute,
		       break_start_minute, break_end_minute, is_working_day
		FROM working_hours
		WHERE (staff_id = $1 OR staff_id IS NULL)
		  AND weekday = $2
		ORDER BY staff_id NULLS LAST
		LIMIT 1
	`, staffID, int(weekday))
	return scanWorkingHours(row)
}

func (r *PgStore) ListBlockedSlots(ctx context.Context, staffID uuid.UUID, room string, from, to time.Time) ([]BlockedTimeSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, staff_id, room, start_time, end_time, reason, recurs_weekly
		FROM blocked_time_slots
		WHERE (staff_id = $1 OR staff_id IS NULL OR ($2 <> '' AND room = $2))
		  AND (recurs_weekly OR (start_time < $4 AND end_time > $3))
		ORDER BY start_time
	`, staffID, room, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedTimeSlot
	for rows.Next() {
		var b BlockedTimeSlot
		if err := rows.Scan(&b.ID, &b.StaffID, &b.Room, &b.StartTime, &b.EndTime, &b.Reason, &b.RecursWeekly); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgStore) CreateReminder(ctx context.Context, rem Reminder) (*Reminder, error) {
	id := rem.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointment_reminders (id, appointment_id, channel, scheduled_for, sent, retry_count, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, now())
		RETURNING `+reminderColumns+`
	`, id, rem.AppointmentID, rem.Channel, rem.ScheduledFor)
	return scanReminder(row)
}

func (r *PgStore) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM appointment_reminders
		WHERE sent = FALSE
		  AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkReminderSent is idempotent: the first call fixes sent_at, repeat calls
// leave it untouched.
func (r *PgStore) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (*Reminder, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointment_reminders
		SET sent = TRUE,
		    sent_at = COALESCE(sent_at, $2)
		WHERE id = $1
		RETURNING `+reminderColumns+`
	`, id, at)
	return scanReminder(row)
}

func (r *PgStore) MarkReminderFailed(ctx context.Context, id uuid.UUID, sendErr string) (*Reminder, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointment_reminders
		SET retry_count = retry_count + 1,
		    last_error = $2
		WHERE id = $1
		RETURNING `+reminderColumns+`
	`, id, sendErr)
	return scanReminder(row)
}

func (r *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
