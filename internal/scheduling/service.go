package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/brightclinic/scheduling/internal/config"
	"github.com/brightclinic/scheduling/internal/observability/metrics"
	redisclient "github.com/brightclinic/scheduling/internal/redis"
	"github.com/brightclinic/scheduling/pkg/logging"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventStatusChanged          = "STATUS_CHANGED"
	EventSeriesGenerated        = "SERIES_GENERATED"
	EventReminderSent           = "REMINDER_SENT"
)

type Service struct {
	store    Store
	locker   redisclient.Locker
	detector *ConflictDetector
	cfg      config.Config
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewService(store Store, locker redisclient.Locker, cfg config.Config, logger *logging.Logger, m *metrics.SchedulingMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		locker:   locker,
		detector: NewConflictDetector(store),
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// ComputeAvailability resolves the staff member's working hours, blocks and
// existing appointments for the day and runs the slot walk. A staff member
// with no working-hours row (and no clinic-wide fallback) simply has no slots.
func (s *Service) ComputeAvailability(ctx context.Context, staffID uuid.UUID, day time.Time, serviceDuration, granularity time.Duration) ([]Slot, error) {
	if serviceDuration <= 0 {
		return nil, invalidf("duration", "must be positive")
	}
	if granularity <= 0 {
		granularity = time.Duration(s.cfg.SlotGranularity) * time.Minute
	}

	started := time.Now()

	hours, err := s.store.GetWorkingHours(ctx, staffID, day.Weekday())
	if err != nil {
		if errors.Is(err, ErrWorkingHoursNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load working hours: %w", err)
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	blocked, err := s.store.ListBlockedSlots(ctx, staffID, "", dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load blocked slots: %w", err)
	}

	existing, err := s.store.ListByStaffAndDateRange(ctx, staffID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	slots := ComputeSlots(dayStart, serviceDuration, granularity, AvailabilityInput{
		Hours:    hours,
		Blocked:  blocked,
		Existing: existing,
	})

	s.metrics.ObserveSlotCompute(time.Since(started).Seconds())
	return slots, nil
}

// CheckConflicts validates the proposed interval and runs the detector.
func (s *Service) CheckConflicts(ctx context.Context, p Proposed, excludeID *uuid.UUID) ([]Conflict, error) {
	if p.StaffID == uuid.Nil {
		return nil, invalidf("staff_id", "is required")
	}
	if !p.End.After(p.Start) {
		return nil, invalidf("end_time", "must be after start_time")
	}

	conflicts, err := s.detector.Check(ctx, p, excludeID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveConflicts(len(conflicts))
	return conflicts, nil
}

// CreateAppointment performs the lock-wrapped check-then-insert. When the
// interval conflicts and force is false, no row is written and the conflicts
// come back as data for the caller to act on. With force, the row is written
// anyway and the conflicts are still reported.
func (s *Service) CreateAppointment(ctx context.Context, draft Draft, force bool) (*Appointment, []Conflict, error) {
	normalized, err := validateDraft(draft)
	if err != nil {
		return nil, nil, err
	}

	if normalized.ParentID != nil {
		parent, err := s.store.GetAppointment(ctx, *normalized.ParentID)
		if err != nil {
			return nil, nil, fmt.Errorf("load parent appointment: %w", err)
		}
		if parent.ParentID != nil {
			return nil, nil, invalidf("parent_id", "series are one level deep, %s is itself a child", parent.ID)
		}
	}

	created, conflicts, err := s.createLocked(ctx, normalized, force)
	if err != nil {
		return nil, conflicts, err
	}
	if created == nil {
		s.metrics.ObserveCreation("conflict")
		return nil, conflicts, nil
	}

	s.metrics.ObserveCreation("created")
	s.metrics.ObserveConflicts(len(conflicts))
	s.logger.Info("appointment created",
		"appointment_id", created.ID,
		"staff_id", created.StaffID,
		"start", created.StartTime,
		"forced", force && len(conflicts) > 0)

	return created, conflicts, nil
}

// createLocked holds the schedule locks for the staff member and room while
// re-checking conflicts and inserting. Two concurrent creations for
// overlapping intervals serialize here; the loser sees the winner's row
// during its own conflict re-check.
func (s *Service) createLocked(ctx context.Context, draft Draft, force bool) (*Appointment, []Conflict, error) {
	var (
		created   *Appointment
		conflicts []Conflict
	)

	keys := redisclient.LockKeys(draft.StaffID, draft.Room)
	err := s.locker.WithScheduleLock(ctx, keys, func(lockCtx context.Context) error {
		var err error
		conflicts, err = s.detector.Check(lockCtx, Proposed{
			StaffID: draft.StaffID,
			Room:    draft.Room,
			Start:   draft.StartTime,
			End:     draft.EndTime,
		}, nil)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if len(conflicts) > 0 && !force {
			return nil
		}

		created, err = s.store.CreateAppointment(lockCtx, draft)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		s.logEvent(lockCtx, created.ID, EventAppointmentCreated, map[string]any{
			"staff_id": draft.StaffID.String(),
			"start":    draft.StartTime,
			"end":      draft.EndTime,
			"forced":   force && len(conflicts) > 0,
		})

		if rem := newReminderFor(created, s.cfg.ReminderLeadTime, time.Now().UTC()); rem != nil {
			if _, remErr := s.store.CreateReminder(lockCtx, *rem); remErr != nil {
				s.logger.Error("create reminder", "appointment_id", created.ID, "error", remErr)
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrScheduleBusy
		}
		return nil, nil, err
	}

	return created, conflicts, nil
}

// Reschedule moves an appointment to a new interval (and optionally another
// room) under the same locking discipline as creation. Terminal appointments
// cannot move. Conflicts block the move and come back as data.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time, room *string) (*Appointment, []Conflict, error) {
	if !end.After(start) {
		return nil, nil, invalidf("end_time", "must be after start_time")
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if appt.Status.Terminal() {
		return nil, nil, &TransitionError{From: appt.Status, Action: "reschedule"}
	}

	newRoom := appt.Room
	if room != nil {
		newRoom = *room
	}

	keys := redisclient.LockKeys(appt.StaffID, appt.Room)
	if newRoom != appt.Room {
		keys = mergeKeys(keys, redisclient.LockKeys(appt.StaffID, newRoom))
	}

	var (
		updated   *Appointment
		conflicts []Conflict
	)

	err = s.locker.WithScheduleLock(ctx, keys, func(lockCtx context.Context) error {
		var err error
		conflicts, err = s.detector.Check(lockCtx, Proposed{
			StaffID: appt.StaffID,
			Room:    newRoom,
			Start:   start,
			End:     end,
		}, &id)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if len(conflicts) > 0 {
			return nil
		}

		updated, err = s.store.UpdateAppointment(lockCtx, id, Patch{
			StartTime: &start,
			EndTime:   &end,
			Room:      &newRoom,
		})
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		s.logEvent(lockCtx, id, EventAppointmentRescheduled, map[string]any{
			"start": start,
			"end":   end,
			"room":  newRoom,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrScheduleBusy
		}
		return nil, nil, err
	}

	if updated == nil {
		s.metrics.ObserveConflicts(len(conflicts))
		return nil, conflicts, nil
	}
	return updated, nil, nil
}

// TransitionOptions carries the side-effect inputs of a transition: the
// cancellation reason/actor and completion feedback.
type TransitionOptions struct {
	Reason         string
	By             string
	FeedbackText   *string
	FeedbackRating *int
}

// Transition applies one lifecycle action to an appointment. The status
// update is compare-and-swap on the status read here, so a concurrent
// transition makes the slower caller fail with a TransitionError instead of
// silently overwriting.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action Action, opts TransitionOptions) (*Appointment, error) {
	if !action.Valid() {
		return nil, invalidf("action", "unknown action %q", action)
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "error")
		return nil, err
	}

	next, err := NextStatus(appt.Status, action)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "rejected")
		return nil, err
	}

	patch := Patch{ExpectStatus: &appt.Status, Status: &next}

	switch action {
	case ActionCancel:
		if opts.Reason == "" {
			s.metrics.ObserveTransition(string(action), "rejected")
			return nil, invalidf("reason", "cancellation requires a non-empty reason")
		}
		now := time.Now().UTC()
		patch.CancellationReason = &opts.Reason
		patch.CancelledAt = &now
		if opts.By != "" {
			patch.CancelledBy = &opts.By
		}
	case ActionComplete:
		if opts.FeedbackRating != nil && (*opts.FeedbackRating < 1 || *opts.FeedbackRating > 5) {
			s.metrics.ObserveTransition(string(action), "rejected")
			return nil, invalidf("feedback_rating", "must be between 1 and 5")
		}
		patch.FeedbackText = opts.FeedbackText
		patch.FeedbackRating = opts.FeedbackRating
	}

	updated, err := s.store.UpdateAppointment(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// CAS miss or genuinely gone; re-read to tell the two apart.
			if current, reloadErr := s.store.GetAppointment(ctx, id); reloadErr == nil {
				s.metrics.ObserveTransition(string(action), "rejected")
				return nil, &TransitionError{From: current.Status, Action: action}
			}
		}
		s.metrics.ObserveTransition(string(action), "error")
		return nil, err
	}

	s.metrics.ObserveTransition(string(action), "ok")
	s.logEvent(ctx, id, EventStatusChanged, map[string]any{
		"action": string(action),
		"from":   string(appt.Status),
		"to":     string(next),
	})

	return updated, nil
}

// BulkResult reports one appointment's outcome within a bulk transition.
type BulkResult struct {
	ID    uuid.UUID
	Appt  *Appointment
	Error string
}

func (r BulkResult) OK() bool { return r.Error == "" }

// BulkTransition applies the same action to each id independently; one
// failure never aborts the rest of the batch.
func (s *Service) BulkTransition(ctx context.Context, ids []uuid.UUID, action Action, opts TransitionOptions) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		appt, err := s.Transition(ctx, id, action, opts)
		res := BulkResult{ID: id, Appt: appt}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// OccurrenceConflicts pairs one created occurrence with the conflicts it
// landed on.
type OccurrenceConflicts struct {
	AppointmentID uuid.UUID
	Start         time.Time
	Conflicts     []Conflict
}

// SeriesResult is the outcome of materializing a recurrence pattern: the
// chronologically ordered appointments (parent first) and any per-occurrence
// conflicts. Every occurrence is created; conflicts are reported, not
// swallowed, so the caller can rebook or cancel the collisions.
type SeriesResult struct {
	Appointments []Appointment
	Conflicts    []OccurrenceConflicts
}

// CreateSeries persists the base draft as the series parent and materializes
// the pattern into child appointments carrying a parent back-reference.
// Generation honors ctx cancellation between occurrences: it stops early and
// keeps what was already created.
func (s *Service) CreateSeries(ctx context.Context, draft Draft, pattern RecurrencePattern) (*SeriesResult, error) {
	normalized, err := validateDraft(draft)
	if err != nil {
		return nil, err
	}
	if normalized.ParentID != nil {
		return nil, invalidf("parent_id", "a series parent cannot itself be a child")
	}
	if err := ValidatePattern(normalized.StartTime, pattern); err != nil {
		return nil, err
	}

	starts := OccurrenceStarts(normalized.StartTime, pattern)
	duration := normalized.EndTime.Sub(normalized.StartTime)

	result := &SeriesResult{}
	var parentID uuid.UUID

	for i, start := range starts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		occurrence := normalized
		occurrence.StartTime = start
		occurrence.EndTime = start.Add(duration)
		if i > 0 {
			pid := parentID
			occurrence.ParentID = &pid
		}

		created, conflicts, err := s.createLocked(ctx, occurrence, true)
		if err != nil {
			return result, fmt.Errorf("create occurrence %d: %w", i, err)
		}

		if i == 0 {
			parentID = created.ID
		}
		result.Appointments = append(result.Appointments, *created)
		if len(conflicts) > 0 {
			s.metrics.ObserveConflicts(len(conflicts))
			result.Conflicts = append(result.Conflicts, OccurrenceConflicts{
				AppointmentID: created.ID,
				Start:         start,
				Conflicts:     conflicts,
			})
		}
	}

	s.logEvent(ctx, parentID, EventSeriesGenerated, map[string]any{
		"occurrences": len(result.Appointments),
		"conflicted":  len(result.Conflicts),
		"frequency":   string(pattern.Frequency),
	})
	s.logger.Info("recurrence series generated",
		"parent_id", parentID,
		"occurrences", len(result.Appointments),
		"conflicted", len(result.Conflicts))

	return result, nil
}

// Statistics aggregates the appointments overlapping [from, to).
func (s *Service) Statistics(ctx context.Context, from, to time.Time) (*Statistics, error) {
	if !to.After(from) {
		return nil, invalidf("to", "must be after from")
	}

	appointments, err := s.store.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments for statistics: %w", err)
	}

	stats := ComputeStatistics(appointments, from, to, time.Now().UTC())
	return &stats, nil
}

// GetAppointment retrieves one appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

// ListStaffSchedule returns the occupying appointments of one staff member
// in a range, for calendar rendering.
func (s *Service) ListStaffSchedule(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if !to.After(from) {
		return nil, invalidf("to", "must be after from")
	}
	return s.store.ListByStaffAndDateRange(ctx, staffID, from, to)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}

func validateDraft(draft Draft) (Draft, error) {
	if draft.PatientID == uuid.Nil {
		return draft, invalidf("patient_id", "is required")
	}
	if draft.StaffID == uuid.Nil {
		return draft, invalidf("staff_id", "is required")
	}
	if draft.ServiceID == uuid.Nil {
		return draft, invalidf("service_id", "is required")
	}
	if !draft.EndTime.After(draft.StartTime) {
		return draft, invalidf("end_time", "must be after start_time")
	}
	if draft.Priority == "" {
		draft.Priority = PriorityNormal
	}
	if !draft.Priority.Valid() {
		return draft, invalidf("priority", "unknown priority %q", draft.Priority)
	}
	if draft.ReminderChannel != nil && !draft.ReminderChannel.Valid() {
		return draft, invalidf("reminder_channel", "unknown channel %q", *draft.ReminderChannel)
	}
	return draft, nil
}

// mergeKeys unions two lock key sets, keeping the sorted acquisition order.
func mergeKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, k := range append(a, b...) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
