package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclinic/scheduling/internal/config"
	redisclient "github.com/brightclinic/scheduling/internal/redis"
)

func newTestService(store Store, locker redisclient.Locker) *Service {
	cfg := config.Config{
		ReminderLeadTime: 24 * time.Hour,
		SlotGranularity:  15,
	}
	return NewService(store, locker, cfg, nil, nil)
}

func validDraft(staffID uuid.UUID, start time.Time) Draft {
	return Draft{
		PatientID: uuid.New(),
		StaffID:   staffID,
		ServiceID: uuid.New(),
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
}

func TestCreateAppointmentSuccess(t *testing.T) {
	store := newMemStore()
	locker := &stubLocker{}
	svc := newTestService(store, locker)

	staffID := uuid.New()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	draft := validDraft(staffID, start)
	draft.Room = "room-1"

	created, conflicts, err := svc.CreateAppointment(context.Background(), draft, false)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Empty(t, conflicts)
	assert.Equal(t, StatusScheduled, created.Status)
	assert.Equal(t, PriorityNormal, created.Priority, "empty priority defaults to normal")

	// Both resources were locked, in sorted order.
	require.Len(t, locker.lastKeys, 2)
	assert.Equal(t, "lock:sched:room:room-1", locker.lastKeys[0])
	assert.Equal(t, "lock:sched:staff:"+staffID.String(), locker.lastKeys[1])

	// Creation is recorded in the event log.
	require.Len(t, store.events, 1)
	assert.Equal(t, EventAppointmentCreated, store.events[0].EventType)
}

func TestCreateAppointmentConflictBlocked(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})

	staffID := uuid.New()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	_, _, err := svc.CreateAppointment(context.Background(), validDraft(staffID, start), false)
	require.NoError(t, err)

	// Overlapping interval for the same staff member: no row, conflicts as data.
	created, conflicts, err := svc.CreateAppointment(context.Background(),
		validDraft(staffID, start.Add(30*time.Minute)), false)
	require.NoError(t, err)
	assert.Nil(t, created)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictStaffBusy, conflicts[0].Type)
	assert.Len(t, store.appointments, 1, "no second row written")
}

func TestCreateAppointmentForce(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})

	staffID := uuid.New()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	_, _, err := svc.CreateAppointment(context.Background(), validDraft(staffID, start), false)
	require.NoError(t, err)

	created, conflicts, err := svc.CreateAppointment(context.Background(),
		validDraft(staffID, start.Add(30*time.Minute)), true)
	require.NoError(t, err)
	require.NotNil(t, created, "force writes despite the conflict")
	require.Len(t, conflicts, 1, "the conflict is still reported")
	assert.Len(t, store.appointments, 2)
}

func TestCreateAppointmentValidation(t *testing.T) {
	svc := newTestService(newMemStore(), &stubLocker{})
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(*Draft)
		field  string
	}{
		{"missing patient", func(d *Draft) { d.PatientID = uuid.Nil }, "patient_id"},
		{"missing staff", func(d *Draft) { d.StaffID = uuid.Nil }, "staff_id"},
		{"missing service", func(d *Draft) { d.ServiceID = uuid.Nil }, "service_id"},
		{"end before start", func(d *Draft) { d.EndTime = d.StartTime.Add(-time.Minute) }, "end_time"},
		{"end equals start", func(d *Draft) { d.EndTime = d.StartTime }, "end_time"},
		{"bad priority", func(d *Draft) { d.Priority = "asap" }, "priority"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := validDraft(uuid.New(), start)
			tc.mutate(&draft)
			_, _, err := svc.CreateAppointment(context.Background(), draft, false)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCreateAppointmentLockBusy(t *testing.T) {
	svc := newTestService(newMemStore(), &stubLocker{fail: redisclient.ErrLockNotAcquired})

	_, _, err := svc.CreateAppointment(context.Background(),
		validDraft(uuid.New(), time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), false)
	assert.ErrorIs(t, err, ErrScheduleBusy)
}

func TestCreateAppointmentReminderRow(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})

	channel := ChannelSMS
	draft := validDraft(uuid.New(), time.Now().UTC().AddDate(0, 0, 7))
	draft.ReminderChannel = &channel

	created, _, err := svc.CreateAppointment(context.Background(), draft, false)
	require.NoError(t, err)

	require.Len(t, store.reminders, 1)
	for _, rem := range store.reminders {
		assert.Equal(t, created.ID, rem.AppointmentID)
		assert.Equal(t, ChannelSMS, rem.Channel)
		assert.Equal(t, created.StartTime.Add(-24*time.Hour), rem.ScheduledFor)
	}

	// No channel requested, no reminder row.
	store2 := newMemStore()
	svc2 := newTestService(store2, &stubLocker{})
	_, _, err = svc2.CreateAppointment(context.Background(),
		validDraft(uuid.New(), time.Now().UTC().AddDate(0, 0, 7)), false)
	require.NoError(t, err)
	assert.Empty(t, store2.reminders)
}

func TestTransitionCancelRequiresReason(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})

	created, _, err := svc.CreateAppointment(context.Background(),
		validDraft(uuid.New(), time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), false)
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), created.ID, ActionCancel, TransitionOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)

	// The appointment is untouched.
	appt, err := store.GetAppointment(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	updated, err := svc.Transition(context.Background(), created.ID, ActionCancel, TransitionOptions{
		Reason: "patient request",
		By:     "front-desk",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	require.NotNil(t, updated.CancellationReason)
	assert.Equal(t, "patient request", *updated.CancellationReason)
	require.NotNil(t, updated.CancelledBy)
	assert.Equal(t, "front-desk", *updated.CancelledBy)
	assert.NotNil(t, updated.CancelledAt)
}

func TestTransitionLifecycle(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	created, _, err := svc.CreateAppointment(ctx,
		validDraft(uuid.New(), time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), false)
	require.NoError(t, err)

	appt, err := svc.Transition(ctx, created.ID, ActionConfirm, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)

	appt, err = svc.Transition(ctx, created.ID, ActionStart, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, appt.Status)

	rating := 5
	note := "great service"
	appt, err = svc.Transition(ctx, created.ID, ActionComplete, TransitionOptions{
		FeedbackText:   &note,
		FeedbackRating: &rating,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)
	require.NotNil(t, appt.FeedbackRating)
	assert.Equal(t, 5, *appt.FeedbackRating)

	// Terminal: nothing else applies.
	_, err = svc.Transition(ctx, created.ID, ActionCancel, TransitionOptions{Reason: "x"})
	assert.True(t, IsTransition(err), "cancel after completion should be rejected, got %v", err)
}

func TestTransitionRejectsBadFeedbackRating(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	created, _, err := svc.CreateAppointment(ctx,
		validDraft(uuid.New(), time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), false)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, created.ID, ActionConfirm, TransitionOptions{})
	require.NoError(t, err)

	for _, rating := range []int{0, 6, -1} {
		r := rating
		_, err := svc.Transition(ctx, created.ID, ActionComplete, TransitionOptions{FeedbackRating: &r})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "rating %d", rating)
		assert.Equal(t, "feedback_rating", verr.Field)
	}
}

func TestTransitionUnknownAppointment(t *testing.T) {
	svc := newTestService(newMemStore(), &stubLocker{})
	_, err := svc.Transition(context.Background(), uuid.New(), ActionConfirm, TransitionOptions{})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestBulkTransitionPartialFailure(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	a, _, err := svc.CreateAppointment(ctx, validDraft(uuid.New(), time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), false)
	require.NoError(t, err)
	b, _, err := svc.CreateAppointment(ctx, validDraft(uuid.New(), time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)), false)
	require.NoError(t, err)

	// b is already confirmed, so a second confirm fails; a succeeds.
	_, err = svc.Transition(ctx, b.ID, ActionConfirm, TransitionOptions{})
	require.NoError(t, err)

	missing := uuid.New()
	results := svc.BulkTransition(ctx, []uuid.UUID{a.ID, b.ID, missing}, ActionConfirm, TransitionOptions{})
	require.Len(t, results, 3)

	assert.True(t, results[0].OK())
	assert.Equal(t, StatusConfirmed, results[0].Appt.Status)

	assert.False(t, results[1].OK())
	assert.Equal(t, b.ID, results[1].ID)

	assert.False(t, results[2].OK())
	assert.Equal(t, missing, results[2].ID)
}

func TestRescheduleSuccess(t *testing.T) {
	store := newMemStore()
	locker := &stubLocker{}
	svc := newTestService(store, locker)
	ctx := context.Background()

	staffID := uuid.New()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	draft := validDraft(staffID, start)
	draft.Room = "room-1"
	created, _, err := svc.CreateAppointment(ctx, draft, false)
	require.NoError(t, err)

	newStart := start.Add(3 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	newRoom := "room-2"
	updated, conflicts, err := svc.Reschedule(ctx, created.ID, newStart, newEnd, &newRoom)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, newStart, updated.StartTime)
	assert.Equal(t, "room-2", updated.Room)

	// Old and new room keys both held, plus the staff key, sorted.
	assert.Equal(t, []string{
		"lock:sched:room:room-1",
		"lock:sched:room:room-2",
		"lock:sched:staff:" + staffID.String(),
	}, locker.lastKeys)
}

func TestRescheduleConflictBlocked(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	staffID := uuid.New()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	_, _, err := svc.CreateAppointment(ctx, validDraft(staffID, start), false)
	require.NoError(t, err)
	second, _, err := svc.CreateAppointment(ctx, validDraft(staffID, start.Add(2*time.Hour)), false)
	require.NoError(t, err)

	// Moving the second onto the first is blocked.
	updated, conflicts, err := svc.Reschedule(ctx, second.ID, start.Add(30*time.Minute), start.Add(90*time.Minute), nil)
	require.NoError(t, err)
	assert.Nil(t, updated)
	require.Len(t, conflicts, 1)

	appt, err := store.GetAppointment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, start.Add(2*time.Hour), appt.StartTime, "appointment did not move")
}

func TestRescheduleExcludesItself(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	staffID := uuid.New()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	created, _, err := svc.CreateAppointment(ctx, validDraft(staffID, start), false)
	require.NoError(t, err)

	// Shifting by 15 minutes overlaps the old interval, which must not
	// count as a conflict with itself.
	updated, conflicts, err := svc.Reschedule(ctx, created.ID,
		start.Add(15*time.Minute), start.Add(75*time.Minute), nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	require.NotNil(t, updated)
	assert.Equal(t, start.Add(15*time.Minute), updated.StartTime)
}

func TestRescheduleTerminalRejected(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	created, _, err := svc.CreateAppointment(ctx,
		validDraft(uuid.New(), time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), false)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, created.ID, ActionCancel, TransitionOptions{Reason: "patient request"})
	require.NoError(t, err)

	_, _, err = svc.Reschedule(ctx, created.ID,
		time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 4, 11, 0, 0, 0, time.UTC), nil)
	assert.True(t, IsTransition(err), "rescheduling a cancelled appointment should fail, got %v", err)
}

func TestCreateSeries(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	staffID := uuid.New()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	result, err := svc.CreateSeries(ctx, validDraft(staffID, base), RecurrencePattern{
		Frequency: FreqWeekly,
		Interval:  1,
		EndDate:   time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Appointments, 4)
	assert.Empty(t, result.Conflicts)

	parent := result.Appointments[0]
	assert.Nil(t, parent.ParentID)
	for i, child := range result.Appointments[1:] {
		require.NotNil(t, child.ParentID, "occurrence %d", i+1)
		assert.Equal(t, parent.ID, *child.ParentID)
		assert.Equal(t, base.AddDate(0, 0, 7*(i+1)), child.StartTime)
		assert.Equal(t, time.Hour, child.EndTime.Sub(child.StartTime), "duration preserved")
	}
}

func TestCreateSeriesReportsOccurrenceConflicts(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	staffID := uuid.New()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	// Pre-book the second Monday.
	_, _, err := svc.CreateAppointment(ctx, validDraft(staffID, base.AddDate(0, 0, 7)), false)
	require.NoError(t, err)

	result, err := svc.CreateSeries(ctx, validDraft(staffID, base), RecurrencePattern{
		Frequency: FreqWeekly,
		Interval:  1,
		EndDate:   time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// All four occurrences still exist; the collision is reported.
	require.Len(t, result.Appointments, 4)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, base.AddDate(0, 0, 7), result.Conflicts[0].Start)
	require.Len(t, result.Conflicts[0].Conflicts, 1)
	assert.Equal(t, ConflictStaffBusy, result.Conflicts[0].Conflicts[0].Type)
}

func TestCreateSeriesStopsOnCancelledContext(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.CreateSeries(ctx, validDraft(uuid.New(), time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		RecurrencePattern{
			Frequency: FreqDaily,
			Interval:  1,
			EndDate:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Appointments)
}

func TestCreateSeriesRejectsChildAsParent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})

	pid := uuid.New()
	draft := validDraft(uuid.New(), time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	draft.ParentID = &pid

	_, err := svc.CreateSeries(context.Background(), draft, RecurrencePattern{
		Frequency: FreqDaily,
		Interval:  1,
		EndDate:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "parent_id", verr.Field)
}

func TestComputeAvailabilityNoWorkingHours(t *testing.T) {
	svc := newTestService(newMemStore(), &stubLocker{})

	slots, err := svc.ComputeAvailability(context.Background(), uuid.New(),
		time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 30*time.Minute, 0)
	require.NoError(t, err)
	assert.Nil(t, slots)
}

func TestServiceStatistics(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubLocker{})
	ctx := context.Background()

	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	created, _, err := svc.CreateAppointment(ctx, validDraft(uuid.New(), start), false)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, created.ID, ActionCancel, TransitionOptions{Reason: "patient request"})
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.InDelta(t, 100.0, stats.CancellationRate, 1e-9)

	_, err = svc.Statistics(ctx, start, start)
	assert.True(t, IsValidation(err), "empty range should be rejected")
}
