package scheduling

import (
	"time"
)

// DefaultGranularity is the slot step used when the caller does not ask for
// a specific one.
const DefaultGranularity = 15 * time.Minute

// AvailabilityInput bundles the read-only inputs of a slot computation.
// The calculator itself never touches storage, so a computation can be
// re-run at any time and always yields the same sequence.
type AvailabilityInput struct {
	// Hours is the resolved working-hours row for the requested weekday.
	// A nil row or a non-working day yields no slots.
	Hours *WorkingHours
	// Blocked are the staff/room blocks touching the requested day.
	Blocked []BlockedTimeSlot
	// Existing are the occupying appointments of the staff member that day.
	Existing []Appointment
}

// ComputeSlots walks the staff member's open interval for the given UTC day
// in steps of granularity, emitting one candidate slot per step. A candidate
// spans serviceDuration and must fit entirely inside the open interval;
// candidates touching the break or a blocked interval are not emitted at all.
// Candidates overlapping an existing appointment are emitted unavailable.
func ComputeSlots(day time.Time, serviceDuration, granularity time.Duration, in AvailabilityInput) []Slot {
	if in.Hours == nil || !in.Hours.IsWorkingDay {
		return nil
	}
	if serviceDuration <= 0 || granularity <= 0 {
		return nil
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	openStart := dayStart.Add(time.Duration(in.Hours.StartMinute) * time.Minute)
	openEnd := dayStart.Add(time.Duration(in.Hours.EndMinute) * time.Minute)
	if !openEnd.After(openStart) {
		return nil
	}

	var breakStart, breakEnd time.Time
	hasBreak := in.Hours.BreakStartMinute != nil && in.Hours.BreakEndMinute != nil
	if hasBreak {
		breakStart = dayStart.Add(time.Duration(*in.Hours.BreakStartMinute) * time.Minute)
		breakEnd = dayStart.Add(time.Duration(*in.Hours.BreakEndMinute) * time.Minute)
	}

	var slots []Slot

	for start := openStart; !start.Add(serviceDuration).After(openEnd); start = start.Add(granularity) {
		end := start.Add(serviceDuration)

		if hasBreak && Overlaps(start, end, breakStart, breakEnd) {
			continue
		}
		if blockedWithin(day, start, end, in.Blocked) {
			continue
		}

		slot := Slot{Start: start, End: end, Available: true}
		for i := range in.Existing {
			appt := &in.Existing[i]
			if !appt.Status.Occupying() {
				continue
			}
			if Overlaps(start, end, appt.StartTime, appt.EndTime) {
				slot.Available = false
				slot.Reason = "slot occupied"
				break
			}
		}

		slots = append(slots, slot)
	}

	return slots
}

func blockedWithin(day, start, end time.Time, blocked []BlockedTimeSlot) bool {
	for i := range blocked {
		bs, be, ok := blocked[i].IntervalOn(day)
		if !ok {
			continue
		}
		if Overlaps(start, end, bs, be) {
			return true
		}
	}
	return false
}
