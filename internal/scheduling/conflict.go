package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Overlaps is the authoritative overlap rule: half-open intervals [s1,e1)
// and [s2,e2) overlap iff s1 < e2 and s2 < e1.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Proposed is the interval a caller wants to book.
type Proposed struct {
	StaffID uuid.UUID
	Room    string // empty = no room requested
	Start   time.Time
	End     time.Time
}

// ConflictDetector scans the store for appointments overlapping a proposed
// interval. Detection alone is advisory: the create path re-runs it inside
// the schedule lock before writing.
type ConflictDetector struct {
	store Store
}

func NewConflictDetector(store Store) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// Check runs the staff scan and, when a room is requested, the room scan.
// excludeID skips one appointment id (reschedules exclude themselves).
// An empty result means the interval is free.
func (d *ConflictDetector) Check(ctx context.Context, p Proposed, excludeID *uuid.UUID) ([]Conflict, error) {
	var conflicts []Conflict

	staffAppts, err := d.store.ListByStaffAndDateRange(ctx, p.StaffID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("scan staff appointments: %w", err)
	}
	for i := range staffAppts {
		appt := &staffAppts[i]
		if skip(appt, excludeID) || !Overlaps(p.Start, p.End, appt.StartTime, appt.EndTime) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type: ConflictStaffBusy,
			Description: fmt.Sprintf("staff member already booked %s-%s",
				appt.StartTime.Format("15:04"), appt.EndTime.Format("15:04")),
			AppointmentID: appt.ID,
			Suggestion:    "choose another time or professional",
		})
	}

	if p.Room != "" {
		roomAppts, err := d.store.ListByRoomAndDateRange(ctx, p.Room, p.Start, p.End)
		if err != nil {
			return nil, fmt.Errorf("scan room appointments: %w", err)
		}
		for i := range roomAppts {
			appt := &roomAppts[i]
			if skip(appt, excludeID) || !Overlaps(p.Start, p.End, appt.StartTime, appt.EndTime) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type: ConflictRoomOccupied,
				Description: fmt.Sprintf("room %s already occupied %s-%s",
					p.Room, appt.StartTime.Format("15:04"), appt.EndTime.Format("15:04")),
				AppointmentID: appt.ID,
				Suggestion:    "choose another room or time",
			})
		}
	}

	return conflicts, nil
}

func skip(appt *Appointment, excludeID *uuid.UUID) bool {
	if !appt.Status.Occupying() {
		return true
	}
	return excludeID != nil && appt.ID == *excludeID
}
