package scheduling

import (
	"sort"
	"time"
)

// ValidatePattern rejects patterns that cannot produce a finite, well-formed
// series starting at base.
func ValidatePattern(base time.Time, p RecurrencePattern) error {
	if !p.Frequency.Valid() {
		return invalidf("frequency", "must be one of daily, weekly, monthly")
	}
	if p.Interval < 1 {
		return invalidf("interval", "must be at least 1, got %d", p.Interval)
	}
	if p.EndDate.IsZero() {
		return invalidf("end_date", "is required")
	}
	if p.EndDate.Before(base) {
		return invalidf("end_date", "must not be before the first occurrence")
	}
	if p.MaxOccurrences < 0 {
		return invalidf("max_occurrences", "must not be negative")
	}
	if len(p.Weekdays) > 0 && p.Frequency != FreqWeekly {
		return invalidf("weekdays", "only weekly patterns accept a weekday set")
	}
	return nil
}

// OccurrenceStarts expands a pattern into the ordered start times of the
// series, the parent's own start first. The series ends at the earlier of
// the pattern's end date and its occurrence cap.
func OccurrenceStarts(base time.Time, p RecurrencePattern) []time.Time {
	capReached := func(n int) bool {
		return p.MaxOccurrences > 0 && n >= p.MaxOccurrences
	}

	// End-of-day bound so an end date equal to an occurrence's calendar day
	// still includes that occurrence.
	limit := time.Date(p.EndDate.Year(), p.EndDate.Month(), p.EndDate.Day(),
		23, 59, 59, 0, time.UTC)

	var starts []time.Time

	switch p.Frequency {
	case FreqDaily:
		for t := base; !t.After(limit) && !capReached(len(starts)); t = t.AddDate(0, 0, p.Interval) {
			starts = append(starts, t)
		}

	case FreqWeekly:
		if len(p.Weekdays) == 0 {
			for t := base; !t.After(limit) && !capReached(len(starts)); t = t.AddDate(0, 0, 7*p.Interval) {
				starts = append(starts, t)
			}
			break
		}

		days := append([]time.Weekday(nil), p.Weekdays...)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

		// Walk week by week from the parent's week, emitting the requested
		// weekdays at the parent's time of day. Occurrences before the
		// parent itself are skipped.
		weekStart := base.AddDate(0, 0, -int(base.Weekday()))
		for !capReached(len(starts)) {
			emitted := false
			for _, wd := range days {
				t := weekStart.AddDate(0, 0, int(wd))
				if t.Before(base) {
					continue
				}
				if t.After(limit) {
					return starts
				}
				if capReached(len(starts)) {
					return starts
				}
				starts = append(starts, t)
				emitted = true
			}
			if !emitted && weekStart.After(limit) {
				break
			}
			weekStart = weekStart.AddDate(0, 0, 7*p.Interval)
		}

	case FreqMonthly:
		for t := base; !t.After(limit) && !capReached(len(starts)); t = t.AddDate(0, p.Interval, 0) {
			starts = append(starts, t)
		}
	}

	return starts
}
