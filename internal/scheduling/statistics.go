package scheduling

import (
	"sort"
	"time"
)

// statusOrder fixes the emission order of per-status counts.
var statusOrder = []Status{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// ComputeStatistics aggregates a snapshot of appointments into counts, rates
// and time distributions. All percentages are 0 when the total is 0.
func ComputeStatistics(appointments []Appointment, from, to, now time.Time) Statistics {
	stats := Statistics{
		RangeStart: from,
		RangeEnd:   to,
		Total:      len(appointments),
	}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	todayEnd := todayStart.Add(24 * time.Hour)
	weekStart := startOfWeek(todayStart)
	weekEnd := weekStart.AddDate(0, 0, 7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	statusCounts := make(map[Status]int)
	hourCounts := make(map[int]int)
	dayCounts := make(map[string]int)

	for i := range appointments {
		appt := &appointments[i]
		statusCounts[appt.Status]++
		hourCounts[appt.StartTime.Hour()]++
		dayCounts[appt.StartTime.Format("2006-01-02")]++

		start := appt.StartTime
		if !start.Before(todayStart) && start.Before(todayEnd) {
			stats.Today++
		}
		if !start.Before(weekStart) && start.Before(weekEnd) {
			stats.ThisWeek++
		}
		if !start.Before(monthStart) && start.Before(monthEnd) {
			stats.ThisMonth++
		}
	}

	for _, s := range statusOrder {
		stats.ByStatus = append(stats.ByStatus, StatusCount{
			Status:     s,
			Count:      statusCounts[s],
			Percentage: percent(statusCounts[s], stats.Total),
		})
	}

	stats.CompletionRate = percent(statusCounts[StatusCompleted], stats.Total)
	stats.CancellationRate = percent(statusCounts[StatusCancelled], stats.Total)
	stats.NoShowRate = percent(statusCounts[StatusNoShow], stats.Total)

	for hour, count := range hourCounts {
		stats.BusiestHours = append(stats.BusiestHours, HourBucket{Hour: hour, Count: count})
	}
	sort.Slice(stats.BusiestHours, func(i, j int) bool {
		a, b := stats.BusiestHours[i], stats.BusiestHours[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Hour < b.Hour
	})

	for date, count := range dayCounts {
		stats.DailyTrend = append(stats.DailyTrend, DayBucket{Date: date, Count: count})
	}
	sort.Slice(stats.DailyTrend, func(i, j int) bool {
		return stats.DailyTrend[i].Date < stats.DailyTrend[j].Date
	})

	return stats
}

// percent guards division by zero: 0, never NaN.
func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// startOfWeek returns the Monday 00:00 UTC of the week containing day.
func startOfWeek(day time.Time) time.Time {
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return day.AddDate(0, 0, -offset)
}
