package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePattern(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		pattern RecurrencePattern
		wantErr string
	}{
		{
			name:    "valid weekly",
			pattern: RecurrencePattern{Frequency: FreqWeekly, Interval: 1, EndDate: end},
		},
		{
			name:    "unknown frequency",
			pattern: RecurrencePattern{Frequency: "yearly", Interval: 1, EndDate: end},
			wantErr: "frequency",
		},
		{
			name:    "zero interval",
			pattern: RecurrencePattern{Frequency: FreqDaily, Interval: 0, EndDate: end},
			wantErr: "interval",
		},
		{
			name:    "missing end date",
			pattern: RecurrencePattern{Frequency: FreqDaily, Interval: 1},
			wantErr: "end_date",
		},
		{
			name:    "end date before base",
			pattern: RecurrencePattern{Frequency: FreqDaily, Interval: 1, EndDate: base.AddDate(0, 0, -1)},
			wantErr: "end_date",
		},
		{
			name:    "negative cap",
			pattern: RecurrencePattern{Frequency: FreqDaily, Interval: 1, EndDate: end, MaxOccurrences: -1},
			wantErr: "max_occurrences",
		},
		{
			name: "weekday set on daily pattern",
			pattern: RecurrencePattern{
				Frequency: FreqDaily, Interval: 1, EndDate: end,
				Weekdays: []time.Weekday{time.Monday},
			},
			wantErr: "weekdays",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePattern(base, tc.pattern)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantErr, verr.Field)
		})
	}
}

// Weekly every week from 2024-01-01 through 2024-01-22 yields exactly four
// Mondays, each at the parent's time of day.
func TestOccurrenceStartsWeekly(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	starts := OccurrenceStarts(base, RecurrencePattern{
		Frequency: FreqWeekly,
		Interval:  1,
		EndDate:   time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
	})

	want := []time.Time{
		base,
		time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, starts)
}

func TestOccurrenceStartsDaily(t *testing.T) {
	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	starts := OccurrenceStarts(base, RecurrencePattern{
		Frequency: FreqDaily,
		Interval:  2,
		EndDate:   time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
	})

	require.Len(t, starts, 4)
	for i, s := range starts {
		assert.Equal(t, base.AddDate(0, 0, 2*i), s)
	}
}

func TestOccurrenceStartsMonthly(t *testing.T) {
	base := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	starts := OccurrenceStarts(base, RecurrencePattern{
		Frequency: FreqMonthly,
		Interval:  1,
		EndDate:   time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
	})

	want := []time.Time{
		base,
		time.Date(2024, 2, 15, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 15, 11, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, starts)
}

func TestOccurrenceStartsWeekdaySet(t *testing.T) {
	// Parent on a Wednesday; Mon/Wed/Fri requested. The Monday of the
	// parent's own week precedes the parent and must be skipped.
	base := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	starts := OccurrenceStarts(base, RecurrencePattern{
		Frequency: FreqWeekly,
		Interval:  1,
		Weekdays:  []time.Weekday{time.Friday, time.Monday, time.Wednesday},
		EndDate:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})

	want := []time.Time{
		base, // Wed Jan 3
		time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),  // Fri
		time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),  // Mon
		time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), // Wed
	}
	assert.Equal(t, want, starts)
}

func TestOccurrenceStartsMaxOccurrencesCap(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	starts := OccurrenceStarts(base, RecurrencePattern{
		Frequency:      FreqDaily,
		Interval:       1,
		EndDate:        time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxOccurrences: 3,
	})

	require.Len(t, starts, 3)
	assert.Equal(t, base, starts[0])
	assert.Equal(t, base.AddDate(0, 0, 2), starts[2])
}

func TestOccurrenceStartsEndDateIncludesSameDay(t *testing.T) {
	// An end date equal to an occurrence's calendar day keeps that
	// occurrence even when the booking time is later in the day.
	base := time.Date(2024, 5, 6, 16, 45, 0, 0, time.UTC)
	starts := OccurrenceStarts(base, RecurrencePattern{
		Frequency: FreqDaily,
		Interval:  1,
		EndDate:   time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC),
	})
	require.Len(t, starts, 2)
	assert.Equal(t, base.AddDate(0, 0, 1), starts[1])
}
