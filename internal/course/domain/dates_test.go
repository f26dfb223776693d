package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

func days(planned []PlannedDate) []string {
	out := make([]string, 0, len(planned))
	for _, p := range planned {
		out = append(out, p.Date.Format("2006-01-02"))
	}
	return out
}

func TestGenerateDatesConsecutive(t *testing.T) {
	planned, err := GenerateDates(DateConfig{
		Method:          GenerateConsecutive,
		StartDate:       day(1, 10),
		EndDate:         day(1, 31),
		ConsecutiveDays: 3,
		HourStart:       "09:00",
		HourEnd:         "12:00",
		ExcludedDates:   []string{"2026-01-11"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-10", "2026-01-12", "2026-01-13"}, days(planned))
	assert.Equal(t, "09:00", planned[0].HourStart)
}

func TestGenerateDatesConsecutiveStopsAtEnd(t *testing.T) {
	planned, err := GenerateDates(DateConfig{
		Method:          GenerateConsecutive,
		StartDate:       day(1, 30),
		EndDate:         day(1, 31),
		ConsecutiveDays: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-30", "2026-01-31"}, days(planned))
}

func TestGenerateDatesWeekly(t *testing.T) {
	// 2026-01-05 is a Monday
	planned, err := GenerateDates(DateConfig{
		Method:    GenerateWeekly,
		StartDate: day(1, 5),
		EndDate:   day(1, 18),
		Weekly:    WeeklyPattern{Monday: true, Thursday: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-05", "2026-01-08", "2026-01-12", "2026-01-15"}, days(planned))
}

func TestGenerateDatesManualDedupesAndSorts(t *testing.T) {
	planned, err := GenerateDates(DateConfig{
		Method:      GenerateManual,
		StartDate:   day(1, 1),
		EndDate:     day(1, 31),
		ManualDates: []string{"2026-01-20", "2026-01-03", "2026-01-20", "2026-02-15"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-03", "2026-01-20"}, days(planned))
}

func TestGenerateDatesManualRejectsGarbage(t *testing.T) {
	_, err := GenerateDates(DateConfig{
		Method:      GenerateManual,
		StartDate:   day(1, 1),
		ManualDates: []string{"20/01/2026"},
	})
	assert.ErrorIs(t, err, ErrInvalidDateConfig)
}

func TestGenerateDatesFirstDay(t *testing.T) {
	planned, err := GenerateDates(DateConfig{
		Method:        GenerateFirstDay,
		StartDate:     day(1, 5),
		EndDate:       day(1, 31),
		Weekly:        WeeklyPattern{Saturday: true},
		ExcludedDates: []string{"2026-01-10"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-17"}, days(planned))
}

func TestGenerateDatesIsDeterministic(t *testing.T) {
	cfg := DateConfig{
		Method:    GenerateWeekly,
		StartDate: day(2, 1),
		EndDate:   day(3, 1),
		Weekly:    WeeklyPattern{Sunday: true, Wednesday: true},
	}
	first, err := GenerateDates(cfg)
	require.NoError(t, err)
	second, err := GenerateDates(cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateDatesInvalidConfig(t *testing.T) {
	cases := []DateConfig{
		{Method: GenerateConsecutive, StartDate: day(1, 1)},
		{Method: GenerateWeekly, StartDate: day(1, 1), EndDate: day(1, 31)},
		{Method: GenerateConsecutive, StartDate: day(1, 10), EndDate: day(1, 1), ConsecutiveDays: 2},
		{Method: "fortnightly", StartDate: day(1, 1)},
		{Method: GenerateManual},
	}
	for _, cfg := range cases {
		_, err := GenerateDates(cfg)
		assert.ErrorIs(t, err, ErrInvalidDateConfig, "method %q", cfg.Method)
	}
}
