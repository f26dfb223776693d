package domain

import (
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// maxGeneratedDates bounds open-ended generation.
const maxGeneratedDates = 366

// DateConfig is the input to GenerateDates, taken from an interval and its
// course settings.
type DateConfig struct {
	Method          DateGenerationMethod
	StartDate       time.Time
	EndDate         time.Time
	ConsecutiveDays int
	Weekly          WeeklyPattern
	ManualDates     []string
	HourStart       string
	HourEnd         string
	ExcludedDates   []string
}

type PlannedDate struct {
	Date      time.Time
	HourStart string
	HourEnd   string
}

func (p PlannedDate) Key() string {
	return DateKey(p.Date, p.HourStart, p.HourEnd)
}

// DateConfigFromInterval builds the generation input for an interval.
func DateConfigFromInterval(interval CourseInterval, settings CourseSettings) DateConfig {
	return DateConfig{
		Method:          interval.DateGenerationMethod,
		StartDate:       interval.StartDate,
		EndDate:         interval.EndDate,
		ConsecutiveDays: interval.ConsecutiveDays,
		Weekly:          interval.WeeklyPattern.Data(),
		ManualDates:     []string(interval.ManualDates),
		HourStart:       interval.HourStart,
		HourEnd:         interval.HourEnd,
		ExcludedDates:   settings.ExcludedDates,
	}
}

// GenerateDates expands a date configuration into concrete dates. The result
// is sorted, free of duplicates and excluded dates, and depends only on cfg.
func GenerateDates(cfg DateConfig) ([]PlannedDate, error) {
	start := truncateDay(cfg.StartDate)
	if start.IsZero() {
		return nil, ErrInvalidDateConfig
	}
	end := truncateDay(cfg.EndDate)
	if !end.IsZero() && end.Before(start) {
		return nil, ErrInvalidDateConfig
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedDates))
	for _, raw := range cfg.ExcludedDates {
		if d, err := parseDay(raw); err == nil {
			excluded[d.Format(dateLayout)] = struct{}{}
		}
	}
	allowed := func(d time.Time) bool {
		if !end.IsZero() && d.After(end) {
			return false
		}
		_, skip := excluded[d.Format(dateLayout)]
		return !skip
	}

	var days []time.Time
	switch cfg.Method {
	case GenerateConsecutive:
		if cfg.ConsecutiveDays <= 0 {
			return nil, ErrInvalidDateConfig
		}
		for d := start; len(days) < cfg.ConsecutiveDays && len(days) < maxGeneratedDates; d = d.AddDate(0, 0, 1) {
			if !end.IsZero() && d.After(end) {
				break
			}
			if allowed(d) {
				days = append(days, d)
			}
		}
	case GenerateWeekly:
		if cfg.Weekly.Empty() || end.IsZero() {
			return nil, ErrInvalidDateConfig
		}
		for d := start; !d.After(end) && len(days) < maxGeneratedDates; d = d.AddDate(0, 0, 1) {
			if cfg.Weekly.Allows(d.Weekday()) && allowed(d) {
				days = append(days, d)
			}
		}
	case GenerateManual:
		for _, raw := range cfg.ManualDates {
			d, err := parseDay(raw)
			if err != nil {
				return nil, ErrInvalidDateConfig
			}
			if d.Before(start) || !allowed(d) {
				continue
			}
			days = append(days, d)
		}
	case GenerateFirstDay:
		for d, i := start, 0; i < maxGeneratedDates; d, i = d.AddDate(0, 0, 1), i+1 {
			if !end.IsZero() && d.After(end) {
				break
			}
			if (cfg.Weekly.Empty() || cfg.Weekly.Allows(d.Weekday())) && allowed(d) {
				days = append(days, d)
				break
			}
		}
	default:
		return nil, ErrInvalidDateConfig
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	planned := make([]PlannedDate, 0, len(days))
	seen := make(map[string]struct{}, len(days))
	for _, d := range days {
		p := PlannedDate{
			Date:      d,
			HourStart: strings.TrimSpace(cfg.HourStart),
			HourEnd:   strings.TrimSpace(cfg.HourEnd),
		}
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		seen[p.Key()] = struct{}{}
		planned = append(planned, p)
	}
	return planned, nil
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(raw string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
}
