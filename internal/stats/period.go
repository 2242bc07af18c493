package stats

import (
	"fmt"
	"strings"
	"time"

	"callscope/internal/services"
)

// DateLayout is the calendar date format used in queries and bucket keys.
const DateLayout = "2006-01-02"

// MaxPeriodDays bounds explicit date ranges.
const MaxPeriodDays = 366

// Period is the half-open UTC interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// StartDate returns the first day in the period.
func (p Period) StartDate() string { return p.Start.UTC().Format(DateLayout) }

// EndDate returns the last day in the period.
func (p Period) EndDate() string { return p.End.Add(-time.Nanosecond).UTC().Format(DateLayout) }

// Days returns every calendar day in the period.
func (p Period) Days() []string {
	var days []string
	for day := truncateDay(p.Start); day.Before(p.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(DateLayout))
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseTimeframe resolves a named timeframe relative to now. Ranges end at
// the close of the current day.
func ParseTimeframe(name string, now time.Time) (Period, error) {
	today := truncateDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "today":
		return Period{Start: today, End: tomorrow}, nil
	case "7d":
		return Period{Start: today.AddDate(0, 0, -6), End: tomorrow}, nil
	case "30d":
		return Period{Start: today.AddDate(0, 0, -29), End: tomorrow}, nil
	case "90d":
		return Period{Start: today.AddDate(0, 0, -89), End: tomorrow}, nil
	case "mtd":
		return Period{Start: MonthStart(now), End: tomorrow}, nil
	default:
		return Period{}, services.Wrap(services.ErrValidation, "stats", "timeframe",
			fmt.Sprintf("unknown timeframe %q (want today, 7d, 30d, 90d, or mtd)", name), nil)
	}
}

// ParseDates resolves inclusive YYYY-MM-DD bounds.
func ParseDates(start, end string) (Period, error) {
	startDay, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Period{}, services.Wrap(services.ErrValidation, "stats", "dates", "start_date must be YYYY-MM-DD", err)
	}
	endDay, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Period{}, services.Wrap(services.ErrValidation, "stats", "dates", "end_date must be YYYY-MM-DD", err)
	}
	if endDay.Before(startDay) {
		return Period{}, services.Wrap(services.ErrValidation, "stats", "dates", "end_date is before start_date", nil)
	}
	p := Period{Start: startDay, End: endDay.AddDate(0, 0, 1)}
	if p.End.Sub(p.Start) > MaxPeriodDays*24*time.Hour {
		return Period{}, services.Wrap(services.ErrValidation, "stats", "dates",
			fmt.Sprintf("range longer than %d days", MaxPeriodDays), nil)
	}
	return p, nil
}

// MonthStart returns midnight UTC on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
