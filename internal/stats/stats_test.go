package stats_test

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"callscope/internal/services"
	"callscope/internal/stats"
	"callscope/internal/store"
)

func call(start time.Time, seconds int, cost float64, status string) store.Conversation {
	return store.Conversation{StartTime: start, DurationSeconds: seconds, CostCredits: cost, Status: status}
}

func TestComputeBuckets(t *testing.T) {
	period, err := stats.ParseDates("2025-03-03", "2025-03-05")
	if err != nil {
		t.Fatalf("ParseDates: %v", err)
	}
	// 2025-03-03 is a Monday.
	convs := []store.Conversation{
		call(time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC), 60, 100, "done"),
		call(time.Date(2025, 3, 3, 9, 45, 0, 0, time.UTC), 120, 200, "done"),
		call(time.Date(2025, 3, 5, 17, 0, 0, 0, time.UTC), 30, 50, "failed"),
	}

	d := stats.Compute(convs, period, stats.Options{
		MonthlyBudget:   1000,
		CompletedStatus: "done",
		MonthToDateCost: 250,
	})

	if d.TotalConversationsPeriod != 3 {
		t.Fatalf("total = %d, want 3", d.TotalConversationsPeriod)
	}
	if len(d.ActivityByHour) != 24 || len(d.ActivityByDay) != 7 {
		t.Fatalf("bucket sizes = %d/%d, want 24/7", len(d.ActivityByHour), len(d.ActivityByDay))
	}
	if d.ActivityByHour["9"] != 2 || d.ActivityByHour["17"] != 1 || d.ActivityByHour["0"] != 0 {
		t.Fatalf("unexpected hour buckets: %v", d.ActivityByHour)
	}
	if d.ActivityByDay["0"] != 2 || d.ActivityByDay["2"] != 1 || d.ActivityByDay["6"] != 0 {
		t.Fatalf("unexpected weekday buckets: %v", d.ActivityByDay)
	}
	wantVolume := map[string]int{"2025-03-03": 2, "2025-03-04": 0, "2025-03-05": 1}
	for day, want := range wantVolume {
		if got, ok := d.DailyVolume[day]; !ok || got != want {
			t.Fatalf("daily volume %s = %d (present %v), want %d", day, got, ok, want)
		}
	}
	if len(d.DailyVolume) != 3 || len(d.DailyAvgDuration) != 3 {
		t.Fatalf("daily buckets = %d/%d, want 3/3", len(d.DailyVolume), len(d.DailyAvgDuration))
	}
	if d.DailyAvgDuration["2025-03-03"] != 90 || d.DailyAvgDuration["2025-03-04"] != 0 {
		t.Fatalf("unexpected daily averages: %v", d.DailyAvgDuration)
	}
	if d.AvgDurationSeconds != 70 {
		t.Fatalf("avg duration = %v, want 70", d.AvgDurationSeconds)
	}
	if d.AvgCostCredits != 116.67 {
		t.Fatalf("avg cost = %v, want 116.67", d.AvgCostCredits)
	}
	if d.CompletionRate != 66.7 {
		t.Fatalf("completion rate = %v, want 66.7", d.CompletionRate)
	}
	if d.PeakTimeHour == nil || *d.PeakTimeHour != 9 {
		t.Fatalf("peak hour = %v, want 9", d.PeakTimeHour)
	}
	if d.BudgetUsedPercent != 25 || d.MonthlyBudget != 1000 || d.MonthToDateCost != 250 {
		t.Fatalf("unexpected budget fields: %+v", d)
	}
	if d.StartDate != "2025-03-03" || d.EndDate != "2025-03-05" {
		t.Fatalf("dates = %s..%s", d.StartDate, d.EndDate)
	}
}

func TestComputeEmptyPeriodIsZeroFilled(t *testing.T) {
	period, err := stats.ParseTimeframe("7d", time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ParseTimeframe: %v", err)
	}
	d := stats.Compute(nil, period, stats.Options{})

	if d.PeakTimeHour != nil {
		t.Fatalf("expected no peak hour, got %d", *d.PeakTimeHour)
	}
	if len(d.DailyVolume) != 7 {
		t.Fatalf("daily volume has %d days, want 7", len(d.DailyVolume))
	}
	if d.BudgetUsedPercent != 0 {
		t.Fatalf("budget percent without budget = %v", d.BudgetUsedPercent)
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, bucket := range []struct {
		name   string
		counts map[string]int
		size   int
	}{
		{"activity_by_hour", d.ActivityByHour, 24},
		{"activity_by_day", d.ActivityByDay, 7},
	} {
		if len(bucket.counts) != bucket.size {
			t.Fatalf("%s has %d keys, want %d", bucket.name, len(bucket.counts), bucket.size)
		}
		for i := range bucket.size {
			count, ok := bucket.counts[strconv.Itoa(i)]
			if !ok || count != 0 {
				t.Fatalf("%s[%d] = %d (present=%v), want 0", bucket.name, i, count, ok)
			}
		}
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"activity_by_hour", "activity_by_day", "daily_volume", "daily_avg_duration"} {
		if _, ok := doc[key].(map[string]any); !ok {
			t.Fatalf("%s is not an object: %s", key, data)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	now := time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		name      string
		wantStart string
		wantDays  int
	}{
		{"today", "2025-03-09", 1},
		{"7d", "2025-03-03", 7},
		{"30D", "2025-02-08", 30},
		{"90d", "2024-12-10", 90},
		{"mtd", "2025-03-01", 9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := stats.ParseTimeframe(tc.name, now)
			if err != nil {
				t.Fatalf("ParseTimeframe: %v", err)
			}
			if p.StartDate() != tc.wantStart {
				t.Fatalf("start = %s, want %s", p.StartDate(), tc.wantStart)
			}
			if p.EndDate() != "2025-03-09" {
				t.Fatalf("end = %s, want 2025-03-09", p.EndDate())
			}
			if got := len(p.Days()); got != tc.wantDays {
				t.Fatalf("days = %d, want %d", got, tc.wantDays)
			}
		})
	}

	if _, err := stats.ParseTimeframe("fortnight", now); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseDatesRejects(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"bad start", "03/01/2025", "2025-03-02"},
		{"bad end", "2025-03-01", "tomorrow"},
		{"reversed", "2025-03-05", "2025-03-01"},
		{"too long", "2023-01-01", "2025-01-01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := stats.ParseDates(tc.start, tc.end); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	p, err := stats.ParseDates("2025-03-01", "2025-03-01")
	if err != nil {
		t.Fatalf("single day: %v", err)
	}
	if got := p.End.Sub(p.Start); got != 24*time.Hour {
		t.Fatalf("single day span = %v, want 24h", got)
	}
}
