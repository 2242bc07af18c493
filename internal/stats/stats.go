// Package stats computes the dashboard rollups for a period of conversations.
//
// Every bucket map is zero-filled: hours "0" through "23", weekdays "0"
// (Monday) through "6" (Sunday), and one entry per calendar day in the
// period. Times are bucketed in UTC.
package stats

import (
	"math"
	"strconv"
	"strings"
	"time"

	"callscope/internal/store"
)

// Options carries values that do not come from the conversations themselves.
type Options struct {
	MonthlyBudget   float64
	CompletedStatus string
	MonthToDateCost float64
	AgentID         string
}

// Dashboard is the /api/dashboard-stats document.
type Dashboard struct {
	TotalConversationsPeriod int                `json:"total_conversations_period"`
	AvgDurationSeconds       float64            `json:"avg_duration_seconds"`
	AvgCostCredits           float64            `json:"avg_cost_credits"`
	TotalCostCredits         float64            `json:"total_cost_credits"`
	CompletionRate           float64            `json:"completion_rate"`
	PeakTimeHour             *int               `json:"peak_time_hour"`
	ActivityByHour           map[string]int     `json:"activity_by_hour"`
	ActivityByDay            map[string]int     `json:"activity_by_day"`
	DailyVolume              map[string]int     `json:"daily_volume"`
	DailyAvgDuration         map[string]float64 `json:"daily_avg_duration"`
	MonthToDateCost          float64            `json:"month_to_date_cost"`
	MonthlyBudget            float64            `json:"monthly_budget"`
	BudgetUsedPercent        float64            `json:"budget_used_percent"`
	StartDate                string             `json:"start_date"`
	EndDate                  string             `json:"end_date"`
	AgentID                  string             `json:"agent_id,omitempty"`
}

// Compute builds the dashboard for conversations in period. Conversations
// outside the period count toward totals but not toward daily buckets.
func Compute(convs []store.Conversation, period Period, opts Options) Dashboard {
	d := Dashboard{
		TotalConversationsPeriod: len(convs),
		ActivityByHour:           zeroInts(24),
		ActivityByDay:            zeroInts(7),
		DailyVolume:              make(map[string]int),
		DailyAvgDuration:         make(map[string]float64),
		MonthToDateCost:          round(opts.MonthToDateCost, 2),
		MonthlyBudget:            opts.MonthlyBudget,
		StartDate:                period.StartDate(),
		EndDate:                  period.EndDate(),
		AgentID:                  opts.AgentID,
	}
	days := period.Days()
	for _, day := range days {
		d.DailyVolume[day] = 0
		d.DailyAvgDuration[day] = 0
	}

	completed := strings.ToLower(strings.TrimSpace(opts.CompletedStatus))
	var (
		durationSum  float64
		costSum      float64
		completedN   int
		dailySeconds = make(map[string]float64, len(days))
	)
	for _, conv := range convs {
		start := conv.StartTime.UTC()
		d.ActivityByHour[strconv.Itoa(start.Hour())]++
		d.ActivityByDay[strconv.Itoa(mondayIndex(start))]++
		durationSum += float64(conv.DurationSeconds)
		costSum += conv.CostCredits
		if completed != "" && strings.EqualFold(conv.Status, completed) {
			completedN++
		}
		day := start.Format(DateLayout)
		if _, inPeriod := d.DailyVolume[day]; inPeriod {
			d.DailyVolume[day]++
			dailySeconds[day] += float64(conv.DurationSeconds)
		}
	}
	for day, seconds := range dailySeconds {
		if n := d.DailyVolume[day]; n > 0 {
			d.DailyAvgDuration[day] = round(seconds/float64(n), 1)
		}
	}

	if n := len(convs); n > 0 {
		d.AvgDurationSeconds = round(durationSum/float64(n), 1)
		d.AvgCostCredits = round(costSum/float64(n), 2)
		d.CompletionRate = round(float64(completedN)/float64(n)*100, 1)
		peak := peakHour(d.ActivityByHour)
		d.PeakTimeHour = &peak
	}
	d.TotalCostCredits = round(costSum, 2)
	if opts.MonthlyBudget > 0 {
		d.BudgetUsedPercent = round(opts.MonthToDateCost/opts.MonthlyBudget*100, 1)
	}
	return d
}

// mondayIndex maps Monday to 0 and Sunday to 6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// peakHour returns the busiest hour; ties go to the earliest hour.
func peakHour(byHour map[string]int) int {
	peak, best := 0, -1
	for hour := range 24 {
		if count := byHour[strconv.Itoa(hour)]; count > best {
			peak, best = hour, count
		}
	}
	return peak
}

func zeroInts(n int) map[string]int {
	out := make(map[string]int, n)
	for i := range n {
		out[strconv.Itoa(i)] = 0
	}
	return out
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
