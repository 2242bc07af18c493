package report

import (
	"strings"
	"time"

	"callscope/internal/analysis"
	"callscope/internal/services"
	"callscope/internal/stats"
	"callscope/internal/store"
)

// Query selects conversations by start time and optional agent.
type Query struct {
	Period  stats.Period
	AgentID string
}

func (q Query) storeRange() store.Range {
	return store.Range{Start: q.Period.Start, End: q.Period.End, AgentID: q.AgentID}
}

func (q Query) analysisRequest() analysis.Request {
	return analysis.Request{Start: q.Period.Start, End: q.Period.End, AgentID: q.AgentID}
}

// AnalysisQuery validates inclusive start and end dates. Both are required.
func AnalysisQuery(startDate, endDate, agentID string) (Query, error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
		return Query{}, services.Wrap(services.ErrValidation, "report", "analysis query",
			"start_date and end_date are required", nil)
	}
	period, err := stats.ParseDates(startDate, endDate)
	if err != nil {
		return Query{}, err
	}
	return Query{Period: period, AgentID: strings.TrimSpace(agentID)}, nil
}

// DashboardQuery prefers explicit dates, then the named timeframe, then
// fallbackTimeframe.
func DashboardQuery(timeframe, startDate, endDate, agentID, fallbackTimeframe string, now time.Time) (Query, error) {
	agentID = strings.TrimSpace(agentID)
	hasStart := strings.TrimSpace(startDate) != ""
	hasEnd := strings.TrimSpace(endDate) != ""
	if hasStart || hasEnd {
		if !hasStart || !hasEnd {
			return Query{}, services.Wrap(services.ErrValidation, "report", "dashboard query",
				"start_date and end_date must be given together", nil)
		}
		period, err := stats.ParseDates(startDate, endDate)
		if err != nil {
			return Query{}, err
		}
		return Query{Period: period, AgentID: agentID}, nil
	}
	if strings.TrimSpace(timeframe) == "" {
		timeframe = fallbackTimeframe
	}
	period, err := stats.ParseTimeframe(timeframe, now)
	if err != nil {
		return Query{}, err
	}
	return Query{Period: period, AgentID: agentID}, nil
}
