package store

import (
	"database/sql"
	"errors"
	"time"
)

const conversationColumns = "id, external_id, agent_id, created_at, start_time, duration_seconds, cost_credits, status, summary, call_successful, message_count, updated_at"

func scanConversation(scanner interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var (
		conv           Conversation
		createdRaw     string
		startRaw       string
		updatedRaw     string
		summary        sql.NullString
		callSuccessful sql.NullString
	)
	if err := scanner.Scan(
		&conv.ID,
		&conv.ExternalID,
		&conv.AgentID,
		&createdRaw,
		&startRaw,
		&conv.DurationSeconds,
		&conv.CostCredits,
		&conv.Status,
		&summary,
		&callSuccessful,
		&conv.MessageCount,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	conv.Summary = summary.String
	conv.CallSuccessful = callSuccessful.String
	if t, err := parseTimeString(createdRaw); err == nil {
		conv.CreatedAt = t
	}
	if t, err := parseTimeString(startRaw); err == nil {
		conv.StartTime = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		conv.UpdatedAt = t
	}
	return &conv, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
