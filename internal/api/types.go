package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SyncRun describes one persisted synchronization run.
type SyncRun struct {
	RunID          string `json:"run_id"`
	FullSync       bool   `json:"full_sync"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	InitialDBCount int    `json:"initial_db_count"`
	FinalDBCount   int    `json:"final_db_count"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	CheckedAPI     int    `json:"checked_api"`
}

// SyncHistoryResponse wraps recent sync runs.
type SyncHistoryResponse struct {
	Runs []SyncRun `json:"runs"`
}

// Conversation is a transcript-free conversation listing entry.
type Conversation struct {
	ConversationID  string  `json:"conversation_id"`
	AgentID         string  `json:"agent_id,omitempty"`
	StartTime       string  `json:"start_time"`
	DurationSeconds int     `json:"duration_seconds"`
	CostCredits     float64 `json:"cost_credits"`
	Status          string  `json:"status,omitempty"`
	CallSuccessful  string  `json:"call_successful,omitempty"`
	Summary         string  `json:"summary"`
	MessageCount    int     `json:"message_count"`
}

// ConversationListResponse wraps a conversation listing.
type ConversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// Health reports process liveness and database reachability.
type Health struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	Model         string `json:"model,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
