// Package transcript converts loosely structured provider detail payloads into
// canonical conversations and messages.
//
// Adapt never fails because of a single malformed message: bad entries are
// skipped or defaulted and reported as warnings. Only a payload that is not a
// JSON object at all, or that carries no conversation identifier, is rejected.
package transcript

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"callscope/internal/store"
)

// Warning codes reported by Adapt.
const (
	WarnStartDefaulted    = "start_time_defaulted"
	WarnCreatedDefaulted  = "created_at_defaulted"
	WarnMessageSkipped    = "message_skipped"
	WarnTextDefaulted     = "text_defaulted"
	WarnRoleUnknown       = "role_unknown"
	WarnOffsetClamped     = "offset_clamped"
	WarnNegativeClamped   = "negative_value_clamped"
	WarnTranscriptMissing = "transcript_missing"
)

// ErrMalformedPayload is returned when the payload cannot describe a conversation.
var ErrMalformedPayload = errors.New("malformed detail payload")

// Hint carries identifiers already known from the listing, used when the
// detail payload omits them.
type Hint struct {
	ExternalID string
	AgentID    string
}

// Warning records one lossy decision made while adapting a payload.
type Warning struct {
	Code   string
	Index  int
	Detail string
}

func (w Warning) String() string {
	if w.Index >= 0 {
		return fmt.Sprintf("%s[%d]: %s", w.Code, w.Index, w.Detail)
	}
	return w.Code + ": " + w.Detail
}

// Result is the canonical form of one detail payload.
type Result struct {
	Conversation store.Conversation
	Warnings     []Warning
}

var (
	startPaths    = []string{"metadata.start_time_unix_secs", "start_time_unix_secs", "metadata.start_time", "start_time"}
	createdPaths  = []string{"created_at", "metadata.created_at"}
	durationPaths = []string{"metadata.call_duration_secs", "call_duration_secs", "duration_seconds"}
	costPaths     = []string{"metadata.cost", "cost", "cost_credits"}
	summaryPaths  = []string{"analysis.transcript_summary", "transcript_summary", "summary"}
	messagePaths  = []string{"transcript", "messages"}
	textPaths     = []string{"message", "text", "content"}
	offsetPaths   = []string{"time_in_call_secs", "offset_seconds", "offset"}
)

// Adapt converts a raw detail payload. now stands in for any timestamp the
// payload omits.
func Adapt(raw []byte, hint Hint, now time.Time) (Result, error) {
	var res Result
	if !gjson.ValidBytes(raw) {
		return res, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return res, fmt.Errorf("%w: expected object", ErrMalformedPayload)
	}

	warn := func(code string, index int, format string, args ...any) {
		res.Warnings = append(res.Warnings, Warning{Code: code, Index: index, Detail: fmt.Sprintf(format, args...)})
	}

	conv := store.Conversation{
		ExternalID:     firstString(root, "conversation_id", "id"),
		AgentID:        firstString(root, "agent_id"),
		Status:         strings.ToLower(firstString(root, "status")),
		Summary:        strings.TrimSpace(first(root, summaryPaths...).String()),
		CallSuccessful: strings.ToLower(firstString(root, "analysis.call_successful", "call_successful")),
	}
	if conv.ExternalID == "" {
		conv.ExternalID = strings.TrimSpace(hint.ExternalID)
	}
	if conv.ExternalID == "" {
		return res, fmt.Errorf("%w: conversation id missing", ErrMalformedPayload)
	}
	if conv.AgentID == "" {
		conv.AgentID = strings.TrimSpace(hint.AgentID)
	}

	now = now.UTC()
	start, ok := parseTime(first(root, startPaths...))
	if !ok {
		start = now
		warn(WarnStartDefaulted, -1, "call start missing; using ingestion time")
	}
	conv.StartTime = start

	created, ok := parseTime(first(root, createdPaths...))
	if !ok {
		created = now
		warn(WarnCreatedDefaulted, -1, "creation time missing; using ingestion time")
	}
	conv.CreatedAt = created

	if duration := first(root, durationPaths...); duration.Exists() {
		seconds := duration.Float()
		if seconds < 0 {
			warn(WarnNegativeClamped, -1, "duration %v clamped to 0", seconds)
			seconds = 0
		}
		conv.DurationSeconds = int(math.Round(seconds))
	}
	if cost := first(root, costPaths...); cost.Exists() {
		credits := cost.Float()
		if credits < 0 {
			warn(WarnNegativeClamped, -1, "cost %v clamped to 0", credits)
			credits = 0
		}
		conv.CostCredits = credits
	}

	entries := first(root, messagePaths...)
	if !entries.IsArray() {
		if entries.Exists() {
			warn(WarnTranscriptMissing, -1, "transcript is %s, not a list", entries.Type)
		}
		res.Conversation = conv
		return res, nil
	}

	var lastOffset float64
	for index, entry := range entries.Array() {
		if !entry.IsObject() {
			warn(WarnMessageSkipped, index, "entry is %s, not an object", entry.Type)
			continue
		}

		msg := store.Message{Role: mapRole(entry.Get("role").String())}
		if msg.Role == "" {
			warn(WarnRoleUnknown, index, "role %q treated as caller", entry.Get("role").String())
			msg.Role = store.RoleCaller
		}

		text := first(entry, textPaths...)
		if text.Type == gjson.Null {
			warn(WarnTextDefaulted, index, "text missing")
		}
		msg.Text = text.String()

		offset := first(entry, offsetPaths...).Float()
		if offset < lastOffset || offset < 0 {
			warn(WarnOffsetClamped, index, "offset %v clamped to %v", offset, lastOffset)
			offset = lastOffset
		}
		lastOffset = offset
		msg.OffsetSeconds = offset
		msg.Timestamp = start.Add(time.Duration(offset * float64(time.Second)))

		msg.Position = len(conv.Messages)
		conv.Messages = append(conv.Messages, msg)
	}
	conv.MessageCount = len(conv.Messages)

	res.Conversation = conv
	return res, nil
}

func mapRole(raw string) store.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "agent", "assistant", "ai", "bot":
		return store.RoleAgent
	case "user", "caller", "customer", "human":
		return store.RoleCaller
	default:
		return ""
	}
}

// first returns the first path that exists and is not null.
func first(value gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if r := value.Get(path); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func firstString(value gjson.Result, paths ...string) string {
	return strings.TrimSpace(first(value, paths...).String())
}

// parseTime accepts unix seconds (number or numeric string) or RFC 3339 text.
func parseTime(value gjson.Result) (time.Time, bool) {
	switch value.Type {
	case gjson.Number:
		secs := value.Float()
		if secs <= 0 {
			return time.Time{}, false
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
	case gjson.String:
		text := strings.TrimSpace(value.String())
		if text == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return t.UTC(), true
		}
		if n := gjson.Parse(text); n.Type == gjson.Number {
			return parseTime(n)
		}
	}
	return time.Time{}, false
}
