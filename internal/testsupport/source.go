package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"callscope/internal/services"
	"callscope/internal/services/convai"
)

// FakeSource is an in-memory convai.Source with scripted listings, details,
// and failures.
type FakeSource struct {
	mu           sync.Mutex
	listings     map[string][][]string
	listFailures map[string]error
	details      map[string]json.RawMessage
	detailFails  map[string]*scriptedFailure
	detailCalls  map[string]int
	listCalls    int

	// DetailHook runs before every Detail lookup. Returning an error fails
	// the call.
	DetailHook func(ctx context.Context, id string) error
}

type scriptedFailure struct {
	remaining int
	err       error
}

var _ convai.Source = (*FakeSource)(nil)

// NewFakeSource returns an empty fake.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		listings:     make(map[string][][]string),
		listFailures: make(map[string]error),
		details:      make(map[string]json.RawMessage),
		detailFails:  make(map[string]*scriptedFailure),
		detailCalls:  make(map[string]int),
	}
}

func listingKey(endpoint, agentID string) string {
	return endpoint + "|" + agentID
}

// AddListing registers the pages returned for one endpoint and agent.
func (f *FakeSource) AddListing(endpoint, agentID string, pages ...[]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := listingKey(endpoint, agentID)
	f.listings[key] = append(f.listings[key], pages...)
}

// FailList makes every page request for the endpoint and agent fail.
func (f *FakeSource) FailList(endpoint, agentID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFailures[listingKey(endpoint, agentID)] = err
}

// SetDetail registers the raw detail payload for a conversation.
func (f *FakeSource) SetDetail(id, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[id] = json.RawMessage(payload)
}

// FailDetail fails the next times Detail calls for id. A negative count fails
// every call.
func (f *FakeSource) FailDetail(id string, times int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailFails[id] = &scriptedFailure{remaining: times, err: err}
}

// DetailCalls reports how many times Detail was called for id.
func (f *FakeSource) DetailCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[id]
}

// ListCalls reports how many page requests were made.
func (f *FakeSource) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// ListPage implements convai.Source.
func (f *FakeSource) ListPage(ctx context.Context, endpoint string, req convai.PageRequest) (*convai.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	key := listingKey(endpoint, req.AgentID)
	if err := f.listFailures[key]; err != nil {
		return nil, err
	}
	pages := f.listings[key]
	index := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "fake", "list", "bad cursor", err)
		}
		index = n
	}
	page := &convai.Page{}
	if index >= len(pages) {
		return page, nil
	}
	for _, id := range pages[index] {
		page.Conversations = append(page.Conversations, convai.Summary{ConversationID: id, AgentID: req.AgentID})
	}
	if index+1 < len(pages) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(index + 1)
	}
	return page, nil
}

// Detail implements convai.Source.
func (f *FakeSource) Detail(ctx context.Context, id string) (json.RawMessage, error) {
	if hook := f.DetailHook; hook != nil {
		if err := hook(ctx, id); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++

	if fail := f.detailFails[id]; fail != nil && fail.remaining != 0 {
		if fail.remaining > 0 {
			fail.remaining--
		}
		return nil, fail.err
	}
	payload, ok := f.details[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake", "detail", fmt.Sprintf("conversation %s", id), nil)
	}
	return payload, nil
}

// DetailPayload renders a provider-shaped detail document. Messages alternate
// caller and agent, five seconds apart.
func DetailPayload(id, agentID string, start time.Time, summary string, texts ...string) string {
	transcript := make([]map[string]any, 0, len(texts))
	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "agent"
		}
		transcript = append(transcript, map[string]any{
			"role":              role,
			"message":           text,
			"time_in_call_secs": i * 5,
		})
	}
	doc := map[string]any{
		"conversation_id": id,
		"agent_id":        agentID,
		"status":          "done",
		"created_at":      start.UTC().Format(time.RFC3339),
		"transcript":      transcript,
		"metadata": map[string]any{
			"start_time_unix_secs": start.Unix(),
			"call_duration_secs":   len(texts) * 5,
			"cost":                 10 * len(texts),
		},
		"analysis": map[string]any{
			"transcript_summary": summary,
		},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}
