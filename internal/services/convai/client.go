package convai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"callscope/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultDetailPath  = "convai/conversations"
	apiKeyHeader       = "xi-api-key"
	maxErrorBody       = 512
)

// Summary is one entry in a conversation listing.
type Summary struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	Status         string `json:"status"`
	StartTimeUnix  int64  `json:"start_time_unix_secs"`
}

// Page is one page of a conversation listing.
type Page struct {
	Conversations []Summary `json:"conversations"`
	NextCursor    string    `json:"next_cursor"`
	HasMore       bool      `json:"has_more"`
}

// PageRequest selects a page of a listing.
type PageRequest struct {
	AgentID  string
	Cursor   string
	PageSize int
}

// Source defines the provider operations the sync pipeline uses.
type Source interface {
	ListPage(ctx context.Context, endpoint string, req PageRequest) (*Page, error)
	Detail(ctx context.Context, conversationID string) (json.RawMessage, error)
}

// Client provides access to the provider's conversation API.
type Client struct {
	apiKey     string
	baseURL    string
	detailPath string
	httpClient *http.Client
}

var _ Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithDetailPath overrides the path under which conversation details live.
func WithDetailPath(path string) Option {
	return func(c *Client) {
		if path = strings.Trim(strings.TrimSpace(path), "/"); path != "" {
			c.detailPath = path
		}
	}
}

// New creates a provider client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "convai", "new", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "convai", "new", "base url required", nil)
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		detailPath: defaultDetailPath,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ListPage fetches one page of conversations from the given listing endpoint.
func (c *Client) ListPage(ctx context.Context, endpoint string, req PageRequest) (*Page, error) {
	endpoint = strings.Trim(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, services.Wrap(services.ErrValidation, "convai", "list", "endpoint required", nil)
	}
	params := url.Values{}
	if req.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(req.PageSize))
	}
	if req.Cursor != "" {
		params.Set("cursor", req.Cursor)
	}
	if req.AgentID != "" {
		params.Set("agent_id", req.AgentID)
	}

	body, err := c.get(ctx, "list", endpoint, params)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, services.Wrap(services.ErrExternal, "convai", "list", "decode response", err)
	}
	return &page, nil
}

// Detail fetches the raw detail payload for one conversation.
func (c *Client) Detail(ctx context.Context, conversationID string) (json.RawMessage, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, services.Wrap(services.ErrValidation, "convai", "detail", "conversation id required", nil)
	}
	body, err := c.get(ctx, "detail", c.detailPath+"/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, services.Wrap(services.ErrExternal, "convai", "detail", "response is not valid JSON", nil)
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	endpoint, err := url.Parse(c.baseURL + "/" + path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "convai", op, "parse url", err)
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransient, "convai", op, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "convai", op, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
			Latency:    latency,
		}
		statusErr.retryAfter, _ = parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, statusErr
	}
	return body, nil
}

// StatusError reports a non-200 response from the provider.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	Latency    time.Duration
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("convai %s returned %d (latency=%v): %s", e.Op, e.StatusCode, e.Latency, e.Body)
}

// RetryAfter returns the server-requested delay, if any.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Unwrap classifies the status so errors.Is works with services markers.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= http.StatusInternalServerError:
		return services.ErrTransient
	case e.StatusCode == http.StatusNotFound:
		return services.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return services.ErrConfiguration
	case e.StatusCode >= http.StatusBadRequest:
		return services.ErrValidation
	default:
		return services.ErrExternal
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
