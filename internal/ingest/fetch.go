package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callscope/internal/logging"
	"callscope/internal/retry"
	"callscope/internal/services/convai"
)

// FetchOptions controls how listings are walked.
type FetchOptions struct {
	Endpoints []string
	// AgentIDs filters listings per agent. Empty lists every agent once.
	AgentIDs []string
	PageSize int
	MaxPages int
	Retry    retry.Policy
	Logger   *slog.Logger
}

// FetchResult holds the distinct identifiers seen, in first-seen order.
type FetchResult struct {
	IDs []string
	// Agents maps each identifier to the agent it was listed under.
	Agents     map[string]string
	CheckedAPI int
	Pages      int
	// Partial is set when at least one listing could not be read to the end.
	Partial  bool
	Failures []error
}

// FetchIDs walks every endpoint and agent pair. Page failures that survive
// the retry policy are recorded and the walk moves on to the next pair. The
// returned error is non-nil only when ctx ends the walk early; the partial
// result is still returned.
func FetchIDs(ctx context.Context, src convai.Source, opts FetchOptions) (FetchResult, error) {
	result := FetchResult{Agents: make(map[string]string)}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	agents := opts.AgentIDs
	if len(agents) == 0 {
		agents = []string{""}
	}
	seen := make(map[string]struct{})

	for _, endpoint := range opts.Endpoints {
		for _, agent := range agents {
			if err := ctx.Err(); err != nil {
				result.Partial = true
				result.CheckedAPI = len(result.IDs)
				return result, err
			}
			err := fetchListing(ctx, src, endpoint, agent, opts, logger, func(summary convai.Summary) {
				id := strings.TrimSpace(summary.ConversationID)
				if id == "" {
					return
				}
				if _, dup := seen[id]; dup {
					return
				}
				seen[id] = struct{}{}
				result.IDs = append(result.IDs, id)
				owner := strings.TrimSpace(summary.AgentID)
				if owner == "" {
					owner = agent
				}
				result.Agents[id] = owner
			}, &result.Pages)
			if err == nil {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Partial = true
				result.CheckedAPI = len(result.IDs)
				return result, ctxErr
			}
			result.Partial = true
			result.Failures = append(result.Failures, err)
			logging.WarnWithContext(logger, "conversation listing incomplete", "listing_failed",
				logging.String("endpoint", endpoint),
				logging.String(logging.FieldAgentID, agent),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check source credentials and provider status"),
				logging.String(logging.FieldImpact, "conversations on unread pages are not synced this run"),
			)
		}
	}
	result.CheckedAPI = len(result.IDs)
	return result, nil
}

func fetchListing(ctx context.Context, src convai.Source, endpoint, agent string, opts FetchOptions, logger *slog.Logger, visit func(convai.Summary), pages *int) error {
	cursor := ""
	visited := make(map[string]struct{})
	for page := 1; opts.MaxPages <= 0 || page <= opts.MaxPages; page++ {
		var resp *convai.Page
		err := opts.Retry.DoNotify(ctx, func(ctx context.Context) error {
			var err error
			resp, err = src.ListPage(ctx, endpoint, convai.PageRequest{AgentID: agent, Cursor: cursor, PageSize: opts.PageSize})
			return err
		}, func(attempt int, err error, delay time.Duration) {
			logger.Debug("retrying conversation listing",
				logging.String("endpoint", endpoint),
				logging.Int("page", page),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
			)
		})
		if err != nil {
			return fmt.Errorf("list %s page %d (agent %q): %w", endpoint, page, agent, err)
		}
		*pages++
		if resp == nil {
			return nil
		}
		for _, summary := range resp.Conversations {
			visit(summary)
		}
		logger.Debug("conversation page listed",
			logging.String("endpoint", endpoint),
			logging.String(logging.FieldAgentID, agent),
			logging.Int("page", page),
			logging.Int("count", len(resp.Conversations)),
		)
		next := strings.TrimSpace(resp.NextCursor)
		if !resp.HasMore || next == "" || len(resp.Conversations) == 0 {
			return nil
		}
		if _, loop := visited[next]; loop || next == cursor {
			logging.WarnWithContext(logger, "listing cursor repeated; stopping", "listing_cursor_loop",
				logging.String("endpoint", endpoint),
				logging.String("cursor", next),
			)
			return nil
		}
		visited[next] = struct{}{}
		cursor = next
	}
	logger.Info("listing page limit reached",
		logging.String("endpoint", endpoint),
		logging.String(logging.FieldAgentID, agent),
		logging.Int("max_pages", opts.MaxPages),
	)
	return nil
}
