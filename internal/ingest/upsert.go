package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"callscope/internal/logging"
	"callscope/internal/retry"
	"callscope/internal/services/convai"
	"callscope/internal/store"
	"callscope/internal/transcript"
)

// Writer persists adapted conversations.
type Writer interface {
	InsertConversation(ctx context.Context, conv *store.Conversation) error
	UpdateConversation(ctx context.Context, conv *store.Conversation) error
}

// UpsertOptions controls detail fetching and persistence.
type UpsertOptions struct {
	Workers int
	Retry   retry.Policy
	// Agents supplies the listing agent for payloads that omit one.
	Agents map[string]string
	Now    func() time.Time
	Logger *slog.Logger
}

// UpsertCounts tallies persisted records. Records never dispatched because
// the context ended are absent from every count.
type UpsertCounts struct {
	Added   int
	Updated int
	Failed  int
}

// Upsert fetches, adapts, and stores each pending decision using a bounded
// worker pool. One record failing never stops the others. When ctx ends, no
// further records are dispatched and those already stored remain.
func Upsert(ctx context.Context, src convai.Source, w Writer, pending []Decision, opts UpsertOptions) UpsertCounts {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		counts UpsertCounts
		g      errgroup.Group
	)
	g.SetLimit(workers)

	for _, decision := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			applied, err := upsertOne(ctx, src, w, decision, opts.Agents[decision.ExternalID], opts.Retry, now(), logger)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
				// Interrupted mid-flight; left for the next run.
			case err != nil:
				counts.Failed++
				logging.WarnWithContext(logger, "conversation sync failed", "conversation_sync_failed",
					logging.String(logging.FieldConversationID, decision.ExternalID),
					logging.String("action", string(decision.Action)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "the record is retried on the next sync"),
					logging.String(logging.FieldImpact, "conversation missing or stale locally"),
				)
			case applied == ActionNew:
				counts.Added++
			default:
				counts.Updated++
			}
			return nil
		})
	}
	_ = g.Wait()
	return counts
}

// upsertOne returns the action actually applied, which differs from the
// planned one when the store changed underneath the plan.
func upsertOne(ctx context.Context, src convai.Source, w Writer, decision Decision, agentHint string, policy retry.Policy, now time.Time, logger *slog.Logger) (Action, error) {
	id := decision.ExternalID
	var raw json.RawMessage
	err := policy.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = src.Detail(ctx, id)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("fetch detail: %w", err)
	}

	res, err := transcript.Adapt(raw, transcript.Hint{ExternalID: id, AgentID: agentHint}, now)
	if err != nil {
		return "", fmt.Errorf("adapt detail: %w", err)
	}
	if len(res.Warnings) > 0 {
		codes := make([]string, 0, len(res.Warnings))
		for _, warning := range res.Warnings {
			codes = append(codes, warning.String())
		}
		logger.Debug("detail adapted with warnings",
			logging.String(logging.FieldConversationID, id),
			logging.Int("warning_count", len(res.Warnings)),
			logging.String("warnings", strings.Join(codes, "; ")),
		)
	}

	conv := res.Conversation
	if conv.ExternalID != id {
		logger.Debug("detail id differs from listing; using listing id",
			logging.String(logging.FieldConversationID, id),
			logging.String("payload_id", conv.ExternalID),
		)
		conv.ExternalID = id
	}

	switch decision.Action {
	case ActionNew:
		err = w.InsertConversation(ctx, &conv)
		if errors.Is(err, store.ErrConversationExists) {
			return ActionUpdate, w.UpdateConversation(ctx, &conv)
		}
		return ActionNew, err
	default:
		err = w.UpdateConversation(ctx, &conv)
		if errors.Is(err, store.ErrConversationNotFound) {
			return ActionNew, w.InsertConversation(ctx, &conv)
		}
		return ActionUpdate, err
	}
}
