package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConversationExists is returned when inserting a duplicate external ID.
var ErrConversationExists = errors.New("conversation already exists")

// ErrConversationNotFound is returned when updating an unknown external ID.
var ErrConversationNotFound = errors.New("conversation not found")

// CountConversations returns the number of stored conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM conversations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return count, nil
}

// SummaryIndex maps every stored external ID to whether its summary is populated.
func (s *Store) SummaryIndex(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT external_id, COALESCE(TRIM(summary), '') <> '' FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("summary index: %w", err)
	}
	defer rows.Close()

	index := make(map[string]bool)
	for rows.Next() {
		var (
			id         string
			hasSummary bool
		)
		if err := rows.Scan(&id, &hasSummary); err != nil {
			return nil, fmt.Errorf("summary index: %w", err)
		}
		index[id] = hasSummary
	}
	return index, rows.Err()
}

// InsertConversation stores a new conversation and its messages atomically.
// The conversation's ID and message IDs are populated on success.
func (s *Store) InsertConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return errors.New("conversation is nil")
	}
	if strings.TrimSpace(conv.ExternalID) == "" {
		return errors.New("insert conversation: external id required")
	}
	now := time.Now().UTC()
	conv.MessageCount = len(conv.Messages)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE external_id = ?`, conv.ExternalID).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return ErrConversationExists
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (
                external_id, agent_id, created_at, start_time, start_unix, duration_seconds,
                cost_credits, status, summary, call_successful, message_count, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.ExternalID,
			conv.AgentID,
			formatTime(conv.CreatedAt),
			formatTime(conv.StartTime),
			conv.StartTime.Unix(),
			conv.DurationSeconds,
			conv.CostCredits,
			conv.Status,
			nullableString(strings.TrimSpace(conv.Summary)),
			nullableString(conv.CallSuccessful),
			conv.MessageCount,
			formatTime(now),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		conv.ID = id
		return insertMessages(ctx, tx, id, conv.Messages)
	})
	if err != nil {
		return fmt.Errorf("insert conversation %s: %w", conv.ExternalID, err)
	}
	conv.UpdatedAt = now
	return nil
}

// UpdateConversation refreshes the derived fields of an existing conversation
// and replaces its messages.
func (s *Store) UpdateConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return errors.New("conversation is nil")
	}
	now := time.Now().UTC()
	conv.MessageCount = len(conv.Messages)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE external_id = ?`, conv.ExternalID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET
                agent_id = ?, start_time = ?, start_unix = ?, duration_seconds = ?, cost_credits = ?,
                status = ?, summary = ?, call_successful = ?, message_count = ?, updated_at = ?
            WHERE id = ?`,
			conv.AgentID,
			formatTime(conv.StartTime),
			conv.StartTime.Unix(),
			conv.DurationSeconds,
			conv.CostCredits,
			conv.Status,
			nullableString(strings.TrimSpace(conv.Summary)),
			nullableString(conv.CallSuccessful),
			conv.MessageCount,
			formatTime(now),
			id,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
		conv.ID = id
		return insertMessages(ctx, tx, id, conv.Messages)
	})
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", conv.ExternalID, err)
	}
	conv.UpdatedAt = now
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationID int64, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, position, role, text, offset_seconds, timestamp)
         VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare messages: %w", err)
	}
	defer stmt.Close()

	for i := range messages {
		msg := &messages[i]
		msg.ConversationID = conversationID
		msg.Position = i
		res, err := stmt.ExecContext(ctx, conversationID, i, string(msg.Role), msg.Text, msg.OffsetSeconds, formatTime(msg.Timestamp))
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			msg.ID = id
		}
	}
	return nil
}

// GetConversation fetches a conversation with its messages by external ID.
// It returns nil when the conversation is unknown.
func (s *Store) GetConversation(ctx context.Context, externalID string) (*Conversation, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE external_id = ?`, externalID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	convs := []Conversation{*conv}
	if err := s.attachMessages(ctx, convs); err != nil {
		return nil, err
	}
	return &convs[0], nil
}

// ConversationsInRange returns conversations that started within the range,
// ordered by start time. Messages are loaded when withMessages is set.
func (s *Store) ConversationsInRange(ctx context.Context, r Range, withMessages bool) ([]Conversation, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE start_unix >= ? AND start_unix < ?`
	args := []any{r.Start.Unix(), r.End.Unix()}
	if agent := strings.TrimSpace(r.AgentID); agent != "" {
		query += ` AND agent_id = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY start_unix, id`

	convs, err := s.queryConversations(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversations in range: %w", err)
	}
	if withMessages {
		if err := s.attachMessages(ctx, convs); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// ListConversations returns the most recent conversations without messages.
func (s *Store) ListConversations(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations`
	var args []any
	if agent := strings.TrimSpace(filter.AgentID); agent != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY start_unix DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	convs, err := s.queryConversations(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// CostSince sums cost credits for conversations that started at or after since.
func (s *Store) CostSince(ctx context.Context, since time.Time, agentID string) (float64, error) {
	query := `SELECT COALESCE(SUM(cost_credits), 0) FROM conversations WHERE start_unix >= ?`
	args := []any{since.Unix()}
	if agent := strings.TrimSpace(agentID); agent != "" {
		query += ` AND agent_id = ?`
		args = append(args, agent)
	}
	var total float64
	if err := s.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("cost since: %w", err)
	}
	return total, nil
}

func (s *Store) queryConversations(ctx context.Context, query string, args ...any) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// attachMessages loads messages for the given conversations in batches.
func (s *Store) attachMessages(ctx context.Context, convs []Conversation) error {
	const batchSize = 500
	byID := make(map[int64]int, len(convs))
	for i := range convs {
		byID[convs[i].ID] = i
		convs[i].Messages = nil
	}

	for start := 0; start < len(convs); start += batchSize {
		end := min(start+batchSize, len(convs))
		args := make([]any, 0, end-start)
		for _, conv := range convs[start:end] {
			args = append(args, conv.ID)
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, conversation_id, position, role, text, offset_seconds, timestamp
             FROM messages WHERE conversation_id IN (`+makePlaceholders(len(args))+`)
             ORDER BY conversation_id, position`, args...)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		for rows.Next() {
			var (
				msg   Message
				role  string
				tsRaw string
			)
			if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Position, &role, &msg.Text, &msg.OffsetSeconds, &tsRaw); err != nil {
				rows.Close()
				return fmt.Errorf("scan message: %w", err)
			}
			msg.Role = Role(role)
			if ts, err := parseTimeString(tsRaw); err == nil {
				msg.Timestamp = ts
			}
			if idx, ok := byID[msg.ConversationID]; ok {
				convs[idx].Messages = append(convs[idx].Messages, msg)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
	}
	return nil
}
