// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/cartograph/cartograph/internal/errs"
	"github.com/cartograph/cartograph/internal/model"
)

// conversationLocks serializes writes per conversation, per spec §5:
// "Message sequence_number is totally ordered and monotonically
// assigned by the engine holding a per-conversation lock during the
// turn."
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (c *conversationLocks) get(conversationID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks == nil {
		c.locks = make(map[string]*sync.Mutex)
	}
	l, ok := c.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[conversationID] = l
	}
	return l
}

// LockConversation returns the per-conversation mutex; callers must
// Unlock it when the turn completes.
func (s *Store) LockConversation(conversationID string) *sync.Mutex {
	return s.convLocks.get(conversationID)
}

// FindOrCreateConversation implements the "created lazily on first
// query" lifecycle rule of spec §3.
func (s *Store) FindOrCreateConversation(ctx context.Context, sessionID, repoID, systemPrompt, titleSeed string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, session_id, repo_id, title, system_prompt, message_count, created_at, updated_at
		 FROM conversations WHERE session_id = ? AND repo_id = ?`, sessionID, repoID)
	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errs.OfKind(err, errs.KindNotFound) {
		return nil, err
	}

	now := nowRFC3339()
	id := sessionID + ":" + repoID
	title := titleSeed
	if len(title) > 80 {
		title = title[:80]
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, session_id, repo_id, title, system_prompt, message_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(session_id, repo_id) DO NOTHING`,
		id, sessionID, repoID, title, systemPrompt, now, now,
	)
	if err != nil {
		return nil, errs.NewInternal("create conversation", err)
	}
	row = s.db.QueryRowContext(ctx,
		`SELECT conversation_id, session_id, repo_id, title, system_prompt, message_count, created_at, updated_at
		 FROM conversations WHERE session_id = ? AND repo_id = ?`, sessionID, repoID)
	return scanConversation(row)
}

// FindConversation looks up a Conversation by its (session_id,
// repo_id) key without creating one, for the read-only
// conversations/current endpoint.
func (s *Store) FindConversation(ctx context.Context, sessionID, repoID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, session_id, repo_id, title, system_prompt, message_count, created_at, updated_at
		 FROM conversations WHERE session_id = ? AND repo_id = ?`, sessionID, repoID)
	return scanConversation(row)
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, session_id, repo_id, title, system_prompt, message_count, created_at, updated_at
		 FROM conversations WHERE conversation_id = ?`, conversationID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*model.Conversation, error) {
	var c model.Conversation
	var createdAt, updatedAt string
	err := row.Scan(&c.ConversationID, &c.SessionID, &c.RepoID, &c.Title, &c.SystemPrompt, &c.MessageCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NewNotFound("conversation not found")
		}
		return nil, errs.NewInternal("scan conversation", err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// AppendMessage assigns the next contiguous sequence_number and
// inserts the Message. Callers must hold LockConversation(conversationID)
// for the duration of the turn, per spec §5's ordering guarantee.
func (s *Store) AppendMessage(ctx context.Context, m *model.Message) error {
	var maxSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence_number) FROM messages WHERE conversation_id = ?`, m.ConversationID,
	).Scan(&maxSeq); err != nil {
		return errs.NewInternal("read max sequence_number", err)
	}
	m.SequenceNumber = int(maxSeq.Int64) + 1
	now := nowRFC3339()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.NewInternal("begin message tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, tool_calls_json, sequence_number, provider_meta_json, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.ConversationID, m.Role, m.Content, marshalJSON(m.ToolCalls), m.SequenceNumber, marshalJSON(m.ProviderMeta), now,
	)
	if err != nil {
		return errs.NewInternal("insert message", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = message_count + 1, updated_at = ? WHERE conversation_id = ?`,
		now, m.ConversationID,
	)
	if err != nil {
		return errs.NewInternal("bump message_count", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.NewInternal("commit message tx", err)
	}
	m.Timestamp = parseTime(now)
	return nil
}

// LastMessages returns the last n Messages of a conversation in
// ascending sequence_number order (spec §4.H step 3).
func (s *Store) LastMessages(ctx context.Context, conversationID string, n int) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, conversation_id, role, content, tool_calls_json, sequence_number, provider_meta_json, timestamp
		FROM (
			SELECT * FROM messages WHERE conversation_id = ? ORDER BY sequence_number DESC LIMIT ?
		) sub
		ORDER BY sequence_number ASC`, conversationID, n)
	if err != nil {
		return nil, errs.NewInternal("list messages", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var toolCallsJSON, providerMetaJSON sql.NullString
		var timestamp string
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.Role, &m.Content, &toolCallsJSON,
			&m.SequenceNumber, &providerMetaJSON, &timestamp); err != nil {
			return nil, errs.NewInternal("scan message", err)
		}
		if toolCallsJSON.Valid {
			unmarshalJSON(toolCallsJSON.String, &m.ToolCalls)
		}
		if providerMetaJSON.Valid {
			unmarshalJSON(providerMetaJSON.String, &m.ProviderMeta)
		}
		m.Timestamp = parseTime(timestamp)
		out = append(out, &m)
	}
	return out, rows.Err()
}
