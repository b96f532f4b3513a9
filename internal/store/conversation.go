package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
)

// UpsertConversation writes a conversation record (idempotent on id).
func (db *DB) UpsertConversation(c *model.Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO conversations (id, participants, name, avatar_url, last_message_id, last_preview, last_sender_id, last_status, last_activity, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participants = excluded.participants,
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			last_message_id = excluded.last_message_id,
			last_preview = excluded.last_preview,
			last_sender_id = excluded.last_sender_id,
			last_status = excluded.last_status,
			last_activity = excluded.last_activity,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, string(participants), c.Name, c.AvatarURL,
		c.LastMessage.MessageID, c.LastMessage.Preview, c.LastMessage.SenderID, string(c.LastMessage.Status),
		c.LastActivity, c.UnreadCount, now)
	return err
}

// ListConversations returns all stored conversations sorted by last activity
// descending. Used to repopulate the cache at session start.
func (db *DB) ListConversations() ([]*model.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, participants, name, avatar_url, last_message_id, last_preview, last_sender_id, last_status, last_activity, unread_count
		FROM conversations
		ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns a single conversation, or nil if absent.
func (db *DB) GetConversation(id string) (*model.Conversation, error) {
	row := db.QueryRow(`
		SELECT id, participants, name, avatar_url, last_message_id, last_preview, last_sender_id, last_status, last_activity, unread_count
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteConversation removes a conversation and its messages.
func (db *DB) DeleteConversation(id string) error {
	if _, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// ReplaceConversationID rewrites a placeholder conversation id to the
// authoritative one, on the conversation row and its messages.
func (db *DB) ReplaceConversationID(oldID, newID string) error {
	if _, err := db.Exec(`UPDATE OR REPLACE conversations SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return err
	}
	_, err := db.Exec(`UPDATE messages SET conversation_id = ? WHERE conversation_id = ?`, newID, oldID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (*model.Conversation, error) {
	var c model.Conversation
	var participants, lastStatus string
	if err := r.Scan(&c.ID, &participants, &c.Name, &c.AvatarURL,
		&c.LastMessage.MessageID, &c.LastMessage.Preview, &c.LastMessage.SenderID, &lastStatus,
		&c.LastActivity, &c.UnreadCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		c.Participants = nil
	}
	c.LastMessage.Status = status.Status(lastStatus)
	c.LastMessage.Timestamp = c.LastActivity
	return &c, nil
}
