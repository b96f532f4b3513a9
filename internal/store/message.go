package store

import (
	"encoding/json"
	"time"

	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
)

// UpsertMessage inserts or updates a message (idempotent on msg_id).
func (db *DB) UpsertMessage(m *model.Message) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO messages (msg_id, correlation_id, conversation_id, sender_id, sender_name, body, attachments, reply_to, status, own, deleted, created_at, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			attachments = excluded.attachments,
			status = excluded.status,
			deleted = excluded.deleted`,
		m.ID, m.CorrelationID, m.ConversationID, m.Sender.ID, m.Sender.Name,
		m.Body, string(attachments), m.ReplyToID, string(m.Status),
		m.Own, m.Deleted, m.CreatedAt, now)
	return err
}

// ReplaceMessageID swaps a temporary message id for the confirmed server id.
func (db *DB) ReplaceMessageID(oldID, newID string) error {
	_, err := db.Exec(`UPDATE OR REPLACE messages SET msg_id = ? WHERE msg_id = ?`, newID, oldID)
	return err
}

// DeleteSupersededTemp removes any leftover temporary rows sharing the
// correlation id of a confirmed message.
func (db *DB) DeleteSupersededTemp(correlationID, confirmedID string) error {
	if correlationID == "" {
		return nil
	}
	_, err := db.Exec(`DELETE FROM messages WHERE correlation_id = ? AND msg_id != ?`, correlationID, confirmedID)
	return err
}

// DeleteMessage removes a message row.
func (db *DB) DeleteMessage(id string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE msg_id = ?`, id)
	return err
}

// ListMessages returns a conversation's messages ordered oldest first.
func (db *DB) ListMessages(conversationID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT msg_id, correlation_id, conversation_id, sender_id, sender_name, body, attachments, reply_to, status, own, deleted, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, inserted_at ASC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var attachments, st string
		if err := rows.Scan(&m.ID, &m.CorrelationID, &m.ConversationID,
			&m.Sender.ID, &m.Sender.Name, &m.Body, &attachments, &m.ReplyToID,
			&st, &m.Own, &m.Deleted, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			m.Attachments = nil
		}
		m.Status = status.Status(st)
		// A persisted record was restored, not re-decided: ownership stays as
		// stored, messages never flip styling across restarts.
		m.OwnershipDetermined = true
		m.Temporary = model.IsTempMessageID(m.ID)
		out = append(out, &m)
	}
	return out, rows.Err()
}
