package transport

import (
	"encoding/json"
	"fmt"

	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
)

// SenderRef decodes the duck-typed sender field seen on the wire: a bare id
// string, an embedded user object, or the legacy {"Id": ...} shape. A shape
// that yields no id decodes to an empty descriptor; ownership resolution
// fails closed on it downstream.
type SenderRef struct {
	model.Sender
}

// UnmarshalJSON implements the shape fan-out.
func (s *SenderRef) UnmarshalJSON(data []byte) error {
	// Bare id string.
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		s.Sender = model.Sender{ID: id}
		return nil
	}

	// Object: current shape uses lowercase keys, legacy uses "Id".
	var obj struct {
		ID        string `json:"id"`
		LegacyID  string `json:"Id"`
		Name      string `json:"name"`
		Username  string `json:"username"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode sender: %w", err)
	}

	s.Sender = model.Sender{
		ID:        obj.ID,
		Name:      obj.Name,
		AvatarURL: obj.AvatarURL,
	}
	if s.Sender.ID == "" {
		s.Sender.ID = obj.LegacyID
	}
	if s.Sender.Name == "" {
		s.Sender.Name = obj.Username
	}
	return nil
}

// wireEvent is the raw JSON frame a transport receives.
type wireEvent struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId"`
	MessageID      string           `json:"messageId"`
	ClientID       string           `json:"clientId"`
	Sender         SenderRef        `json:"sender"`
	RecipientID    string           `json:"recipientId"`
	Body           string           `json:"content"`
	Attachments    []wireAttachment `json:"attachments"`
	ReplyToID      string           `json:"replyId"`
	Status         string           `json:"status"`
	Timestamp      int64            `json:"timestamp"`

	UserID         string `json:"userId"`
	PresenceStatus string `json:"presenceStatus"`
	LastSeen       int64  `json:"lastSeen"`
}

type wireAttachment struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Kind      string `json:"kind"`
	Thumbnail string `json:"thumbnail"`
}

// DecodeEvent parses a wire frame into a normalized Event.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}

	evt := Event{
		Type:           EventType(w.Type),
		ConversationID: w.ConversationID,
		MessageID:      w.MessageID,
		ClientID:       w.ClientID,
		Sender:         w.Sender.Sender,
		RecipientID:    w.RecipientID,
		Body:           w.Body,
		ReplyToID:      w.ReplyToID,
		Status:         status.Status(w.Status),
		Timestamp:      w.Timestamp,
		UserID:         w.UserID,
		PresenceStatus: w.PresenceStatus,
		LastSeen:       w.LastSeen,
	}
	for _, a := range w.Attachments {
		evt.Attachments = append(evt.Attachments, model.Attachment{
			URL:       a.URL,
			Filename:  a.Filename,
			Size:      a.Size,
			Kind:      a.Kind,
			Thumbnail: a.Thumbnail,
		})
	}
	return evt, nil
}
