package services

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tbourn/pst-admin-backend/internal/domain"
)

// isoMillis is the wire format of message times.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

const unknownContact = "Unknown Contact"

// ChatContact is the conversation-list view of a contact.
type ChatContact struct {
	ID            string     `json:"id"`
	FullName      string     `json:"fullName"`
	Role          string     `json:"role"`
	About         string     `json:"about"`
	Avatar        *string    `json:"avatar"`
	Status        string     `json:"status"`
	WaID          *string    `json:"wa_id"`
	LastMessage   *string    `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	UnseenMsgs    int        `json:"unseenMsgs"`
	Email         *string    `json:"email"`
	Phone         *string    `json:"phone"`
	ChatbotState  string     `json:"chatbotState,omitempty"`
	PreferAgent   bool       `json:"preferAgent"`
}

// MessageFeedback carries the delivery ticks of a message.
type MessageFeedback struct {
	IsSent      bool `json:"isSent"`
	IsDelivered bool `json:"isDelivered"`
	IsSeen      bool `json:"isSeen"`
}

// ChatMessage is the full view of a message.
type ChatMessage struct {
	ID              string          `json:"id"`
	Message         string          `json:"message"`
	Time            string          `json:"time"`
	SenderID        string          `json:"senderId"`
	Feedback        MessageFeedback `json:"feedback"`
	Type            string          `json:"type"`
	MediaURL        *string         `json:"mediaUrl,omitempty"`
	Direction       string          `json:"direction"`
	Status          string          `json:"status"`
	InteractiveData json.RawMessage `json:"interactiveData,omitempty"`
}

// ChatLogEntry is the compact chat-log view of a message.
type ChatLogEntry struct {
	ID              string          `json:"id"`
	Message         string          `json:"message"`
	IsSender        bool            `json:"isSender"`
	Time            string          `json:"time"`
	Type            string          `json:"type"`
	MediaURL        *string         `json:"mediaUrl,omitempty"`
	Feedback        MessageFeedback `json:"feedback"`
	InteractiveData json.RawMessage `json:"interactiveData,omitempty"`
}

// ToChatContact converts a contact row to its list view.
func ToChatContact(c domain.Contact) ChatContact {
	name := firstNonBlank(deref(c.Name), deref(c.WaID), unknownContact)
	return ChatContact{
		ID:            c.ID,
		FullName:      name,
		Role:          "Contact",
		Avatar:        c.ProfilePicURL,
		Status:        "offline",
		WaID:          c.WaID,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		ChatbotState:  c.ChatbotState,
		PreferAgent:   c.PreferAgent,
	}
}

// ToChatMessage converts a message row to its full view.
func ToChatMessage(m domain.Message) ChatMessage {
	return ChatMessage{
		ID:              m.ID,
		Message:         m.Content,
		Time:            messageTime(m),
		SenderID:        firstNonBlank(deref(m.UserID), m.ContactID),
		Feedback:        feedbackOf(m.Status),
		Type:            firstNonBlank(m.Type, domain.TypeText),
		MediaURL:        m.MediaURL,
		Direction:       firstNonBlank(m.Direction, domain.DirectionIncoming),
		Status:          m.Status,
		InteractiveData: rawJSON(m.InteractiveData),
	}
}

// ToChatLogEntry converts a message row to its chat-log view. Outgoing
// messages are the operator's side.
func ToChatLogEntry(m domain.Message) ChatLogEntry {
	return ChatLogEntry{
		ID:              m.ID,
		Message:         m.Content,
		IsSender:        m.Direction == domain.DirectionOutgoing,
		Time:            messageTime(m),
		Type:            firstNonBlank(m.Type, domain.TypeText),
		MediaURL:        m.MediaURL,
		Feedback:        feedbackOf(m.Status),
		InteractiveData: rawJSON(m.InteractiveData),
	}
}

// ToChatContacts maps ToChatContact over rows.
func ToChatContacts(rows []domain.Contact) []ChatContact {
	out := make([]ChatContact, 0, len(rows))
	for _, c := range rows {
		out = append(out, ToChatContact(c))
	}
	return out
}

// ToChatLog maps ToChatLogEntry over rows.
func ToChatLog(rows []domain.Message) []ChatLogEntry {
	out := make([]ChatLogEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, ToChatLogEntry(m))
	}
	return out
}

func feedbackOf(status string) MessageFeedback {
	return MessageFeedback{
		IsSent:      true,
		IsDelivered: domain.IsDelivered(status),
		IsSeen:      status == domain.StatusRead,
	}
}

// messageTime renders the message timestamp. Legacy second-valued rows are
// tolerated; rows without a timestamp fall back to created_at.
func messageTime(m domain.Message) string {
	if ts := domain.NormalizeEpochMillis(m.Timestamp); ts > 0 {
		return time.UnixMilli(ts).UTC().Format(isoMillis)
	}
	return m.CreatedAt.UTC().Format(isoMillis)
}

func rawJSON(b []byte) json.RawMessage {
	t := bytes.TrimSpace(b)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil
	}
	return json.RawMessage(t)
}
