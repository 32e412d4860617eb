package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of a webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// WebhookPayload is the body of a webhook notification.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups changes for one business account.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one notification; Field is "messages" for message and
// status callbacks.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds inbound messages and delivery statuses.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []InboundMessage `json:"messages"`
	Statuses         []StatusUpdate   `json:"statuses"`
}

// WebhookContact is the sender profile attached to inbound messages.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMedia is a media attachment of an inbound message.
type InboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// InboundMessage is a message sent by a contact. Timestamp is epoch seconds.
type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image    *InboundMedia `json:"image,omitempty"`
	Document *InboundMedia `json:"document,omitempty"`
	Audio    *InboundMedia `json:"audio,omitempty"`
	Video    *InboundMedia `json:"video,omitempty"`
	Context  *struct {
		ID string `json:"id"`
	} `json:"context,omitempty"`
	Interactive map[string]any `json:"interactive,omitempty"`
}

// Body returns the displayable content of the message.
func (m InboundMessage) Body() string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Image != nil:
		return m.Image.Caption
	case m.Video != nil:
		return m.Video.Caption
	case m.Document != nil:
		if m.Document.Caption != "" {
			return m.Document.Caption
		}
		return m.Document.Filename
	}
	return ""
}

// Media returns the attachment of the message, if any.
func (m InboundMessage) Media() *InboundMedia {
	for _, md := range []*InboundMedia{m.Image, m.Document, m.Audio, m.Video} {
		if md != nil {
			return md
		}
	}
	return nil
}

// StatusUpdate reports the delivery state of an outbound message.
type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// VerifySignature checks header (as sent in SignatureHeader) against the
// HMAC-SHA256 of body keyed with appSecret.
func VerifySignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the SignatureHeader value for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
