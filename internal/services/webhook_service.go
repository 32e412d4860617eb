// Package services – WebhookService
//
// WebhookService consumes the gateway's webhook: the subscription handshake,
// inbound messages from contacts, and delivery status callbacks for outbound
// messages.
//
// Inbound messages create the contact on first contact and are stored as
// incoming rows with the gateway's seconds timestamp converted to
// milliseconds. Redelivered notifications are recognized by wamid and stored
// once. Status callbacks only move a message forward (sent, delivered, read);
// failed is accepted from sent or delivered; anything else is ignored.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// ErrVerifyToken is returned when the subscription handshake does not match.
var ErrVerifyToken = errors.New("webhook verification failed")

// WebhookResult counts what a notification contained.
type WebhookResult struct {
	Messages int `json:"messages"`
	Statuses int `json:"statuses"`
	Ignored  int `json:"ignored"`
}

// WebhookService processes gateway webhooks.
type WebhookService struct {
	DB  *gorm.DB
	Hub realtime.Hub

	// VerifyToken is echoed back by the gateway during subscription.
	VerifyToken string
	// AppSecret keys the payload signature; empty disables the check.
	AppSecret string

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *WebhookService) tracer() trace.Tracer { return otel.Tracer("services/WebhookService") }

// Verify answers the subscription handshake and returns the challenge.
func (s *WebhookService) Verify(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || s.VerifyToken == "" || token != s.VerifyToken {
		return "", E(KindUnauthorized, "VerifyWebhook", ErrVerifyToken)
	}
	return challenge, nil
}

// Handle verifies and processes one notification body.
func (s *WebhookService) Handle(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	ctx, span := s.tracer().Start(ctx, "HandleWebhook")
	defer span.End()

	if s.AppSecret != "" && !whatsapp.VerifySignature(s.AppSecret, body, signature) {
		return WebhookResult{}, ErrBadSignature
	}
	var p whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return WebhookResult{}, E(KindInvalid, "HandleWebhook", err)
	}

	var res WebhookResult
	for _, entry := range p.Entry {
		for _, ch := range entry.Changes {
			if ch.Field != "messages" {
				res.Ignored++
				continue
			}
			names := map[string]string{}
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = strings.TrimSpace(c.Profile.Name)
			}
			for _, m := range ch.Value.Messages {
				if err := s.inbound(ctx, m, names[m.From]); err != nil {
					logger(ctx).Error().Err(err).Str("wamid", m.ID).Msg("webhook: inbound message")
					res.Ignored++
					continue
				}
				res.Messages++
			}
			for _, st := range ch.Value.Statuses {
				applied, err := s.status(ctx, st)
				if err != nil {
					logger(ctx).Error().Err(err).Str("wamid", st.ID).Msg("webhook: status update")
				}
				if applied {
					res.Statuses++
				} else {
					res.Ignored++
				}
			}
		}
	}
	span.SetAttributes(
		attribute.Int("webhook.messages", res.Messages),
		attribute.Int("webhook.statuses", res.Statuses),
	)
	return res, nil
}

func (s *WebhookService) inbound(ctx context.Context, in whatsapp.InboundMessage, profileName string) error {
	waID := strings.TrimSpace(in.From)
	if !whatsapp.IsValidWaID(waID) {
		return ErrInvalidPhone
	}
	if in.ID != "" {
		if _, err := repo.GetMessageByWamid(ctx, s.DB, in.ID); err == nil {
			return nil
		} else if !repo.IsNotFound(err) {
			return err
		}
	}

	contact, err := repo.GetContactByWaID(ctx, s.DB, waID)
	if repo.IsNotFound(err) {
		var name *string
		if profileName != "" {
			name = &profileName
		}
		contact, err = repo.CreateContact(ctx, s.DB, waID, name)
		if err == nil {
			publishContact(ctx, s.Hub, realtime.EventInsert, contact)
		}
	}
	if err != nil {
		return err
	}

	ts, err := domain.ParseEpochMillis(in.Timestamp)
	if err != nil || ts <= 0 {
		ts = domain.EpochMillis(s.now())
	}
	msg := &domain.Message{
		ContactID:       contact.ID,
		Content:         in.Body(),
		Type:            inboundType(in.Type),
		Status:          domain.StatusDelivered,
		StatusTimestamp: &ts,
		Direction:       domain.DirectionIncoming,
		Timestamp:       ts,
	}
	if in.ID != "" {
		msg.MessageID = &in.ID
	}
	if in.Context != nil && in.Context.ID != "" {
		msg.ReplyTo = &in.Context.ID
	}
	if len(in.Interactive) > 0 {
		if b, err := json.Marshal(in.Interactive); err == nil {
			msg.InteractiveData = datatypes.JSON(b)
		}
	}
	if err := repo.CreateMessage(ctx, s.DB, msg); err != nil {
		return err
	}
	publishMessage(ctx, s.Hub, realtime.EventInsert, msg)

	preview := firstNonBlank(msg.Content, mediaPreview(msg.Type))
	if err := repo.UpdateContactLastMessage(ctx, s.DB, contact.ID, preview, time.UnixMilli(ts).UTC()); err != nil {
		logger(ctx).Error().Err(err).Str("contact_id", contact.ID).Msg("webhook: update contact last message")
	} else if c, err := repo.GetContact(ctx, s.DB, contact.ID); err == nil {
		publishContact(ctx, s.Hub, realtime.EventUpdate, c)
	}
	return nil
}

// status applies a delivery callback. It reports whether the row changed.
func (s *WebhookService) status(ctx context.Context, st whatsapp.StatusUpdate) (bool, error) {
	if st.ID == "" {
		return false, nil
	}
	msg, err := repo.GetMessageByWamid(ctx, s.DB, st.ID)
	if err != nil {
		if repo.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !domain.CanAdvanceStatus(msg.Status, st.Status) {
		return false, nil
	}
	ts, err := domain.ParseEpochMillis(st.Timestamp)
	if err != nil || ts <= 0 {
		ts = domain.EpochMillis(s.now())
	}
	if err := repo.UpdateMessageStatus(ctx, s.DB, msg.ID, repo.StatusUpdate{Status: st.Status, StatusTimestamp: ts}); err != nil {
		return false, err
	}
	msg.Status = st.Status
	msg.StatusTimestamp = &ts
	publishMessage(ctx, s.Hub, realtime.EventUpdate, msg)
	return true, nil
}

func inboundType(t string) string {
	switch t {
	case domain.TypeImage, domain.TypeAudio, domain.TypeVideo, domain.TypeDocument, domain.TypeInteractive:
		return t
	case "button":
		return domain.TypeInteractive
	}
	return domain.TypeText
}

func mediaPreview(typ string) string {
	switch typ {
	case domain.TypeImage:
		return imageFilePreview
	case domain.TypeAudio:
		return "🎵 Audio"
	case domain.TypeVideo:
		return "🎬 Video"
	case domain.TypeDocument:
		return "📄 Document"
	}
	return ""
}
