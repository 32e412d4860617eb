// Package services – ConversationService
//
// ConversationService is the read side of the chat console: the contact list,
// a contact's message history, and live subscriptions to contact and message
// changes. Bulk reads and live events go through the same transforms
// (ToChatContact, ToChatLogEntry), so an update event renders exactly like a
// fresh reload of the same row.
//
// List operations swallow backend failures: they log and return an empty
// slice. Single-contact reads and updates propagate errors.
package services

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/search"
)

// ConversationRepo defines the repository contract required by
// ConversationService.
type ConversationRepo interface {
	// ListContacts returns contacts by most recent activity, silent ones last.
	ListContacts(ctx context.Context, db *gorm.DB) ([]domain.Contact, error)

	// GetContact fetches one contact.
	GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error)

	// UpdateContact applies operator edits and returns the fresh row.
	UpdateContact(ctx context.Context, db *gorm.DB, id string, p repo.ContactPatch) (*domain.Contact, error)

	// ListMessagesByContact returns a conversation in timestamp order.
	ListMessagesByContact(ctx context.Context, db *gorm.DB, contactID string) ([]domain.Message, error)

	// ConversationStats returns message count and newest timestamps.
	ConversationStats(ctx context.Context, db *gorm.DB, contactID string) (count, maxTS, maxStatusTS int64, err error)
}

// ConversationSummary is aggregate metadata about one conversation. Handlers
// use it to build ETags.
type ConversationSummary struct {
	Count              int64
	MaxTimestamp       int64
	MaxStatusTimestamp int64
}

// ConversationService provides contact and message reads plus live updates.
type ConversationService struct {
	DB   *gorm.DB
	Repo ConversationRepo
	Hub  realtime.Hub
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, r ConversationRepo, hub realtime.Hub) *ConversationService {
	return &ConversationService{DB: db, Repo: r, Hub: hub}
}

func (s *ConversationService) tracer() trace.Tracer {
	return otel.Tracer("services/ConversationService")
}

// ListContacts returns the contact list. On any backend failure it logs and
// returns an empty list.
func (s *ConversationService) ListContacts(ctx context.Context) []ChatContact {
	ctx, span := s.tracer().Start(ctx, "ListContacts")
	defer span.End()

	rows, err := s.Repo.ListContacts(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		logger(ctx).Error().Err(err).Str("op", "ListContacts").Msg("list contacts failed")
		return []ChatContact{}
	}
	return ToChatContacts(rows)
}

// FilterContacts narrows an already ordered contact list to those matching q
// on name, phone, wa_id, e-mail or last message. Better matches come first;
// equal matches keep list order. A blank q returns contacts unchanged.
// limit <= 0 means no limit.
func FilterContacts(contacts []ChatContact, q string, limit int) []ChatContact {
	if strings.TrimSpace(q) == "" {
		return contacts
	}
	docs := make([]search.Doc, len(contacts))
	byID := make(map[string]ChatContact, len(contacts))
	for i, c := range contacts {
		docs[i] = search.Doc{ID: c.ID, Fields: []string{
			c.FullName, deref(c.Phone), deref(c.WaID), deref(c.Email), deref(c.LastMessage),
		}}
		byID[c.ID] = c
	}
	hits := search.New(docs).Search(q, limit)
	out := make([]ChatContact, 0, len(hits))
	for _, h := range hits {
		out = append(out, byID[h.ID])
	}
	return out
}

// ListMessages returns a contact's chat log in ascending time order. On any
// backend failure it logs and returns an empty log.
func (s *ConversationService) ListMessages(ctx context.Context, contactID string) []ChatLogEntry {
	ctx, span := s.tracer().Start(ctx, "ListMessages",
		trace.WithAttributes(attribute.String("contact.id", contactID)),
	)
	defer span.End()

	rows, err := s.Repo.ListMessagesByContact(ctx, s.DB, contactID)
	if err != nil {
		span.RecordError(err)
		logger(ctx).Error().Err(err).Str("op", "ListMessages").Str("contact_id", contactID).Msg("list messages failed")
		return []ChatLogEntry{}
	}
	return ToChatLog(rows)
}

// GetContact returns one contact.
func (s *ConversationService) GetContact(ctx context.Context, id string) (*ChatContact, error) {
	c, err := s.Repo.GetContact(ctx, s.DB, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrContactNotFound
		}
		return nil, E(KindBackend, "GetContact", err)
	}
	cc := ToChatContact(*c)
	return &cc, nil
}

// UpdateContact edits operator-owned contact fields and announces the change.
func (s *ConversationService) UpdateContact(ctx context.Context, id string, p repo.ContactPatch) (*ChatContact, error) {
	ctx, span := s.tracer().Start(ctx, "UpdateContact",
		trace.WithAttributes(attribute.String("contact.id", id)),
	)
	defer span.End()

	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, E(KindInvalid, "UpdateContact", errBlank("name"))
	}
	if p.ChatbotState != nil && strings.TrimSpace(*p.ChatbotState) == "" {
		return nil, E(KindInvalid, "UpdateContact", errBlank("chatbot_state"))
	}
	c, err := s.Repo.UpdateContact(ctx, s.DB, id, p)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrContactNotFound
		}
		return nil, E(KindBackend, "UpdateContact", err)
	}
	publishContact(ctx, s.Hub, realtime.EventUpdate, c)
	cc := ToChatContact(*c)
	return &cc, nil
}

// Summary returns aggregate metadata for a contact's conversation.
func (s *ConversationService) Summary(ctx context.Context, contactID string) (ConversationSummary, error) {
	n, ts, sts, err := s.Repo.ConversationStats(ctx, s.DB, contactID)
	if err != nil {
		return ConversationSummary{}, E(KindBackend, "Summary", err)
	}
	return ConversationSummary{Count: n, MaxTimestamp: ts, MaxStatusTimestamp: sts}, nil
}

// SubscribeMessages delivers inserts and updates of the contact's messages to
// fn, in arrival order, until the subscription is cancelled or ctx ends.
func (s *ConversationService) SubscribeMessages(ctx context.Context, contactID string, fn func(realtime.EventKind, ChatLogEntry)) (*realtime.Subscription, error) {
	if s.Hub == nil {
		return nil, E(KindBackend, "SubscribeMessages", realtime.ErrClosed)
	}
	f := realtime.Filter{
		Table:  realtime.TableMessages,
		Events: []realtime.EventKind{realtime.EventInsert, realtime.EventUpdate},
		Column: "contact_id",
		Value:  contactID,
	}
	sub, err := s.Hub.Subscribe(ctx, f, func(c realtime.Change) {
		var m domain.Message
		if err := json.Unmarshal(c.Row, &m); err != nil {
			logger(ctx).Warn().Err(err).Str("contact_id", contactID).Msg("undecodable message change")
			return
		}
		fn(c.Event, ToChatLogEntry(m))
	})
	if err != nil {
		return nil, E(KindBackend, "SubscribeMessages", err)
	}
	return sub, nil
}

// SubscribeContacts delivers every contact change to fn.
func (s *ConversationService) SubscribeContacts(ctx context.Context, fn func(realtime.EventKind, ChatContact)) (*realtime.Subscription, error) {
	if s.Hub == nil {
		return nil, E(KindBackend, "SubscribeContacts", realtime.ErrClosed)
	}
	sub, err := s.Hub.Subscribe(ctx, realtime.Filter{Table: realtime.TableContacts}, func(c realtime.Change) {
		var row domain.Contact
		if err := json.Unmarshal(c.Row, &row); err != nil {
			logger(ctx).Warn().Err(err).Msg("undecodable contact change")
			return
		}
		fn(c.Event, ToChatContact(row))
	})
	if err != nil {
		return nil, E(KindBackend, "SubscribeContacts", err)
	}
	return sub, nil
}
