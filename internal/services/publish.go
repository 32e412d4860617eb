package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
)

// logger returns the request-scoped logger, or the global one.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// publishMessage announces a message row change. Publishing is best-effort.
func publishMessage(ctx context.Context, hub realtime.Hub, ev realtime.EventKind, m *domain.Message) {
	publish(ctx, hub, realtime.TableMessages, ev, m, map[string]string{
		"id":         m.ID,
		"contact_id": m.ContactID,
	})
}

// publishContact announces a contact row change.
func publishContact(ctx context.Context, hub realtime.Hub, ev realtime.EventKind, c *domain.Contact) {
	publish(ctx, hub, realtime.TableContacts, ev, c, map[string]string{"id": c.ID})
}

func publish(ctx context.Context, hub realtime.Hub, table string, ev realtime.EventKind, row any, keys map[string]string) {
	if hub == nil {
		return
	}
	ch, err := realtime.NewChange(table, ev, row, keys)
	if err == nil {
		err = hub.Publish(context.WithoutCancel(ctx), ch)
	}
	if err != nil {
		logger(ctx).Warn().Err(err).Str("table", table).Str("event", string(ev)).Msg("realtime publish failed")
	}
}
