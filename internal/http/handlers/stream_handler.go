// Real-time stream handlers.
//
//   - GET /contacts/stream                (contact inserts, updates, deletes)
//   - GET /contacts/{id}/messages/stream  (message changes of one contact)
//
// Both endpoints speak Server-Sent Events by default and switch to a
// WebSocket when the request is an upgrade. Each frame carries the change
// kind and the transformed row, the same shape the list endpoints return.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/services"
)

// streamBuffer is how many events may queue for a slow client before the
// stream is closed.
const streamBuffer = 64

// StreamEvent is one frame of a change stream.
type StreamEvent struct {
	Event realtime.EventKind `json:"event" example:"INSERT"`
	Data  any                `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks are left to the CORS layer in front of the API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// sink queues events for one client. It is fed from the subscription's
// delivery goroutine only.
type sink struct {
	ch   chan StreamEvent
	full bool
}

// offer queues ev without blocking the hub; a full queue closes the stream.
func (s *sink) offer(ev StreamEvent) {
	if s.full {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.full = true
		close(s.ch)
	}
}

// subscribeFunc opens a subscription that forwards into out.
type subscribeFunc func(ctx context.Context, out *sink) (*realtime.Subscription, error)

// StreamContacts godoc
// @ID          streamContacts
// @Summary     Stream contact changes
// @Description Server-Sent Events; send a WebSocket upgrade to receive the same frames over a socket.
// @Tags        Contacts
// @Produce     text/event-stream
// @Security    BearerAuth
// @Param       access_token  query  string  false  "Bearer token for clients that cannot set headers"
// @Success     200  {object}  handlers.StreamEvent
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /contacts/stream [get]
func (h *Handlers) StreamContacts(c *gin.Context) {
	h.stream(c, func(ctx context.Context, out *sink) (*realtime.Subscription, error) {
		return h.Conversations.SubscribeContacts(ctx, func(k realtime.EventKind, ct services.ChatContact) {
			out.offer(StreamEvent{Event: k, Data: ct})
		})
	})
}

// StreamMessages godoc
// @ID          streamMessages
// @Summary     Stream message changes of a contact
// @Description Server-Sent Events; send a WebSocket upgrade to receive the same frames over a socket.
// @Tags        Messages
// @Produce     text/event-stream
// @Security    BearerAuth
// @Param       id            path   string  true   "Contact ID"
// @Param       access_token  query  string  false  "Bearer token for clients that cannot set headers"
// @Success     200  {object}  handlers.StreamEvent
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /contacts/{id}/messages/stream [get]
func (h *Handlers) StreamMessages(c *gin.Context) {
	contactID := c.Param("id")
	h.stream(c, func(ctx context.Context, out *sink) (*realtime.Subscription, error) {
		return h.Conversations.SubscribeMessages(ctx, contactID, func(k realtime.EventKind, e services.ChatLogEntry) {
			out.offer(StreamEvent{Event: k, Data: e})
		})
	})
}

func (h *Handlers) stream(c *gin.Context, subscribe subscribeFunc) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	out := &sink{ch: make(chan StreamEvent, streamBuffer)}
	events := out.ch
	sub, err := subscribe(ctx, out)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("subscribe")
		fail(c, http.StatusServiceUnavailable, ErrCodeStreamFailed, "stream unavailable")
		return
	}
	defer sub.Unsubscribe()

	lg := middleware.LoggerFrom(c)
	if websocket.IsWebSocketUpgrade(c.Request) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			lg.Warn().Err(err).Msg("websocket upgrade")
			return
		}
		defer conn.Close()
		h.pumpSocket(ctx, cancel, conn, events, sub)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	// Long-lived; the server WriteTimeout must not cut the stream.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	ping := time.NewTicker(h.StreamHeartbeat)
	defer ping.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sub.Done():
			return false
		case ev, open := <-events:
			if !open {
				lg.Warn().Msg("stream client too slow, closing")
				return false
			}
			c.SSEvent(string(ev.Event), ev.Data)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}

func (h *Handlers) pumpSocket(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, events <-chan StreamEvent, sub *realtime.Subscription) {
	// Reader: drains control frames and notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.StreamHeartbeat)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-sub.Done():
			return
		case ev, open := <-events:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client too slow"), time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
