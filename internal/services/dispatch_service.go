// Package services – DispatchService
//
// DispatchService sends a single outbound message (text, image by link, or an
// uploaded image file) to a contact on behalf of a staff user and keeps the
// persisted message row consistent with the gateway outcome.
//
// The row is written first with status "sent". A gateway success moves that
// row (matched by its own ID) to "delivered" and records the wamid; a gateway
// failure moves it to "failed". The contact's last-message preview is updated
// whatever the gateway said. Nothing is retried.
package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/storage"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// Fallback previews for image messages.
const (
	imageLabel       = "Image"
	imageFilePreview = "📷 Image"
)

// Gateway is the subset of the messaging client used for dispatch.
type Gateway interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
	SendImage(ctx context.Context, to, link, caption string) (*whatsapp.SendResponse, error)
}

// MediaStore is the object storage used for uploaded images.
type MediaStore interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, opts storage.UploadOptions) error
	PublicURL(objectPath string) (string, error)
	Remove(ctx context.Context, objectPaths ...string) error
}

// SendResult reports the outcome of a dispatch. Success means the message row
// was persisted; a gateway failure leaves Success true with Status "failed".
type SendResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Wamid   string `json:"wamid,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`

	// Kind classifies the failure when Success is false.
	Kind ErrorKind `json:"-"`
}

func failed(err error) SendResult {
	return SendResult{Success: false, Error: err.Error(), Kind: KindOf(err)}
}

// DispatchService implements outbound message sends.
type DispatchService struct {
	DB      *gorm.DB
	Gateway Gateway
	Media   MediaStore
	Hub     realtime.Hub

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DispatchService) tracer() trace.Tracer { return otel.Tracer("services/DispatchService") }

// SendText persists and sends a text message. Contacts without a messaging
// address still get the row (it stays "sent") and the call succeeds.
func (s *DispatchService) SendText(ctx context.Context, authUID, contactID, content string) SendResult {
	ctx, span := s.tracer().Start(ctx, "SendText",
		trace.WithAttributes(
			attribute.String("contact.id", contactID),
			attribute.String("auth.uid", authUID),
		),
	)
	defer span.End()

	content = norm.NFC.String(content)
	if strings.TrimSpace(content) == "" {
		return failed(ErrEmptyContent)
	}
	user, contact, err := s.resolve(ctx, authUID, contactID)
	if err != nil {
		return failed(err)
	}

	now := s.now()
	msg := s.newOutgoing(contact.ID, user.ID, domain.TypeText, content, nil, now)
	if err := repo.CreateMessage(ctx, s.DB, msg); err != nil {
		logger(ctx).Error().Err(err).Str("contact_id", contactID).Msg("dispatch: insert message")
		return failed(E(KindBackend, "SendText", err))
	}
	publishMessage(ctx, s.Hub, realtime.EventInsert, msg)

	if waID := deref(contact.WaID); waID != "" {
		resp, gerr := s.gateway().SendText(ctx, waID, content)
		s.reconcile(ctx, msg, resp, gerr)
	}

	s.touchContact(ctx, contact.ID, content, now)
	return SendResult{Success: true, ID: msg.ID, Wamid: deref(msg.MessageID), Status: msg.Status}
}

// SendImage persists and sends an image by public link. The contact must have
// a messaging address.
func (s *DispatchService) SendImage(ctx context.Context, authUID, contactID, imageURL, caption string) SendResult {
	ctx, span := s.tracer().Start(ctx, "SendImage",
		trace.WithAttributes(attribute.String("contact.id", contactID)),
	)
	defer span.End()

	if strings.TrimSpace(imageURL) == "" {
		return failed(E(KindInvalid, "SendImage", errors.New("image url is required")))
	}
	caption = norm.NFC.String(caption)
	user, contact, err := s.resolve(ctx, authUID, contactID)
	if err != nil {
		return failed(err)
	}
	waID := deref(contact.WaID)
	if waID == "" {
		return failed(ErrNoWaID)
	}

	text := firstNonBlank(caption, imageLabel)
	now := s.now()
	msg := s.newOutgoing(contact.ID, user.ID, domain.TypeImage, text, &imageURL, now)
	if err := repo.CreateMessage(ctx, s.DB, msg); err != nil {
		logger(ctx).Error().Err(err).Str("contact_id", contactID).Msg("dispatch: insert image message")
		return failed(E(KindBackend, "SendImage", err))
	}
	publishMessage(ctx, s.Hub, realtime.EventInsert, msg)

	resp, gerr := s.gateway().SendImage(ctx, waID, imageURL, caption)
	s.reconcile(ctx, msg, resp, gerr)

	s.touchContact(ctx, contact.ID, text, now)
	return SendResult{Success: true, ID: msg.ID, Wamid: deref(msg.MessageID), Status: msg.Status}
}

// SendImageFile stores an uploaded image in the media bucket under
// <authUID>/img_<ms>_<name>, then sends it by its public link. Failures after
// the upload and before the row exists remove the stored object again.
func (s *DispatchService) SendImageFile(ctx context.Context, authUID, contactID, filename string, file io.Reader, caption string) SendResult {
	ctx, span := s.tracer().Start(ctx, "SendImageFile",
		trace.WithAttributes(
			attribute.String("contact.id", contactID),
			attribute.String("file.name", filename),
		),
	)
	defer span.End()

	caption = norm.NFC.String(caption)
	user, contact, err := s.resolve(ctx, authUID, contactID)
	if err != nil {
		return failed(err)
	}
	waID := deref(contact.WaID)
	if waID == "" {
		return failed(ErrNoWaID)
	}
	if s.Media == nil {
		return failed(E(KindBackend, "SendImageFile", errors.New("media storage not configured")))
	}

	now := s.now()
	objectPath := storage.ObjectPath(authUID, filename, now)
	if err := s.Media.Upload(ctx, objectPath, file, storage.UploadOptions{}); err != nil {
		logger(ctx).Error().Err(err).Str("path", objectPath).Msg("dispatch: upload image")
		return failed(E(KindBackend, "SendImageFile", err))
	}

	publicURL, err := s.Media.PublicURL(objectPath)
	if err != nil || publicURL == "" {
		if err == nil {
			err = errors.New("empty public url")
		}
		logger(ctx).Error().Err(err).Str("path", objectPath).Msg("dispatch: public url")
		s.removeObject(ctx, objectPath)
		return failed(E(KindBackend, "SendImageFile", err))
	}

	msg := s.newOutgoing(contact.ID, user.ID, domain.TypeImage, caption, &publicURL, now)
	if err := repo.CreateMessage(ctx, s.DB, msg); err != nil {
		logger(ctx).Error().Err(err).Str("contact_id", contactID).Msg("dispatch: insert image file message")
		s.removeObject(ctx, objectPath)
		return failed(E(KindBackend, "SendImageFile", err))
	}
	publishMessage(ctx, s.Hub, realtime.EventInsert, msg)

	resp, gerr := s.gateway().SendImage(ctx, waID, publicURL, caption)
	s.reconcile(ctx, msg, resp, gerr)

	s.touchContact(ctx, contact.ID, firstNonBlank(caption, imageFilePreview), now)
	return SendResult{Success: true, ID: msg.ID, Wamid: deref(msg.MessageID), Status: msg.Status}
}

// resolve looks up the staff user by auth UID and the target contact.
func (s *DispatchService) resolve(ctx context.Context, authUID, contactID string) (*domain.User, *domain.Contact, error) {
	user, err := repo.GetUserByAuthUID(ctx, s.DB, authUID)
	if err != nil {
		logger(ctx).Error().Err(err).Str("auth_uid", authUID).Msg("dispatch: resolve staff user")
		if repo.IsNotFound(err) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, E(KindBackend, "resolve", err)
	}
	contact, err := repo.GetContact(ctx, s.DB, contactID)
	if err != nil {
		logger(ctx).Error().Err(err).Str("contact_id", contactID).Msg("dispatch: resolve contact")
		if repo.IsNotFound(err) {
			return nil, nil, ErrContactNotFound
		}
		return nil, nil, E(KindBackend, "resolve", err)
	}
	return user, contact, nil
}

func (s *DispatchService) newOutgoing(contactID, userID, typ, content string, mediaURL *string, now time.Time) *domain.Message {
	ts := domain.EpochMillis(now)
	return &domain.Message{
		ContactID:       contactID,
		UserID:          &userID,
		Content:         content,
		Type:            typ,
		MediaURL:        mediaURL,
		Status:          domain.StatusSent,
		StatusTimestamp: &ts,
		Direction:       domain.DirectionOutgoing,
		Timestamp:       ts,
		CreatedAt:       now,
	}
}

func (s *DispatchService) gateway() Gateway {
	if s.Gateway == nil {
		return unconfiguredGateway{}
	}
	return s.Gateway
}

// reconcile records the gateway outcome on the inserted row. The update is
// best-effort: its failure is logged and the row keeps its previous status.
func (s *DispatchService) reconcile(ctx context.Context, msg *domain.Message, resp *whatsapp.SendResponse, gerr error) {
	lg := logger(ctx)
	u := repo.StatusUpdate{Status: domain.StatusDelivered, StatusTimestamp: domain.EpochMillis(s.now())}
	if gerr != nil {
		lg.Warn().Err(gerr).Str("message_id", msg.ID).Str("contact_id", msg.ContactID).Msg("dispatch: gateway send failed")
		u.Status = domain.StatusFailed
	} else {
		u.Wamid = resp.MessageID()
	}

	if err := repo.UpdateMessageStatus(ctx, s.DB, msg.ID, u); err != nil {
		lg.Error().Err(err).Str("message_id", msg.ID).Str("status", u.Status).Msg("dispatch: status update failed")
		return
	}
	msg.Status = u.Status
	msg.StatusTimestamp = &u.StatusTimestamp
	if u.Wamid != "" {
		msg.MessageID = &u.Wamid
	}
	publishMessage(ctx, s.Hub, realtime.EventUpdate, msg)
}

// touchContact refreshes the contact's last-message preview; failures are
// logged only.
func (s *DispatchService) touchContact(ctx context.Context, contactID, preview string, at time.Time) {
	if err := repo.UpdateContactLastMessage(ctx, s.DB, contactID, preview, at); err != nil {
		logger(ctx).Error().Err(err).Str("contact_id", contactID).Msg("dispatch: update contact last message")
		return
	}
	if c, err := repo.GetContact(ctx, s.DB, contactID); err == nil {
		publishContact(ctx, s.Hub, realtime.EventUpdate, c)
	}
}

func (s *DispatchService) removeObject(ctx context.Context, objectPath string) {
	if err := s.Media.Remove(context.WithoutCancel(ctx), objectPath); err != nil {
		logger(ctx).Error().Err(err).Str("path", objectPath).Msg("dispatch: remove uploaded object")
	}
}

// unconfiguredGateway stands in when no gateway client is wired.
type unconfiguredGateway struct{}

func (unconfiguredGateway) SendText(context.Context, string, string) (*whatsapp.SendResponse, error) {
	return nil, whatsapp.ErrNotConfigured
}

func (unconfiguredGateway) SendImage(context.Context, string, string, string) (*whatsapp.SendResponse, error) {
	return nil, whatsapp.ErrNotConfigured
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
