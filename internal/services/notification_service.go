// Package services – NotificationService
//
// NotificationService sends WhatsApp notifications that are not part of a
// conversation: ad-hoc texts and images, welcome and reminder messages, and
// paced batch sends. Recipients are phone numbers in any common notation;
// they are validated before the gateway is called.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// WIB is Western Indonesia Time, used for reminder dates.
var WIB = time.FixedZone("WIB", 7*60*60)

var (
	indonesianDays   = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}
	indonesianMonths = [...]string{"Januari", "Februari", "Maret", "April", "Mei", "Juni",
		"Juli", "Agustus", "September", "Oktober", "November", "Desember"}
)

// FormatIndonesianDateTime renders t like "Kamis, 15 Oktober 2026 pukul 14.30".
func FormatIndonesianDateTime(t time.Time) string {
	return fmt.Sprintf("%s, %d %s %d pukul %02d.%02d",
		indonesianDays[t.Weekday()], t.Day(), indonesianMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// WelcomeMessage is the greeting sent to new members.
func WelcomeMessage(name string) string {
	return fmt.Sprintf("🎉 Selamat datang %s!\n\n"+
		"Terima kasih telah bergabung dengan aplikasi kami. Kami senang Anda bergabung dengan komunitas kami.\n\n"+
		"Jika ada pertanyaan, jangan ragu untuk menghubungi kami.", name)
}

// ReminderMessage is the text of a reminder for an event at the given time.
func ReminderMessage(text string, at time.Time) string {
	return fmt.Sprintf("⏰ Pengingat!\n\n%s\n\nWaktu: %s\n\nJangan sampai terlewat ya! 😊", text, FormatIndonesianDateTime(at))
}

// Recipient is one entry of a batch send. An empty Message uses the batch text.
type Recipient struct {
	Phone   string `json:"phone"   validate:"required"`
	Message string `json:"message"`
}

// BatchResult summarizes a batch send. Errors holds "phone: reason" lines.
type BatchResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// NotificationService sends standalone notifications.
type NotificationService struct {
	Gateway Gateway

	// Limiter paces batch sends; nil sends without pause.
	Limiter *rate.Limiter

	// Location is the zone reminder dates are shown in; nil means WIB.
	Location *time.Location
}

// NewNotificationService paces batches at rps messages per second.
func NewNotificationService(gw Gateway, rps float64) *NotificationService {
	s := &NotificationService{Gateway: gw}
	if rps > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return s
}

func (s *NotificationService) tracer() trace.Tracer {
	return otel.Tracer("services/NotificationService")
}

func (s *NotificationService) gateway() Gateway {
	if s.Gateway == nil {
		return unconfiguredGateway{}
	}
	return s.Gateway
}

// Send texts message to phone.
func (s *NotificationService) Send(ctx context.Context, phone, message string) (*whatsapp.SendResponse, error) {
	ctx, span := s.tracer().Start(ctx, "Send")
	defer span.End()

	if !whatsapp.ValidatePhoneNumber(phone) {
		return nil, ErrInvalidPhone
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyContent
	}
	resp, err := s.gateway().SendText(ctx, phone, message)
	if err != nil {
		span.RecordError(err)
		logger(ctx).Error().Err(err).Str("to", whatsapp.FormatPhoneNumber(phone)).Msg("notification send failed")
		return nil, E(KindGateway, "Send", err)
	}
	return resp, nil
}

// SendImage sends an image by link with a caption.
func (s *NotificationService) SendImage(ctx context.Context, phone, imageURL, caption string) (*whatsapp.SendResponse, error) {
	if !whatsapp.ValidatePhoneNumber(phone) {
		return nil, ErrInvalidPhone
	}
	if strings.TrimSpace(imageURL) == "" {
		return nil, E(KindInvalid, "SendImage", errBlank("image_url"))
	}
	resp, err := s.gateway().SendImage(ctx, phone, imageURL, caption)
	if err != nil {
		logger(ctx).Error().Err(err).Str("to", whatsapp.FormatPhoneNumber(phone)).Msg("image notification failed")
		return nil, E(KindGateway, "SendImage", err)
	}
	return resp, nil
}

// SendWelcome greets a new member.
func (s *NotificationService) SendWelcome(ctx context.Context, phone, name string) (*whatsapp.SendResponse, error) {
	return s.Send(ctx, phone, WelcomeMessage(name))
}

// SendReminder reminds phone of text happening at at.
func (s *NotificationService) SendReminder(ctx context.Context, phone, text string, at time.Time) (*whatsapp.SendResponse, error) {
	loc := s.Location
	if loc == nil {
		loc = WIB
	}
	return s.Send(ctx, phone, ReminderMessage(text, at.In(loc)))
}

// SendBatch sends text (or each recipient's own message) to every recipient
// in order, paced by the limiter. Invalid numbers count as failures without a
// gateway call. Cancelling ctx stops the batch; the remaining recipients are
// counted as failed.
func (s *NotificationService) SendBatch(ctx context.Context, recipients []Recipient, text string) BatchResult {
	ctx, span := s.tracer().Start(ctx, "SendBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(recipients))),
	)
	defer span.End()

	res := BatchResult{Errors: []string{}}
	fail := func(phone string, err error) {
		res.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", phone, err))
	}

	for i, r := range recipients {
		msg := firstNonBlank(r.Message, text)
		if !whatsapp.ValidatePhoneNumber(r.Phone) {
			fail(r.Phone, ErrInvalidPhone)
			continue
		}
		if msg == "" {
			fail(r.Phone, ErrEmptyContent)
			continue
		}
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				for _, rest := range recipients[i:] {
					fail(rest.Phone, err)
				}
				break
			}
		}
		if _, err := s.gateway().SendText(ctx, r.Phone, msg); err != nil {
			fail(r.Phone, err)
			continue
		}
		res.Sent++
	}

	span.SetAttributes(attribute.Int("batch.sent", res.Sent), attribute.Int("batch.failed", res.Failed))
	logger(ctx).Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("notification batch complete")
	return res
}
