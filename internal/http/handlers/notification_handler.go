// Notification and webhook HTTP handlers.
//
//   - POST /notifications         (one message: text, image, welcome or reminder)
//   - POST /notifications/batch   (paced send to many recipients)
//   - GET  /webhooks/whatsapp     (subscription handshake, public)
//   - POST /webhooks/whatsapp     (inbound messages and status callbacks, public)
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/services"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// maxWebhookBytes caps a webhook body.
const maxWebhookBytes = 1 << 20

// Notification kinds.
const (
	NotifyText     = "text"
	NotifyImage    = "image"
	NotifyWelcome  = "welcome"
	NotifyReminder = "reminder"
)

// NotificationRequest describes one notification. Which fields are read
// depends on Type.
type NotificationRequest struct {
	Type     string     `json:"type"      binding:"required,oneof=text image welcome reminder" example:"reminder"`
	Phone    string     `json:"phone"     binding:"required" example:"081234567890"`
	Message  string     `json:"message"   example:"Konsultasi statistik"`
	ImageURL string     `json:"image_url" example:"https://pst.example.id/storage/message-media/jadwal.jpg"`
	Caption  string     `json:"caption"`
	Name     string     `json:"name"      example:"Budi"`
	At       *time.Time `json:"at"        example:"2026-10-20T07:30:00Z"`
}

// BatchNotificationRequest sends Message to every recipient that has no
// message of its own.
type BatchNotificationRequest struct {
	Recipients []services.Recipient `json:"recipients" binding:"required,min=1,dive"`
	Message    string               `json:"message"    example:"Layanan PST tutup pada hari libur nasional."`
}

// NotificationResponse acknowledges a sent notification.
type NotificationResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty" example:"wamid.HBgLNjI4MTIzNDU2Nzg5FQIAERgS"`
}

// WebhookAck is returned to the gateway after processing a notification.
type WebhookAck struct {
	Status string `json:"status" example:"ok"`
	services.WebhookResult
}

// SendNotification godoc
// @ID          sendNotification
// @Summary     Send a notification
// @Description Reminders render the date in Indonesian, in WIB.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.NotificationRequest  true  "Notification"
// @Success     200   {object}  handlers.NotificationResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid phone or missing field"
// @Failure     502   {object}  handlers.ErrorResponse  "Gateway error"
// @Router      /notifications [post]
func (h *Handlers) SendNotification(c *gin.Context) {
	var req NotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var (
		resp *whatsapp.SendResponse
		err  error
	)
	switch req.Type {
	case NotifyText:
		resp, err = h.Notifications.Send(ctx, req.Phone, req.Message)
	case NotifyImage:
		resp, err = h.Notifications.SendImage(ctx, req.Phone, req.ImageURL, req.Caption)
	case NotifyWelcome:
		resp, err = h.Notifications.SendWelcome(ctx, req.Phone, req.Name)
	case NotifyReminder:
		if req.At == nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at is required for reminders")
			return
		}
		resp, err = h.Notifications.SendReminder(ctx, req.Phone, req.Message, *req.At)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, NotificationResponse{Success: true, MessageID: resp.MessageID()})
}

// SendBatchNotification godoc
// @ID          sendBatchNotification
// @Summary     Send a notification to many recipients
// @Description Sends are paced by the gateway limiter. Per-recipient failures are reported, not fatal.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.BatchNotificationRequest  true  "Batch"
// @Success     200   {object}  services.BatchResult
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /notifications/batch [post]
func (h *Handlers) SendBatchNotification(c *gin.Context) {
	var req BatchNotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	ok(c, http.StatusOK, h.Notifications.SendBatch(c.Request.Context(), req.Recipients, req.Message))
}

// VerifyWebhook godoc
// @ID          verifyWebhook
// @Summary     Gateway subscription handshake
// @Tags        Webhooks
// @Produce     plain
// @Param       hub.mode          query  string  true  "Always subscribe"
// @Param       hub.verify_token  query  string  true  "Configured verify token"
// @Param       hub.challenge     query  string  true  "Echoed back on success"
// @Success     200  {string}  string  "Challenge"
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /webhooks/whatsapp [get]
func (h *Handlers) VerifyWebhook(c *gin.Context) {
	challenge, err := h.Webhooks.Verify(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if err != nil {
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Gateway notifications
// @Description Inbound messages and delivery status callbacks. The body is verified against
// @Description X-Hub-Signature-256 when an app secret is configured.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       X-Hub-Signature-256  header  string  false  "sha256=<hex HMAC of the body>"
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Bad signature"
// @Router      /webhooks/whatsapp [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	res, err := h.Webhooks.Handle(c.Request.Context(), body, c.GetHeader(whatsapp.SignatureHeader))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, WebhookAck{Status: "ok", WebhookResult: res})
}
