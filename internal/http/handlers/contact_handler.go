// Contact and message HTTP handlers.
//
//   - GET   /contacts               (conversation list, most recent first)
//   - GET   /contacts/{id}
//   - PATCH /contacts/{id}
//   - GET   /contacts/{id}/messages (chat log, oldest first)
//   - POST  /contacts/{id}/messages (send text)
//   - POST  /contacts/{id}/images   (send image by URL or multipart upload)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send exists
// for (user, contact, key), the handler answers with the recorded message id
// and sets `Idempotency-Replayed: true` instead of sending again.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/services"
	"github.com/tbourn/pst-admin-backend/internal/utils"
)

// maxTextRunes is the gateway's text body limit.
const (
	maxTextRunes     = 4096
	maxSearchResults = 50
)

//
// DTOs
//

// UpdateContactRequest lists the operator-editable contact fields.
type UpdateContactRequest struct {
	Name         *string `json:"name"          example:"Budi Santoso"`
	ChatbotState *string `json:"chatbot_state" example:"main_menu"`
	PreferAgent  *bool   `json:"prefer_agent"  example:"true"`
}

// SendTextRequest is the JSON payload for sending a text message.
type SendTextRequest struct {
	Content string `json:"content" binding:"required" example:"Selamat pagi, ada yang bisa kami bantu?"`
}

// SendImageRequest is the JSON payload for sending an image by URL.
type SendImageRequest struct {
	ImageURL string `json:"image_url" binding:"required,url" example:"https://pst.example.id/storage/message-media/a.jpg"`
	Caption  string `json:"caption"   example:"Jadwal layanan"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes line endings, collapses long blank runs and trims.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// ListContacts godoc
// @ID          listContacts
// @Summary     List conversations
// @Description Contacts ordered by last message, newest first; contacts without messages come last.
// @Description With q, only contacts matching on name, phone, e-mail or last message are returned, best match first.
// @Tags        Contacts
// @Produce     json
// @Security    BearerAuth
// @Param       q      query     string  false  "Search text"
// @Param       limit  query     int     false  "Max results when searching (capped at 50)"
// @Success     200  {array}   services.ChatContact
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /contacts [get]
func (h *Handlers) ListContacts(c *gin.Context) {
	contacts := h.Conversations.ListContacts(c.Request.Context())
	if q := c.Query("q"); q != "" {
		contacts = services.FilterContacts(contacts, q, utils.QueryLimit(c.Query("limit"), maxSearchResults))
	}
	ok(c, http.StatusOK, contacts)
}

// GetContact godoc
// @ID          getContact
// @Summary     Get a contact
// @Tags        Contacts
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Contact ID"
// @Success     200  {object}  services.ChatContact
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /contacts/{id} [get]
func (h *Handlers) GetContact(c *gin.Context) {
	ct, err := h.Conversations.GetContact(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ct)
}

// UpdateContact godoc
// @ID          updateContact
// @Summary     Edit a contact
// @Tags        Contacts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                          true  "Contact ID"
// @Param       body  body      handlers.UpdateContactRequest  true  "Fields to change"
// @Success     200   {object}  services.ChatContact
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /contacts/{id} [patch]
func (h *Handlers) UpdateContact(c *gin.Context) {
	var req UpdateContactRequest
	if !bindJSON(c, &req) {
		return
	}
	ct, err := h.Conversations.UpdateContact(c.Request.Context(), c.Param("id"), repo.ContactPatch{
		Name:         req.Name,
		ChatbotState: req.ChatbotState,
		PreferAgent:  req.PreferAgent,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ct)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Chat log of a contact
// @Description Messages oldest first. With limit, only the most recent entries are returned.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id     path   string  true   "Contact ID"
// @Param       limit          query   int     false  "Return only the last N messages"  minimum(1)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"msgs:abc:3:1700000000000:0:0\")
// @Success     200  {array}   services.ChatLogEntry
// @Success     304  {string}  string  "Not Modified"
// @Header      200  {string}  ETag    "Weak ETag for the current conversation state"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /contacts/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	contactID := c.Param("id")
	limit := utils.QueryLimit(c.Query("limit"), 0)

	// ETag pre-check (best effort). Status callbacks move StatusTimestamp
	// without adding rows, so both watermarks are part of the tag.
	if sum, err := h.Conversations.Summary(ctx, contactID); err == nil {
		etag := fmt.Sprintf(`W/"msgs:%s:%d:%d:%d:%d"`, contactID, sum.Count, sum.MaxTimestamp, sum.MaxStatusTimestamp, limit)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	log := h.Conversations.ListMessages(ctx, contactID)
	if limit > 0 && limit < len(log) {
		log = log[len(log)-limit:]
	}
	ok(c, http.StatusOK, log)
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a text message to a contact
// @Description Persists the message and relays it through the gateway. A gateway failure still
// @Description returns 201 with status "failed". Supports Idempotency-Key for safe retries.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string                    true   "Contact ID"
// @Param       body             body    handlers.SendTextRequest  true   "Message"
// @Success     201  {object}  services.SendResult
// @Success     200  {object}  services.SendResult  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Contact or staff user not found"
// @Router      /contacts/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	contactID := c.Param("id")

	var req SendTextRequest
	if !bindJSON(c, &req) {
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if utf8.RuneCountInString(content) > maxTextRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d characters", maxTextRunes))
		return
	}

	uid := authUID(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if h.replay(c, uid, contactID, idemKey) {
		return
	}

	res := h.Dispatch.SendText(ctx, uid, contactID, content)
	h.respondSend(c, uid, contactID, idemKey, res)
}

// SendImage godoc
// @ID          sendImage
// @Summary     Send an image to a contact
// @Description Accepts either JSON with image_url or a multipart form with a file field.
// @Description Uploaded files are stored in the media bucket first.
// @Tags        Messages
// @Accept      json
// @Accept      mpfd
// @Produce     json
// @Security    BearerAuth
// @Param       id       path      string  true   "Contact ID"
// @Param       file     formData  file    false  "Image file (multipart)"
// @Param       caption  formData  string  false  "Caption (multipart)"
// @Param       body     body      handlers.SendImageRequest  false  "Image URL (JSON)"
// @Success     201  {object}  services.SendResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     413  {object}  handlers.ErrorResponse
// @Router      /contacts/{id}/images [post]
func (h *Handlers) SendImage(c *gin.Context) {
	ctx := c.Request.Context()
	contactID := c.Param("id")
	uid := authUID(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req SendImageRequest
		if !bindJSON(c, &req) {
			return
		}
		if h.replay(c, uid, contactID, idemKey) {
			return
		}
		res := h.Dispatch.SendImage(ctx, uid, contactID, req.ImageURL, strings.TrimSpace(req.Caption))
		h.respondSend(c, uid, contactID, idemKey, res)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeUploadTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.MaxUploadBytes))
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file field required")
		return
	}
	if h.replay(c, uid, contactID, idemKey) {
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	defer f.Close()

	res := h.Dispatch.SendImageFile(ctx, uid, contactID, fh.Filename, f, strings.TrimSpace(c.PostForm("caption")))
	h.respondSend(c, uid, contactID, idemKey, res)
}

// replay answers from a recorded send and reports whether it did.
func (h *Handlers) replay(c *gin.Context, uid, contactID, key string) bool {
	if key == "" || h.Idempotency == nil {
		return false
	}
	rec, err := h.Idempotency.Get(c.Request.Context(), uid, contactID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusOK, services.SendResult{Success: true, ID: rec.ResourceID})
	return true
}

// respondSend writes a dispatch result and records it for replay.
func (h *Handlers) respondSend(c *gin.Context, uid, contactID, key string, res services.SendResult) {
	if !res.Success {
		status, code := statusFor(res.Kind)
		if status == http.StatusInternalServerError {
			middleware.LoggerFrom(c).Error().
				Str("contact_id", contactID).
				Str("error", res.Error).
				Msg("send failed")
			fail(c, status, ErrCodeSendFailed, msgInternal)
			return
		}
		fail(c, status, code, res.Error)
		return
	}
	if key != "" && h.Idempotency != nil {
		if err := h.Idempotency.Put(c.Request.Context(), uid, contactID, key, res.ID, http.StatusCreated, h.IdempotencyTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("record idempotency")
		}
	}
	ok(c, http.StatusCreated, res)
}
