// Package handlers exposes the admin API over HTTP.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Every dependency is a
// small interface declared here so tests can substitute stubs.
package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/services"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

//
// Service contracts (context-aware)
//

// AuthService signs staff in and out.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*domain.Account, error)
	SignIn(ctx context.Context, email, password string) (*services.Session, error)
	GetSession(ctx context.Context, token string) (*services.Session, error)
	SignOut(ctx context.Context, token string) error
	GetUser(ctx context.Context, sess *services.Session) (*domain.User, error)
}

// ConversationService reads contacts and their message history.
type ConversationService interface {
	ListContacts(ctx context.Context) []services.ChatContact
	GetContact(ctx context.Context, id string) (*services.ChatContact, error)
	UpdateContact(ctx context.Context, id string, p repo.ContactPatch) (*services.ChatContact, error)
	ListMessages(ctx context.Context, contactID string) []services.ChatLogEntry
	Summary(ctx context.Context, contactID string) (services.ConversationSummary, error)
	SubscribeMessages(ctx context.Context, contactID string, fn func(realtime.EventKind, services.ChatLogEntry)) (*realtime.Subscription, error)
	SubscribeContacts(ctx context.Context, fn func(realtime.EventKind, services.ChatContact)) (*realtime.Subscription, error)
}

// DispatchService sends operator messages to contacts.
type DispatchService interface {
	SendText(ctx context.Context, authUID, contactID, content string) services.SendResult
	SendImage(ctx context.Context, authUID, contactID, imageURL, caption string) services.SendResult
	SendImageFile(ctx context.Context, authUID, contactID, filename string, file io.Reader, caption string) services.SendResult
}

// UserService manages staff users.
type UserService interface {
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, in services.CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, id string, in services.UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// MemberService reads registered members.
type MemberService interface {
	List(ctx context.Context) ([]domain.Member, error)
	Get(ctx context.Context, id string) (*domain.Member, error)
}

// VisitorService manages check-ins and service requests.
type VisitorService interface {
	List(ctx context.Context) ([]domain.Visitor, error)
	Get(ctx context.Context, id string) (*domain.Visitor, error)
	UpdateStatus(ctx context.Context, id, status string, assignedTo *string) (*domain.Visitor, error)
	ServiceTypes(ctx context.Context) ([]domain.ServiceType, error)
	ServiceRequests(ctx context.Context, checkinID string) ([]domain.ServiceRequest, error)
	CreateServiceRequest(ctx context.Context, checkinID string, in services.ServiceRequestInput) (*domain.ServiceRequest, error)
	UpdateServiceRequest(ctx context.Context, id string, p services.ServiceRequestPatch) (*domain.ServiceRequest, error)
	DeleteServiceRequest(ctx context.Context, id string) error
	SendSatisfactionSurvey(ctx context.Context, visitorID string) (*whatsapp.SendResponse, error)
}

// SurveyService manages survey definitions, periods and activities.
type SurveyService interface {
	PeriodTypes(ctx context.Context) ([]domain.PeriodType, error)
	CreatePeriodType(ctx context.Context, name string) (*domain.PeriodType, error)
	UpdatePeriodType(ctx context.Context, id int64, name string) (*domain.PeriodType, error)
	DeletePeriodType(ctx context.Context, id int64) error

	Periods(ctx context.Context) ([]domain.Period, error)
	CreatePeriod(ctx context.Context, in services.PeriodInput) (*domain.Period, error)
	UpdatePeriod(ctx context.Context, id int64, in services.PeriodInput) (*domain.Period, error)
	DeletePeriod(ctx context.Context, id int64) error

	Surveys(ctx context.Context) ([]domain.Survey, error)
	SurveyTree(ctx context.Context) ([]services.SurveyNode, error)
	CreateSurvey(ctx context.Context, in services.SurveyInput) (*domain.Survey, error)
	UpdateSurvey(ctx context.Context, id int64, in services.SurveyInput) (*domain.Survey, error)
	DeleteSurvey(ctx context.Context, id int64) error

	SurveyDetails(ctx context.Context) ([]domain.SurveyDetail, error)
	CreateSurveyDetail(ctx context.Context, in services.SurveyDetailInput) (*domain.SurveyDetail, error)

	Activities(ctx context.Context) ([]services.ActivityView, error)
	CreateActivity(ctx context.Context, in services.ActivityInput) (*domain.Activity, error)
	UpdateActivity(ctx context.Context, id int64, p services.ActivityPatch) (*domain.Activity, error)
	DeleteActivity(ctx context.Context, id int64) error
}

// TemplateService manages message templates.
type TemplateService interface {
	List(ctx context.Context) ([]domain.MessageTemplate, error)
	Get(ctx context.Context, id string) (*domain.MessageTemplate, error)
	Create(ctx context.Context, in services.TemplateInput) (*domain.MessageTemplate, error)
	Update(ctx context.Context, id string, in services.TemplateInput) (*domain.MessageTemplate, error)
	Delete(ctx context.Context, id string) error
	Preview(ctx context.Context, id string) (*services.TemplatePreview, error)
}

// NotificationService sends standalone notifications.
type NotificationService interface {
	Send(ctx context.Context, phone, message string) (*whatsapp.SendResponse, error)
	SendImage(ctx context.Context, phone, imageURL, caption string) (*whatsapp.SendResponse, error)
	SendWelcome(ctx context.Context, phone, name string) (*whatsapp.SendResponse, error)
	SendReminder(ctx context.Context, phone, text string, at time.Time) (*whatsapp.SendResponse, error)
	SendBatch(ctx context.Context, recipients []services.Recipient, text string) services.BatchResult
}

// WebhookService consumes gateway callbacks.
type WebhookService interface {
	Verify(mode, token, challenge string) (string, error)
	Handle(ctx context.Context, body []byte, signature string) (services.WebhookResult, error)
}

// IdempotencyStore records completed sends so retries can be replayed.
type IdempotencyStore interface {
	Get(ctx context.Context, userID, scopeID, key string, now time.Time) (*domain.Idempotency, error)
	Put(ctx context.Context, userID, scopeID, key, resourceID string, status int, ttl time.Duration) error
}

//
// Handler wiring
//

// Deps lists the services the handlers call.
type Deps struct {
	Auth          AuthService
	Conversations ConversationService
	Dispatch      DispatchService
	Users         UserService
	Members       MemberService
	Visitors      VisitorService
	Surveys       SurveyService
	Templates     TemplateService
	Notifications NotificationService
	Webhooks      WebhookService
	Idempotency   IdempotencyStore

	// IdempotencyTTL is how long a recorded send is replayable. Zero means 24h.
	IdempotencyTTL time.Duration
	// MaxUploadBytes caps multipart image uploads. Zero means 10 MiB.
	MaxUploadBytes int64
	// StreamHeartbeat is the keep-alive period of event streams. Zero means 25s.
	StreamHeartbeat time.Duration
}

// Handlers groups every API endpoint.
type Handlers struct {
	Deps
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	if d.StreamHeartbeat <= 0 {
		d.StreamHeartbeat = 25 * time.Second
	}
	return &Handlers{Deps: d}
}

// authUID is the account id of the signed-in caller.
func authUID(c *gin.Context) string { return middleware.UserID(c) }

// int64Param parses the numeric path parameter name, writing a 400 on failure.
func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
