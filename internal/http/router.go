// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; infrastructure is injected, services are
//     built here
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/config"
	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/http/handlers"
	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/services"
	"github.com/tbourn/pst-admin-backend/internal/storage"
)

// Deps is the infrastructure the routes are built on.
type Deps struct {
	DB  *gorm.DB
	Hub realtime.Hub

	// Gateway sends WhatsApp messages; nil answers every send with a
	// gateway error.
	Gateway services.Gateway

	// Media stores uploaded chat images and is served under /storage.
	Media *storage.Bucket

	// Auth issues and verifies sessions. It is shared with the scheduler
	// that purges expired sessions.
	Auth *services.AuthService
}

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface expected by the ConversationService.
type conversationRepoShim struct{}

// ListContacts proxies repo.ListContacts.
func (conversationRepoShim) ListContacts(ctx context.Context, db *gorm.DB) ([]domain.Contact, error) {
	return repo.ListContacts(ctx, db)
}

// GetContact proxies repo.GetContact.
func (conversationRepoShim) GetContact(ctx context.Context, db *gorm.DB, id string) (*domain.Contact, error) {
	return repo.GetContact(ctx, db, id)
}

// UpdateContact proxies repo.UpdateContact.
func (conversationRepoShim) UpdateContact(ctx context.Context, db *gorm.DB, id string, p repo.ContactPatch) (*domain.Contact, error) {
	return repo.UpdateContact(ctx, db, id, p)
}

// ListMessagesByContact proxies repo.ListMessagesByContact.
func (conversationRepoShim) ListMessagesByContact(ctx context.Context, db *gorm.DB, contactID string) ([]domain.Message, error) {
	return repo.ListMessagesByContact(ctx, db, contactID)
}

// ConversationStats proxies repo.ConversationStats (ETag support).
func (conversationRepoShim) ConversationStats(ctx context.Context, db *gorm.DB, contactID string) (int64, int64, int64, error) {
	return repo.ConversationStats(ctx, db, contactID)
}

// idempotencyStore records completed sends in the idempotency table.
type idempotencyStore struct{ db *gorm.DB }

func (s idempotencyStore) Get(ctx context.Context, userID, scopeID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, scopeID, key, now)
}

func (s idempotencyStore) Put(ctx context.Context, userID, scopeID, key, resourceID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scopeID, key, resourceID, status, ttl)
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), compression, CORS
// and security headers, health, metrics and docs endpoints, and then mounts
// the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured access lines with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads carry their own cap)
//  6. Metrics
//  7. Gzip (streams excluded)
//  8. CORS and Security headers
//
// Inside the authenticated group:
//  1. Authenticate: bearer session → account id
//  2. Idempotency validator (before rate limiter to allow bypass on replay)
//  3. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) One access line per request, identifiers scrubbed
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-Hub-Signature-256"},
		MaskQuery:   []string{middleware.QueryAccessToken, "hub.verify_token"},
		QuietPaths:  []string{"/health", "/metrics"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); image uploads are capped by the handler
	r.Use(limitBody(1<<20, isUpload))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; event streams and sockets must not be buffered
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/stream$`})))

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		PrivateCache:   true,
		PublicPrefixes: []string{"/storage/", "/swagger/"},
		EnablePolicy:   true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public media
	if d.Media != nil {
		r.StaticFS("/storage/"+d.Media.Name(), d.Media.HTTPFileSystem())
	}

	// Dependency injection: services ← repo/db/hub/gateway
	h := handlers.New(buildDeps(d, cfg))

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	authRL := middleware.NewRateLimiter("auth", cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	apiRL := middleware.NewRateLimiter("api", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	{
		// Credentials are rate limited per IP
		api.POST("/auth/sign-up", authRL.Handler(), h.SignUp)
		api.POST("/auth/sign-in", authRL.Handler(), h.SignIn)

		// Gateway callbacks
		api.GET("/webhooks/whatsapp", h.VerifyWebhook)
		api.POST("/webhooks/whatsapp", h.ReceiveWebhook)
	}

	secured := api.Group("")
	secured.Use(middleware.Authenticate(sessionVerifier(d.Auth)))
	secured.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, contactID, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, d.DB, userID, contactID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))
	secured.Use(apiRL.Handler())
	{
		// Session
		secured.POST("/auth/sign-out", h.SignOut)
		secured.GET("/auth/session", h.GetSession)
		secured.GET("/auth/user", h.GetCurrentUser)

		// Contacts and messages
		secured.GET("/contacts", h.ListContacts)
		secured.GET("/contacts/stream", h.StreamContacts)
		secured.GET("/contacts/:id", h.GetContact)
		secured.PATCH("/contacts/:id", h.UpdateContact)
		secured.GET("/contacts/:id/messages", h.ListMessages)
		secured.POST("/contacts/:id/messages", h.SendMessage)
		secured.GET("/contacts/:id/messages/stream", h.StreamMessages)
		secured.POST("/contacts/:id/images", h.SendImage)

		// Notifications
		secured.POST("/notifications", h.SendNotification)
		secured.POST("/notifications/batch", h.SendBatchNotification)

		// Staff users and members
		secured.GET("/users", h.ListUsers)
		secured.POST("/users", h.CreateUser)
		secured.PUT("/users/:id", h.UpdateUser)
		secured.DELETE("/users/:id", h.DeleteUser)
		secured.GET("/members", h.ListMembers)
		secured.GET("/members/:id", h.GetMember)

		// Visitors and service requests
		secured.GET("/visitors", h.ListVisitors)
		secured.GET("/visitors/:id", h.GetVisitor)
		secured.PATCH("/visitors/:id/status", h.UpdateVisitorStatus)
		secured.POST("/visitors/:id/survey", h.SendVisitorSurvey)
		secured.GET("/visitors/:id/service-requests", h.ListServiceRequests)
		secured.POST("/visitors/:id/service-requests", h.CreateServiceRequest)
		secured.PUT("/service-requests/:id", h.UpdateServiceRequest)
		secured.DELETE("/service-requests/:id", h.DeleteServiceRequest)
		secured.GET("/service-types", h.ListServiceTypes)

		// Survey definitions
		secured.GET("/period-types", h.ListPeriodTypes)
		secured.POST("/period-types", h.CreatePeriodType)
		secured.PUT("/period-types/:id", h.UpdatePeriodType)
		secured.DELETE("/period-types/:id", h.DeletePeriodType)
		secured.GET("/periods", h.ListPeriods)
		secured.POST("/periods", h.CreatePeriod)
		secured.PUT("/periods/:id", h.UpdatePeriod)
		secured.DELETE("/periods/:id", h.DeletePeriod)
		secured.GET("/surveys", h.ListSurveys)
		secured.GET("/surveys/tree", h.SurveyTree)
		secured.POST("/surveys", h.CreateSurvey)
		secured.PUT("/surveys/:id", h.UpdateSurvey)
		secured.DELETE("/surveys/:id", h.DeleteSurvey)
		secured.GET("/survey-details", h.ListSurveyDetails)
		secured.POST("/survey-details", h.CreateSurveyDetail)
		secured.GET("/activities", h.ListActivities)
		secured.POST("/activities", h.CreateActivity)
		secured.PUT("/activities/:id", h.UpdateActivity)
		secured.DELETE("/activities/:id", h.DeleteActivity)

		// Message templates
		secured.GET("/templates", h.ListTemplates)
		secured.POST("/templates", h.CreateTemplate)
		secured.GET("/templates/:id", h.GetTemplate)
		secured.PUT("/templates/:id", h.UpdateTemplate)
		secured.DELETE("/templates/:id", h.DeleteTemplate)
		secured.GET("/templates/:id/preview", h.PreviewTemplate)
	}
}

// buildDeps constructs the services behind the handlers.
func buildDeps(d Deps, cfg config.Config) handlers.Deps {
	dispatch := &services.DispatchService{DB: d.DB, Gateway: d.Gateway, Hub: d.Hub}
	if d.Media != nil {
		dispatch.Media = d.Media
	}
	return handlers.Deps{
		Auth:          d.Auth,
		Conversations: services.NewConversationService(d.DB, conversationRepoShim{}, d.Hub),
		Dispatch:      dispatch,
		Users:         services.NewUserService(d.DB, d.Auth),
		Members:       &services.MemberService{DB: d.DB},
		Visitors: &services.VisitorService{
			DB:            d.DB,
			Gateway:       d.Gateway,
			SurveyBaseURL: cfg.SurveyBaseURL,
		},
		Surveys:       &services.SurveyService{DB: d.DB},
		Templates:     &services.TemplateService{DB: d.DB},
		Notifications: services.NewNotificationService(d.Gateway, cfg.NotifyBatchRPS),
		Webhooks: &services.WebhookService{
			DB:          d.DB,
			Hub:         d.Hub,
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
		},
		Idempotency:    idempotencyStore{db: d.DB},
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxUploadBytes: cfg.MaxBodyBytes,
	}
}

// sessionVerifier resolves bearer tokens through the auth service.
func sessionVerifier(a *services.AuthService) middleware.SessionVerifier {
	return func(ctx context.Context, token string) (string, error) {
		sess, err := a.GetSession(ctx, token)
		if err != nil {
			return "", err
		}
		return sess.AccountID, nil
	}
}

// isUpload reports whether the matched route accepts multipart image uploads.
func isUpload(c *gin.Context) bool {
	return strings.HasSuffix(c.FullPath(), "/images")
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader, except for requests matched by skip.
// Requests exceeding the cap will cause downstream body reads to error.
func limitBody(maxBytes int64, skip func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skip == nil || !skip(c) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
