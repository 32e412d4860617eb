package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/pst-admin-backend/internal/auth"
	"github.com/tbourn/pst-admin-backend/internal/config"
	"github.com/tbourn/pst-admin-backend/internal/realtime"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/services"
	"github.com/tbourn/pst-admin-backend/internal/storage"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:router_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
		MaxBodyBytes:   4 << 20,
		Auth:           config.AuthConfig{JWTSecret: "router-test-secret-0123456789", Issuer: "pst-test", SessionTTL: time.Hour},
	}
}

// newTestEngine wires the full route table over an in-memory database and hub.
func newTestEngine(t *testing.T, cfg config.Config) (*gin.Engine, Deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	hub := realtime.NewMemory(0)
	t.Cleanup(func() { _ = hub.Close() })
	media, err := storage.New(afero.NewMemMapFs(), "chat-media", "http://localhost/storage")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	d := Deps{
		DB:    db,
		Hub:   hub,
		Media: media,
		Auth:  services.NewAuthService(db, auth.NewIssuer(cfg.Auth)),
	}
	r := gin.New()
	RegisterRoutes(r, d, cfg)
	return r, d
}

func serve(r http.Handler, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestEngine(t, testConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w := serve(r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w := serve(r, http.MethodPost, "/health", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off unless enabled
	if w := serve(r, http.MethodGet, "/swagger/index.html", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://pst.example"}}
	r, _ := newTestEngine(t, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := serve(r, http.MethodGet, "/health", nil, "Origin", "http://pst.example")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://pst.example" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	// The API follows the configured base path.
	if w := serve(r, http.MethodGet, "/api/v2/contacts", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /api/v2/contacts = %d", w.Code)
	}
}

func TestRegisterRoutes_AuthFlow(t *testing.T) {
	r, _ := newTestEngine(t, testConfig())

	// Protected routes need a session.
	if w := serve(r, http.MethodGet, "/api/v1/contacts", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous GET /contacts = %d", w.Code)
	}

	creds := map[string]string{"email": "petugas@pst.test", "password": "rahasia-123"}
	if w := serve(r, http.MethodPost, "/api/v1/auth/sign-up", creds); w.Code != http.StatusCreated {
		t.Fatalf("sign-up = %d body=%s", w.Code, w.Body.String())
	}
	w := serve(r, http.MethodPost, "/api/v1/auth/sign-in", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in = %d body=%s", w.Code, w.Body.String())
	}
	var sess services.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil || sess.Token == "" {
		t.Fatalf("session: %v %+v", err, sess)
	}
	bearer := "Bearer " + sess.Token

	w = serve(r, http.MethodGet, "/api/v1/contacts", nil, "Authorization", bearer)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("GET /contacts = %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodGet, "/api/v1/surveys/tree", nil, "Authorization", bearer); w.Code != http.StatusOK {
		t.Fatalf("GET /surveys/tree = %d", w.Code)
	}

	// After sign-out the token is dead.
	if w := serve(r, http.MethodPost, "/api/v1/auth/sign-out", nil, "Authorization", bearer); w.Code != http.StatusNoContent {
		t.Fatalf("sign-out = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/contacts", nil, "Authorization", bearer); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token GET /contacts = %d", w.Code)
	}
}

func TestRegisterRoutes_WebhookIsPublic(t *testing.T) {
	cfg := testConfig()
	cfg.WhatsApp.VerifyToken = "verify-me"
	r, _ := newTestEngine(t, cfg)

	w := serve(r, http.MethodGet, "/api/v1/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=777", nil)
	if w.Code != http.StatusOK || w.Body.String() != "777" {
		t.Fatalf("verify = %d %q", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_ServesMedia(t *testing.T) {
	r, d := newTestEngine(t, testConfig())
	if err := d.Media.Upload(context.Background(), "auth-1/img_1_a.jpg", strings.NewReader("jpeg-bytes"), storage.UploadOptions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	w := serve(r, http.MethodGet, "/storage/chat-media/auth-1/img_1_a.jpg", nil)
	if w.Code != http.StatusOK || w.Body.String() != "jpeg-bytes" {
		t.Fatalf("GET media = %d %q", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_GzipsJSON(t *testing.T) {
	r, _ := newTestEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/health", nil, "Accept-Encoding", "gzip")
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", w.Header())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	b, _ := io.ReadAll(zr)
	if !strings.Contains(string(b), `"ok"`) {
		t.Fatalf("body: %s", b)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10, isUpload))
	read := func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	}
	r.POST("/echo", read)
	r.POST("/contacts/:id/images", read)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}

	// Upload routes are exempt; the handler applies its own cap.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/contacts/c1/images", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload route should skip the global cap, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// A request traverses the otel, request id and security header pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	cfg.SwaggerEnabled = true
	r, _ := newTestEngine(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
}
