package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	log.Logger = zerolog.New(&buf) // plain JSON lines
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return &buf
}

func serveOnce(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GenerateReuseAndReject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		c.String(http.StatusOK, asString(c.MustGet(requestIDKey)))
	})

	// No header -> generated
	w := serveOnce(r, httptest.NewRequest(http.MethodGet, "/rid", nil))
	gen := w.Header().Get(requestIDHeader)
	if len(gen) != 36 || w.Body.String() != gen {
		t.Fatalf("generated id %q body %q", gen, w.Body.String())
	}

	// Lowercase header -> propagated
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "abc-123")
	if got := serveOnce(r, req).Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}

	// Malformed or oversized ids are replaced
	for _, bad := range []string{"has space", "<script>", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/rid", nil)
		req.Header.Set(requestIDHeader, bad)
		if got := serveOnce(r, req).Header().Get(requestIDHeader); got == bad || len(got) != 36 {
			t.Fatalf("id %q should be replaced, got %q", bad, got)
		}
	}
}

func TestRequestID_BindsRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from-handler")
		zerolog.Ctx(c.Request.Context()).Info().Msg("from-service")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/use", nil)
	req.Header.Set(requestIDHeader, "rid-42")
	serveOnce(r, req)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"request_id":"rid-42"`) {
			t.Fatalf("line without request id: %s", line)
		}
	}
	if !strings.Contains(buf.String(), "from-handler") || !strings.Contains(buf.String(), "from-service") {
		t.Fatalf("missing lines: %s", buf.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.GET("/use", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("custom")
		c.Status(http.StatusOK)
	})
	serveOnce(r, httptest.NewRequest(http.MethodGet, "/use", nil))
	if !strings.Contains(buf.String(), `"message":"custom"`) || strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger output: %s", buf.String())
	}
}

func TestAccessLog_RedactsAndMasks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(AccessLog(AccessLogOptions{
		MaskHeaders: []string{"X-Hub-Signature-256"},
		MaskQuery:   []string{QueryAccessToken},
	}))
	r.GET("/contacts/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	q := "email=a.b+tag@example.com&phone=6281234567890&id=123e4567-e89b-12d3-a456-426614174000&access_token=secret-token-value"
	req := httptest.NewRequest(http.MethodGet, "/contacts/123?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("X-Hub-Signature-256", "sha256=abc")
	req.Header.Set("X-Custom", "email a@b.com id=123e4567-e89b-12d3-a456-426614174000 phone 0812-3456-7890 msg wamid.HBgMNjI4MTIz")
	req.Header.Set(requestIDHeader, "rid-req")
	if w := serveOnce(r, req); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"path":"/contacts/:id"`,
		`"request_id":"rid-req"`,
		`[REDACTED:email]`, `[REDACTED:phone]`, `[REDACTED:id]`,
		`access_token=%5BREDACTED%5D`,
		`"Authorization":"[REDACTED]"`,
		`"Cookie":"[REDACTED]"`,
		`"X-Hub-Signature-256":"[REDACTED]"`,
		`"X-Custom":"email [REDACTED:email] id=[REDACTED:id] phone [REDACTED:phone] msg [REDACTED:wamid]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("missing %s in: %s", want, logs)
		}
	}
	for _, leak := range []string{"secret-token-value", "6281234567890", "topsecret"} {
		if strings.Contains(logs, leak) {
			t.Fatalf("%q leaked into log: %s", leak, logs)
		}
	}
}

func TestAccessLog_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(AccessLog(AccessLogOptions{QuietPaths: []string{"/health"}}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusBadRequest)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, p := range []string{"/health", "/ok", "/missing", "/err", "/boom"} {
		serveOnce(r, httptest.NewRequest(http.MethodGet, p, nil))
	}

	byPath := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		byPath[asString(m["path"])] = asString(m["level"])
	}
	want := map[string]string{"/ok": "info", "/missing": "warn", "/err": "error", "/boom": "error"}
	for p, lvl := range want {
		if byPath[p] != lvl {
			t.Fatalf("%s logged at %q, want %q (all: %v)", p, byPath[p], lvl, byPath)
		}
	}
	if _, ok := byPath["/health"]; ok {
		t.Fatalf("quiet path should log at debug, hidden at info level")
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-p")
	w := serveOnce(r, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from Recovery, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-p" {
		t.Fatalf("unexpected body: %v", body)
	}
	if out := buf.String(); !strings.Contains(out, "panic recovered") || !strings.Contains(out, `"request_id":"rid-p"`) {
		t.Fatalf("expected panic log, got:\n%s", out)
	}
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())
	r.GET("/panic-after-write", func(c *gin.Context) {
		c.String(http.StatusOK, "partial-body")
		panic("late kaboom")
	})

	w := serveOnce(r, httptest.NewRequest(http.MethodGet, "/panic-after-write", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("expected no JSON error body when panic after write; got %q", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestHelpers(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" {
		t.Fatalf("asString failed")
	}
	if truncate("hello", 10) != "hello" || truncate("abcdefgh", 5) != "abcde…" || truncate("abc", 0) != "abc" {
		t.Fatalf("truncate failed")
	}
	keys := toSet([]string{"access_token"}, nil)
	if got := maskQuery("since=5", keys); got != "since=5" {
		t.Fatalf("untouched query rewritten: %q", got)
	}
	if got := maskQuery("%zz", keys); got != "%zz" {
		t.Fatalf("unparseable query should pass through: %q", got)
	}
}
