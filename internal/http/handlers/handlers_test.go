package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/services"
)

// ---------- test plumbing ----------

const testToken = "tok-1"

// newTestRouter mounts h behind Authenticate; testToken maps to auth-1.
func newTestRouter(t *testing.T, h *Handlers, mount func(g *gin.RouterGroup, h *Handlers)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api/v1")
	api.Use(middleware.Authenticate(func(_ context.Context, tok string) (string, error) {
		if tok != testToken {
			return "", errors.New("bad token")
		}
		return "auth-1", nil
	}))
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	mount(api, h)
	return r
}

// do sends an authenticated JSON request.
func do(r http.Handler, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d (body=%s)", w.Code, status, w.Body.String())
	}
	if er := decode[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code=%q want %q", er.Code, code)
	}
}

func strp(s string) *string { return &s }

// ---------- stubs ----------

type stubConversations struct {
	ConversationService // streams are exercised against a real hub

	contacts []services.ChatContact
	log      []services.ChatLogEntry
	patch    repoPatchSpy
}

type repoPatchSpy struct {
	id    string
	name  *string
	state *string
	agent *bool
}

func (s *stubConversations) ListContacts(context.Context) []services.ChatContact { return s.contacts }

func (s *stubConversations) GetContact(_ context.Context, id string) (*services.ChatContact, error) {
	for _, c := range s.contacts {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, services.ErrContactNotFound
}

func (s *stubConversations) UpdateContact(ctx context.Context, id string, p repo.ContactPatch) (*services.ChatContact, error) {
	s.patch = repoPatchSpy{id: id, name: p.Name, state: p.ChatbotState, agent: p.PreferAgent}
	c, err := s.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		c.FullName = *p.Name
	}
	return c, nil
}

func (s *stubConversations) ListMessages(context.Context, string) []services.ChatLogEntry { return s.log }

func (s *stubConversations) Summary(context.Context, string) (services.ConversationSummary, error) {
	return services.ConversationSummary{Count: int64(len(s.log)), MaxTimestamp: 1_700_000_000_000}, nil
}

type stubDispatch struct {
	mu    sync.Mutex
	calls []string
	files map[string]string
	res   services.SendResult
}

func (s *stubDispatch) record(call string) services.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.res
}

func (s *stubDispatch) SendText(_ context.Context, uid, contactID, content string) services.SendResult {
	return s.record("text:" + uid + ":" + contactID + ":" + content)
}

func (s *stubDispatch) SendImage(_ context.Context, uid, contactID, url, caption string) services.SendResult {
	return s.record("image:" + uid + ":" + contactID + ":" + url + ":" + caption)
}

func (s *stubDispatch) SendImageFile(_ context.Context, uid, contactID, filename string, f io.Reader, caption string) services.SendResult {
	b, _ := io.ReadAll(f)
	s.mu.Lock()
	if s.files == nil {
		s.files = map[string]string{}
	}
	s.files[filename] = string(b)
	s.mu.Unlock()
	return s.record("file:" + uid + ":" + contactID + ":" + filename + ":" + caption)
}

// memIdempotency is an in-memory IdempotencyStore.
type memIdempotency struct {
	mu   sync.Mutex
	recs map[string]*domain.Idempotency
}

func (m *memIdempotency) k(u, s, key string) string { return u + "|" + s + "|" + key }

func (m *memIdempotency) Get(_ context.Context, u, s, key string, now time.Time) (*domain.Idempotency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[m.k(u, s, key)]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func (m *memIdempotency) Put(_ context.Context, u, s, key, resID string, status int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = map[string]*domain.Idempotency{}
	}
	m.recs[m.k(u, s, key)] = &domain.Idempotency{
		UserID: u, ScopeID: s, Key: key, ResourceID: resID, Status: status,
		ExpiresAt: time.Now().Add(ttl),
	}
	return nil
}
