package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/services"
)

func mountContacts(g *gin.RouterGroup, h *Handlers) {
	g.GET("/contacts", h.ListContacts)
	g.GET("/contacts/:id", h.GetContact)
	g.PATCH("/contacts/:id", h.UpdateContact)
	g.GET("/contacts/:id/messages", h.ListMessages)
	g.POST("/contacts/:id/messages", h.SendMessage)
	g.POST("/contacts/:id/images", h.SendImage)
}

func newContactRouter(t *testing.T, d Deps) (*gin.Engine, *stubConversations, *stubDispatch) {
	t.Helper()
	conv := &stubConversations{
		contacts: []services.ChatContact{{ID: "c1", FullName: "Budi"}, {ID: "c2", FullName: "Sari"}},
		log: []services.ChatLogEntry{
			{ID: "m1", Message: "halo"}, {ID: "m2", Message: "apa kabar"}, {ID: "m3", Message: "baik"},
		},
	}
	disp := &stubDispatch{res: services.SendResult{Success: true, ID: "msg-1", Status: "delivered", Wamid: "wamid.1"}}
	d.Conversations, d.Dispatch = conv, disp
	return newTestRouter(t, New(d), mountContacts), conv, disp
}

func Test_sanitizeContent(t *testing.T) {
	got := sanitizeContent("  baris1\r\n\r\n\r\n\r\nbaris2\rbaris3  ")
	if want := "baris1\n\nbaris2\nbaris3"; got != want {
		t.Fatalf("sanitizeContent: got %q want %q", got, want)
	}
	if sanitizeContent(" \r\n\t ") != "" {
		t.Fatalf("sanitizeContent should trim to empty")
	}
}

func TestContacts_ListGetPatch(t *testing.T) {
	r, conv, _ := newContactRouter(t, Deps{})

	w := do(r, http.MethodGet, "/api/v1/contacts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	if got := decode[[]services.ChatContact](t, w); len(got) != 2 || got[0].ID != "c1" {
		t.Fatalf("list body: %+v", got)
	}

	expectError(t, do(r, http.MethodGet, "/api/v1/contacts/nope", nil), http.StatusNotFound, ErrCodeNotFound)

	agent := true
	w = do(r, http.MethodPatch, "/api/v1/contacts/c2", UpdateContactRequest{Name: strp("Sari W"), PreferAgent: &agent})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status=%d body=%s", w.Code, w.Body.String())
	}
	if got := decode[services.ChatContact](t, w); got.FullName != "Sari W" {
		t.Fatalf("patch body: %+v", got)
	}
	if conv.patch.id != "c2" || conv.patch.agent == nil || !*conv.patch.agent || conv.patch.state != nil {
		t.Fatalf("patch forwarded wrong fields: %+v", conv.patch)
	}
}

func TestContacts_Search(t *testing.T) {
	r, _, _ := newContactRouter(t, Deps{})

	w := do(r, http.MethodGet, "/api/v1/contacts?q=sar", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status=%d", w.Code)
	}
	if got := decode[[]services.ChatContact](t, w); len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("search body: %+v", got)
	}
	if got := decode[[]services.ChatContact](t, do(r, http.MethodGet, "/api/v1/contacts?q=nobody", nil)); len(got) != 0 {
		t.Fatalf("no match should be empty: %+v", got)
	}
}

func TestContacts_Unauthenticated(t *testing.T) {
	r, _, _ := newContactRouter(t, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestListMessages_Limit(t *testing.T) {
	r, _, _ := newContactRouter(t, Deps{})

	all := decode[[]services.ChatLogEntry](t, do(r, http.MethodGet, "/api/v1/contacts/c1/messages", nil))
	if len(all) != 3 {
		t.Fatalf("want 3 entries, got %d", len(all))
	}
	tail := decode[[]services.ChatLogEntry](t, do(r, http.MethodGet, "/api/v1/contacts/c1/messages?limit=2", nil))
	if len(tail) != 2 || tail[0].ID != "m2" || tail[1].ID != "m3" {
		t.Fatalf("limit=2 got %+v", tail)
	}
	junk := decode[[]services.ChatLogEntry](t, do(r, http.MethodGet, "/api/v1/contacts/c1/messages?limit=x", nil))
	if len(junk) != 3 {
		t.Fatalf("invalid limit should return everything, got %d", len(junk))
	}
}

func TestListMessages_ETag(t *testing.T) {
	r, conv, _ := newContactRouter(t, Deps{})

	w := do(r, http.MethodGet, "/api/v1/contacts/c1/messages", nil)
	etag := w.Header().Get("ETag")
	if want := `W/"msgs:c1:3:1700000000000:0:0"`; etag != want {
		t.Fatalf("etag=%q want %q", etag, want)
	}

	w = do(r, http.MethodGet, "/api/v1/contacts/c1/messages", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("conditional get: status=%d len=%d", w.Code, w.Body.Len())
	}

	// A new message changes the tag.
	conv.log = append(conv.log, services.ChatLogEntry{ID: "m4", Message: "baru"})
	w = do(r, http.MethodGet, "/api/v1/contacts/c1/messages", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("stale etag: status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}
}

func TestSendMessage_Validation(t *testing.T) {
	r, _, disp := newContactRouter(t, Deps{})

	expectError(t, do(r, http.MethodPost, "/api/v1/contacts/c1/messages", map[string]string{}), http.StatusBadRequest, ErrCodeValidation)
	expectError(t, do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: " \r\n "}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: strings.Repeat("a", maxTextRunes+1)}), http.StatusBadRequest, ErrCodeBadRequest)

	if len(disp.calls) != 0 {
		t.Fatalf("dispatch should not be called: %v", disp.calls)
	}
}

func TestSendMessage_SanitizesAndSends(t *testing.T) {
	r, _, disp := newContactRouter(t, Deps{})

	w := do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: "  Halo\r\nBudi  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	res := decode[services.SendResult](t, w)
	if !res.Success || res.ID != "msg-1" || res.Status != "delivered" {
		t.Fatalf("result: %+v", res)
	}
	if len(disp.calls) != 1 || disp.calls[0] != "text:auth-1:c1:Halo\nBudi" {
		t.Fatalf("calls: %v", disp.calls)
	}
}

func TestSendMessage_FailureKindsMapToStatus(t *testing.T) {
	cases := []struct {
		kind   services.ErrorKind
		status int
		code   string
	}{
		{services.KindNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.KindInvalid, http.StatusBadRequest, ErrCodeBadRequest},
		{services.KindConflict, http.StatusConflict, ErrCodeConflict},
		{services.KindUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.KindGateway, http.StatusBadGateway, ErrCodeGateway},
		{services.KindBackend, http.StatusInternalServerError, ErrCodeSendFailed},
		{"", http.StatusInternalServerError, ErrCodeSendFailed},
	}
	for _, tc := range cases {
		t.Run("kind="+string(tc.kind), func(t *testing.T) {
			r, _, disp := newContactRouter(t, Deps{})
			disp.res = services.SendResult{Success: false, Error: "boom", Kind: tc.kind}
			expectError(t, do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: "hi"}), tc.status, tc.code)
		})
	}
}

func TestSendMessage_BackendCauseStaysInLog(t *testing.T) {
	r, _, disp := newContactRouter(t, Deps{})
	cause := "SendText: UNIQUE constraint failed: messages.id host=db.internal"
	disp.res = services.SendResult{Success: false, Error: cause, Kind: services.KindBackend}

	w := do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: "hi"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	er := decode[ErrorResponse](t, w)
	if er.Message != "internal server error" || strings.Contains(w.Body.String(), "db.internal") {
		t.Fatalf("backend detail leaked: %s", w.Body.String())
	}

	// Gateway failures are the caller's to act on and keep their message.
	disp.res = services.SendResult{Success: false, Error: "recipient not on whatsapp", Kind: services.KindGateway}
	if er := decode[ErrorResponse](t, do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: "hi"})); er.Message != "recipient not on whatsapp" {
		t.Fatalf("gateway message: %+v", er)
	}
}

func TestSendMessage_IdempotentReplay(t *testing.T) {
	store := &memIdempotency{}
	r, _, disp := newContactRouter(t, Deps{Idempotency: store})
	body := SendTextRequest{Content: "Halo"}

	w := do(r, http.MethodPost, "/api/v1/contacts/c1/messages", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("first status=%d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first call must not be a replay")
	}

	w = do(r, http.MethodPost, "/api/v1/contacts/c1/messages", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay status=%d header=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if res := decode[services.SendResult](t, w); !res.Success || res.ID != "msg-1" {
		t.Fatalf("replay body: %+v", res)
	}

	// Same key on another contact is a different scope.
	w = do(r, http.MethodPost, "/api/v1/contacts/c2/messages", body, "Idempotency-Key", "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("other scope status=%d", w.Code)
	}
	if len(disp.calls) != 2 {
		t.Fatalf("want 2 gateway sends, got %v", disp.calls)
	}
}

func TestSendMessage_FailedSendIsNotRecorded(t *testing.T) {
	store := &memIdempotency{}
	r, _, disp := newContactRouter(t, Deps{Idempotency: store})
	disp.res = services.SendResult{Success: false, Error: "contact not found", Kind: services.KindNotFound}

	do(r, http.MethodPost, "/api/v1/contacts/c1/messages", SendTextRequest{Content: "x"}, "Idempotency-Key", "k-2")
	if len(store.recs) != 0 {
		t.Fatalf("failed send must not be recorded: %v", store.recs)
	}
}

func TestSendImage_JSON(t *testing.T) {
	r, _, disp := newContactRouter(t, Deps{})

	expectError(t, do(r, http.MethodPost, "/api/v1/contacts/c1/images", SendImageRequest{ImageURL: "not a url"}), http.StatusBadRequest, ErrCodeValidation)

	w := do(r, http.MethodPost, "/api/v1/contacts/c1/images", SendImageRequest{ImageURL: "https://cdn.test/a.jpg", Caption: " jadwal "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(disp.calls) != 1 || disp.calls[0] != "image:auth-1:c1:https://cdn.test/a.jpg:jadwal" {
		t.Fatalf("calls: %v", disp.calls)
	}
}

func multipartRequest(t *testing.T, path, filename, content, caption string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.WriteField("caption", caption)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestSendImage_Multipart(t *testing.T) {
	r, _, disp := newContactRouter(t, Deps{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/v1/contacts/c1/images", "foto.jpg", "jpeg-bytes", "Antrian"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if disp.files["foto.jpg"] != "jpeg-bytes" {
		t.Fatalf("uploaded content: %v", disp.files)
	}
	if disp.calls[0] != "file:auth-1:c1:foto.jpg:Antrian" {
		t.Fatalf("calls: %v", disp.calls)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/v1/contacts/c1/images", "", "", "no file"))
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestSendImage_MultipartTooLarge(t *testing.T) {
	r, _, disp := newContactRouter(t, Deps{MaxUploadBytes: 1024})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/v1/contacts/c1/images", "big.jpg", strings.Repeat("x", 4096), ""))
	expectError(t, w, http.StatusRequestEntityTooLarge, ErrCodeUploadTooLarge)
	if len(disp.calls) != 0 {
		t.Fatalf("dispatch should not be called: %v", disp.calls)
	}
}
