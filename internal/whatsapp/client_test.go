package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/pst-admin-backend/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.WhatsAppConfig{
		APIURL:        srv.URL + "/",
		APIVersion:    "v18.0",
		AccessToken:   "tok",
		PhoneNumberID: "PNID",
		Timeout:       2 * time.Second,
	}, WithHTTPClient(srv.Client()))
}

func TestSendText_EnvelopeAndResponse(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/PNID/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","contacts":[{"input":"6281","wa_id":"6281"}],"messages":[{"id":"wamid.ABC"}]}`)
	})

	before := testutil.ToFloat64(sendsTotal.WithLabelValues("text", outcomeOK))
	resp, err := c.SendText(context.Background(), "0812 3456 7890", "halo")
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", resp.MessageID())

	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "6281234567890", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, map[string]any{"body": "halo"}, got["text"])
	assert.Equal(t, before+1, testutil.ToFloat64(sendsTotal.WithLabelValues("text", outcomeOK)))
}

func TestSendImageAndTemplate_Payloads(t *testing.T) {
	var bodies []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		bodies = append(bodies, m)
		_, _ = io.WriteString(w, `{"messages":[{"id":"wamid.1"}]}`)
	})
	ctx := context.Background()

	_, err := c.SendImage(ctx, "6281", "https://cdn/x.png", "cap")
	require.NoError(t, err)
	_, err = c.SendAudio(ctx, "6281", "MEDIA1", true)
	require.NoError(t, err)
	_, err = c.SendTemplate(ctx, "6281", "hello_world", "", nil)
	require.NoError(t, err)

	require.Len(t, bodies, 3)
	assert.Equal(t, map[string]any{"link": "https://cdn/x.png", "caption": "cap"}, bodies[0]["image"])
	assert.Equal(t, map[string]any{"id": "MEDIA1"}, bodies[1]["audio"])
	tpl := bodies[2]["template"].(map[string]any)
	assert.Equal(t, "hello_world", tpl["name"])
	assert.Equal(t, map[string]any{"code": "id"}, tpl["language"])
}

func TestSend_APIErrorMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"fbtrace_id":"F1"}}`)
	})

	_, err := c.SendText(context.Background(), "6281", "x")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatus)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrRateLimited))
}

func TestSend_NonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	})
	_, err := c.SendText(context.Background(), "6281", "x")
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestSend_NotConfiguredMakesNoCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()
	c := New(config.WhatsAppConfig{APIURL: srv.URL, APIVersion: "v18.0"})

	_, err := c.SendText(context.Background(), "6281", "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.UploadMedia(context.Background(), "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, called)
}

func TestSend_TimeoutHonoured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := New(config.WhatsAppConfig{
		APIURL: srv.URL, APIVersion: "v18.0", AccessToken: "t", PhoneNumberID: "p",
		Timeout: 50 * time.Millisecond,
	}, WithHTTPClient(srv.Client()))

	start := time.Now()
	_, err := c.SendText(context.Background(), "6281", "x")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUploadMedia_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/PNID/media", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whatsapp", r.FormValue("messaging_product"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "photo.png", hdr.Filename)
		assert.Equal(t, "PNGDATA", string(b))
		_, _ = io.WriteString(w, `{"id":"MEDIA42"}`)
	})

	id, err := c.UploadMedia(context.Background(), "photo.png", "image/png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "MEDIA42", id)
}
