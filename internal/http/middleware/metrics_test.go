package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/contacts/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.DELETE("/templates/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/contacts/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))
	baseDel := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/templates/:id", "204"))

	for _, p := range []string{"/contacts/c1", "/contacts/c2"} {
		if w := serveOnce(r, httptest.NewRequest(http.MethodGet, p, nil)); w.Code != http.StatusOK {
			t.Fatalf("GET %s -> %d", p, w.Code)
		}
	}
	for _, p := range []string{"/nope/1", "/nope/2"} {
		serveOnce(r, httptest.NewRequest(http.MethodGet, p, nil))
	}
	serveOnce(r, httptest.NewRequest(http.MethodDelete, "/templates/t1", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/contacts/:id", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/templates/:id", "204")); got != baseDel+1 {
		t.Fatalf("delete counter = %v; want %v", got, baseDel+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

func TestMetrics_StreamsUseGauge(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var during float64
	r := gin.New()
	r.Use(Metrics())
	r.GET("/contacts/stream", func(c *gin.Context) {
		during = testutil.ToFloat64(httpStreams.WithLabelValues("/contacts/stream"))
		c.Status(http.StatusOK)
	})

	before := testutil.ToFloat64(httpStreams.WithLabelValues("/contacts/stream"))
	serveOnce(r, httptest.NewRequest(http.MethodGet, "/contacts/stream", nil))

	if during != before+1 {
		t.Fatalf("gauge during stream = %v; want %v", during, before+1)
	}
	if after := testutil.ToFloat64(httpStreams.WithLabelValues("/contacts/stream")); after != before {
		t.Fatalf("gauge after stream = %v; want %v", after, before)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/contacts/stream", "200")); got == 0 {
		t.Fatalf("stream request not counted")
	}
	// DeleteLabelValues reports whether the series existed.
	if httpLat.DeleteLabelValues("GET", "/contacts/stream") {
		t.Fatalf("stream must not feed the latency histogram")
	}
}

func Test_isStreamRoute(t *testing.T) {
	if !isStreamRoute("/api/v1/contacts/:id/messages/stream") || isStreamRoute("/api/v1/contacts") {
		t.Fatalf("isStreamRoute misclassified")
	}
}
