package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	for _, p := range []string{"/items/1", "/items/2"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", p, nil))
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /items/{id}", "418"))
	if got != 2 {
		t.Errorf("requests for pattern = %v, want 2", got)
	}
}

func TestHandlerExposesTransferMetrics(t *testing.T) {
	RecordTransfer("stream", 42, 0, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "fsaccess_transfer") {
		t.Error("transfer metrics missing from exposition")
	}
}
