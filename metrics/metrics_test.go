package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/likes", func(http.ResponseWriter, *http.Request) {}).Methods("POST")

	assert.Equal(t, "/api/likes", RouteTemplate(r, httptest.NewRequest(http.MethodPost, "/api/likes", nil)))
	assert.Equal(t, Unmatched, RouteTemplate(r, httptest.NewRequest(http.MethodGet, "/api/likes", nil)))
	assert.Equal(t, Unmatched, RouteTemplate(r, httptest.NewRequest(http.MethodGet, "/api/other", nil)))
	assert.Equal(t, Unmatched, RouteTemplate(nil, httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestObserveRequestCountsByStatus(t *testing.T) {
	counter := httpRequests.WithLabelValues(Unmatched, http.MethodGet, "405")
	before := testutil.ToFloat64(counter)
	ObserveRequest(Unmatched, http.MethodGet, http.StatusMethodNotAllowed, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
