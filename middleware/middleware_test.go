package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"zako_server/models"
)

func TestSessionIssuesToken(t *testing.T) {
	s := &Sessions{}
	var seen string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionToken(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultSessionCookie, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: "existing"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "existing", seen)
	assert.Empty(t, w.Result().Cookies())
}

func TestClientIDPrecedence(t *testing.T) {
	s := &Sessions{}
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, s.ClientID(r, ""))

	r.AddCookie(&http.Cookie{Name: DefaultClientCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", s.ClientID(r, ""))

	r.Header.Set(ClientIDHeader, "from-header")
	assert.Equal(t, "from-header", s.ClientID(r, ""))

	assert.Equal(t, "from-param", s.ClientID(r, " from-param "))
}

func TestExpireSession(t *testing.T) {
	w := httptest.NewRecorder()
	(&Sessions{CookieName: "sid"}).ExpireSession(w)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestRequestLoggerAndTimeout(t *testing.T) {
	var deadline bool
	h := RequestLogger(zap.NewNop(), nil)(Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
		w.WriteHeader(http.StatusTeapot)
	})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.True(t, deadline)
}

func TestRequestLoggerSeesUnroutedRequests(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := mux.NewRouter()
	r.HandleFunc("/api/likes", func(w http.ResponseWriter, r *http.Request) {}).Methods("POST")
	h := RequestLogger(zap.New(core), r)(r)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/likes", nil),
		httptest.NewRequest(http.MethodGet, "/api/likes", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 3)
	got := make([][2]interface{}, 0, len(entries))
	for _, e := range entries {
		fields := e.ContextMap()
		got = append(got, [2]interface{}{fields["route"], fields["status"]})
	}
	assert.Equal(t, [][2]interface{}{
		{"/api/likes", int64(http.StatusOK)},
		{"unmatched", int64(http.StatusMethodNotAllowed)},
		{"unmatched", int64(http.StatusNotFound)},
	}, got)
}

func TestRecoveryOutsideRouter(t *testing.T) {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	h := Recovery(zap.NewNop())(r)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionReissuesOverlongToken(t *testing.T) {
	s := &Sessions{}
	var seen string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionToken(r.Context())
	}))

	long := strings.Repeat("x", 300)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: long})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.NotEmpty(t, seen)
	assert.NotEqual(t, long, seen)
	assert.LessOrEqual(t, len(seen), models.MaxSessionTokenLength)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, seen, cookies[0].Value)
}
