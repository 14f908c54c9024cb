package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/convoflow/go-message-pipeline/internal/config"
	"github.com/convoflow/go-message-pipeline/internal/faststore"
)

// brokenStore fails every probe; other operations are unused by the router.
type brokenStore struct {
	faststore.Store
}

func (brokenStore) Ping(context.Context) error { return errors.New("connection refused") }

func newRouter(t *testing.T, store faststore.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	r := gin.New()
	RegisterRoutes(r, db, store, config.Config{})
	return r
}

func TestHealthz(t *testing.T) {
	r := newRouter(t, faststore.NewMemory())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestReadyzOK(t *testing.T) {
	r := newRouter(t, faststore.NewMemory())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Ready || body.Checks["database"] != "ok" || body.Checks["faststore"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestReadyzFastStoreDown(t *testing.T) {
	r := newRouter(t, brokenStore{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t, faststore.NewMemory())

	// Prime the counters with one request.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Error("metrics output missing http_requests_total")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	r := newRouter(t, faststore.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "rid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "rid-123" {
		t.Fatalf("X-Request-ID = %q, want rid-123", got)
	}
}

func TestNoRouteJSON(t *testing.T) {
	r := newRouter(t, faststore.NewMemory())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
