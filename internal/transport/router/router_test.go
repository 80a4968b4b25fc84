package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/metrics"
	"github.com/trunov/mediafinalizer/internal/transport/handler"
)

type okUseCase struct{}

func (okUseCase) FinalizeUpload(_ context.Context, p handler.FinalizeUploadParams) (entities.FinalizeResult, error) {
	return entities.FinalizeResult{MediaID: p.MediaID, JobID: "J1", MessageID: "M1"}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Finalization("success")

	h := handler.New(okUseCase{}, nil, config.NewConfig(), zap.NewNop())
	return NewRouter(h, []string{"https://app.example.com"}, reg)
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mediafinalizer_finalizations_total{result="success"} 1`)

	rec = httptest.NewRecorder()
	body := `{"media_id":"A1","org_id":"O1","storage_path":"orgs/O1/a.mp4"}`
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads/finalize", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"job_id":"J1"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/finalize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/uploads/finalize", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
