package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHealthz(t *testing.T) {
	healthy := true
	s := NewServer(":0", func() error {
		if !healthy {
			return errors.New("request loop stalled")
		}
		return nil
	})
	r := s.Router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	healthy = false
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request loop stalled")
}

func TestMetricsEndpoint(t *testing.T) {
	RequestsTotal.WithLabelValues("ping", "OK").Inc()
	ActiveVFs.WithLabelValues("0000:07:00.0").Set(3)

	rec := httptest.NewRecorder()
	NewServer(":0", nil).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vfd_requests_total{action="ping",state="OK"}`)
	assert.Contains(t, rec.Body.String(), `vfd_active_vfs{port="0000:07:00.0"} 3`)

	assert.Equal(t, float64(3), testutil.ToFloat64(ActiveVFs.WithLabelValues("0000:07:00.0")))
}

func TestMetricsRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(":0", nil).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
