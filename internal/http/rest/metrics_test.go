package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/seedr_tray/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler_Health(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewMetricsHandler(tel).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsHandler_MetricsDisabled(t *testing.T) {
	tests := []struct {
		name string
		tel  *telemetry.Telemetry
	}{
		{name: "nil telemetry", tel: nil},
		{name: "disabled telemetry", tel: &telemetry.Telemetry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewMetricsHandler(tt.tel).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestMetricsHandler_MetricsEnabled(t *testing.T) {
	ctx := context.Background()

	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: true, ServiceName: "seedr-tray-test", ServiceVersion: "test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	tel.RecordMenuRefresh(ctx, "success", 3)

	h := NewMetricsHandler(tel).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "menu_refreshes")
}

func TestMetricsHandler_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMetricsHandler(nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
