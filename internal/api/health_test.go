package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadiness(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name     string
		postgres PingFunc
		redis    PingFunc
		status   int
		overall  string
		redisDep string
	}{
		{"all up", up, up, http.StatusOK, "ok", "ok"},
		{"redis down degrades", up, down, http.StatusOK, "degraded", "down"},
		{"lock disabled", up, nil, http.StatusOK, "ok", "disabled"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[ReadinessResponse](t, rec)
			assert.Equal(t, tt.overall, resp.Status)
			assert.Equal(t, tt.redisDep, resp.Dependencies["redis"])
			assert.Equal(t, "v1", resp.Version)
		})
	}
}
