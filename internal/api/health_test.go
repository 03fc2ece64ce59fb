package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(name string, critical bool, err error) DependencyCheck {
	return DependencyCheck{Name: name, Critical: critical, Ping: func(context.Context) error { return err }}
}

func TestReadiness(t *testing.T) {
	down := errors.New("down")

	tests := []struct {
		name       string
		checks     []DependencyCheck
		wantStatus string
		wantCode   int
	}{
		{"all up", []DependencyCheck{check("sqlite", true, nil), check("redis", false, nil)}, "ok", http.StatusOK},
		{"optional down", []DependencyCheck{check("sqlite", true, nil), check("redis", false, down)}, "degraded", http.StatusOK},
		{"critical down", []DependencyCheck{check("postgres", true, down), check("redis", false, nil)}, "error", http.StatusServiceUnavailable},
		{"no checks", nil, "ok", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Dependencies, len(tt.checks))
		})
	}
}
