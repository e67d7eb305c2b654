package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/pkg/types/common"
)

type staticSource struct {
	components []common.ComponentHealth
}

func (s staticSource) Health(context.Context) common.HealthReport {
	return common.NewHealthReport(s.components...)
}

func up(name string) common.ComponentHealth {
	return common.ComponentHealth{Name: name, Status: common.HealthUp}
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("1.2.3", nil)
	rec := serve(h.Liveness)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		components []common.ComponentHealth
		code       int
		status     string
	}{
		{"all up", []common.ComponentHealth{up("engine"), up("cache")}, http.StatusOK, "ready"},
		{"degraded is ready", []common.ComponentHealth{up("engine"), {Name: "cache", Status: common.HealthDegraded}}, http.StatusOK, "ready"},
		{"down", []common.ComponentHealth{{Name: "engine", Status: common.HealthDown}}, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewHealthHandler("v", staticSource{tt.components}).Readiness)
			assert.Equal(t, tt.code, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Len(t, resp.Components, len(tt.components))
		})
	}
}

func TestHealthHandler_NoSource(t *testing.T) {
	h := NewHealthHandler("v", nil)
	for _, fn := range []http.HandlerFunc{h.Readiness, h.Detailed} {
		rec := serve(fn)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "CLN_008", resp.Code)
	}
}

func TestHealthHandler_DetailedWithCheckers(t *testing.T) {
	h := NewHealthHandler("v", staticSource{[]common.ComponentHealth{up("engine")}},
		CheckerFunc{ComponentName: "kafka", Fn: func(context.Context) error { return errors.New("dial refused") }},
		CheckerFunc{ComponentName: "minio", Fn: func(context.Context) error { return nil }},
	)
	rec := serve(h.Detailed)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp DetailedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, common.HealthDown, resp.Status)
	require.Len(t, resp.Components, 3)
	assert.Equal(t, "engine", resp.Components[0].Name)
	assert.Equal(t, "kafka", resp.Components[1].Name)
	assert.Equal(t, common.HealthDown, resp.Components[1].Status)
	assert.Equal(t, "dial refused", resp.Components[1].Message)
	assert.Equal(t, common.HealthUp, resp.Components[2].Status)
}

func TestWriteAppError_MasksInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppError(rec, errors.New("secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

//Personal.AI order the ending
