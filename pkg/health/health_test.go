package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(status Status) Check {
	return func(context.Context) ComponentHealth { return ComponentHealth{Status: status} }
}

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("index", static(StatusUp))
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", static(StatusDegraded))
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("kafka", static(StatusDown))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 3)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", static(StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("index", static(StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
