// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/streamgate/internal/config"
	"grimm.is/streamgate/internal/stats"
)

type fakeSource struct {
	totals stats.SessionStats
}

func (f *fakeSource) Proto() string              { return "icmp" }
func (f *fakeSource) Totals() stats.SessionStats { return f.totals }

func newTestServer(t *testing.T) (*Server, *fakeSource) {
	t.Helper()
	src := &fakeSource{totals: stats.SessionStats{Created: 12, Released: 7, Prunes: 1}}
	return NewServer(config.Default(), src, nil), src
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "icmp", resp.Proto)
	assert.Equal(t, "30s", resp.SessionTimeout)
	assert.Equal(t, uint64(12), resp.Totals.Created)
	assert.Equal(t, uint64(7), resp.Totals.Released)
	assert.Equal(t, uint64(1), resp.Totals.Prunes)
}

func TestStatsMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	stats.Get().Publish("icmp", stats.SessionStats{Created: 5})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamgate_sessions_created_total")
}
