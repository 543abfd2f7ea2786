package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	storemem "reportwatch/internal/store/memory"
	"reportwatch/internal/watch"
)

type staticRuns struct {
	last *watch.RunSummary
}

func (s staticRuns) LastRun() *watch.RunSummary { return s.last }

func seedCatalog(t *testing.T, entries ...watch.CatalogEntry) *storemem.Catalog {
	t.Helper()
	catalog := storemem.New()
	for _, e := range entries {
		require.NoError(t, catalog.Append(context.Background(), e))
	}
	return catalog
}

func entry(id string, read bool) watch.CatalogEntry {
	return watch.CatalogEntry{
		ID:          id,
		Title:       "Report " + id,
		Summary:     "summary",
		SourceURL:   "https://example.com/" + id,
		FirstSeenAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		IsRead:      read,
	}
}

func TestHealthz(t *testing.T) {
	srv := NewServer(seedCatalog(t), nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv := NewServer(seedCatalog(t), nil, zap.New(core))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	fields := completed[0].ContextMap()
	require.Equal(t, rec.Header().Get("X-Request-ID"), fields["request_id"])
}

func TestListReports(t *testing.T) {
	srv := NewServer(seedCatalog(t, entry("a", true), entry("b", false)), nil, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reports []watch.CatalogEntry `json:"reports"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 2, body.Count)
	require.Equal(t, "a", body.Reports[0].ID)
}

func TestListReportsUnreadFilter(t *testing.T) {
	srv := NewServer(seedCatalog(t, entry("a", true), entry("b", false)), nil, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports?unread=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reports []watch.CatalogEntry `json:"reports"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "b", body.Reports[0].ID)
}

func TestMarkReadAndUnread(t *testing.T) {
	catalog := seedCatalog(t, entry("a", false))
	srv := NewServer(catalog, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reports/a/read", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := catalog.List(context.Background())
	require.NoError(t, err)
	require.True(t, entries[0].IsRead)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reports/a/unread", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err = catalog.List(context.Background())
	require.NoError(t, err)
	require.False(t, entries[0].IsRead)
}

func TestMarkReadUnknownID(t *testing.T) {
	srv := NewServer(seedCatalog(t), nil, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reports/nope/read", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLastRun(t *testing.T) {
	srv := NewServer(seedCatalog(t), staticRuns{}, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	srv = NewServer(seedCatalog(t), staticRuns{last: &watch.RunSummary{Committed: 3}}, zap.NewNop())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary watch.RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	require.Equal(t, 3, summary.Committed)
}
