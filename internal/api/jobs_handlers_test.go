package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lmvianna/oscar-crawler/internal/crawler"
	storeMemory "github.com/lmvianna/oscar-crawler/internal/storage/memory"
)

func seedJobs(t *testing.T, store *storeMemory.JobStore) {
	t.Helper()
	base := time.Unix(1000, 0).UTC()
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		require.NoError(t, store.CreateJob(context.Background(), crawler.Job{
			ID:        id,
			Status:    crawler.JobStatusPending,
			Mode:      crawler.ModeDirect,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	_, err := store.UpdateJob(context.Background(), "job-b", crawler.JobStatusRunning, crawler.JobUpdate{})
	require.NoError(t, err)
}

func TestListJobsNewestFirst(t *testing.T) {
	t.Parallel()

	store := storeMemory.NewJobStore()
	seedJobs(t, store)
	server := newTestServerWithStore(store)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Jobs []crawler.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Jobs, 3)
	require.Equal(t, "job-c", payload.Jobs[0].ID)
	require.Equal(t, "job-a", payload.Jobs[2].ID)
}

func TestListJobsStatusFilter(t *testing.T) {
	t.Parallel()

	store := storeMemory.NewJobStore()
	seedJobs(t, store)
	server := newTestServerWithStore(store)

	req := httptest.NewRequest(http.MethodGet, "/jobs?status=running", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Jobs []crawler.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Jobs, 1)
	require.Equal(t, "job-b", payload.Jobs[0].ID)
}

func TestListJobsLimitOffset(t *testing.T) {
	t.Parallel()

	store := storeMemory.NewJobStore()
	seedJobs(t, store)
	server := newTestServerWithStore(store)

	req := httptest.NewRequest(http.MethodGet, "/jobs?limit=1&offset=1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Jobs []crawler.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Jobs, 1)
	require.Equal(t, "job-b", payload.Jobs[0].ID)
}

func TestListJobsInvalidFilters(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	for _, target := range []string{
		"/jobs?limit=0",
		"/jobs?limit=abc",
		"/jobs?offset=-1",
		"/jobs?status=bogus",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
	}
}
