package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lmvianna/oscar-crawler/internal/config"
	"github.com/lmvianna/oscar-crawler/internal/crawler"
	"github.com/lmvianna/oscar-crawler/internal/dispatcher"
	queueMemory "github.com/lmvianna/oscar-crawler/internal/queue/memory"
	storeMemory "github.com/lmvianna/oscar-crawler/internal/storage/memory"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Crawler: config.CrawlerConfig{
			BaseURL:          "https://example.com/films/",
			DefaultYearStart: 2010,
			DefaultYearEnd:   2015,
			Workers:          1,
			QueueDepth:       10,
		},
		Fetch:   config.FetchConfig{TimeoutSeconds: 20, MaxAttempts: 3},
		Storage: config.StorageConfig{Backend: config.StorageMemory},
	}
}

func TestServer_SubmitCrawl_Succeeds(t *testing.T) {
	t.Parallel()

	jobStore := storeMemory.NewJobStore()
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, nil)
	idGen := &fakeIDGen{ids: []string{"job-direct"}}
	clock := &fakeClock{now: time.Unix(100, 0).UTC()}
	server := NewServer(jobStore, dispatch, idGen, clock, testConfig(), zap.NewNop())

	reqBody := []byte(`{"mode":"direct","years":[2012,2013]}`)
	req := httptest.NewRequest(http.MethodPost, "/crawl/oscar", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var job crawler.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, "job-direct", job.ID)
	require.Equal(t, crawler.JobStatusPending, job.Status)
	require.Equal(t, crawler.ModeDirect, job.Mode)
	require.Zero(t, job.TotalFilms)
	require.Nil(t, job.DataFile)
	require.Nil(t, job.Films)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-direct", item.JobID)
	require.Equal(t, crawler.ModeDirect, item.Mode)
	require.Equal(t, []int{2012, 2013}, item.Years)

	stored, err := jobStore.GetJob(context.Background(), "job-direct")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusPending, stored.Status)
}

func TestServer_SubmitCrawl_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/crawl/oscar", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitCrawl_UnknownMode(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/crawl/oscar", bytes.NewBufferString(`{"mode":"ftp"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown crawl mode")
}

func TestServer_SubmitCrawl_YearOutOfRange(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/crawl/oscar", bytes.NewBufferString(`{"mode":"direct","years":[1850]}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "out of range")
}

func TestServer_SubmitCrawl_EnqueueErrorFailsJob(t *testing.T) {
	t.Parallel()

	jobStore := storeMemory.NewJobStore()
	dispatch := dispatcher.New(closedQueue{}, nil)
	server := NewServer(jobStore, dispatch, &fakeIDGen{ids: []string{"job-stuck"}},
		&fakeClock{now: time.Unix(100, 0).UTC()}, testConfig(), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/crawl/oscar", bytes.NewBufferString(`{"mode":"browser"}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	job, err := jobStore.GetJob(context.Background(), "job-stuck")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorText)
}

func TestServer_GetResults_ReturnsSnapshot(t *testing.T) {
	t.Parallel()

	jobStore := storeMemory.NewJobStore()
	now := time.Unix(100, 0).UTC()
	require.NoError(t, jobStore.CreateJob(context.Background(), crawler.Job{
		ID:        "job-done",
		Status:    crawler.JobStatusPending,
		Mode:      crawler.ModeDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	_, err := jobStore.UpdateJob(context.Background(), "job-done", crawler.JobStatusRunning, crawler.JobUpdate{})
	require.NoError(t, err)
	_, err = jobStore.UpdateJob(context.Background(), "job-done", crawler.JobStatusCompleted, crawler.JobUpdate{
		TotalFilms: 1,
		DataFile:   "memory://oscar_job-done.json",
		Films:      []crawler.Film{{Title: "Spotlight", Year: 2015, Nominations: 6, Awards: 2, BestPicture: true}},
	})
	require.NoError(t, err)

	server := newTestServerWithStore(jobStore)
	req := httptest.NewRequest(http.MethodGet, "/results/job-done", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var job crawler.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, crawler.JobStatusCompleted, job.Status)
	require.Equal(t, 1, job.TotalFilms)
	require.NotNil(t, job.DataFile)
	require.Len(t, job.Films, 1)
	require.Equal(t, "Spotlight", job.Films[0].Title)
	require.True(t, job.Films[0].BestPicture)
}

func TestServer_GetResults_NotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/results/missing", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "job not found")
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer().Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestServer_MetricsExposed(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	newTestServer().Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(storeMemory.NewJobStore(), dispatcher.New(queueMemory.NewQueue(1), nil),
		&fakeIDGen{}, &fakeClock{now: time.Unix(100, 0).UTC()}, cfg, zap.NewNop())

	// Health stays open, job routes require the key.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/results/some-job", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/results/some-job", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer().Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type closedQueue struct{}

func (closedQueue) Enqueue(context.Context, crawler.QueueItem) error {
	return fmt.Errorf("queue is closed")
}

func (closedQueue) Dequeue(context.Context) (crawler.QueueItem, error) {
	return crawler.QueueItem{}, fmt.Errorf("queue is closed")
}

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "id-default", nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer() *Server {
	return newTestServerWithStore(storeMemory.NewJobStore())
}

func newTestServerWithStore(jobStore crawler.JobStore) *Server {
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, nil)
	return NewServer(
		jobStore,
		dispatch,
		&fakeIDGen{},
		&fakeClock{now: time.Unix(100, 0).UTC()},
		testConfig(),
		zap.NewNop(),
	)
}
