package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/download-simulator/internal/app"
	"github.com/JakeFAU/download-simulator/internal/clock/fake"
	"github.com/JakeFAU/download-simulator/internal/download"
	"github.com/JakeFAU/download-simulator/internal/id/uuid"
	"github.com/JakeFAU/download-simulator/internal/policy/ratelimit"
	"github.com/JakeFAU/download-simulator/internal/worker"
)

type fakeController struct {
	mu        sync.Mutex
	state     app.State
	next      int
	downloads []app.DownloadView
	cleared   int
	panicOn   bool
}

func (f *fakeController) Title() string { return app.Title }

func (f *fakeController) State() app.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) StartDownload() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn {
		panic("boom")
	}
	if f.state != app.StateRunning {
		return 0, false
	}
	id := f.next
	f.next++
	f.downloads = append(f.downloads, app.DownloadView{ID: id, URL: "http://somer.server/files/x"})
	return id, true
}

func (f *fakeController) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.downloads = nil
}

func (f *fakeController) Snapshot() []app.DownloadView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]app.DownloadView(nil), f.downloads...)
}

type fakeIDGen struct {
	err error
}

func (g fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "req-1", nil
}

func newTestServer(t *testing.T, ctrl Controller, stats func() worker.Stats) *Server {
	t.Helper()
	return NewServer(ctrl, Config{
		Logger: zaptest.NewLogger(t),
		IDs:    fakeIDGen{},
		Stats:  stats,
	})
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServerHealthAndReadiness(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{state: app.StateInit}
	s := newTestServer(t, ctrl, nil)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz").Code)
	rec := do(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), app.InitializingText)

	ctrl.mu.Lock()
	ctrl.state = app.StateRunning
	ctrl.mu.Unlock()
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/readyz").Code)
}

func TestServerTitle(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, &fakeController{}, nil), http.MethodGet, "/v1/title")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"title":"Subscription_Test"}`, rec.Body.String())
}

func TestServerStartDownload(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{state: app.StateRunning}
	s := newTestServer(t, ctrl, nil)

	rec := do(t, s, http.MethodPost, "/v1/downloads")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	var resp startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, startResponse{ID: 0, URL: "http://somer.server/files/x"}, resp)

	rec = do(t, s, http.MethodGet, "/v1/downloads")
	require.Equal(t, http.StatusOK, rec.Code)
	var list downloadsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, app.StateRunning, list.State)
	require.Len(t, list.Downloads, 1)
}

func TestServerStartDownloadWhileInitializing(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, &fakeController{state: app.StateInit}, nil), http.MethodPost, "/v1/downloads")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerClearDownloads(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{state: app.StateRunning}
	s := newTestServer(t, ctrl, nil)
	do(t, s, http.MethodPost, "/v1/downloads")

	rec := do(t, s, http.MethodDelete, "/v1/downloads")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, ctrl.cleared)
	require.Empty(t, ctrl.Snapshot())
}

func TestServerStats(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusNotFound, do(t, newTestServer(t, &fakeController{}, nil), http.MethodGet, "/v1/stats").Code)

	s := newTestServer(t, &fakeController{}, func() worker.Stats {
		return worker.Stats{SubmissionsAccepted: 3, EventsDropped: 1}
	})
	rec := do(t, s, http.MethodGet, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"submissions_accepted":3,"submissions_dropped":0,"events_delivered":0,"events_dropped":1}`, rec.Body.String())
}

func TestServerRecoversFromPanics(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, &fakeController{state: app.StateRunning, panicOn: true}, nil), http.MethodPost, "/v1/downloads")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerRequestIDFailure(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeController{}, Config{IDs: fakeIDGen{err: errors.New("no entropy")}})
	require.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/healthz").Code)
}

func TestServerThrottlesSubmissions(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{state: app.StateRunning}
	s := NewServer(ctrl, Config{
		Logger:  zaptest.NewLogger(t),
		IDs:     fakeIDGen{},
		Limiter: ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 2}),
	})

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/downloads").Code)
	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/v1/downloads").Code)
	rec := do(t, s, http.MethodPost, "/v1/downloads")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.Len(t, ctrl.Snapshot(), 2)

	// Reads are never throttled.
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/downloads").Code)
}

func TestServerUnencodableResponse(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{
		state:     app.StateRunning,
		downloads: []app.DownloadView{{ID: 0, URL: "http://somer.server/files/0", Progress: math.Inf(1)}},
	}
	rec := do(t, newTestServer(t, ctrl, nil), http.MethodGet, "/v1/downloads")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{}, nil)
	do(t, s, http.MethodGet, "/healthz")
	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

// TestServerDrivesWorker runs the handlers against a real App and worker.
func TestServerDrivesWorker(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim, err := download.NewSimulator(download.WithClock(fake.New(time.Time{})))
	require.NoError(t, err)
	events, err := worker.Start[int](ctx, worker.Config{Simulator: sim})
	require.NoError(t, err)

	a := app.New()
	go func() { _ = a.Consume(ctx, events) }()
	<-a.Initialized()

	s := NewServer(a, Config{Logger: zaptest.NewLogger(t), IDs: uuid.NewUUIDGenerator()})
	rec := do(t, s, http.MethodPost, "/v1/downloads")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Eventually(t, func() bool {
		var list downloadsResponse
		body := do(t, s, http.MethodGet, "/v1/downloads").Body.Bytes()
		if err := json.Unmarshal(body, &list); err != nil {
			return false
		}
		return len(list.Downloads) == 1 && list.Downloads[0].Finished
	}, 5*time.Second, 10*time.Millisecond)
}
