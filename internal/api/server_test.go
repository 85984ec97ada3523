package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"facegate-worker-go/internal/config"
	"facegate-worker-go/internal/gallery"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/stream"
)

type stubStreams struct{}

func (stubStreams) StartStream(*models.StreamRequest) (models.StreamResponse, error) {
	return models.StreamResponse{}, stream.ErrStreamExists
}
func (stubStreams) StopStream(string) error { return stream.ErrStreamNotFound }
func (stubStreams) GetStream(string) (models.StreamResponse, error) {
	return models.StreamResponse{}, stream.ErrStreamNotFound
}
func (stubStreams) ListStreams() []models.StreamResponse { return nil }

type stubViewer struct{}

func (stubViewer) LatestJPEG(string) ([]byte, bool)                         { return nil, false }
func (stubViewer) StreamMJPEGHTTP(http.ResponseWriter, *http.Request, string) {}

type stubEvents struct{}

func (stubEvents) Poll() []models.LogEntry { return nil }
func (stubEvents) Subscribe(int) (<-chan models.DetectionEvent, func()) {
	return make(chan models.DetectionEvent), func() {}
}

type stubDirectory struct{}

func (stubDirectory) ListRooms(context.Context) ([]models.Room, error)     { return nil, nil }
func (stubDirectory) ListCameras(context.Context) ([]models.Camera, error) { return nil, nil }

func newTestServer() *Server {
	cfg := &config.Config{WorkerID: "gate-1", Version: "test", Environment: "test", Port: 0}
	g := gallery.New(zerolog.Nop())
	return NewServer(cfg, Dependencies{
		Streams:   stubStreams{},
		Viewer:    stubViewer{},
		Events:    stubEvents{},
		Gallery:   g,
		Directory: stubDirectory{},
		ReloadGallery: func(context.Context) (*gallery.Snapshot, error) {
			return g.Snapshot(), nil
		},
	})
}

func TestRoutesAreWired(t *testing.T) {
	h := newTestServer().Handler()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/streams", http.StatusOK},
		{http.MethodGet, "/streams/nope", http.StatusNotFound},
		{http.MethodDelete, "/streams/nope", http.StatusNotFound},
		{http.MethodGet, "/streams/nope/frame", http.StatusNotFound},
		{http.MethodGet, "/events", http.StatusOK},
		{http.MethodGet, "/events/recent", http.StatusNotFound},
		{http.MethodGet, "/gallery", http.StatusOK},
		{http.MethodPost, "/gallery/reload", http.StatusOK},
		{http.MethodGet, "/directory/rooms", http.StatusOK},
		{http.MethodGet, "/directory/cameras", http.StatusOK},
		{http.MethodGet, "/history", http.StatusOK},
		{http.MethodGet, "/system/stats", http.StatusOK},
		{http.MethodGet, "/api/info", http.StatusOK},
		{http.MethodGet, "/docs", http.StatusMovedPermanently},
		{http.MethodGet, "/docs/doc.json", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/streams", nil)
	newTestServer().Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
