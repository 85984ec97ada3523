package publisher

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/publisher/mjpeg"
)

// FrameSource is polled for the newest annotated frame of each stream
type FrameSource interface {
	StreamIDs() []string
	PollFrame(streamID string) (*models.AnnotatedFrame, bool)
}

// Renderer turns an annotated frame into a JPEG
type Renderer interface {
	JPEG(af *models.AnnotatedFrame) ([]byte, error)
}

// Service is the display consumer: a cooperative tick that polls every
// stream's relay and republishes the newest frame for viewers.
type Service struct {
	source   FrameSource
	renderer Renderer
	refresh  time.Duration
	logger   zerolog.Logger

	mjpegPublisher *mjpeg.Publisher
	known          map[string]bool
}

func NewService(source FrameSource, renderer Renderer, refresh time.Duration, quality int, logger zerolog.Logger) *Service {
	if refresh <= 0 {
		refresh = 33 * time.Millisecond
	}
	return &Service{
		source:         source,
		renderer:       renderer,
		refresh:        refresh,
		logger:         logger.With().Str("component", "display").Logger(),
		mjpegPublisher: mjpeg.NewPublisher(quality, logger),
		known:          make(map[string]bool),
	}
}

// Run ticks until ctx is cancelled
func (s *Service) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Display loop panic recovered")
		}
	}()

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick polls every stream once. A stream with no new frame is skipped.
func (s *Service) Tick() {
	live := make(map[string]bool)
	for _, id := range s.source.StreamIDs() {
		live[id] = true
		af, ok := s.source.PollFrame(id)
		if !ok {
			continue
		}
		jpeg, err := s.renderer.JPEG(af)
		if err != nil {
			s.logger.Debug().Err(err).Str("stream_id", id).Msg("Failed to render frame")
			continue
		}
		s.mjpegPublisher.PublishJPEG(id, jpeg)
	}

	for id := range s.known {
		if !live[id] {
			s.mjpegPublisher.Forget(id)
		}
	}
	s.known = live
}

func (s *Service) LatestJPEG(streamID string) ([]byte, bool) {
	return s.mjpegPublisher.LatestJPEG(streamID)
}

func (s *Service) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, streamID string) {
	s.mjpegPublisher.StreamMJPEGHTTP(w, r, streamID)
}

func (s *Service) Shutdown() {
	s.mjpegPublisher.Shutdown()
}
