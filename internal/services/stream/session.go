// Package stream runs one monitored camera per Session: an ingester feeding
// a pipeline goroutine that detects, tracks, recognizes and evaluates faces,
// then hands annotated frames to the display relay.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/gallery"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/access"
	"facegate-worker-go/internal/services/evidence"
	"facegate-worker-go/internal/services/ingest"
	"facegate-worker-go/internal/services/relay"
	"facegate-worker-go/internal/services/tracking"
)

// Recognizer labels a detected face against a gallery snapshot
type Recognizer interface {
	Match(snap *gallery.Snapshot, frame *models.Frame, det models.Detection) (models.Label, error)
}

// GallerySource hands out the current gallery snapshot
type GallerySource interface {
	Snapshot() *gallery.Snapshot
}

// EventEmitter receives decisions and operator notices
type EventEmitter interface {
	Emit(ev models.DetectionEvent)
	Notify(streamID, message string)
}

// EvidenceSink queues annotated frames for writing
type EvidenceSink interface {
	Submit(path string, frame *models.AnnotatedFrame) bool
}

// Deps are the collaborators shared by every session
type Deps struct {
	Opener      ingest.Opener
	NewDetector tracking.DetectorFactory
	NewTracker  tracking.TrackerFactory
	Recognizer  Recognizer
	Gallery     GallerySource
	Policy      access.RoomPolicy
	Events      EventEmitter
	Evidence    EvidenceSink
}

type SessionConfig struct {
	StreamID      string
	Location      string
	CameraAddress string
	URL           string

	DetectInterval      int
	Cooldown            time.Duration
	Ingest              ingest.Options
	PipelineStopTimeout time.Duration
	IdleWait            time.Duration

	EvidenceDir string
	EvidenceExt string
}

type Session struct {
	cfg    SessionConfig
	deps   Deps
	logger zerolog.Logger

	ingester  *ingest.Ingester
	tracker   *tracking.DetectionTracker
	evaluator *access.Evaluator
	relay     *relay.Relay

	mu        sync.Mutex
	state     models.StreamState
	lastError string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	// Pipeline-owned; read only inside the pipeline goroutine
	lastSeq uint64
	snap    *gallery.Snapshot
	snapSeq uint64

	processed    atomic.Int64
	detectCycles atomic.Int64
	events       atomic.Int64

	onState func(id string, state models.StreamState)
}

func NewSession(cfg SessionConfig, deps Deps, logger zerolog.Logger) *Session {
	if cfg.Location == "" {
		cfg.Location = cfg.StreamID
	}
	if cfg.PipelineStopTimeout <= 0 {
		cfg.PipelineStopTimeout = time.Second
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = 10 * time.Millisecond
	}
	if cfg.EvidenceExt == "" {
		cfg.EvidenceExt = "jpg"
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		relay:  relay.New(),
		state:  models.StreamStateStopped,
	}
	s.ingester = ingest.New(deps.Opener, cfg.Ingest, logger)
	s.evaluator = access.NewEvaluator(deps.Policy, access.Options{
		StreamID:      cfg.StreamID,
		CameraAddress: cfg.CameraAddress,
		Cooldown:      cfg.Cooldown,
	}, logger)
	s.tracker = tracking.New(cfg.DetectInterval, deps.NewDetector, deps.NewTracker, s.handleFace, logger)
	return s
}

func (s *Session) ID() string { return s.cfg.StreamID }

func (s *Session) Config() SessionConfig { return s.cfg }

// Start launches the ingester and the pipeline. The cooldown cache and all
// trackers start empty on every (re)start.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsActive() {
		return ingest.ErrAlreadyRunning
	}
	s.setStateLocked(models.StreamStateStarting)

	s.evaluator.Reset()
	s.tracker.Reset()
	s.lastSeq = 0
	s.snap = nil
	s.lastError = ""

	// A failed stream may still be releasing its previous connection
	s.ingester.Stop()
	if err := s.ingester.Start(s.cfg.URL); err != nil {
		s.setStateLocked(models.StreamStateFailed)
		s.lastError = err.Error()
		return fmt.Errorf("start ingester: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startedAt = time.Now()

	go s.pipeline(ctx, s.done)

	s.setStateLocked(models.StreamStateRunning)
	s.logger.Info().
		Str("location", s.cfg.Location).
		Str("camera", s.cfg.CameraAddress).
		Str("url", ingest.RedactURL(s.cfg.URL)).
		Msg("Stream session started")
	return nil
}

// Stop halts the pipeline and the ingester, each with a bounded wait, and
// proceeds regardless of whether they finished in time.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == models.StreamStateStopped || s.state == models.StreamStateStopping {
		s.mu.Unlock()
		return
	}
	failed := s.state == models.StreamStateFailed
	s.setStateLocked(models.StreamStateStopping)
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(s.cfg.PipelineStopTimeout):
			s.logger.Warn().Dur("timeout", s.cfg.PipelineStopTimeout).Msg("Pipeline did not stop in time, abandoning")
		}
	}
	s.ingester.Stop()

	s.mu.Lock()
	if failed {
		s.setStateLocked(models.StreamStateFailed)
	} else {
		s.setStateLocked(models.StreamStateStopped)
	}
	s.mu.Unlock()
	s.logger.Info().Msg("Stream session stopped")
}

// PollFrame takes the newest annotated frame, if any. It never blocks.
func (s *Session) PollFrame() (*models.AnnotatedFrame, bool) {
	return s.relay.Poll()
}

// Sweep evicts expired cooldown entries
func (s *Session) Sweep() {
	s.evaluator.Sweep()
}

func (s *Session) State() (models.StreamState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastError
}

func (s *Session) Response() models.StreamResponse {
	s.mu.Lock()
	state, lastErr, started := s.state, s.lastError, s.startedAt
	s.mu.Unlock()

	in := s.ingester.Stats()
	return models.StreamResponse{
		StreamID:      s.cfg.StreamID,
		Location:      s.cfg.Location,
		CameraAddress: s.cfg.CameraAddress,
		URL:           ingest.RedactURL(s.cfg.URL),
		State:         state,
		LastError:     lastErr,
		StartedAt:     started,
		Stats: models.StreamStats{
			ConnectAttempts: in.ConnectAttempts,
			Connects:        in.Connects,
			ReadFailures:    in.ReadFailures,
			FramesRead:      in.Frames,
			FramesProcessed: s.processed.Load(),
			DetectCycles:    s.detectCycles.Load(),
			Events:          s.events.Load(),
			RelayDrops:      s.relay.Drops(),
		},
	}
}

func (s *Session) setStateLocked(state models.StreamState) {
	s.state = state
	if s.onState != nil {
		s.onState(s.cfg.StreamID, state)
	}
}

func (s *Session) pipeline(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Pipeline panic recovered")
		}
	}()
	defer func() {
		if err := s.tracker.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release tracker resources")
		}
	}()

	idle := time.NewTicker(s.cfg.IdleWait)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok, frame := s.ingester.ReadLatest()
		if !ok || frame.Seq == s.lastSeq {
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		s.lastSeq = frame.Seq

		if err := s.processFrame(ctx, frame); err != nil {
			s.fail(err)
			return
		}
	}
}

// processFrame runs one detect or track cycle and publishes the annotated
// frame. A returned error is fatal for the stream.
func (s *Session) processFrame(ctx context.Context, frame *models.Frame) error {
	cycle, err := s.tracker.Process(ctx, frame)
	if err != nil {
		return err
	}
	s.processed.Add(1)
	if cycle.Detecting {
		s.detectCycles.Add(1)
	}

	af := &models.AnnotatedFrame{Frame: frame}
	if len(cycle.Faces) > 0 {
		af.Overlays = make([]models.Overlay, len(cycle.Faces))
		for i, f := range cycle.Faces {
			af.Overlays[i] = models.Overlay{Box: f.Box, Text: f.Label.Display, Style: models.StyleTracked}
		}
	}
	s.relay.Put(af)
	return nil
}

// handleFace recognizes one detected face, evaluates access and queues the
// evidence. Suppressed sightings are still tracked so the face stays boxed.
func (s *Session) handleFace(ctx context.Context, frame *models.Frame, det models.Detection) (models.Label, bool) {
	if s.snapSeq != frame.Seq || s.snap == nil {
		s.snap = s.deps.Gallery.Snapshot()
		s.snapSeq = frame.Seq
	}

	label, err := s.deps.Recognizer.Match(s.snap, frame, det)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Face skipped")
		return models.Label{}, false
	}

	d := s.evaluator.Evaluate(ctx, label, s.cfg.Location)
	if d.Suppressed() {
		return label, true
	}

	ev := *d.Event
	path := evidence.Filename(s.cfg.EvidenceDir, ev.Timestamp, label.Display, s.cfg.EvidenceExt)
	snapshot := &models.AnnotatedFrame{
		Frame:    frame,
		Overlays: []models.Overlay{{Box: det.Box, Text: label.Display, Style: models.StyleEvidence}},
	}
	if s.deps.Evidence.Submit(path, snapshot) {
		ev.EvidencePath = path
	}

	s.deps.Events.Emit(ev)
	s.events.Add(1)
	return label, true
}

// fail marks the stream failed, tells the operator and releases the ingester.
// It runs on the pipeline goroutine, which exits right after.
func (s *Session) fail(err error) {
	msg := fmt.Sprintf("Stream '%s' stopped: %v", s.cfg.Location, err)
	if errors.Is(err, tracking.ErrModelNotFound) {
		msg = fmt.Sprintf("Stream '%s' stopped: face detection model is missing (%v).", s.cfg.Location, err)
	}
	s.logger.Error().Err(err).Msg("Stream failed")
	s.deps.Events.Notify(s.cfg.StreamID, msg)

	s.mu.Lock()
	s.lastError = err.Error()
	s.setStateLocked(models.StreamStateFailed)
	s.mu.Unlock()

	go s.ingester.Stop()
}
