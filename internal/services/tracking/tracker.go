// Package tracking alternates full-frame face detection with cheap visual
// tracking. Every Interval-th frame is a Detecting cycle: all trackers are
// discarded, faces are detected and handed to the face handler, and a new
// tracker is seeded for each usable face. Other frames are Tracking cycles:
// existing trackers are updated and failures dropped. Trackers are never
// added during a Tracking cycle.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/models"
)

// ErrModelNotFound is returned when the detection model file is missing.
// It is fatal for the stream.
var ErrModelNotFound = errors.New("detection model not found")

type Detector interface {
	Detect(frame *models.Frame) ([]models.Detection, error)
	Close() error
}

// DetectorFactory builds a detector sized for the first frame of a stream
type DetectorFactory func(width, height int) (Detector, error)

type Tracker interface {
	Update(frame *models.Frame) (models.Box, bool)
	Close() error
}

type TrackerFactory func(frame *models.Frame, box models.Box) (Tracker, error)

// FaceHandler resolves one detected face. It returns the label to track the
// face under, or false if the face should not be tracked this interval.
type FaceHandler func(ctx context.Context, frame *models.Frame, det models.Detection) (models.Label, bool)

// Cycle is the outcome of processing one frame
type Cycle struct {
	Detecting bool
	Detected  int // faces found by the detector, Detecting cycles only
	Faces     []models.TrackedFace
}

type trackedFace struct {
	models.TrackedFace
	tracker Tracker
}

type DetectionTracker struct {
	interval    int
	newDetector DetectorFactory
	newTracker  TrackerFactory
	handle      FaceHandler
	logger      zerolog.Logger

	detector Detector
	counter  int
	faces    []*trackedFace
}

func New(interval int, newDetector DetectorFactory, newTracker TrackerFactory, handle FaceHandler, logger zerolog.Logger) *DetectionTracker {
	if interval <= 0 {
		interval = 15
	}
	return &DetectionTracker{
		interval:    interval,
		newDetector: newDetector,
		newTracker:  newTracker,
		handle:      handle,
		logger:      logger.With().Str("component", "tracking").Logger(),
	}
}

// Process runs one cycle. Only ErrModelNotFound (wrapped) is returned as an
// error; per-face and per-frame failures are logged and absorbed.
func (dt *DetectionTracker) Process(ctx context.Context, frame *models.Frame) (Cycle, error) {
	detecting := dt.counter%dt.interval == 0
	dt.counter++

	if detecting {
		return dt.detect(ctx, frame)
	}
	return dt.track(frame), nil
}

func (dt *DetectionTracker) detect(ctx context.Context, frame *models.Frame) (Cycle, error) {
	dt.discard()
	cycle := Cycle{Detecting: true}

	if dt.detector == nil {
		d, err := dt.newDetector(frame.Width, frame.Height)
		if err != nil {
			if errors.Is(err, ErrModelNotFound) {
				return cycle, err
			}
			dt.logger.Error().Err(err).Msg("Failed to create face detector")
			return cycle, nil
		}
		dt.detector = d
		dt.logger.Info().Int("width", frame.Width).Int("height", frame.Height).Msg("Face detector initialized")
	}

	dets, err := dt.detector.Detect(frame)
	if err != nil {
		dt.logger.Warn().Err(err).Msg("Face detection failed")
		return cycle, nil
	}
	cycle.Detected = len(dets)

	for _, det := range dets {
		if ctx.Err() != nil {
			break
		}
		box := det.Box.Clamp(frame.Width, frame.Height)
		if box.Empty() {
			continue
		}
		det.Box = box

		label, ok := dt.handle(ctx, frame, det)
		if !ok {
			continue
		}

		tr, err := dt.newTracker(frame, box)
		if err != nil {
			dt.logger.Warn().Err(err).Msg("Failed to init tracker")
			continue
		}
		dt.faces = append(dt.faces, &trackedFace{
			TrackedFace: models.TrackedFace{Box: box, Label: label},
			tracker:     tr,
		})
	}

	cycle.Faces = dt.snapshot()
	return cycle, nil
}

func (dt *DetectionTracker) track(frame *models.Frame) Cycle {
	kept := dt.faces[:0]
	for _, f := range dt.faces {
		box, ok := f.tracker.Update(frame)
		box = box.Clamp(frame.Width, frame.Height)
		if !ok || box.Empty() {
			_ = f.tracker.Close()
			continue
		}
		f.Box = box
		kept = append(kept, f)
	}
	for i := len(kept); i < len(dt.faces); i++ {
		dt.faces[i] = nil
	}
	dt.faces = kept
	return Cycle{Faces: dt.snapshot()}
}

func (dt *DetectionTracker) snapshot() []models.TrackedFace {
	out := make([]models.TrackedFace, len(dt.faces))
	for i, f := range dt.faces {
		out[i] = f.TrackedFace
	}
	return out
}

func (dt *DetectionTracker) discard() {
	for _, f := range dt.faces {
		_ = f.tracker.Close()
	}
	dt.faces = nil
}

// Reset discards all trackers and restarts the interval. The detector is kept.
func (dt *DetectionTracker) Reset() {
	dt.discard()
	dt.counter = 0
}

// Close releases trackers and the detector
func (dt *DetectionTracker) Close() error {
	dt.discard()
	if dt.detector != nil {
		err := dt.detector.Close()
		dt.detector = nil
		if err != nil {
			return fmt.Errorf("close detector: %w", err)
		}
	}
	return nil
}
