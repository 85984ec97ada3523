package vision

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/tracking"
)

const (
	TrackerCSRT = "csrt"
	TrackerKCF  = "kcf"
	TrackerMIL  = "mil"
)

var errTrackerInit = errors.New("tracker initialization failed")

// NewTrackerFactory returns a factory for the named OpenCV tracker
func NewTrackerFactory(kind string) (tracking.TrackerFactory, error) {
	var newTracker func() gocv.Tracker
	switch strings.ToLower(kind) {
	case TrackerCSRT, "":
		newTracker = contrib.NewTrackerCSRT
	case TrackerKCF:
		newTracker = contrib.NewTrackerKCF
	case TrackerMIL:
		newTracker = gocv.NewTrackerMIL
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", kind)
	}

	return func(frame *models.Frame, box models.Box) (tracking.Tracker, error) {
		mat, err := helpers.FrameToMat(frame)
		if err != nil {
			return nil, err
		}
		defer mat.Close()

		t := newTracker()
		if !t.Init(mat, toRect(box)) {
			t.Close()
			return nil, errTrackerInit
		}
		return &cvTracker{t: t}, nil
	}, nil
}

type cvTracker struct {
	t gocv.Tracker
}

func (c *cvTracker) Update(frame *models.Frame) (models.Box, bool) {
	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return models.Box{}, false
	}
	defer mat.Close()

	rect, ok := c.t.Update(mat)
	if !ok {
		return models.Box{}, false
	}
	return fromRect(rect), true
}

func (c *cvTracker) Close() error {
	return c.t.Close()
}

func toRect(b models.Box) image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

func fromRect(r image.Rectangle) models.Box {
	return models.Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}
