// Package vision adapts gocv and go-face to the pipeline interfaces. It is
// the only package that touches OpenCV Mats; everything else passes BGR
// frames around.
package vision

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/ingest"
)

var errReadFailed = errors.New("failed to read frame from VideoCapture")

// CaptureOpener opens RTSP (or any OpenCV supported) streams
type CaptureOpener struct{}

func (CaptureOpener) Open(ctx context.Context, url string) (ingest.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cap, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, errors.New("video capture is not opened")
	}

	// Keep only the newest frame in the decoder
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	return &captureSource{cap: cap, img: gocv.NewMat()}, nil
}

type captureSource struct {
	cap *gocv.VideoCapture
	img gocv.Mat
}

func (s *captureSource) Read() (*models.Frame, error) {
	if ok := s.cap.Read(&s.img); !ok || s.img.Empty() {
		return nil, errReadFailed
	}
	return helpers.MatToFrame(s.img)
}

func (s *captureSource) Close() error {
	s.img.Close()
	return s.cap.Close()
}
