package vision

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
)

var errNoFace = errors.New("no face found")

// SFace computes 128-d embeddings with the OpenCV SFace model. Live faces
// are aligned from their YuNet landmarks; reference photos are run through
// YuNet first.
type SFace struct {
	mu       sync.Mutex
	rec      gocv.FaceRecognizerSF
	detector YuNetConfig
}

func NewSFace(modelPath string, detector YuNetConfig) (*SFace, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("recognition model not found: %s", modelPath)
	}
	return &SFace{
		rec:      gocv.NewFaceRecognizerSF(modelPath, ""),
		detector: detector,
	}, nil
}

func (s *SFace) Embed(frame *models.Frame, det models.Detection) ([]float32, error) {
	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feature(mat, det)
}

// EncodePhoto embeds the most confident face in a reference photo
func (s *SFace) EncodePhoto(path string) ([]float32, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("cannot read image %s", path)
	}

	y, err := newYuNet(s.detector, img.Cols(), img.Rows())
	if err != nil {
		return nil, err
	}
	defer y.Close()

	det, ok := best(y.detectMat(img))
	if !ok {
		return nil, errNoFace
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feature(img, det)
}

func (s *SFace) feature(mat gocv.Mat, det models.Detection) ([]float32, error) {
	row := detectionRow(det)
	box := gocv.NewMatWithSize(1, len(row), gocv.MatTypeCV32F)
	defer box.Close()
	for i, v := range row {
		box.SetFloatAt(0, i, v)
	}

	aligned := gocv.NewMat()
	defer aligned.Close()
	s.rec.AlignCrop(mat, box, &aligned)
	if aligned.Empty() {
		return nil, errNoFace
	}

	feat := gocv.NewMat()
	defer feat.Close()
	s.rec.Feature(aligned, &feat)
	if feat.Empty() {
		return nil, errors.New("empty face feature")
	}

	data, err := feat.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), data...), nil
}

func (s *SFace) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Close()
	return nil
}

// cropRect widens a face box by margin on every side, clamped to the image
func cropRect(b models.Box, margin float64, width, height int) image.Rectangle {
	dx := int(float64(b.W) * margin)
	dy := int(float64(b.H) * margin)
	grown := models.Box{X: b.X - dx, Y: b.Y - dy, W: b.W + 2*dx, H: b.H + 2*dy}.Clamp(width, height)
	return toRect(grown)
}
