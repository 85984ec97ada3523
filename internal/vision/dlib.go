package vision

import (
	"errors"
	"fmt"
	"sync"

	face "github.com/Kagami/go-face"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
)

// Margin added around a detector box before handing the crop to dlib, whose
// own detector needs some context around the face.
const dlibCropMargin = 0.25

// Dlib computes 128-d embeddings with dlib's ResNet model. Distances are
// euclidean with the usual 0.6 (strict 0.5) tolerance.
type Dlib struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlib loads shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat
// from modelsDir.
func NewDlib(modelsDir string) (*Dlib, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &Dlib{rec: rec}, nil
}

func (d *Dlib) Embed(frame *models.Frame, det models.Detection) ([]float32, error) {
	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	rect := cropRect(det.Box, dlibCropMargin, frame.Width, frame.Height)
	if rect.Empty() {
		return nil, errNoFace
	}
	region := mat.Region(rect)
	defer region.Close()

	jpg, err := helpers.EncodeMat(region, "jpg", helpers.HighQuality)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	f, err := d.rec.RecognizeSingle(jpg)
	d.mu.Unlock()
	return descriptor(f, err)
}

func (d *Dlib) EncodePhoto(path string) ([]float32, error) {
	d.mu.Lock()
	f, err := d.rec.RecognizeSingleFile(path)
	d.mu.Unlock()
	return descriptor(f, err)
}

func descriptor(f *face.Face, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errNoFace
	}
	return append([]float32(nil), f.Descriptor[:]...), nil
}

func (d *Dlib) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec == nil {
		return errors.New("recognizer already closed")
	}
	d.rec.Close()
	d.rec = nil
	return nil
}
