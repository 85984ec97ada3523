package vision

import (
	"fmt"
	"image"
	"os"
	"sort"

	"gocv.io/x/gocv"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/tracking"
)

// YuNet output row: x, y, w, h, 5 landmark pairs, score
const yunetCols = 15

type YuNetConfig struct {
	ModelPath      string
	ScoreThreshold float32
	NMSThreshold   float32
	TopK           int
}

// NewYuNetFactory returns a detector factory. The model file is checked when
// the factory runs so a missing model fails the stream, not the process.
func NewYuNetFactory(cfg YuNetConfig) tracking.DetectorFactory {
	return func(width, height int) (tracking.Detector, error) {
		return newYuNet(cfg, width, height)
	}
}

func newYuNet(cfg YuNetConfig, width, height int) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", tracking.ErrModelNotFound, cfg.ModelPath)
	}
	size := image.Pt(width, height)
	det := gocv.NewFaceDetectorYNWithParams(cfg.ModelPath, "", size,
		cfg.ScoreThreshold, cfg.NMSThreshold, cfg.TopK, 0, 0)
	return &YuNet{det: det, size: size}, nil
}

// YuNet wraps the OpenCV YuNet face detector
type YuNet struct {
	det  gocv.FaceDetectorYN
	size image.Point
}

func (y *YuNet) Detect(frame *models.Frame) ([]models.Detection, error) {
	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return y.detectMat(mat), nil
}

func (y *YuNet) detectMat(mat gocv.Mat) []models.Detection {
	if sz := image.Pt(mat.Cols(), mat.Rows()); sz != y.size {
		y.det.SetInputSize(sz)
		y.size = sz
	}

	faces := gocv.NewMat()
	defer faces.Close()
	y.det.Detect(mat, &faces)

	if faces.Empty() || faces.Cols() < yunetCols {
		return nil
	}

	dets := make([]models.Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		raw := make([]float32, yunetCols)
		for c := range raw {
			raw[c] = faces.GetFloatAt(r, c)
		}
		d := models.Detection{
			Box: models.Box{
				X: int(raw[0]),
				Y: int(raw[1]),
				W: int(raw[2]),
				H: int(raw[3]),
			},
			Score: raw[14],
			Raw:   raw,
		}
		copy(d.Landmarks[:], raw[4:14])
		dets = append(dets, d)
	}
	return dets
}

func (y *YuNet) Close() error {
	y.det.Close()
	return nil
}

// best returns the highest scoring detection
func best(dets []models.Detection) (models.Detection, bool) {
	if len(dets) == 0 {
		return models.Detection{}, false
	}
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Score > dets[j].Score })
	return dets[0], true
}

// detectionRow rebuilds the detector row the aligner expects
func detectionRow(det models.Detection) []float32 {
	if len(det.Raw) >= yunetCols {
		return det.Raw[:yunetCols]
	}
	raw := make([]float32, yunetCols)
	raw[0], raw[1], raw[2], raw[3] = float32(det.Box.X), float32(det.Box.Y), float32(det.Box.W), float32(det.Box.H)
	copy(raw[4:14], det.Landmarks[:])
	raw[14] = det.Score
	return raw
}
