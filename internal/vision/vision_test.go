package vision

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/tracking"
)

func blankFrame(w, h int) *models.Frame {
	return &models.Frame{Width: w, Height: h, Data: make([]byte, w*h*3)}
}

func TestCaptionOrigin(t *testing.T) {
	box := models.Box{X: 10, Y: 40, W: 50, H: 60}
	assert.Equal(t, image.Pt(10, 30), captionOrigin(models.Overlay{Box: box, Style: models.StyleEvidence}))
	assert.Equal(t, image.Pt(16, 94), captionOrigin(models.Overlay{Box: box, Style: models.StyleTracked}))
}

func TestAnnotatorDoesNotTouchSourceFrame(t *testing.T) {
	frame := blankFrame(64, 48)
	af := &models.AnnotatedFrame{
		Frame: frame,
		Overlays: []models.Overlay{
			{Box: models.Box{X: 5, Y: 20, W: 20, H: 20}, Text: "Unknown", Style: models.StyleEvidence},
			{Box: models.Box{X: 30, Y: 10, W: 20, H: 20}, Text: "Alice", Style: models.StyleTracked},
		},
	}

	data, err := Annotator{Quality: helpers.MediumQuality}.Encode(af, "jpg")
	require.NoError(t, err)
	assert.True(t, helpers.IsJPEGData(data))

	for _, b := range frame.Data {
		if b != 0 {
			t.Fatal("source frame was drawn on")
		}
	}

	_, err = Annotator{}.Encode(af, "bmpx")
	assert.Error(t, err)
}

func TestYuNetMissingModel(t *testing.T) {
	factory := NewYuNetFactory(YuNetConfig{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	_, err := factory(640, 480)
	assert.ErrorIs(t, err, tracking.ErrModelNotFound)
}

func TestTrackerFactoryKinds(t *testing.T) {
	for _, kind := range []string{"csrt", "KCF", "mil", ""} {
		_, err := NewTrackerFactory(kind)
		assert.NoError(t, err, kind)
	}
	_, err := NewTrackerFactory("boosting")
	assert.Error(t, err)
}

func TestDetectionRowFallback(t *testing.T) {
	det := models.Detection{Box: models.Box{X: 1, Y: 2, W: 3, H: 4}, Score: 0.95}
	det.Landmarks[0] = 7
	row := detectionRow(det)
	require.Len(t, row, yunetCols)
	assert.Equal(t, []float32{1, 2, 3, 4, 7}, row[:5])
	assert.InDelta(t, 0.95, row[14], 1e-6)
}

func TestCropRectClamps(t *testing.T) {
	r := cropRect(models.Box{X: 0, Y: 0, W: 40, H: 40}, 0.25, 45, 45)
	assert.Equal(t, image.Rect(0, 0, 45, 45), r)
}

func TestSFaceMissingModel(t *testing.T) {
	_, err := NewSFace(filepath.Join(t.TempDir(), "sface.onnx"), YuNetConfig{})
	assert.Error(t, err)
}
