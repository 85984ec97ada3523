package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/models"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Annotator draws overlays onto a copy of a frame and encodes the result.
// It serves as the evidence encoder and the display renderer.
type Annotator struct {
	// JPEG quality, 0 means encoder default
	Quality int
}

// Encode renders af and encodes it by file extension
func (a Annotator) Encode(af *models.AnnotatedFrame, ext string) ([]byte, error) {
	mat, err := a.render(af)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return helpers.EncodeMat(mat, ext, a.Quality)
}

// JPEG renders af for display
func (a Annotator) JPEG(af *models.AnnotatedFrame) ([]byte, error) {
	if len(af.Overlays) == 0 {
		return helpers.FrameToJPEG(af.Frame, a.Quality)
	}
	return a.Encode(af, "jpg")
}

func (a Annotator) render(af *models.AnnotatedFrame) (gocv.Mat, error) {
	src, err := helpers.FrameToMat(af.Frame)
	if err != nil {
		return src, err
	}
	// The frame is shared with other readers, draw on a copy
	mat := src.Clone()
	src.Close()

	for _, o := range af.Overlays {
		drawOverlay(&mat, o)
	}
	return mat, nil
}

func drawOverlay(mat *gocv.Mat, o models.Overlay) {
	rect := toRect(o.Box)
	switch o.Style {
	case models.StyleEvidence:
		gocv.Rectangle(mat, rect, red, 2)
		gocv.PutText(mat, o.Text, captionOrigin(o), gocv.FontHersheySimplex, 0.9, red, 2)
	default:
		gocv.Rectangle(mat, rect, green, 2)
		gocv.PutText(mat, o.Text, captionOrigin(o), gocv.FontHersheySimplex, 0.5, white, 1)
	}
}

// captionOrigin places evidence captions above the box and tracked captions
// inside its bottom-left corner.
func captionOrigin(o models.Overlay) image.Point {
	if o.Style == models.StyleEvidence {
		return image.Pt(o.Box.X, o.Box.Y-10)
	}
	return image.Pt(o.Box.X+6, o.Box.Y+o.Box.H-6)
}
