package helpers

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"facegate-worker-go/internal/models"
)

// JPEG quality settings
const (
	HighQuality   = 95
	MediumQuality = 80
	LowQuality    = 50
)

// IsJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func IsJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}

// FileExt maps an evidence extension ("jpg", ".png") to the gocv encoder
func FileExt(ext string) (gocv.FileExt, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return gocv.JPEGFileExt, nil
	case "png":
		return gocv.PNGFileExt, nil
	case "gif":
		return gocv.GIFFileExt, nil
	default:
		return "", fmt.Errorf("unsupported image extension %q", ext)
	}
}

// FrameToMat wraps BGR frame bytes in a Mat. The caller must Close it.
func FrameToMat(frame *models.Frame) (gocv.Mat, error) {
	if frame == nil || len(frame.Data) == 0 {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}
	if frame.Width*frame.Height*3 != len(frame.Data) {
		return gocv.NewMat(), fmt.Errorf("frame is %dx%d but carries %d bytes", frame.Width, frame.Height, len(frame.Data))
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from BGR data: %w", err)
	}
	return mat, nil
}

// MatToFrame copies a BGR Mat into a new frame
func MatToFrame(mat gocv.Mat) (*models.Frame, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	if mat.Channels() != 3 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(mat, &bgr, gocv.ColorGrayToBGR)
		mat = bgr
	}
	return &models.Frame{
		Width:  mat.Cols(),
		Height: mat.Rows(),
		Data:   mat.ToBytes(),
	}, nil
}

// EncodeMat encodes an image by extension. quality applies to JPEG only.
func EncodeMat(mat gocv.Mat, ext string, quality int) ([]byte, error) {
	fileExt, err := FileExt(ext)
	if err != nil {
		return nil, err
	}

	var buf *gocv.NativeByteBuffer
	if fileExt == gocv.JPEGFileExt && quality > 0 {
		buf, err = gocv.IMEncodeWithParams(fileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	} else {
		buf, err = gocv.IMEncode(fileExt, mat)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ext, err)
	}
	defer buf.Close()

	// GetBytes points into C memory that Close releases
	return append([]byte(nil), buf.GetBytes()...), nil
}

// FrameToJPEG encodes a BGR frame as JPEG. Frame data is always raw pixels,
// even when the first bytes happen to look like a JPEG header.
func FrameToJPEG(frame *models.Frame, quality int) ([]byte, error) {
	mat, err := FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return EncodeMat(mat, "jpg", quality)
}
