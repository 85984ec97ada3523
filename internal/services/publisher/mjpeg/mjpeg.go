package mjpeg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"facegate-worker-go/internal/helpers"
)

// Publisher keeps the latest rendered JPEG per stream and pushes it to any
// number of multipart viewers.
type Publisher struct {
	quality int
	logger  zerolog.Logger

	jpegMutex  sync.RWMutex
	latestJPEG map[string][]byte

	notifyMutex sync.RWMutex
	viewers     map[string]map[chan struct{}]struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

func NewPublisher(quality int, logger zerolog.Logger) *Publisher {
	if quality <= 0 {
		quality = helpers.MediumQuality
	}
	return &Publisher{
		quality:    quality,
		logger:     logger.With().Str("component", "mjpeg").Logger(),
		latestJPEG: make(map[string][]byte),
		viewers:    make(map[string]map[chan struct{}]struct{}),
		closed:     make(chan struct{}),
	}
}

// PublishJPEG replaces the latest image of a stream and wakes its viewers
func (p *Publisher) PublishJPEG(streamID string, jpeg []byte) {
	p.jpegMutex.Lock()
	p.latestJPEG[streamID] = jpeg
	p.jpegMutex.Unlock()

	p.notifyStreamers(streamID)
}

// LatestJPEG returns the last published image of a stream
func (p *Publisher) LatestJPEG(streamID string) ([]byte, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	b, ok := p.latestJPEG[streamID]
	return b, ok && len(b) > 0
}

// Forget drops the stored image of a stopped stream
func (p *Publisher) Forget(streamID string) {
	p.jpegMutex.Lock()
	delete(p.latestJPEG, streamID)
	p.jpegMutex.Unlock()
}

func (p *Publisher) notifyStreamers(streamID string) {
	p.notifyMutex.RLock()
	defer p.notifyMutex.RUnlock()

	for notify := range p.viewers[streamID] {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) addViewer(streamID string) chan struct{} {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	notify := make(chan struct{}, 1)
	set, exists := p.viewers[streamID]
	if !exists {
		set = make(map[chan struct{}]struct{})
		p.viewers[streamID] = set
	}
	set[notify] = struct{}{}
	return notify
}

func (p *Publisher) removeViewer(streamID string, notify chan struct{}) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	if set, exists := p.viewers[streamID]; exists {
		delete(set, notify)
		if len(set) == 0 {
			delete(p.viewers, streamID)
		}
	}
}

func (p *Publisher) Viewers(streamID string) int {
	p.notifyMutex.RLock()
	defer p.notifyMutex.RUnlock()
	return len(p.viewers[streamID])
}

func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, streamID string) {
	boundary := "frame"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.addViewer(streamID)
	defer p.removeViewer(streamID, notify)

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, ok := p.LatestJPEG(streamID)
	if !ok {
		first = p.placeholder(streamID)
	}
	if len(first) > 0 {
		if !writePart(first) {
			return
		}
	}

	keepaliveTicker := time.NewTicker(2 * time.Second)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}
		if buf, ok := p.LatestJPEG(streamID); ok {
			if !writePart(buf) {
				return
			}
		}
	}
}

// placeholder is shown until the first frame of a stream arrives
func (p *Publisher) placeholder(streamID string) []byte {
	img := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	img.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&img, fmt.Sprintf("Stream: %s", streamID),
		image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, textColor, 2)
	gocv.PutText(&img, "Connecting...",
		image.Pt(20, 220), gocv.FontHersheySimplex, 0.8, textColor, 2)

	b, err := helpers.EncodeMat(img, "jpg", p.quality)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Failed to render placeholder")
		return nil
	}
	return b
}

// Shutdown ends every open viewer connection
func (p *Publisher) Shutdown() {
	p.closeOnce.Do(func() {
		p.logger.Info().Msg("MJPEG Publisher shutting down")
		close(p.closed)
	})
}
