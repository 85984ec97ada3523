package mjpeg

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWritesLatestAndUpdates(t *testing.T) {
	p := NewPublisher(0, zerolog.Nop())
	p.PublishJPEG("cam", []byte{0xFF, 0xD8, 1})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/streams/cam/mjpeg", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.StreamMJPEGHTTP(rec, req, "cam")
	}()

	require.Eventually(t, func() bool { return p.Viewers("cam") == 1 }, time.Second, 5*time.Millisecond)
	p.PublishJPEG("cam", []byte{0xFF, 0xD8, 2})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, p.Viewers("cam"))
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 3\r\n\r\n")
}

func TestForget(t *testing.T) {
	p := NewPublisher(0, zerolog.Nop())
	p.PublishJPEG("cam", []byte{0xFF, 0xD8})
	p.Forget("cam")
	_, ok := p.LatestJPEG("cam")
	assert.False(t, ok)
}

func TestShutdownEndsViewers(t *testing.T) {
	p := NewPublisher(0, zerolog.Nop())
	p.PublishJPEG("cam", []byte{0xFF, 0xD8})

	req := httptest.NewRequest("GET", "/streams/cam/mjpeg", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.StreamMJPEGHTTP(rec, req, "cam")
	}()

	require.Eventually(t, func() bool { return p.Viewers("cam") == 1 }, time.Second, 5*time.Millisecond)
	p.Shutdown()
	p.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("viewer still connected after shutdown")
	}
}
