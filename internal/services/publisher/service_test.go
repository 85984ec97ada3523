package publisher

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/models"
)

type source struct {
	mu     sync.Mutex
	ids    []string
	frames map[string]*models.AnnotatedFrame
}

func (s *source) StreamIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func (s *source) PollFrame(id string) (*models.AnnotatedFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[id]
	delete(s.frames, id)
	return f, ok
}

type seqRenderer struct{}

func (seqRenderer) JPEG(af *models.AnnotatedFrame) ([]byte, error) {
	if af.Frame == nil {
		return nil, errors.New("no frame")
	}
	return []byte{0xFF, 0xD8, byte(af.Frame.Seq)}, nil
}

func TestTickPublishesNewestFrame(t *testing.T) {
	src := &source{ids: []string{"a", "b"}, frames: map[string]*models.AnnotatedFrame{
		"a": {Frame: &models.Frame{Seq: 7}},
	}}
	s := NewService(src, seqRenderer{}, 0, 0, zerolog.Nop())

	s.Tick()
	jpeg, ok := s.LatestJPEG("a")
	require.True(t, ok)
	assert.Equal(t, byte(7), jpeg[2])
	_, ok = s.LatestJPEG("b")
	assert.False(t, ok)

	// No new frame keeps the last image
	s.Tick()
	_, ok = s.LatestJPEG("a")
	assert.True(t, ok)
}

func TestTickForgetsStoppedStreams(t *testing.T) {
	src := &source{ids: []string{"a"}, frames: map[string]*models.AnnotatedFrame{
		"a": {Frame: &models.Frame{Seq: 1}},
	}}
	s := NewService(src, seqRenderer{}, 0, 0, zerolog.Nop())
	s.Tick()

	src.mu.Lock()
	src.ids = nil
	src.mu.Unlock()
	s.Tick()

	_, ok := s.LatestJPEG("a")
	assert.False(t, ok)
}

func TestRenderErrorSkipsFrame(t *testing.T) {
	src := &source{ids: []string{"a"}, frames: map[string]*models.AnnotatedFrame{"a": {}}}
	s := NewService(src, seqRenderer{}, 0, 0, zerolog.Nop())
	s.Tick()
	_, ok := s.LatestJPEG("a")
	assert.False(t, ok)
}
