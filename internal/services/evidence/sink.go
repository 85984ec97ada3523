// Package evidence persists annotated frames of access decisions without
// blocking the pipeline that produces them.
package evidence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/models"
)

// Encoder renders overlays onto the frame and encodes it by file extension
type Encoder interface {
	Encode(af *models.AnnotatedFrame, ext string) ([]byte, error)
}

// Store writes an encoded evidence file and returns the path it used,
// which differs from path when the store had to avoid a collision.
type Store interface {
	Name() string
	Put(ctx context.Context, path string, data []byte) (string, error)
}

type job struct {
	path  string
	frame *models.AnnotatedFrame
}

type Stats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

type Sink struct {
	encoder     Encoder
	stores      []Store
	stopTimeout time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	queue   []job
	started bool
	stopped bool

	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewSink(encoder Encoder, stores []Store, stopTimeout time.Duration, logger zerolog.Logger) *Sink {
	if stopTimeout <= 0 {
		stopTimeout = 2 * time.Second
	}
	return &Sink{
		encoder:     encoder,
		stores:      stores,
		stopTimeout: stopTimeout,
		logger:      logger.With().Str("component", "evidence").Logger(),
		signal:      make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the write worker. The sink accepts submissions before Start;
// they are written once the worker runs.
func (s *Sink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.worker()
}

// Submit queues an evidence write. It never blocks; after Stop it silently
// drops the submission and returns false.
func (s *Sink) Submit(path string, frame *models.AnnotatedFrame) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.dropped.Add(1)
		return false
	}
	s.queue = append(s.queue, job{path: path, frame: frame})
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

// Stop refuses new submissions, lets the worker drain what is queued and
// waits up to the stop timeout. It reports whether the worker finished.
func (s *Sink) Stop() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return true
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.quit)
	if !started {
		return true
	}

	select {
	case <-s.done:
		return true
	case <-time.After(s.stopTimeout):
		s.mu.Lock()
		left := len(s.queue)
		s.mu.Unlock()
		s.logger.Warn().Int("pending", left).Dur("timeout", s.stopTimeout).Msg("Evidence writer did not drain in time, abandoning")
		return false
	}
}

func (s *Sink) Stats() Stats {
	s.mu.Lock()
	queued := len(s.queue)
	s.mu.Unlock()
	return Stats{
		Queued:  queued,
		Written: s.written.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

func (s *Sink) worker() {
	defer close(s.done)

	for {
		select {
		case <-s.signal:
			s.drain()
		case <-s.quit:
			s.drain()
			return
		}
	}
}

func (s *Sink) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue[0] = job{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.write(j)
	}
}

func (s *Sink) write(j job) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.logger.Error().Interface("panic", r).Str("path", j.path).Msg("Evidence write panic recovered")
		}
	}()

	ext := strings.TrimPrefix(filepath.Ext(j.path), ".")
	data, err := s.encoder.Encode(j.frame, ext)
	if err != nil {
		s.failed.Add(1)
		s.logger.Error().Err(err).Str("path", j.path).Msg("Failed to encode evidence frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Mirrors reuse the name the primary store settled on
	dest := j.path
	ok := true
	for i, st := range s.stores {
		written, err := st.Put(ctx, dest, data)
		if err != nil {
			s.logger.Error().Err(err).Str("store", st.Name()).Str("path", dest).Msg("Failed to write evidence")
			if i == 0 {
				ok = false
			}
			continue
		}
		if i == 0 {
			dest = written
		}
	}
	if !ok {
		s.failed.Add(1)
		return
	}
	s.written.Add(1)
	s.logger.Debug().Str("path", dest).Int("bytes", len(data)).Msg("Evidence saved")
}

var sanitizer = strings.NewReplacer(" ", "_", ":", "-", "(", "", ")", "", "/", "_", "\\", "_")

// SanitizeLabel makes a label safe to use in a file name
func SanitizeLabel(label string) string {
	return sanitizer.Replace(label)
}

// Filename builds {dir}/{2006-01-02_15-04-05}_{label}.{ext}
func Filename(dir string, ts time.Time, label, ext string) string {
	name := fmt.Sprintf("%s_%s.%s", ts.Format("2006-01-02_15-04-05"), SanitizeLabel(label), strings.TrimPrefix(ext, "."))
	return filepath.Join(dir, name)
}
