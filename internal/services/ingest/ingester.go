// Package ingest owns the network video connection of one stream and keeps
// the most recent decoded frame available to the pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"facegate-worker-go/internal/models"
)

var ErrAlreadyRunning = errors.New("ingester already running")

// Source is an open video connection
type Source interface {
	// Read decodes the next frame. Seq and Timestamp are filled by the ingester.
	Read() (*models.Frame, error)
	Close() error
}

// Opener establishes video connections
type Opener interface {
	Open(ctx context.Context, url string) (Source, error)
}

type Options struct {
	ConnectBackoff time.Duration
	ReadBackoff    time.Duration
	StopTimeout    time.Duration
}

// Stats are cumulative counters since construction
type Stats struct {
	ConnectAttempts int64
	Connects        int64
	ReadFailures    int64
	Frames          int64
}

type Ingester struct {
	opener Opener
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	latest atomic.Pointer[models.Frame]
	seq    atomic.Uint64

	attempts     atomic.Int64
	connects     atomic.Int64
	readFailures atomic.Int64
	frames       atomic.Int64

	// Connect failures repeat every backoff forever; keep the log readable.
	warnLimiter *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func New(opener Opener, opts Options, logger zerolog.Logger) *Ingester {
	if opts.ConnectBackoff <= 0 {
		opts.ConnectBackoff = 5 * time.Second
	}
	if opts.ReadBackoff <= 0 {
		opts.ReadBackoff = time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	return &Ingester{
		opener:      opener,
		opts:        opts,
		logger:      logger.With().Str("component", "ingest").Logger(),
		warnLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start launches the acquisition loop for streamURL
func (in *Ingester) Start(streamURL string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	in.done = make(chan struct{})
	in.latest.Store(nil)
	in.running.Store(true)

	go in.loop(ctx, streamURL, in.done)

	in.logger.Info().Str("url", RedactURL(streamURL)).Msg("Stream ingester started")
	return nil
}

// ReadLatest returns the newest frame published so far. It never blocks.
// The same frame is returned until a newer one arrives; callers compare Seq.
func (in *Ingester) ReadLatest() (bool, *models.Frame) {
	f := in.latest.Load()
	return f != nil, f
}

// Stop terminates the loop and waits up to StopTimeout for it to release the
// connection. It reports whether the loop exited in time. Calling Stop on an
// ingester that never started or never connected is a no-op.
func (in *Ingester) Stop() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.running.Swap(false) {
		return true
	}
	in.cancel()

	select {
	case <-in.done:
		in.logger.Info().Msg("Stream ingester stopped")
		return true
	case <-time.After(in.opts.StopTimeout):
		in.logger.Warn().Dur("timeout", in.opts.StopTimeout).Msg("Stream ingester did not stop in time, abandoning")
		return false
	}
}

func (in *Ingester) Running() bool {
	return in.running.Load()
}

func (in *Ingester) Stats() Stats {
	return Stats{
		ConnectAttempts: in.attempts.Load(),
		Connects:        in.connects.Load(),
		ReadFailures:    in.readFailures.Load(),
		Frames:          in.frames.Load(),
	}
}

func (in *Ingester) loop(ctx context.Context, streamURL string, done chan struct{}) {
	var src Source
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error().Interface("panic", r).Msg("Ingest loop panic recovered")
		}
		if src != nil {
			_ = src.Close()
		}
		close(done)
	}()

	for ctx.Err() == nil {
		if src == nil {
			in.attempts.Add(1)
			s, err := in.opener.Open(ctx, streamURL)
			if err != nil {
				in.logConnectFailure(streamURL, err)
				if !in.sleep(ctx, in.opts.ConnectBackoff) {
					return
				}
				continue
			}
			src = s
			in.connects.Add(1)
			in.warnLimiter = rate.NewLimiter(rate.Every(30*time.Second), 1)
			in.logger.Info().Str("url", RedactURL(streamURL)).Msg("Stream connected")
			continue
		}

		frame, err := src.Read()
		if err != nil {
			in.readFailures.Add(1)
			in.logger.Warn().Err(err).Msg("Frame read failed, reconnecting")
			_ = src.Close()
			src = nil
			if !in.sleep(ctx, in.opts.ReadBackoff) {
				return
			}
			continue
		}

		frame.Seq = in.seq.Add(1)
		if frame.Timestamp.IsZero() {
			frame.Timestamp = in.now()
		}
		in.latest.Store(frame)
		in.frames.Add(1)
	}
}

func (in *Ingester) logConnectFailure(streamURL string, err error) {
	ev := in.logger.Debug()
	if in.warnLimiter.Allow() {
		ev = in.logger.Warn()
	}
	ev.Err(err).
		Str("url", RedactURL(streamURL)).
		Int64("attempt", in.attempts.Load()).
		Dur("retry_in", in.opts.ConnectBackoff).
		Msg("Stream connect failed")
}

// RedactURL masks the password of a stream URL for logging and API output
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// BuildRTSPURL composes the camera URL the way the cameras on site expect it
func BuildRTSPURL(username, password, host string, port int) string {
	u := url.URL{
		Scheme: "rtsp",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}
