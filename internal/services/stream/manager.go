package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/ingest"
)

var (
	ErrStreamExists     = errors.New("stream already running")
	ErrStreamNotFound   = errors.New("stream not found")
	ErrManagerClosed    = errors.New("stream manager is shut down")
	// ErrEndpointRequired means the request named no camera and its location
	// is not in the stream history
	ErrEndpointRequired = errors.New("host or url is required")
)

const defaultRTSPPort = 554

// History remembers camera endpoints by location
type History interface {
	Get(location string) (models.HistoryEntry, error)
	Remember(e models.HistoryEntry) error
}

type Options struct {
	// Per-session settings; StreamID, Location, CameraAddress and URL are
	// filled from each request.
	Session SessionConfig

	RTSPUsername string
	RTSPPassword string

	// Used to build the display links in responses
	PublicBaseURL string
}

// Manager owns every stream session
type Manager struct {
	opts    Options
	deps    Deps
	history History
	logger  zerolog.Logger

	sessions map[string]*Session
	starting map[string]bool
	closed   bool
	mutex    sync.RWMutex

	onState func(id string, state models.StreamState)
}

// NewManager creates a stream manager. history may be nil.
func NewManager(opts Options, deps Deps, history History, logger zerolog.Logger) *Manager {
	return &Manager{
		opts:     opts,
		deps:     deps,
		history:  history,
		logger:   logger,
		sessions: make(map[string]*Session),
		starting: make(map[string]bool),
	}
}

// OnStateChange registers fn to observe every session state transition.
// fn runs under the session lock and must not call back into the manager.
func (m *Manager) OnStateChange(fn func(id string, state models.StreamState)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onState = fn
}

// StartStream starts (or restarts a stopped or failed) stream
func (m *Manager) StartStream(req *models.StreamRequest) (models.StreamResponse, error) {
	cfg, entry, err := m.resolve(req)
	if err != nil {
		return models.StreamResponse{}, err
	}

	// Claim the id, then stop the old session and start the new one without
	// the lock so pollers and listings are not held up by a slow teardown.
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return models.StreamResponse{}, ErrManagerClosed
	}
	if m.starting[req.StreamID] {
		m.mutex.Unlock()
		return models.StreamResponse{}, fmt.Errorf("%w: %s", ErrStreamExists, req.StreamID)
	}
	existing, ok := m.sessions[req.StreamID]
	if ok {
		if state, _ := existing.State(); state.IsActive() {
			m.mutex.Unlock()
			return models.StreamResponse{}, fmt.Errorf("%w: %s", ErrStreamExists, req.StreamID)
		}
		delete(m.sessions, req.StreamID)
	}
	m.starting[req.StreamID] = true
	onState := m.onState
	m.mutex.Unlock()

	if existing != nil {
		existing.Stop()
	}

	s := NewSession(cfg, m.deps, logging.WithStream(m.logger, req.StreamID, cfg.Location))
	s.onState = onState
	err = s.Start()

	m.mutex.Lock()
	delete(m.starting, req.StreamID)
	closed := m.closed
	if err == nil && !closed {
		m.sessions[req.StreamID] = s
	}
	m.mutex.Unlock()
	if err != nil {
		return models.StreamResponse{}, err
	}
	if closed {
		s.Stop()
		return models.StreamResponse{}, ErrManagerClosed
	}

	if entry != nil && m.history != nil {
		if err := m.history.Remember(*entry); err != nil {
			m.logger.Warn().Err(err).Str("location", entry.Location).Msg("Failed to save stream history")
		}
	}

	m.logger.Info().
		Str("stream_id", req.StreamID).
		Str("location", cfg.Location).
		Str("url", ingest.RedactURL(cfg.URL)).
		Msg("Stream started")

	return m.response(s), nil
}

// resolve turns a request into a session config. Without a URL the camera
// endpoint comes from host/port or, failing that, from history.
func (m *Manager) resolve(req *models.StreamRequest) (SessionConfig, *models.HistoryEntry, error) {
	cfg := m.opts.Session
	cfg.StreamID = req.StreamID
	cfg.Location = req.Location
	if cfg.Location == "" {
		cfg.Location = req.StreamID
	}

	user, pass := req.Username, req.Password
	if user == "" {
		user, pass = m.opts.RTSPUsername, m.opts.RTSPPassword
	}

	if req.URL != "" {
		cfg.URL = req.URL
		cfg.CameraAddress = req.Host
		if u, err := url.Parse(req.URL); err == nil && u.Hostname() != "" && cfg.CameraAddress == "" {
			cfg.CameraAddress = u.Hostname()
		}
		if cfg.CameraAddress == "" {
			cfg.CameraAddress = req.URL
		}
		return cfg, nil, nil
	}

	host, port := req.Host, req.Port
	if host == "" {
		if m.history == nil {
			return cfg, nil, ErrEndpointRequired
		}
		e, err := m.history.Get(cfg.Location)
		if err != nil {
			return cfg, nil, fmt.Errorf("%w: %w", ErrEndpointRequired, err)
		}
		host = e.Host
		if port == 0 {
			port = e.Port
		}
	}
	if port == 0 {
		port = defaultRTSPPort
	}

	cfg.CameraAddress = host
	cfg.URL = ingest.BuildRTSPURL(user, pass, host, port)
	return cfg, &models.HistoryEntry{Location: cfg.Location, Host: host, Port: port}, nil
}

func (m *Manager) StopStream(streamID string) error {
	m.mutex.Lock()
	s, ok := m.sessions[streamID]
	if ok {
		delete(m.sessions, streamID)
	}
	m.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	s.Stop()
	m.logger.Info().Str("stream_id", streamID).Msg("Stream stopped")
	return nil
}

func (m *Manager) GetStream(streamID string) (models.StreamResponse, error) {
	m.mutex.RLock()
	s, ok := m.sessions[streamID]
	m.mutex.RUnlock()
	if !ok {
		return models.StreamResponse{}, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	return m.response(s), nil
}

// ListStreams returns every session sorted by id
func (m *Manager) ListStreams() []models.StreamResponse {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID() < sessions[j].ID() })
	out := make([]models.StreamResponse, len(sessions))
	for i, s := range sessions {
		out[i] = m.response(s)
	}
	return out
}

func (m *Manager) StreamIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PollFrame takes the newest annotated frame of a stream. It never blocks.
func (m *Manager) PollFrame(streamID string) (*models.AnnotatedFrame, bool) {
	m.mutex.RLock()
	s, ok := m.sessions[streamID]
	m.mutex.RUnlock()
	if !ok {
		return nil, false
	}
	return s.PollFrame()
}

// RunMaintenance sweeps expired cooldown entries every interval until ctx ends
func (m *Manager) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mutex.RLock()
			for _, s := range m.sessions {
				s.Sweep()
			}
			m.mutex.RUnlock()
		}
	}
}

// Shutdown stops all sessions in parallel
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
	m.logger.Info().Int("streams", len(sessions)).Msg("All streams stopped")
}

func (m *Manager) response(s *Session) models.StreamResponse {
	r := s.Response()
	base := m.opts.PublicBaseURL
	r.MJPEGUrl = fmt.Sprintf("%s/streams/%s/mjpeg", base, url.PathEscape(s.ID()))
	r.FrameUrl = fmt.Sprintf("%s/streams/%s/frame", base, url.PathEscape(s.ID()))
	return r
}
