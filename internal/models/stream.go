package models

import (
	"time"
)

// StreamState represents the lifecycle state of a monitored stream
type StreamState string

const (
	StreamStateStarting StreamState = "starting"
	StreamStateRunning  StreamState = "running"
	StreamStateStopping StreamState = "stopping"
	StreamStateStopped  StreamState = "stopped"
	StreamStateFailed   StreamState = "failed"
)

// String returns the string representation of StreamState
func (s StreamState) String() string {
	return string(s)
}

// IsActive reports whether the stream still owns goroutines
func (s StreamState) IsActive() bool {
	return s == StreamStateStarting || s == StreamStateRunning
}

// Frame is a decoded BGR24 image published by the ingester.
// It must not be mutated once published.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte // BGR24, Width*Height*3 bytes
}

// Clone returns a deep copy safe to draw on
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// StreamRequest for API
type StreamRequest struct {
	StreamID string `json:"stream_id" binding:"required"`
	Location string `json:"location"`           // Operator-facing location name, defaults to stream_id
	Host     string `json:"host,omitempty"`     // Camera host, looked up in history when omitted
	Port     int    `json:"port,omitempty"`     // Camera RTSP port, looked up in history when omitted
	URL      string `json:"url,omitempty"`      // Full stream URL, overrides host/port
	Username string `json:"username,omitempty"` // Optional, defaults to config
	Password string `json:"password,omitempty"` // Optional, defaults to config
}

// StreamStats holds ingest and pipeline counters
type StreamStats struct {
	ConnectAttempts int64 `json:"connect_attempts"`
	Connects        int64 `json:"connects"`
	ReadFailures    int64 `json:"read_failures"`
	FramesRead      int64 `json:"frames_read"`
	FramesProcessed int64 `json:"frames_processed"`
	DetectCycles    int64 `json:"detect_cycles"`
	Events          int64 `json:"events"`
	RelayDrops      int64 `json:"relay_drops"`
}

// StreamResponse for API
type StreamResponse struct {
	StreamID      string      `json:"stream_id"`
	Location      string      `json:"location"`
	CameraAddress string      `json:"camera_address"`
	URL           string      `json:"url"` // Credentials are masked
	State         StreamState `json:"state"`
	LastError     string      `json:"last_error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	Stats         StreamStats `json:"stats"`
	MJPEGUrl      string      `json:"mjpeg_url"`
	FrameUrl      string      `json:"frame_url"`
}

// HistoryEntry is a remembered camera endpoint for a location
type HistoryEntry struct {
	Location string `json:"location" toml:"-"`
	Host     string `json:"host" toml:"host"`
	Port     int    `json:"port" toml:"port"`
}
