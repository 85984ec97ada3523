package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"facegate-worker-go/internal/config"
)

// NewServiceLogger tags a component logger with the worker it runs in.
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

// WithStream scopes a logger to one camera stream. Location is omitted when
// the stream was started from a bare address.
func WithStream(base zerolog.Logger, streamID, location string) zerolog.Logger {
	c := base.With().Str("stream_id", streamID)
	if location != "" {
		c = c.Str("location", location)
	}
	return c.Logger()
}
