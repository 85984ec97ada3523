package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxStartTime ctxKey = "start_time"
	ctxStreamID  ctxKey = "stream_id"
	ctxLocation  ctxKey = "location"
)

// taggedKeys are copied onto every handler log line when present.
var taggedKeys = []ctxKey{ctxRequestID, ctxStreamID, ctxLocation}

func withGinContext(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	if c == nil {
		return e
	}
	for _, k := range taggedKeys {
		if s := c.GetString(string(k)); s != "" {
			e.Str(string(k), s)
		}
	}
	if t := c.GetTime(string(ctxStartTime)); !t.IsZero() {
		e.Dur("duration", time.Since(t))
	}
	return e
}

func Info(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Info()) }
func Debug(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Debug()) }
func Warn(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Warn()) }
func Error(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Error()) }

// SetStreamID tags the request so handler and access logs carry the stream.
func SetStreamID(c *gin.Context, streamID string) {
	c.Set(string(ctxStreamID), streamID)
}

// SetLocation tags the request with the room a stream was resolved to.
func SetLocation(c *gin.Context, location string) {
	c.Set(string(ctxLocation), location)
}
