package logging

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/config"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestWithStreamAddsLocation(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l1 := WithStream(base, "cam-1", "lobby")
	l1.Info().Msg("hi")
	line := decode(t, &buf)
	assert.Equal(t, "cam-1", line["stream_id"])
	assert.Equal(t, "lobby", line["location"])

	buf.Reset()
	l2 := WithStream(base, "cam-2", "")
	l2.Info().Msg("hi")
	line = decode(t, &buf)
	assert.Equal(t, "cam-2", line["stream_id"])
	assert.NotContains(t, line, "location")
}

func TestGinEventsCarryRequestFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(string(ctxRequestID), "req-42")
	c.Set(string(ctxStartTime), time.Now())
	SetStreamID(c, "cam-9")
	SetLocation(c, "lab")

	Info(c).Msg("done")
	line := decode(t, &buf)
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "cam-9", line["stream_id"])
	assert.Equal(t, "lab", line["location"])
	assert.Contains(t, line, "duration")

	buf.Reset()
	Warn(nil).Msg("no context")
	assert.NotContains(t, decode(t, &buf), "request_id")
}

func TestSetupFallsBackToInfo(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	assert.Empty(t, Setup(&config.Config{LogLevel: "chatty"}))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Setup(&config.Config{LogLevel: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
