package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"facegate-worker-go/internal/config"
)

// Console returns the human readable writer used before config is loaded.
func Console() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// Setup applies the configured level and, when enabled, tees every log line
// into an embedded Logdy UI. It returns the UI URL, or "" when Logdy is off.
func Setup(cfg *config.Config) string {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.LogdyEnabled {
		return ""
	}
	w, url := startLogdy(cfg.LogdyHost, cfg.LogdyPort)
	log.Logger = log.Output(io.MultiWriter(Console(), w))
	log.Info().Str("url", url).Msg("Logdy UI available")
	return url
}

type logdyWriter struct {
	logger logdy.Logdy
}

// Write forwards one JSON log line; Logdy parses it into columns.
func (w *logdyWriter) Write(p []byte) (int, error) {
	w.logger.LogString(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func startLogdy(host string, port int) (io.Writer, string) {
	portStr := strconv.Itoa(port)
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:   host,
		ServerPort: portStr,
	}, nil)
	return &logdyWriter{logger: ld}, fmt.Sprintf("http://%s:%s", host, portStr)
}
