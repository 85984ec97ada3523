package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"facegate-worker-go/internal/config"
)

func TestNewServiceUnreachable(t *testing.T) {
	cfg := &config.Config{
		WorkerID:           "gate-1",
		NatsURL:            "nats://127.0.0.1:1",
		NatsConnectTimeout: 200 * time.Millisecond,
		NatsReconnectWait:  10 * time.Millisecond,
		NatsMaxReconnects:  0,
		NatsDrainTimeout:   100 * time.Millisecond,
	}

	svc, err := NewService(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, svc)
}

func TestZeroServiceIsDisconnected(t *testing.T) {
	var s Service

	assert.False(t, s.IsConnected())
	assert.Equal(t, map[string]interface{}{
		"connected": false,
		"published": uint64(0),
		"failed":    uint64(0),
	}, s.Stats())
	assert.NoError(t, s.Shutdown(context.Background()))
}
