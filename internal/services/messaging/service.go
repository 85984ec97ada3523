package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"facegate-worker-go/internal/config"
)

// ReloadRequest is the optional payload of a gallery reload message.
type ReloadRequest struct {
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// ReloadReply is sent back when the reload message carries a reply subject.
type ReloadReply struct {
	WorkerID   string `json:"worker_id"`
	Identities int    `json:"identities"`
	Version    uint64 `json:"version"`
	Error      string `json:"error,omitempty"`
}

// ReloadFunc rebuilds the gallery and reports its new size and version.
type ReloadFunc func(req ReloadRequest) (identities int, version uint64, err error)

// Service carries access decisions to the bus and listens for reload requests.
type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	logger zerolog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	opts := []nats.Option{
		nats.Name("facegate-worker-" + cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DrainTimeout(cfg.NatsDrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected, decisions are buffered until reconnect")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.NatsURL, err)
	}

	logger.Info().
		Str("url", cfg.NatsURL).
		Str("events_subject", cfg.AccessEventsSubject).
		Msg("NATS connection established")

	return &Service{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Publish marshals data as JSON onto subject. Failures are counted.
func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := s.conn.Publish(subject, payload); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	s.published.Add(1)
	return nil
}

// OnGalleryReload subscribes reload to the gallery reload subject. An empty
// or malformed body is treated as a bare reload. When the sender used
// request/reply the outcome is answered on the reply subject.
func (s *Service) OnGalleryReload(reload ReloadFunc) (*nats.Subscription, error) {
	subject := s.cfg.GalleryReloadSubject
	return s.conn.Subscribe(subject, func(msg *nats.Msg) {
		var req ReloadRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.logger.Debug().Err(err).Str("subject", subject).Msg("Ignoring malformed reload payload")
			}
		}

		identities, version, err := reload(req)
		reply := ReloadReply{WorkerID: s.cfg.WorkerID, Identities: identities, Version: version}
		if err != nil {
			reply.Error = err.Error()
			s.logger.Error().Err(err).Str("reason", req.Reason).Msg("Gallery reload requested over NATS failed")
		} else {
			s.logger.Info().
				Str("reason", req.Reason).
				Str("requested_by", req.RequestedBy).
				Int("identities", identities).
				Msg("Gallery reloaded on request")
		}

		if msg.Reply == "" {
			return
		}
		payload, _ := json.Marshal(reply)
		if err := msg.Respond(payload); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to answer reload request")
		}
	})
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Stats reports publish counters for the system stats endpoint.
func (s *Service) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connected": s.IsConnected(),
		"published": s.published.Load(),
		"failed":    s.failed.Load(),
	}
}

// Shutdown drains the connection, closing it outright if ctx ends first.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	closed := make(chan struct{})
	s.conn.SetClosedHandler(func(*nats.Conn) { close(closed) })
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}
	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		s.conn.Close()
		return ctx.Err()
	}
}
