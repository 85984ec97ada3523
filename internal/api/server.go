package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"facegate-worker-go/internal/api/handlers"
	"facegate-worker-go/internal/api/middleware"
	"facegate-worker-go/internal/config"
)

// Dependencies are the services the HTTP API exposes. EventHistory and
// History may be nil.
type Dependencies struct {
	Streams       handlers.StreamManager
	Viewer        handlers.FrameViewer
	Events        handlers.EventSource
	EventHistory  handlers.EventHistory
	Gallery       handlers.GalleryReader
	ReloadGallery handlers.ReloadFunc
	Directory     handlers.DirectoryReader
	History       handlers.HistoryReader
	Checks        map[string]handlers.Check
	Stats         handlers.StatsFunc
}

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler    *handlers.HealthHandler
	streamHandler    *handlers.StreamHandler
	eventHandler     *handlers.EventHandler
	galleryHandler   *handlers.GalleryHandler
	directoryHandler *handlers.DirectoryHandler
	systemHandler    *handlers.SystemHandler
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:           cfg,
		router:           gin.New(),
		healthHandler:    handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, deps.Checks),
		streamHandler:    handlers.NewStreamHandler(deps.Streams, deps.Viewer),
		eventHandler:     handlers.NewEventHandler(deps.Events, deps.EventHistory),
		galleryHandler:   handlers.NewGalleryHandler(deps.Gallery, deps.ReloadGallery),
		directoryHandler: handlers.NewDirectoryHandler(deps.Directory, deps.History),
		systemHandler:    handlers.NewSystemHandler(cfg.WorkerID, deps.Stats),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting facegate worker API")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping facegate worker API")
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}
