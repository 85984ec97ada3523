package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"facegate-worker-go/internal/config"
	"facegate-worker-go/internal/db"
	"facegate-worker-go/internal/directory"
	"facegate-worker-go/internal/directory/jsonstore"
	"facegate-worker-go/internal/gallery"
	"facegate-worker-go/internal/helpers"
	"facegate-worker-go/internal/history"
	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/events"
	"facegate-worker-go/internal/services/evidence"
	"facegate-worker-go/internal/services/ingest"
	"facegate-worker-go/internal/services/messaging"
	"facegate-worker-go/internal/services/publisher"
	"facegate-worker-go/internal/services/recognition"
	"facegate-worker-go/internal/services/stream"
	"facegate-worker-go/internal/store/sqlite"
	"facegate-worker-go/internal/vision"
)

// embedder is what both recognition backends provide
type embedder interface {
	recognition.Embedder
	recognition.PhotoEncoder
}

// ServiceContainer holds all services
type ServiceContainer struct {
	Config *config.Config

	DB        *sql.DB
	DBWorker  *db.Worker
	AuditLog  *sqlite.AccessEventStore
	Directory directory.Directory
	Gallery   *gallery.Gallery
	Engine    *recognition.Engine
	Messaging *messaging.Service
	Events    *events.Hub
	Evidence  *evidence.Sink
	History   *history.File
	Streams   *stream.Manager
	Display   *publisher.Service

	jsonStore  *jsonstore.Store
	watcher    *jsonstore.Watcher
	gallerySub *nats.Subscription

	logger zerolog.Logger
	cancel context.CancelFunc
}

// NewServiceContainer creates a new service container. Optional services
// (NATS, the S3 mirror, stream history) that fail to start are logged and
// left out.
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{
		Config: cfg,
		logger: logging.NewServiceLogger(cfg, "container"),
	}
	ready := false
	defer func() {
		if !ready {
			_ = sc.Shutdown(context.Background())
		}
	}()

	var err error
	dbLogger := logging.NewServiceLogger(cfg, "db")
	sc.DB, err = db.Open(ctx, db.Config{Path: cfg.DatabasePath, Logger: &dbLogger})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sc.DBWorker = db.NewWorker(sc.DB)
	sc.AuditLog = sqlite.NewAccessEventStore(sc.DB, sc.DBWorker)

	detector := vision.YuNetConfig{
		ModelPath:      cfg.DetectorModelPath,
		ScoreThreshold: float32(cfg.DetectorScoreThreshold),
		NMSThreshold:   float32(cfg.DetectorNMSThreshold),
		TopK:           cfg.DetectorTopK,
	}

	emb, err := newEmbedder(cfg, detector)
	if err != nil {
		return nil, err
	}
	matcher, err := newMatcher(cfg)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}
	// The engine owns the embedder from here on
	sc.Engine = recognition.NewEngine(emb, matcher, cfg.MinFaceSize, logging.NewServiceLogger(cfg, "recognition"))

	sc.Gallery = gallery.New(logging.NewServiceLogger(cfg, "gallery"))
	if err := sc.openDirectory(ctx, emb); err != nil {
		return nil, err
	}
	if _, err := sc.ReloadGallery(ctx); err != nil {
		return nil, err
	}

	if cfg.NatsEnabled {
		sc.Messaging, err = messaging.NewService(cfg, logging.NewServiceLogger(cfg, "messaging"))
		if err != nil {
			sc.logger.Warn().Err(err).Msg("NATS unavailable, decisions will not be published")
			sc.Messaging = nil
		} else {
			sc.subscribeGalleryReload()
		}
	}

	var publisherIface models.MessagePublisher
	if sc.Messaging != nil {
		publisherIface = sc.Messaging
	}
	sc.Events = events.NewHub(events.Options{
		Capacity: cfg.EventLogCapacity,
		Subject:  cfg.AccessEventsSubject,
	}, sc.AuditLog, publisherIface, logging.NewServiceLogger(cfg, "events"))

	stores := []evidence.Store{evidence.LocalStore{}}
	if cfg.S3Enabled {
		s3, err := evidence.NewS3Store(ctx, evidence.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			sc.logger.Warn().Err(err).Msg("S3 mirror unavailable, evidence is written locally only")
		} else {
			stores = append(stores, s3)
		}
	}
	sc.Evidence = evidence.NewSink(vision.Annotator{Quality: helpers.HighQuality}, stores,
		cfg.EvidenceStopTimeout, logging.NewServiceLogger(cfg, "evidence"))
	sc.Evidence.Start()

	var hist stream.History
	sc.History, err = history.Open(cfg.HistoryFile)
	if err != nil {
		sc.logger.Warn().Err(err).Str("file", cfg.HistoryFile).Msg("Stream history unavailable")
		sc.History = nil
	} else {
		hist = sc.History
	}

	newTracker, err := vision.NewTrackerFactory(cfg.TrackerKind)
	if err != nil {
		return nil, err
	}

	sc.Streams = stream.NewManager(stream.Options{
		Session: stream.SessionConfig{
			DetectInterval: cfg.DetectInterval,
			Cooldown:       cfg.AccessCooldown,
			Ingest: ingest.Options{
				ConnectBackoff: cfg.ConnectBackoff,
				ReadBackoff:    cfg.ReadBackoff,
				StopTimeout:    cfg.IngestStopTimeout,
			},
			PipelineStopTimeout: cfg.PipelineStopTimeout,
			IdleWait:            cfg.PipelineIdleWait,
			EvidenceDir:         cfg.EvidenceDir,
			EvidenceExt:         cfg.EvidenceExt,
		},
		RTSPUsername:  cfg.RTSPUsername,
		RTSPPassword:  cfg.RTSPPassword,
		PublicBaseURL: cfg.PublicBaseURL,
	}, stream.Deps{
		Opener:      vision.CaptureOpener{},
		NewDetector: vision.NewYuNetFactory(detector),
		NewTracker:  newTracker,
		Recognizer:  sc.Engine,
		Gallery:     sc.Gallery,
		Policy:      sc.Directory,
		Events:      sc.Events,
		Evidence:    sc.Evidence,
	}, hist, logging.NewServiceLogger(cfg, "streams"))

	sc.Display = publisher.NewService(sc.Streams, vision.Annotator{Quality: cfg.MJPEGQuality},
		cfg.DisplayRefresh, cfg.MJPEGQuality, logging.NewServiceLogger(cfg, "display"))

	ready = true
	return sc, nil
}

func newEmbedder(cfg *config.Config, detector vision.YuNetConfig) (embedder, error) {
	switch cfg.EmbedderBackend {
	case "sface", "":
		return vision.NewSFace(cfg.SFaceModelPath, detector)
	case "dlib":
		return vision.NewDlib(cfg.DlibModelsDir)
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", cfg.EmbedderBackend)
	}
}

func newMatcher(cfg *config.Config) (recognition.Matcher, error) {
	metric, err := recognition.ParseMetric(cfg.MatchMetric)
	if err != nil {
		return recognition.Matcher{}, err
	}
	policy, err := recognition.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		return recognition.Matcher{}, err
	}
	return recognition.Matcher{Metric: metric, Tolerance: cfg.MatchTolerance, Policy: policy}, nil
}

func (sc *ServiceContainer) openDirectory(ctx context.Context, encoder jsonstore.PhotoEncoder) error {
	cfg := sc.Config
	switch cfg.DirectoryBackend {
	case "json", "":
		store, err := jsonstore.Open(ctx, cfg.DirectoryDir, encoder, logging.NewServiceLogger(cfg, "directory"))
		if err != nil {
			return fmt.Errorf("open json directory %s: %w", cfg.DirectoryDir, err)
		}
		sc.jsonStore = store
		sc.Directory = store

		if cfg.DirectoryWatch {
			w, err := jsonstore.NewWatcher(store, cfg.DirectoryWatchDebounce, sc.onDirectoryChanged, sc.logger)
			if err != nil {
				return fmt.Errorf("create directory watcher: %w", err)
			}
			if err := w.Watch(); err != nil {
				_ = w.Close()
				return fmt.Errorf("watch directory %s: %w", cfg.DirectoryDir, err)
			}
			sc.watcher = w
		}
	case "sqlite":
		sc.Directory = sqlite.NewDirectoryStore(sc.DB, sc.DBWorker)
	default:
		return fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
	}
	sc.logger.Info().Str("backend", cfg.DirectoryBackend).Msg("Directory opened")
	return nil
}

// onDirectoryChanged runs after the watcher reloaded the JSON files
func (sc *ServiceContainer) onDirectoryChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := sc.Gallery.Reload(ctx, sc.Directory); err != nil {
		sc.logger.Error().Err(err).Msg("Gallery reload after directory change failed")
	}
}

// ReloadGallery re-reads the directory and swaps in a new gallery. Streams
// pick it up on their next detection cycle.
func (sc *ServiceContainer) ReloadGallery(ctx context.Context) (*gallery.Snapshot, error) {
	if sc.jsonStore != nil {
		if err := sc.jsonStore.Reload(ctx); err != nil {
			return sc.Gallery.Snapshot(), fmt.Errorf("reload directory: %w", err)
		}
	}
	return sc.Gallery.Reload(ctx, sc.Directory)
}

func (sc *ServiceContainer) subscribeGalleryReload() {
	sub, err := sc.Messaging.OnGalleryReload(func(messaging.ReloadRequest) (int, uint64, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		snap, err := sc.ReloadGallery(ctx)
		if snap == nil {
			return 0, 0, err
		}
		return snap.Len(), snap.Version, err
	})
	if err != nil {
		sc.logger.Warn().Err(err).Str("subject", sc.Config.GalleryReloadSubject).Msg("Cannot subscribe to gallery reloads")
		return
	}
	sc.gallerySub = sub
}

// Run starts the background loops: the display tick and the cooldown sweep.
func (sc *ServiceContainer) Run(ctx context.Context) {
	ctx, sc.cancel = context.WithCancel(ctx)
	go sc.Display.Run(ctx)
	go sc.Streams.RunMaintenance(ctx, sc.Config.AccessCooldown)
}

// Healthy reports optional dependencies for the health endpoint
func (sc *ServiceContainer) Healthy() map[string]func() bool {
	checks := map[string]func() bool{
		"database": func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return sc.DB.PingContext(ctx) == nil
		},
	}
	if sc.Config.NatsEnabled {
		checks["nats"] = func() bool { return sc.Messaging != nil && sc.Messaging.IsConnected() }
	}
	return checks
}

// Stats gathers component counters for the stats endpoint
func (sc *ServiceContainer) Stats() map[string]interface{} {
	snap := sc.Gallery.Snapshot()
	stats := map[string]interface{}{
		"streams":          len(sc.Streams.StreamIDs()),
		"gallery_version":  snap.Version,
		"gallery_size":     snap.Len(),
		"events":           sc.Events.Stats(),
		"evidence":         sc.Evidence.Stats(),
		"directory_source": sc.Config.DirectoryBackend,
	}
	if sc.Messaging != nil {
		stats["nats"] = sc.Messaging.Stats()
	}
	return stats
}

// Shutdown gracefully shuts down all services. Streams stop first so nothing
// submits evidence or events after their consumers are gone.
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	if sc.Streams != nil {
		sc.Streams.Shutdown()
	}
	if sc.cancel != nil {
		sc.cancel()
	}
	if sc.Display != nil {
		sc.Display.Shutdown()
	}
	if sc.Evidence != nil && !sc.Evidence.Stop() {
		sc.logger.Warn().Msg("Evidence writer did not finish before timeout")
	}
	if sc.gallerySub != nil {
		_ = sc.gallerySub.Unsubscribe()
	}
	if sc.Events != nil {
		sc.Events.Close(sc.Config.EvidenceStopTimeout)
	}
	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			sc.logger.Warn().Err(err).Msg("NATS shutdown failed")
		}
	}
	if sc.watcher != nil {
		_ = sc.watcher.Close()
	}
	if sc.Engine != nil {
		_ = sc.Engine.Close()
	}
	if sc.DBWorker != nil {
		sc.DBWorker.Close()
	}
	if sc.DB != nil {
		return sc.DB.Close()
	}
	return nil
}
