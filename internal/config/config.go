package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	GRPCPort    int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// NATS (decision events fan-out)
	// Default: nats://localhost:4222 (works with Docker Compose setup)
	NatsEnabled          bool
	NatsURL              string
	NatsConnectTimeout   time.Duration
	NatsReconnectWait    time.Duration
	NatsMaxReconnects    int
	NatsDrainTimeout     time.Duration
	AccessEventsSubject  string
	GalleryReloadSubject string

	// Identity / room / camera / rule directory
	DirectoryBackend       string // "json" or "sqlite"
	DirectoryDir           string
	DatabasePath           string
	DirectoryWatch         bool
	DirectoryWatchDebounce time.Duration

	// Face detection
	DetectorModelPath      string
	DetectorScoreThreshold float64
	DetectorNMSThreshold   float64
	DetectorTopK           int
	DetectInterval         int // Run full detection every Nth frame, track in between
	TrackerKind            string

	// Recognition
	EmbedderBackend string // "sface" or "dlib"
	SFaceModelPath  string
	DlibModelsDir   string
	MinFaceSize     int
	MatchMetric     string // "euclidean" or "cosine"
	MatchTolerance  float64
	MatchPolicy     string // "first" or "closest"

	// Access evaluation
	AccessCooldown time.Duration

	// Streaming
	RTSPUsername        string
	RTSPPassword        string
	ConnectBackoff      time.Duration
	ReadBackoff         time.Duration
	IngestStopTimeout   time.Duration
	PipelineStopTimeout time.Duration
	PipelineIdleWait    time.Duration

	// Evidence
	EvidenceDir         string
	EvidenceExt         string
	EvidenceStopTimeout time.Duration

	// S3 mirror for evidence
	S3Enabled   bool
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Display
	PublicBaseURL    string
	DisplayRefresh   time.Duration
	MJPEGQuality     int
	EventLogCapacity int

	// Stream history (location -> host/port)
	HistoryFile string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	port := getEnvInt("PORT", 8000)
	embedder := getEnv("EMBEDDER_BACKEND", "sface")
	// dlib descriptors are compared by euclidean distance, SFace features by cosine
	metric, tolerance := "cosine", 0.637
	if embedder == "dlib" {
		metric, tolerance = "euclidean", 0.5
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "gate-1"),
		Port:        port,
		GRPCPort:    getEnvInt("GRPC_PORT", 50051),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// NATS
		NatsEnabled:          getEnvBool("NATS_ENABLED", false),
		NatsURL:              getNatsURL(),
		NatsConnectTimeout:   getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:    getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:    getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited
		NatsDrainTimeout:     getEnvDuration("NATS_DRAIN_TIMEOUT", 5*time.Second),
		AccessEventsSubject:  getEnv("ACCESS_EVENTS_SUBJECT", "access.events"),
		GalleryReloadSubject: getEnv("GALLERY_RELOAD_SUBJECT", "facegate.gallery.reload"),

		// Directory
		DirectoryBackend:       getEnv("DIRECTORY_BACKEND", "json"),
		DirectoryDir:           getEnv("DIRECTORY_DIR", "."),
		DatabasePath:           getEnv("DATABASE_PATH", "./data/facegate.db"),
		DirectoryWatch:         getEnvBool("DIRECTORY_WATCH", true),
		DirectoryWatchDebounce: getEnvDuration("DIRECTORY_WATCH_DEBOUNCE", 500*time.Millisecond),

		// Face detection
		DetectorModelPath:      getEnv("DETECTOR_MODEL_PATH", "face_detection_yunet_2023mar.onnx"),
		DetectorScoreThreshold: getEnvFloat("DETECTOR_SCORE_THRESHOLD", 0.9),
		DetectorNMSThreshold:   getEnvFloat("DETECTOR_NMS_THRESHOLD", 0.3),
		DetectorTopK:           getEnvInt("DETECTOR_TOP_K", 5000),
		DetectInterval:         getEnvInt("DETECT_INTERVAL", 15),
		TrackerKind:            getEnv("TRACKER_KIND", "csrt"),

		// Recognition
		EmbedderBackend: embedder,
		SFaceModelPath:  getEnv("SFACE_MODEL_PATH", "face_recognition_sface_2021dec.onnx"),
		DlibModelsDir:   getEnv("DLIB_MODELS_DIR", "models"),
		MinFaceSize:     getEnvInt("MIN_FACE_SIZE", 20),
		MatchMetric:     getEnv("MATCH_METRIC", metric),
		MatchTolerance:  getEnvFloat("MATCH_TOLERANCE", tolerance),
		MatchPolicy:     getEnv("MATCH_POLICY", "first"),

		// Access evaluation
		AccessCooldown: getEnvDuration("ACCESS_COOLDOWN", 30*time.Second),

		// Streaming
		RTSPUsername:        getEnv("RTSP_USERNAME", "admin"),
		RTSPPassword:        getEnv("RTSP_PASSWORD", "admin"),
		ConnectBackoff:      getEnvDuration("CONNECT_BACKOFF", 5*time.Second),
		ReadBackoff:         getEnvDuration("READ_BACKOFF", 1*time.Second),
		IngestStopTimeout:   getEnvDuration("INGEST_STOP_TIMEOUT", 2*time.Second),
		PipelineStopTimeout: getEnvDuration("PIPELINE_STOP_TIMEOUT", 1*time.Second),
		PipelineIdleWait:    getEnvDuration("PIPELINE_IDLE_WAIT", 10*time.Millisecond),

		// Evidence
		EvidenceDir:         getEnv("EVIDENCE_DIR", "detected_faces"),
		EvidenceExt:         getEnv("EVIDENCE_EXT", "jpg"),
		EvidenceStopTimeout: getEnvDuration("EVIDENCE_STOP_TIMEOUT", 2*time.Second),

		// S3 mirror
		S3Enabled:   getEnvBool("S3_ENABLED", false),
		S3Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "evidence"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),

		// Display
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		DisplayRefresh:   getEnvDuration("DISPLAY_REFRESH", 33*time.Millisecond),
		MJPEGQuality:     getEnvInt("MJPEG_QUALITY", 80),
		EventLogCapacity: getEnvInt("EVENT_LOG_CAPACITY", 1000),

		HistoryFile: getEnv("HISTORY_FILE", "camera_history.toml"),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the appropriate NATS URL based on environment
func getNatsURL() string {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		return envURL
	}

	// If running in Docker, use service name; otherwise use localhost
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
