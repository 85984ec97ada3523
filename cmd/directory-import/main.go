// Command directory-import copies the JSON directory (users, rooms, cameras,
// access rules and reference photos) into the worker's SQLite database.
// Photo embeddings are computed once here so the sqlite backend starts
// without touching the photos.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"facegate-worker-go/internal/config"
	"facegate-worker-go/internal/db"
	"facegate-worker-go/internal/directory/jsonstore"
	"facegate-worker-go/internal/store/sqlite"
	"facegate-worker-go/internal/vision"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()

	dir := flag.String("dir", cfg.DirectoryDir, "directory holding users.json, rooms.json, cameras.json, access_rules.json and user_photos/")
	dbPath := flag.String("db", cfg.DatabasePath, "sqlite database to write")
	backend := flag.String("embedder", cfg.EmbedderBackend, "embedding backend: sface or dlib")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall import timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var encoder jsonstore.PhotoEncoder
	switch *backend {
	case "sface":
		s, err := vision.NewSFace(cfg.SFaceModelPath, vision.YuNetConfig{
			ModelPath:      cfg.DetectorModelPath,
			ScoreThreshold: float32(cfg.DetectorScoreThreshold),
			NMSThreshold:   float32(cfg.DetectorNMSThreshold),
			TopK:           cfg.DetectorTopK,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load SFace")
		}
		defer s.Close()
		encoder = s
	case "dlib":
		d, err := vision.NewDlib(cfg.DlibModelsDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load dlib")
		}
		defer d.Close()
		encoder = d
	default:
		log.Fatal().Str("embedder", *backend).Msg("Unknown embedder backend")
	}

	store, err := jsonstore.Open(ctx, *dir, encoder, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("Failed to read JSON directory")
	}
	snap, err := store.Snapshot(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to snapshot JSON directory")
	}

	conn, err := db.Open(ctx, db.Config{Path: *dbPath, Logger: &log.Logger})
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open database")
	}
	defer conn.Close()
	writer := db.NewWorker(conn)
	defer writer.Close()

	if err := sqlite.NewDirectoryStore(conn, writer).ReplaceAll(ctx, snap); err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	withEmbedding := 0
	for _, id := range snap.Identities {
		if len(id.Embedding) > 0 {
			withEmbedding++
		}
	}
	log.Info().
		Int("identities", len(snap.Identities)).
		Int("with_embedding", withEmbedding).
		Int("rooms", len(snap.Rooms)).
		Int("cameras", len(snap.Cameras)).
		Int("rules", len(snap.Rules)).
		Str("db", *dbPath).
		Msg("Directory imported")
}
