// Package jsonstore reads the directory from the JSON files and reference
// photos that the enrollment tool maintains:
//
//	users.json         [{id, first_name, last_name, passport_number, departament}]
//	rooms.json         [{id_rooms, name_rooms}]
//	cameras.json       [{camera_ip, id_rooms}]
//	access_rules.json  [{departament, id_rooms}]
//	user_photos/{id}.jpg
//
// Embeddings are computed from the photos when the directory is loaded.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/directory"
	"facegate-worker-go/internal/models"
)

// PhotoEncoder derives a reference embedding from a photo file
type PhotoEncoder interface {
	EncodePhoto(path string) ([]float32, error)
}

type photoKey struct {
	path    string
	size    int64
	modTime time.Time
}

type Store struct {
	dir     string
	encoder PhotoEncoder
	logger  zerolog.Logger

	current atomic.Pointer[directory.Memory]

	reloadMu sync.Mutex
	// Photos are only re-encoded when their size or mtime changes.
	embeddings map[photoKey][]float32
}

// Open loads the directory from dir. encoder may be nil, in which case
// identities carry no embeddings.
func Open(ctx context.Context, dir string, encoder PhotoEncoder, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		dir:        dir,
		encoder:    encoder,
		logger:     logger.With().Str("component", "jsonstore").Logger(),
		embeddings: make(map[photoKey][]float32),
	}
	s.current.Store(directory.NewMemory())
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

// Reload re-reads every file and swaps the directory in one step. On error
// the previous contents stay active.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.current.Store(directory.NewMemoryFrom(snap))
	s.logger.Info().
		Int("identities", len(snap.Identities)).
		Int("rooms", len(snap.Rooms)).
		Int("cameras", len(snap.Cameras)).
		Int("rules", len(snap.Rules)).
		Msg("Directory loaded")
	return nil
}

// Snapshot reads the files without installing them
func (s *Store) Snapshot(ctx context.Context) (directory.Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return s.read(ctx)
}

func (s *Store) read(ctx context.Context) (directory.Snapshot, error) {
	var snap directory.Snapshot

	var users []userRecord
	if err := readJSON(filepath.Join(s.dir, UsersFile), &users); err != nil {
		return snap, err
	}
	var rooms []roomRecord
	if err := readJSON(filepath.Join(s.dir, RoomsFile), &rooms); err != nil {
		return snap, err
	}
	var cameras []cameraRecord
	if err := readJSON(filepath.Join(s.dir, CamerasFile), &cameras); err != nil {
		return snap, err
	}
	var rules []ruleRecord
	if err := readJSON(filepath.Join(s.dir, AccessRulesFile), &rules); err != nil {
		return snap, err
	}

	for _, r := range rooms {
		if r.ID == "" {
			continue
		}
		snap.Rooms = append(snap.Rooms, models.Room{ID: string(r.ID), Name: r.Name})
	}

	for _, c := range cameras {
		if c.IP == "" {
			continue
		}
		cam := models.Camera{Address: strings.TrimSpace(c.IP)}
		if c.RoomID != "" {
			id := string(c.RoomID)
			cam.RoomID = &id
		}
		snap.Cameras = append(snap.Cameras, cam)
	}

	seen := make(map[models.AccessRule]bool)
	for _, r := range rules {
		rule := models.AccessRule{Department: r.Department, RoomID: string(r.RoomID)}
		if rule.Department == "" || rule.RoomID == "" || seen[rule] {
			continue
		}
		seen[rule] = true
		snap.Rules = append(snap.Rules, rule)
	}

	live := make(map[photoKey]bool)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return snap, err
		}
		if u.ID == "" {
			continue
		}
		id := models.Identity{
			ID:          string(u.ID),
			DisplayName: u.displayName(),
			Department:  u.Department,
		}
		id.Embedding = s.embeddingFor(id.ID, live)
		snap.Identities = append(snap.Identities, id)
	}

	for k := range s.embeddings {
		if !live[k] {
			delete(s.embeddings, k)
		}
	}
	return snap, nil
}

func (s *Store) embeddingFor(id string, live map[photoKey]bool) []float32 {
	if s.encoder == nil {
		return nil
	}
	path, info, ok := s.findPhoto(id)
	if !ok {
		s.logger.Warn().Str("identity_id", id).Msg("No reference photo")
		return nil
	}

	key := photoKey{path: path, size: info.Size(), modTime: info.ModTime()}
	live[key] = true
	if emb, ok := s.embeddings[key]; ok {
		return emb
	}

	emb, err := s.encoder.EncodePhoto(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity_id", id).Str("photo", path).Msg("Failed to encode reference photo")
		return nil
	}
	s.embeddings[key] = emb
	return emb
}

// findPhoto looks for user_photos/{id}.<ext>
func (s *Store) findPhoto(id string) (string, fs.FileInfo, bool) {
	dir := filepath.Join(s.dir, PhotosDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil, false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) != id {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		return filepath.Join(dir, name), info, true
	}
	return "", nil, false
}

// readJSON decodes path into v. A missing file is an empty list.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Store) mem() *directory.Memory { return s.current.Load() }

func (s *Store) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	return s.mem().ListIdentities(ctx)
}

func (s *Store) RoomBoundTo(ctx context.Context, cameraAddress string) (string, bool, error) {
	return s.mem().RoomBoundTo(ctx, cameraAddress)
}

func (s *Store) RulesFor(ctx context.Context, roomID string) (map[string]struct{}, error) {
	return s.mem().RulesFor(ctx, roomID)
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	return s.mem().ListRooms(ctx)
}

func (s *Store) ListCameras(ctx context.Context) ([]models.Camera, error) {
	return s.mem().ListCameras(ctx)
}
