// Package history remembers the camera endpoint last used for each location
// so a stream can be restarted by location name alone.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"

	"facegate-worker-go/internal/models"
)

var ErrUnknownLocation = errors.New("location not in history")

// File is a TOML table per location:
//
//	[Lobby]
//	host = "10.0.0.5"
//	port = 554
type File struct {
	path string

	mu      sync.RWMutex
	entries map[string]models.HistoryEntry
}

// Open loads path. A missing file is an empty history.
func Open(path string) (*File, error) {
	f := &File{path: path, entries: make(map[string]models.HistoryEntry)}
	if _, err := toml.DecodeFile(path, &f.entries); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode history file: %w", err)
	}
	for loc, e := range f.entries {
		e.Location = loc
		f.entries[loc] = e
	}
	return f, nil
}

func (f *File) Get(location string) (models.HistoryEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entries[location]
	if !ok {
		return models.HistoryEntry{}, fmt.Errorf("%w: %s", ErrUnknownLocation, location)
	}
	return e, nil
}

// List returns all entries sorted by location
func (f *File) List() []models.HistoryEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.HistoryEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// Remember records the endpoint for a location and saves the file
func (f *File) Remember(e models.HistoryEntry) error {
	if e.Location == "" || e.Host == "" {
		return errors.New("history entry needs a location and host")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.entries[e.Location]; ok && old == e {
		return nil
	}
	f.entries[e.Location] = e
	return f.save()
}

// save writes to a temp file and renames it over the old one
func (f *File) save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f.entries); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
