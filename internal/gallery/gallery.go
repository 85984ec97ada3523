// Package gallery holds the immutable set of known identities used for
// matching. Reloads swap a whole snapshot; readers never see a partial one.
package gallery

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/models"
)

type Snapshot struct {
	Version    uint64
	LoadedAt   time.Time
	Identities []models.Identity
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Identities)
}

// Source lists identities with their embeddings
type Source interface {
	ListIdentities(ctx context.Context) ([]models.Identity, error)
}

type Gallery struct {
	current atomic.Pointer[Snapshot]
	logger  zerolog.Logger

	// swapMu orders reloads so the last one to list the source is the one
	// installed. Readers never take it.
	swapMu  sync.Mutex
	version uint64
}

func New(logger zerolog.Logger) *Gallery {
	g := &Gallery{logger: logger}
	g.current.Store(&Snapshot{})
	return g
}

// Snapshot returns the current snapshot. Never nil.
func (g *Gallery) Snapshot() *Snapshot {
	return g.current.Load()
}

// Replace installs a new snapshot built from ids. Identities without an
// embedding cannot be matched and are left out.
func (g *Gallery) Replace(ids []models.Identity) *Snapshot {
	g.swapMu.Lock()
	defer g.swapMu.Unlock()
	return g.replaceLocked(ids)
}

func (g *Gallery) replaceLocked(ids []models.Identity) *Snapshot {
	usable := make([]models.Identity, 0, len(ids))
	for _, id := range ids {
		if len(id.Embedding) == 0 {
			g.logger.Warn().Str("identity_id", id.ID).Msg("Identity has no embedding, skipping")
			continue
		}
		if !finite(id.Embedding) {
			g.logger.Warn().Str("identity_id", id.ID).Msg("Identity embedding is not finite, skipping")
			continue
		}
		id.Embedding = append([]float32(nil), id.Embedding...)
		usable = append(usable, id)
	}
	g.version++
	snap := &Snapshot{
		Version:    g.version,
		LoadedAt:   time.Now(),
		Identities: usable,
	}
	g.current.Store(snap)
	return snap
}

// Reload fetches identities from src and swaps them in. Concurrent reloads
// run one at a time. On error the previous snapshot stays active.
func (g *Gallery) Reload(ctx context.Context, src Source) (*Snapshot, error) {
	g.swapMu.Lock()
	defer g.swapMu.Unlock()

	ids, err := src.ListIdentities(ctx)
	if err != nil {
		return g.Snapshot(), fmt.Errorf("list identities: %w", err)
	}
	snap := g.replaceLocked(ids)
	g.logger.Info().Uint64("version", snap.Version).Int("identities", snap.Len()).Msg("Gallery reloaded")
	return snap, nil
}

func finite(v []float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}
