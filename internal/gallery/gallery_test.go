package gallery

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/models"
)

type staticSource struct {
	ids []models.Identity
	err error
}

func (s staticSource) ListIdentities(context.Context) ([]models.Identity, error) {
	return s.ids, s.err
}

func TestReloadSwapsSnapshot(t *testing.T) {
	g := New(zerolog.Nop())
	assert.Equal(t, 0, g.Snapshot().Len())

	before := g.Snapshot()
	snap, err := g.Reload(context.Background(), staticSource{ids: []models.Identity{
		{ID: "1", DisplayName: "Alice", Embedding: []float32{1, 0}},
		{ID: "2", DisplayName: "No Photo"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, "1", g.Snapshot().Identities[0].ID)
	assert.Equal(t, 0, before.Len(), "old snapshot is never mutated")
}

func TestReloadErrorKeepsPrevious(t *testing.T) {
	g := New(zerolog.Nop())
	g.Replace([]models.Identity{{ID: "1", Embedding: []float32{1}}})

	snap, err := g.Reload(context.Background(), staticSource{err: errors.New("disk gone")})
	assert.Error(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 1, g.Snapshot().Len())
}

func TestReplaceCopiesEmbeddings(t *testing.T) {
	g := New(zerolog.Nop())
	emb := []float32{1, 2}
	g.Replace([]models.Identity{{ID: "1", Embedding: emb}})
	emb[0] = 9
	assert.Equal(t, float32(1), g.Snapshot().Identities[0].Embedding[0])
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	g := New(zerolog.Nop())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			ids := make([]models.Identity, i)
			for j := range ids {
				ids[j] = models.Identity{ID: "x", Embedding: []float32{float32(i)}}
			}
			g.Replace(ids)
		}
	}()
	for i := 0; i < 200; i++ {
		snap := g.Snapshot()
		for _, id := range snap.Identities {
			assert.Equal(t, float32(snap.Len()), id.Embedding[0])
		}
	}
	wg.Wait()
	assert.Equal(t, uint64(200), g.Snapshot().Version)
}

// gatedSource blocks in ListIdentities until release is closed
type gatedSource struct {
	ids     []models.Identity
	started chan struct{}
	release chan struct{}
}

func (s gatedSource) ListIdentities(context.Context) ([]models.Identity, error) {
	close(s.started)
	<-s.release
	return s.ids, nil
}

func TestOverlappingReloadsInstallLatestDirectory(t *testing.T) {
	g := New(zerolog.Nop())
	old := gatedSource{
		ids:     []models.Identity{{ID: "1", Embedding: []float32{1}}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	current := staticSource{ids: []models.Identity{
		{ID: "1", Embedding: []float32{1}},
		{ID: "2", Embedding: []float32{2}},
	}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := g.Reload(context.Background(), old)
		assert.NoError(t, err)
	}()
	<-old.started
	go func() {
		defer wg.Done()
		_, err := g.Reload(context.Background(), current)
		assert.NoError(t, err)
	}()
	close(old.release)
	wg.Wait()

	snap := g.Snapshot()
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, 2, snap.Len(), "the reload that listed last is the one installed")
}

func TestReplaceSkipsNonFiniteEmbeddings(t *testing.T) {
	g := New(zerolog.Nop())
	snap := g.Replace([]models.Identity{
		{ID: "1", Embedding: []float32{float32(math.NaN()), 0}},
		{ID: "2", Embedding: []float32{float32(math.Inf(-1)), 0}},
		{ID: "3", Embedding: []float32{1, 0}},
	})
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "3", snap.Identities[0].ID)
}
