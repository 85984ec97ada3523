package recognition

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/gallery"
	"facegate-worker-go/internal/models"
)

type fixedEmbedder struct {
	emb []float32
	err error
}

func (f fixedEmbedder) Embed(*models.Frame, models.Detection) ([]float32, error) {
	return f.emb, f.err
}

func (fixedEmbedder) Close() error { return nil }

func face(size int) models.Detection {
	return models.Detection{Box: models.Box{X: 0, Y: 0, W: size, H: size}}
}

func snapshot(ids ...models.Identity) *gallery.Snapshot {
	return &gallery.Snapshot{Identities: ids}
}

var (
	alice = models.Identity{ID: "1", DisplayName: "Alice Smith", Department: "Engineering", Embedding: []float32{0.3, 0, 0}}
	bob   = models.Identity{ID: "2", DisplayName: "Bob Jones", Department: "Sales", Embedding: []float32{0.1, 0, 0}}
	carol = models.Identity{ID: "3", DisplayName: "Carol White", Department: "Sales", Embedding: []float32{5, 5, 5}}
)

func euclid(policy Policy) Matcher {
	return Matcher{Metric: MetricEuclidean, Tolerance: 0.5, Policy: policy}
}

func TestFirstMatchWinsInGalleryOrder(t *testing.T) {
	e := NewEngine(fixedEmbedder{emb: []float32{0, 0, 0}}, euclid(PolicyFirst), 20, zerolog.Nop())

	label, err := e.Match(snapshot(carol, alice, bob), &models.Frame{}, face(100))
	require.NoError(t, err)
	assert.Equal(t, "1", label.IdentityID, "alice is first within tolerance even though bob is closer")
	assert.Equal(t, "Alice Smith (ID: 1)", label.Display)
	assert.Equal(t, "Engineering", label.Department)
	assert.True(t, label.Known)
}

func TestClosestPolicy(t *testing.T) {
	e := NewEngine(fixedEmbedder{emb: []float32{0, 0, 0}}, euclid(PolicyClosest), 20, zerolog.Nop())

	label, err := e.Match(snapshot(carol, alice, bob), &models.Frame{}, face(100))
	require.NoError(t, err)
	assert.Equal(t, "2", label.IdentityID)
}

func TestNoMatchIsUnknown(t *testing.T) {
	e := NewEngine(fixedEmbedder{emb: []float32{-9, 0, 0}}, euclid(PolicyFirst), 20, zerolog.Nop())

	label, err := e.Match(snapshot(alice, bob), &models.Frame{}, face(100))
	require.NoError(t, err)
	assert.False(t, label.Known)
	assert.Equal(t, models.UnknownKey, label.Key())
	assert.Equal(t, "Unknown", label.Display)
	assert.Empty(t, label.Department)

	label, err = e.Match(snapshot(), &models.Frame{}, face(100))
	require.NoError(t, err)
	assert.Equal(t, models.UnknownKey, label.Key(), "empty gallery yields Unknown")
}

func TestSmallFaceHasNoEmbedding(t *testing.T) {
	e := NewEngine(fixedEmbedder{emb: []float32{0, 0, 0}}, euclid(PolicyFirst), 20, zerolog.Nop())
	_, err := e.Match(snapshot(alice), &models.Frame{}, face(10))
	assert.ErrorIs(t, err, ErrNoEmbedding)
}

func TestEmbedderFailureIsNoEmbedding(t *testing.T) {
	e := NewEngine(fixedEmbedder{err: errors.New("alignment failed")}, euclid(PolicyFirst), 20, zerolog.Nop())
	_, err := e.Match(snapshot(alice), &models.Frame{}, face(100))
	assert.ErrorIs(t, err, ErrNoEmbedding)

	e = NewEngine(fixedEmbedder{}, euclid(PolicyFirst), 20, zerolog.Nop())
	_, err = e.Match(snapshot(alice), &models.Frame{}, face(100))
	assert.ErrorIs(t, err, ErrNoEmbedding)
}

func TestCosineDistance(t *testing.T) {
	m := Matcher{Metric: MetricCosine, Tolerance: 0.637, Policy: PolicyFirst}
	assert.InDelta(t, 0, m.Distance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, m.Distance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.True(t, math.IsInf(m.Distance([]float32{1}, []float32{1, 0}), 1))
	assert.True(t, math.IsInf(m.Distance([]float32{0, 0}, []float32{1, 0}), 1))
}

func TestNonFiniteEmbeddingNeverMatches(t *testing.T) {
	nan := float32(math.NaN())
	for _, metric := range []Metric{MetricEuclidean, MetricCosine} {
		m := Matcher{Metric: metric, Tolerance: 0.5, Policy: PolicyFirst}

		idx, dist := m.Best([]float32{nan, 0, 0}, []models.Identity{{ID: "1", Embedding: []float32{1, 0, 0}}})
		assert.Equal(t, -1, idx, string(metric))
		assert.True(t, math.IsInf(dist, 1), string(metric))

		idx, _ = m.Best([]float32{1, 0, 0}, []models.Identity{{ID: "1", Embedding: []float32{float32(math.Inf(1)), 0, 0}}})
		assert.Equal(t, -1, idx, string(metric))
	}

	e := NewEngine(fixedEmbedder{emb: []float32{nan, 0, 0}}, euclid(PolicyFirst), 20, zerolog.Nop())
	label, err := e.Match(snapshot(alice, bob), &models.Frame{}, face(100))
	require.NoError(t, err)
	assert.False(t, label.Known)
}

func TestParse(t *testing.T) {
	_, err := ParseMetric("manhattan")
	assert.Error(t, err)
	m, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	_, err = ParsePolicy("random")
	assert.Error(t, err)
	p, err := ParsePolicy("closest")
	require.NoError(t, err)
	assert.Equal(t, PolicyClosest, p)
}
