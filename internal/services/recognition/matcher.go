package recognition

import (
	"fmt"
	"math"

	"facegate-worker-go/internal/models"
)

type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricCosine    Metric = "cosine"
)

// Policy picks among several gallery entries within tolerance
type Policy string

const (
	PolicyFirst   Policy = "first"   // first entry in gallery order
	PolicyClosest Policy = "closest" // smallest distance
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricEuclidean, MetricCosine:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown match metric %q", s)
}

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFirst, PolicyClosest:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown match policy %q", s)
}

type Matcher struct {
	Metric    Metric
	Tolerance float64
	Policy    Policy
}

// finite reports whether every component of v is a real number.
func finite(v []float32) bool {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}

// Distance between two embeddings. Mismatched lengths and non-finite
// components are never a match.
func (m Matcher) Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || !finite(a) || !finite(b) {
		return math.Inf(1)
	}
	if m.Metric == MetricCosine {
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return math.Inf(1)
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Best returns the index of the selected identity or -1
func (m Matcher) Best(embedding []float32, ids []models.Identity) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i := range ids {
		d := m.Distance(embedding, ids[i].Embedding)
		// NaN fails every comparison, so only an explicit pass counts
		if !(d <= m.Tolerance) {
			continue
		}
		if m.Policy != PolicyClosest {
			return i, d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}
