// Package recognition turns a detected face into an identity label by
// comparing its embedding to the gallery.
package recognition

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"facegate-worker-go/internal/gallery"
	"facegate-worker-go/internal/models"
)

// ErrNoEmbedding means no embedding could be extracted for a face. The face
// is skipped for the current cycle.
var ErrNoEmbedding = errors.New("no embedding for face")

// Embedder extracts a face embedding from a frame region
type Embedder interface {
	Embed(frame *models.Frame, det models.Detection) ([]float32, error)
	Close() error
}

// PhotoEncoder derives the reference embedding from a photo on disk
type PhotoEncoder interface {
	EncodePhoto(path string) ([]float32, error)
}

type Engine struct {
	embedder    Embedder
	matcher     Matcher
	minFaceSize int
	logger      zerolog.Logger
}

func NewEngine(embedder Embedder, matcher Matcher, minFaceSize int, logger zerolog.Logger) *Engine {
	return &Engine{
		embedder:    embedder,
		matcher:     matcher,
		minFaceSize: minFaceSize,
		logger:      logger.With().Str("component", "recognition").Logger(),
	}
}

// Match labels one face against snap. Unmatched faces get the Unknown label;
// the error is ErrNoEmbedding (wrapped) when the face cannot be embedded.
func (e *Engine) Match(snap *gallery.Snapshot, frame *models.Frame, det models.Detection) (models.Label, error) {
	if det.Box.W < e.minFaceSize || det.Box.H < e.minFaceSize {
		return models.Label{}, fmt.Errorf("face %dx%d below %dpx: %w", det.Box.W, det.Box.H, e.minFaceSize, ErrNoEmbedding)
	}

	emb, err := e.embedder.Embed(frame, det)
	if err != nil {
		if errors.Is(err, ErrNoEmbedding) {
			return models.Label{}, err
		}
		return models.Label{}, fmt.Errorf("embed: %v: %w", err, ErrNoEmbedding)
	}
	if len(emb) == 0 {
		return models.Label{}, ErrNoEmbedding
	}

	if snap == nil {
		return models.UnknownLabel(), nil
	}
	idx, dist := e.matcher.Best(emb, snap.Identities)
	if idx < 0 {
		return models.UnknownLabel(), nil
	}

	id := snap.Identities[idx]
	e.logger.Debug().Str("identity_id", id.ID).Float64("distance", dist).Msg("Face matched")
	return LabelFor(id), nil
}

// LabelFor builds the label shown for a known identity
func LabelFor(id models.Identity) models.Label {
	return models.Label{
		Display:    fmt.Sprintf("%s (ID: %s)", id.DisplayName, id.ID),
		IdentityID: id.ID,
		Department: id.Department,
		Known:      true,
	}
}

func (e *Engine) Close() error {
	return e.embedder.Close()
}
