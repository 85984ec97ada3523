package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"facegate-worker-go/internal/gallery"
	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/models"
)

// GalleryReader hands out the current gallery snapshot
type GalleryReader interface {
	Snapshot() *gallery.Snapshot
}

// ReloadFunc re-reads the directory and installs a new gallery
type ReloadFunc func(ctx context.Context) (*gallery.Snapshot, error)

type GalleryResponse struct {
	Version    uint64            `json:"version"`
	LoadedAt   time.Time         `json:"loaded_at"`
	Count      int               `json:"count"`
	Identities []models.Identity `json:"identities"`
}

type GalleryHandler struct {
	gallery GalleryReader
	reload  ReloadFunc
}

func NewGalleryHandler(g GalleryReader, reload ReloadFunc) *GalleryHandler {
	return &GalleryHandler{gallery: g, reload: reload}
}

func galleryResponse(snap *gallery.Snapshot) GalleryResponse {
	if snap == nil {
		return GalleryResponse{Identities: []models.Identity{}}
	}
	ids := snap.Identities
	if ids == nil {
		ids = []models.Identity{}
	}
	return GalleryResponse{Version: snap.Version, LoadedAt: snap.LoadedAt, Count: len(ids), Identities: ids}
}

// GetGallery lists the identities faces are matched against
// @Summary Current gallery
// @Tags gallery
// @Produce json
// @Success 200 {object} GalleryResponse
// @Router /gallery [get]
func (h *GalleryHandler) GetGallery(c *gin.Context) {
	c.JSON(http.StatusOK, galleryResponse(h.gallery.Snapshot()))
}

// Reload re-reads the directory. Running streams pick up the new gallery on
// their next detection cycle.
// @Summary Reload gallery
// @Tags gallery
// @Produce json
// @Success 200 {object} GalleryResponse
// @Failure 500 {object} ErrorResponse
// @Router /gallery/reload [post]
func (h *GalleryHandler) Reload(c *gin.Context) {
	snap, err := h.reload(c.Request.Context())
	if err != nil {
		logging.Error(c).Err(err).Msg("Gallery reload failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	logging.Info(c).Int("identities", snap.Len()).Uint64("version", snap.Version).Msg("Gallery reloaded")
	c.JSON(http.StatusOK, galleryResponse(snap))
}
