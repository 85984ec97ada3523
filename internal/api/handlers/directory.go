package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/models"
)

// DirectoryReader lists rooms and camera bindings
type DirectoryReader interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
}

// HistoryReader lists remembered camera endpoints
type HistoryReader interface {
	List() []models.HistoryEntry
}

type DirectoryHandler struct {
	directory DirectoryReader
	history   HistoryReader
}

func NewDirectoryHandler(directory DirectoryReader, history HistoryReader) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, history: history}
}

// ListRooms
// @Summary List rooms
// @Tags directory
// @Produce json
// @Success 200 {array} models.Room
// @Failure 500 {object} ErrorResponse
// @Router /directory/rooms [get]
func (h *DirectoryHandler) ListRooms(c *gin.Context) {
	rooms, err := h.directory.ListRooms(c.Request.Context())
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

// ListCameras
// @Summary List camera bindings
// @Tags directory
// @Produce json
// @Success 200 {array} models.Camera
// @Failure 500 {object} ErrorResponse
// @Router /directory/cameras [get]
func (h *DirectoryHandler) ListCameras(c *gin.Context) {
	cams, err := h.directory.ListCameras(c.Request.Context())
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list cameras")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if cams == nil {
		cams = []models.Camera{}
	}
	c.JSON(http.StatusOK, cams)
}

// ListHistory
// @Summary Stream history
// @Description Camera endpoints remembered per location
// @Tags streams
// @Produce json
// @Success 200 {array} models.HistoryEntry
// @Router /history [get]
func (h *DirectoryHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, []models.HistoryEntry{})
		return
	}
	c.JSON(http.StatusOK, h.history.List())
}
