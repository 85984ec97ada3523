package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"facegate-worker-go/internal/history"
	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/models"
	"facegate-worker-go/internal/services/stream"
)

// StreamManager is the part of the stream manager the API drives
type StreamManager interface {
	StartStream(req *models.StreamRequest) (models.StreamResponse, error)
	StopStream(streamID string) error
	GetStream(streamID string) (models.StreamResponse, error)
	ListStreams() []models.StreamResponse
}

// FrameViewer serves rendered display frames
type FrameViewer interface {
	LatestJPEG(streamID string) ([]byte, bool)
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, streamID string)
}

type ErrorResponse struct {
	Error string `json:"error" example:"stream not found"`
}

type SuccessResponse struct {
	Message string `json:"message" example:"Stream stopped successfully"`
}

type StreamListResponse struct {
	Streams []models.StreamResponse `json:"streams"`
	Count   int                     `json:"count"`
}

type StreamHandler struct {
	manager StreamManager
	viewer  FrameViewer
}

func NewStreamHandler(manager StreamManager, viewer FrameViewer) *StreamHandler {
	return &StreamHandler{manager: manager, viewer: viewer}
}

func streamErrorStatus(err error) int {
	switch {
	case errors.Is(err, stream.ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrStreamExists):
		return http.StatusConflict
	case errors.Is(err, stream.ErrEndpointRequired), errors.Is(err, history.ErrUnknownLocation):
		return http.StatusBadRequest
	case errors.Is(err, stream.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StartStream starts monitoring a camera
// @Summary Start a stream
// @Description Start face monitoring on a camera. Host and port may be omitted when the location is in the stream history.
// @Tags streams
// @Accept json
// @Produce json
// @Param request body models.StreamRequest true "Stream configuration"
// @Success 200 {object} models.StreamResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /streams [post]
func (h *StreamHandler) StartStream(c *gin.Context) {
	var req models.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logging.Warn(c).Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	logging.SetStreamID(c, req.StreamID)

	resp, err := h.manager.StartStream(&req)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to start stream")
		c.JSON(streamErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}

	logging.SetLocation(c, resp.Location)
	logging.Info(c).Msg("Stream started successfully")
	c.JSON(http.StatusOK, resp)
}

// StopStream stops a stream
// @Summary Stop a stream
// @Tags streams
// @Param id path string true "Stream ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /streams/{id} [delete]
func (h *StreamHandler) StopStream(c *gin.Context) {
	id := c.Param("id")
	logging.SetStreamID(c, id)

	if err := h.manager.StopStream(id); err != nil {
		c.JSON(streamErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}

	logging.Info(c).Msg("Stream stopped successfully")
	c.JSON(http.StatusOK, SuccessResponse{Message: "Stream stopped successfully"})
}

// GetStream gets stream details
// @Summary Get stream details
// @Description State, last error and counters of one stream
// @Tags streams
// @Param id path string true "Stream ID"
// @Success 200 {object} models.StreamResponse
// @Failure 404 {object} ErrorResponse
// @Router /streams/{id} [get]
func (h *StreamHandler) GetStream(c *gin.Context) {
	resp, err := h.manager.GetStream(c.Param("id"))
	if err != nil {
		c.JSON(streamErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListStreams lists all streams
// @Summary List streams
// @Tags streams
// @Success 200 {object} StreamListResponse
// @Router /streams [get]
func (h *StreamHandler) ListStreams(c *gin.Context) {
	streams := h.manager.ListStreams()
	c.JSON(http.StatusOK, StreamListResponse{Streams: streams, Count: len(streams)})
}

// GetLatestFrame returns the newest annotated frame
// @Summary Latest frame
// @Description Newest annotated frame as JPEG, 204 when none has been rendered yet
// @Tags streams
// @Produce image/jpeg
// @Param id path string true "Stream ID"
// @Success 200 {file} binary
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /streams/{id}/frame [get]
func (h *StreamHandler) GetLatestFrame(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.GetStream(id); err != nil {
		c.JSON(streamErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}

	jpeg, ok := h.viewer.LatestJPEG(id)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// StreamMJPEG serves the annotated display as multipart JPEG
// @Summary MJPEG display
// @Tags streams
// @Produce multipart/x-mixed-replace
// @Param id path string true "Stream ID"
// @Success 200
// @Failure 404 {object} ErrorResponse
// @Router /streams/{id}/mjpeg [get]
func (h *StreamHandler) StreamMJPEG(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.manager.GetStream(id); err != nil {
		c.JSON(streamErrorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	h.viewer.StreamMJPEGHTTP(c.Writer, c.Request, id)
}
