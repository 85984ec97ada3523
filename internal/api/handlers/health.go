package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Check reports whether an optional dependency is reachable
type Check func() bool

type HealthHandler struct {
	WorkerID string
	Version  string
	checks   map[string]Check
}

func NewHealthHandler(workerID, version string, checks map[string]Check) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, checks: checks}
}

type HealthResponse struct {
	Status     string            `json:"status" example:"healthy"`
	WorkerID   string            `json:"worker_id" example:"gate-1"`
	Components map[string]string `json:"components,omitempty"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"gate-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the worker is healthy and responsive. Optional dependencies that are down mark the worker degraded without failing the check.
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", WorkerID: h.WorkerID}
	if len(h.checks) > 0 {
		resp.Components = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if check() {
				resp.Components[name] = "up"
			} else {
				resp.Components[name] = "down"
				resp.Status = "degraded"
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"rtsp_ingest",
			"face_detection",
			"face_recognition",
			"access_control",
			"mjpeg_display",
		},
	})
}
