package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"facegate-worker-go/internal/logging"
	"facegate-worker-go/internal/models"
)

const protobufContentType = "application/x-protobuf"

// EventSource is the operator event log
type EventSource interface {
	Poll() []models.LogEntry
	Subscribe(buffer int) (<-chan models.DetectionEvent, func())
}

// EventHistory reads persisted decisions
type EventHistory interface {
	RecentEvents(ctx context.Context, limit int) ([]models.DetectionEvent, error)
}

type EventsResponse struct {
	Entries []models.LogEntry `json:"entries"`
	Count   int               `json:"count"`
}

type EventHandler struct {
	source   EventSource
	history  EventHistory
	upgrader websocket.Upgrader
}

// NewEventHandler creates the events handler. history may be nil when no
// audit store is configured.
func NewEventHandler(source EventSource, history EventHistory) *EventHandler {
	return &EventHandler{
		source:  source,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func wantsProtobuf(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return accept == protobufContentType || accept == "application/protobuf"
}

// PollEvents drains the operator log
// @Summary Drain operator log
// @Description Returns and clears the log entries gathered since the last poll. Send Accept: application/x-protobuf for a google.protobuf.ListValue body.
// @Tags events
// @Produce json
// @Produce application/x-protobuf
// @Success 200 {object} EventsResponse
// @Router /events [get]
func (h *EventHandler) PollEvents(c *gin.Context) {
	entries := h.source.Poll()
	if entries == nil {
		entries = []models.LogEntry{}
	}

	if wantsProtobuf(c) {
		list, err := logEntriesProto(entries)
		if err != nil {
			logging.Error(c).Err(err).Msg("Failed to convert events to protobuf")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		data, err := proto.Marshal(list)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "proto marshal error"})
			return
		}
		c.Data(http.StatusOK, protobufContentType, data)
		return
	}

	c.JSON(http.StatusOK, EventsResponse{Entries: entries, Count: len(entries)})
}

func logEntriesProto(entries []models.LogEntry) (*structpb.ListValue, error) {
	values := make([]interface{}, len(entries))
	for i, e := range entries {
		values[i] = map[string]interface{}{
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
			"stream_id": e.StreamID,
			"message":   e.Message,
			"decision":  string(e.Decision),
		}
	}
	return structpb.NewList(values)
}

// RecentEvents lists persisted decisions, newest first
// @Summary Recent decisions
// @Tags events
// @Produce json
// @Param limit query int false "Maximum number of events (default 50)"
// @Success 200 {array} models.DetectionEvent
// @Failure 404 {object} ErrorResponse
// @Router /events/recent [get]
func (h *EventHandler) RecentEvents(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event audit log is not enabled"})
		return
	}

	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events, err := h.history.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to read recent events")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if events == nil {
		events = []models.DetectionEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// LiveEvents streams every new decision over a websocket
// @Summary Live decisions
// @Description Upgrades to a websocket and sends each DetectionEvent as a JSON text message
// @Tags events
// @Router /events/ws [get]
func (h *EventHandler) LiveEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c).Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.source.Subscribe(64)
	defer cancel()

	// The reader only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
