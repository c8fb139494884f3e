// Package server exposes supervisor status, the live change feed and the deadline calendar over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/calendar"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/poll"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingStatusProvider   = errors.New("status provider dependency required")
	errMissingSnapshotProvider = errors.New("snapshot provider dependency required")
	errMissingEventFeed        = errors.New("event feed dependency required")
)

// StatusProvider reports the poll supervisor's state.
type StatusProvider interface {
	Status() poll.Status
}

// SnapshotProvider returns the latest complete snapshot.
type SnapshotProvider interface {
	Latest() (course.Snapshot, bool)
}

type Dependencies struct {
	Status            StatusProvider
	Snapshots         SnapshotProvider
	Feed              *EventFeed
	Calendar          calendar.Options
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Status == nil {
		return nil, errMissingStatusProvider
	}
	if deps.Snapshots == nil {
		return nil, errMissingSnapshotProvider
	}
	if deps.Feed == nil {
		return nil, errMissingEventFeed
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		status:    deps.Status,
		snapshots: deps.Snapshots,
		feed:      deps.Feed,
		calendar:  deps.Calendar,
		heartbeat: heartbeat,
		clock:     clock,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/status", handler.handleStatus)
	router.GET("/events", handler.handleEvents)
	router.GET("/calendar.ics", handler.handleCalendar)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Accept", "Cache-Control", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	status    StatusProvider
	snapshots SnapshotProvider
	feed      *EventFeed
	calendar  calendar.Options
	heartbeat time.Duration
	clock     func() time.Time
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusResponsePayload struct {
	poll.Status
	SnapshotCapturedAt time.Time `json:"snapshotCapturedAt,omitzero"`
	Subscribers        int       `json:"subscribers"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	response := statusResponsePayload{
		Status:      h.status.Status(),
		Subscribers: h.feed.Subscribers(),
	}
	if latest, ok := h.snapshots.Latest(); ok {
		response.SnapshotCapturedAt = latest.CapturedAt
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.feed.Subscribe(ctx)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	h.logger.Debug("event stream opened", zap.String("remote", c.ClientIP()))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(realtimeEventChange, message)
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"at": tick.UTC()})
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("remote", c.ClientIP()))
}

func (h *httpHandler) handleCalendar(c *gin.Context) {
	latest, ok := h.snapshots.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot_unavailable"})
		return
	}
	document := calendar.Render(latest, h.clock(), h.calendar)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(document))
}
