package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tmxfleet/alert-relay/internal/feed"
	"github.com/tmxfleet/alert-relay/internal/models"
	"github.com/tmxfleet/alert-relay/internal/relay"
	"github.com/tmxfleet/alert-relay/internal/repository"
	"github.com/tmxfleet/alert-relay/internal/ws"
)

type Handler struct {
	repo    repository.EventRepository
	pub     *feed.Publisher
	manager *relay.Manager
	hub     *ws.Hub

	// baseCtx outlives individual requests; relay sessions started from
	// a WebSocket attach must not die with the upgrade request.
	baseCtx  context.Context
	upgrader websocket.Upgrader
}

func NewHandler(baseCtx context.Context, repo repository.EventRepository, pub *feed.Publisher, manager *relay.Manager, hub *ws.Hub) *Handler {
	return &Handler{
		repo:    repo,
		pub:     pub,
		manager: manager,
		hub:     hub,
		baseCtx: baseCtx,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, authMW gin.HandlerFunc) {
	r.GET("/health", h.health)

	authed := r.Group("/", authMW)
	authed.GET("/api/alerts", h.listAlerts)
	authed.POST("/api/alerts/:id/ack", h.ackAlert)
	authed.POST("/api/debug/test-alert", h.createTestAlert)
	authed.GET("/ws", h.serveWS)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listAlerts(c *gin.Context) {
	sess := sessionFrom(c)

	filter := repository.Filter{
		Limit: 50,
	}

	if d := c.Query("device_id"); d != "" {
		if !sess.IsAdmin() && !sess.Devices.Contains(d) {
			c.JSON(http.StatusForbidden, gin.H{"error": "device not assigned"})
			return
		}
		filter.DeviceIDs = []string{d}
	} else if !sess.IsAdmin() {
		filter.DeviceIDs = sess.Devices.IDs()
	}

	if s := c.Query("min_severity"); s != "" {
		sev := models.ParseSeverity(s)
		filter.MinSeverity = &sev
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if u := c.Query("unacknowledged"); u == "true" || u == "1" {
		filter.Unacknowledged = true
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	// A standard user with no assignments sees nothing, not everything.
	if !sess.IsAdmin() && len(filter.DeviceIDs) == 0 {
		c.JSON(http.StatusOK, gin.H{"alerts": []models.AlertEvent{}})
		return
	}

	events, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		slog.Error("listing alerts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	if events == nil {
		events = []models.AlertEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": events})
}

// ackAlert is the one user-initiated synchronous action in the core, so
// unlike the actuator paths its failure is reported explicitly.
func (h *Handler) ackAlert(c *gin.Context) {
	sess := sessionFrom(c)
	id := c.Param("id")

	ev, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alert"})
		return
	}
	if !sess.IsAdmin() && !sess.Devices.Contains(ev.DeviceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "device not assigned"})
		return
	}

	var view *relay.ViewState
	if svc, ok := h.manager.Lookup(sess.UserID); ok {
		view = svc.View()
	}

	writer := relay.NewAckWriter(h.repo, view)
	if err := writer.Acknowledge(c.Request.Context(), id); err != nil {
		slog.Error("acknowledgment write failed", "event_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acknowledge alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

type testAlertRequest struct {
	DeviceID  string         `json:"deviceId" binding:"required"`
	EventType string         `json:"eventType" binding:"required"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
}

// createTestAlert inserts and publishes a synthetic event, standing in
// for the upstream process that normally writes the feed.
func (h *Handler) createTestAlert(c *gin.Context) {
	var req testAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := &models.AlertEvent{
		ID:        uuid.NewString(),
		DeviceID:  req.DeviceID,
		EventType: req.EventType,
		Severity:  models.ParseSeverity(req.Severity),
		Title:     req.Title,
		Message:   req.Message,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.repo.Insert(c.Request.Context(), ev); err != nil {
		slog.Error("test alert insert failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store alert"})
		return
	}
	if err := h.pub.Publish(c.Request.Context(), ev); err != nil {
		slog.Error("test alert publish failed", "event_id", ev.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to publish alert"})
		return
	}

	c.JSON(http.StatusCreated, ev)
}

func (h *Handler) serveWS(c *gin.Context) {
	sess := sessionFrom(c)

	// Upgrade first: a relay session started for a connection that never
	// registers with the hub would have no disconnect to detach it.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "user_id", sess.UserID, "error", err)
		return
	}

	if _, err := h.manager.Attach(h.baseCtx, sess, tokenFrom(c)); err != nil {
		slog.Error("relay attach failed", "user_id", sess.UserID, "error", err)
		conn.Close()
		return
	}
	h.hub.Add(sess.UserID, conn)
}
