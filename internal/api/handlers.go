package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"alert-service/internal/alerting"
	"alert-service/internal/jobs"
	"alert-service/internal/logging"
	"alert-service/internal/models"
	"alert-service/internal/notify"
)

// AlertService is the alert pipeline as seen by the HTTP layer.
type AlertService interface {
	Process(ctx context.Context, version int, timeSearch string) (int, error)
	Submit(ctx context.Context, version int, timeSearch string) (string, error)
	JobStatus(id string) jobs.State
	Search(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	Dispatch(ctx context.Context, version int, typ models.AlertType) (int, error)
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc      AlertService
	hub      *notify.Hub
	checks   map[string]Pinger
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the handler. hub may be nil, which disables /ws.
func NewHandler(svc AlertService, hub *notify.Hub, checks map[string]Pinger, logger *logging.Logger) *Handler {
	return &Handler{
		svc:    svc,
		hub:    hub,
		checks: checks,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type processRequest struct {
	Version    *int    `json:"version"`
	TimeSearch *string `json:"timeSearch"`
}

type statusRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

type searchRequest struct {
	Version *int    `json:"version"`
	Type    *string `json:"type"`
	Sended  *bool   `json:"sended"`
}

type sendRequest struct {
	Version *int    `json:"version"`
	Type    *string `json:"type"`
}

func (h *Handler) Process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Version == nil || req.TimeSearch == nil {
		h.invalid(c, "process", err)
		return
	}

	n, err := h.svc.Process(c.Request.Context(), *req.Version, *req.TimeSearch)
	if err != nil {
		h.fail(c, "process", err)
		return
	}
	h.logger.Infof("Processed %d measurements for version %d over %s", n, *req.Version, *req.TimeSearch)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ProcessAsync(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Version == nil || req.TimeSearch == nil {
		h.invalid(c, "process_async", err)
		return
	}

	id, err := h.svc.Submit(c.Request.Context(), *req.Version, *req.TimeSearch)
	if err != nil {
		h.fail(c, "process_async", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job_id": id})
}

func (h *Handler) ExecStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid exec_status request: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "Error: " + err.Error()})
		return
	}

	st := h.svc.JobStatus(req.JobID)
	body := gin.H{"job_status": st.Status}
	if st.Error != "" {
		body["error"] = st.Error
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Version == nil {
		h.invalid(c, "search", err)
		return
	}

	filter := models.AlertFilter{Version: *req.Version, Sended: req.Sended}
	if req.Type != nil {
		typ, err := models.ParseAlertType(*req.Type)
		if err != nil {
			h.invalid(c, "search", err)
			return
		}
		filter.Type = &typ
	}

	alerts, err := h.svc.Search(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Version == nil || req.Type == nil {
		h.invalid(c, "send", err)
		return
	}

	if _, err := h.svc.Dispatch(c.Request.Context(), *req.Version, models.AlertType(*req.Type)); err != nil {
		h.fail(c, "send", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stream upgrades to a websocket that receives dispatched alerts.
func (h *Handler) Stream(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "stream disabled"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	if !h.hub.Add(conn) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		_ = conn.Close()
		return
	}
	defer func() {
		h.hub.Remove(conn)
		_ = conn.Close()
	}()
	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "errors": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) invalid(c *gin.Context, op string, err error) {
	if err == nil {
		err = errors.New("missing required fields")
	}
	if !errors.Is(err, alerting.ErrInvalidParameters) {
		err = fmt.Errorf("%w: %w", alerting.ErrInvalidParameters, err)
	}
	h.logger.Warnf("Invalid %s request: %v", op, err)
	c.JSON(http.StatusUnprocessableEntity, gin.H{"status": err.Error()})
}

// fail maps pipeline errors to status codes.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, alerting.ErrInvalidParameters) {
		h.invalid(c, op, err)
		return
	}
	h.logger.Errorf("%s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"status": "Error: " + err.Error()})
}
