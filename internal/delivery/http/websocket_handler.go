package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
	"github.com/Harsh-BH/vehicle-counter/internal/notify"
	"github.com/Harsh-BH/vehicle-counter/internal/usecase"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development; restrict in production
	},
}

// WebSocketHandler streams job events to live observers.
type WebSocketHandler struct {
	hub      *notify.Hub
	getJobUC *usecase.GetJobUsecase
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(hub *notify.Hub, getJobUC *usecase.GetJobUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		getJobUC: getJobUC,
		logger:   logger,
	}
}

// Stream handles GET /ws (WebSocket upgrade).
//
// Without parameters the socket receives every job event until the client
// disconnects. With ?job_id= it first receives the job's current state, then
// only that job's events, and is closed after the terminal one.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	var (
		jobID uuid.UUID
		opts  []notify.Option
	)
	if raw := c.Query("job_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
			return
		}
		jobID = id
		opts = append(opts, notify.WithJobFilter(id))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	// Register before reading current state so no transition falls in between.
	obs := h.hub.Register(opts...)
	logger := h.logger.With(zap.Uint64("observer_id", obs.ID()))
	logger.Debug("WebSocket connection opened", zap.String("job_id", c.Query("job_id")))

	readerDone := make(chan struct{})
	defer func() {
		h.hub.Unregister(obs)
		conn.Close()
		<-readerDone
		logger.Debug("WebSocket connection closed")
	}()

	go h.readPump(conn, obs, readerDone)

	if jobID != uuid.Nil {
		job, err := h.getJobUC.Execute(c.Request.Context(), jobID)
		if err != nil {
			h.closeWith(conn, websocket.ClosePolicyViolation, "job not found")
			return
		}
		if err := h.write(conn, domain.EventFor(job)); err != nil || job.Status.IsTerminal() {
			h.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		}
	}

	h.writePump(conn, obs, jobID != uuid.Nil)
}

// readPump discards client messages and detects disconnects.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, obs *notify.Observer, done chan<- struct{}) {
	defer close(done)
	defer h.hub.Unregister(obs)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn after the initial state message.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, obs *notify.Observer, closeOnTerminal bool) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-obs.C():
			if !ok {
				// Dropped by the hub or the client went away.
				h.closeWith(conn, websocket.CloseGoingAway, "")
				return
			}
			if err := h.write(conn, event); err != nil {
				h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
			if closeOnTerminal && event.Status.IsTerminal() {
				h.closeWith(conn, websocket.CloseNormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, event domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}

func (h *WebSocketHandler) closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
