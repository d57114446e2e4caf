package http

import (
	"context"
	"net/http"
	"time"

	"worldview/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	// the control API is local; browsers on any origin may watch
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// WatchHandler streams a device's session snapshots over a websocket.
type WatchHandler struct {
	studio       ports.Studio
	pingInterval time.Duration
	logger       *zap.SugaredLogger
}

var _ ports.WebSocketHandler = (*WatchHandler)(nil)

func NewWatchHandler(studio ports.Studio, pingInterval time.Duration, logger *zap.SugaredLogger) *WatchHandler {
	return &WatchHandler{
		studio:       studio,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

func (h *WatchHandler) SetupRoutes(api *gin.RouterGroup, middleware ...gin.HandlerFunc) {
	handlers := append(middleware, h.Watch)
	api.GET("/devices/:profile/watch", handlers...)
}

// Watch sends the current snapshot, then every new one, as JSON text
// frames until the client goes away or the device is stopped.
func (h *WatchHandler) Watch(c *gin.Context) {
	profile := c.Param("profile")
	device, err := h.studio.Get(profile)
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "profile", profile, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pongWait := 2 * h.pingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// reads only detect the close; clients send nothing
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debugw("watch client read failed", "profile", profile, "error", err)
				}
				return
			}
		}
	}()

	pingTicker := time.NewTicker(h.pingInterval)
	defer pingTicker.Stop()

	snapshots := device.Watch(ctx)
	h.logger.Infow("watch stream opened", "profile", profile)
	defer h.logger.Infow("watch stream closed", "profile", profile)

	for {
		select {
		case <-ctx.Done():
			return

		case snapshot, ok := <-snapshots:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "device stopped"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snapshot); err != nil {
				h.logger.Debugw("watch write failed", "profile", profile, "error", err)
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debugw("watch ping failed", "profile", profile, "error", err)
				return
			}
		}
	}
}
