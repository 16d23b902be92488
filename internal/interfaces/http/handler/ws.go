package handler

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agentloop/backend/internal/infrastructure/log"
	wshub "github.com/agentloop/backend/internal/infrastructure/websocket"
)

// 心跳参数
const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
)

// WSHandler 活动流 WebSocket 处理器
// 客户端连接后只接收活动事件广播，不需要发送业务消息
type WSHandler struct {
	hub      *wshub.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(hub *wshub.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 仅监听本机，允许所有来源
			},
		},
		logger: log.NewModuleLogger("websocket", "handler"),
	}
}

// Handle 处理 WebSocket 升级请求
// GET /ws
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection",
			"error", err,
		)
		return
	}

	client := wshub.NewConnection()
	h.hub.Register(client)

	h.logger.Debug("client connected",
		"remote", conn.RemoteAddr().String(),
	)

	go h.writePump(conn, client)
	go h.readPump(conn, client)
}

// writePump 把 Hub 广播写给客户端，定期发送 Ping
func (h *WSHandler) writePump(conn *websocket.Conn, client *wshub.Connection) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Hub 关闭了连接
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 消费客户端消息，只用于感知断开与续期读超时
func (h *WSHandler) readPump(conn *websocket.Conn, client *wshub.Connection) {
	defer func() {
		h.hub.Unregister(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("client read error",
					"error", err,
				)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}
