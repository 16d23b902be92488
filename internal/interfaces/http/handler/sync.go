package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	appSync "github.com/agentloop/backend/internal/application/sync"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/websocket"
	"github.com/agentloop/backend/internal/interfaces/http/response"
)

// SyncHandler 消息同步处理器
type SyncHandler struct {
	syncService *appSync.SyncService
	hub         *websocket.Hub
	logger      *slog.Logger
}

// NewSyncHandler 创建消息同步处理器
func NewSyncHandler(syncService *appSync.SyncService, hub *websocket.Hub) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		hub:         hub,
		logger:      log.NewModuleLogger("sync", "handler"),
	}
}

// Status 获取同步状态
// GET /api/v1/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	servers := h.syncService.SubscribedServers()
	channels := h.syncService.SnapshotChannels()

	response.Success(c, gin.H{
		"agent_id":           h.syncService.AgentID().String(),
		"subscribed_servers": servers,
		"server_count":       len(servers),
		"valid_channels":     len(channels),
		"ws_clients":         h.hub.ConnectionCount(),
	})
}
