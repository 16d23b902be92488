package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/interfaces/http/handler"
	"github.com/agentloop/backend/internal/interfaces/http/middleware"
	"github.com/agentloop/backend/internal/interfaces/mcp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverCfg *config.ServerConfig,
	knowledgeHandler *handler.KnowledgeHandler,
	syncHandler *handler.SyncHandler,
	wsHandler *handler.WSHandler,
	eventsHandler *handler.EventsHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.EnsureUTF8Body())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		knowledge := api.Group("/knowledge")
		{
			knowledge.POST("/search", knowledgeHandler.Search)
			knowledge.POST("/index", knowledgeHandler.Index)
			knowledge.GET("/stats", knowledgeHandler.Stats)
			knowledge.DELETE("/data", knowledgeHandler.Clear)
		}

		api.GET("/sync/status", syncHandler.Status)
		api.POST("/events", eventsHandler.Ingest)
	}

	// 健康检查，同时用于单例探测
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 活动流 WebSocket
	router.GET("/ws", wsHandler.Handle)

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: serverCfg.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
