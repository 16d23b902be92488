package wire

import (
	"database/sql"

	"log/slog"

	appKnowledge "github.com/agentloop/backend/internal/application/knowledge"
	appSync "github.com/agentloop/backend/internal/application/sync"
	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/infrastructure/config"
	applog "github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/watcher"
	"github.com/agentloop/backend/internal/infrastructure/websocket"
	"github.com/agentloop/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer  *interfaces.HTTPServer
	MCPServer   *interfaces.MCPServer
	wsHub       *websocket.Hub
	syncService *appSync.SyncService
	indexer     *appKnowledge.IndexerService
	initializer *appKnowledge.Initializer
	fileWatcher *watcher.FileWatcher
	eventBus    events.EventBus
	cfg         *config.Config
	db          *sql.DB
	logger      *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	syncService *appSync.SyncService,
	indexer *appKnowledge.IndexerService,
	initializer *appKnowledge.Initializer,
	fileWatcher *watcher.FileWatcher,
	eventBus events.EventBus,
	cfg *config.Config,
	db *sql.DB,
) *App {
	return &App{
		HTTPServer:  httpServer,
		MCPServer:   mcpServer,
		wsHub:       wsHub,
		syncService: syncService,
		indexer:     indexer,
		initializer: initializer,
		fileWatcher: fileWatcher,
		eventBus:    eventBus,
		cfg:         cfg,
		db:          db,
		logger:      applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting agentloop daemon")

	// 启动向量库（失败时知识检索降级，消息同步不受影响）
	if err := a.initializer.Initialize(); err != nil {
		a.logger.Error("Failed to initialize vector store, knowledge features degraded",
			"error", err,
		)
	}

	// 启动 WebSocket Hub
	a.wsHub.Start()

	// 索引器订阅知识文件事件
	a.indexer.Subscribe(a.eventBus)

	// 启动消息同步服务（订阅协调器事件 + 启动同步）
	if err := a.syncService.Start(); err != nil {
		a.logger.Error("Failed to start sync service",
			"error", err,
		)
	}

	// 启动知识目录监听
	if a.cfg.Knowledge.Watch && a.fileWatcher != nil {
		if err := a.fileWatcher.Start(); err != nil {
			a.logger.Error("Failed to start file watcher",
				"error", err,
			)
		} else {
			a.logger.Info("File watcher started")
		}
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("HTTP server stopped",
				"error", err,
			)
		}
	}()

	a.logger.Info("agentloop daemon started")

	// MCP 服务器通过 HTTP Handler 提供服务，不需要单独启动
	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping agentloop daemon")

	// 停止文件监听器
	if a.fileWatcher != nil {
		a.fileWatcher.Stop()
	}

	// 停止消息同步服务（等待在途消息处理完成）
	a.syncService.Stop()

	// 关闭事件总线
	a.eventBus.Close()

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
	}

	// 停止 WebSocket Hub（断开所有客户端）
	a.wsHub.Stop()

	// 停止自己拉起的 Qdrant 进程
	if err := a.initializer.Shutdown(); err != nil {
		a.logger.Error("Failed to stop vector store",
			"error", err,
		)
	}

	// 关闭数据库连接
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection",
				"error", err,
			)
			return err
		}
	}

	a.logger.Info("agentloop daemon stopped")
	return nil
}
