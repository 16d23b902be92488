package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentloop/backend/internal/infrastructure/config"
	applog "github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/singleton"
	"github.com/agentloop/backend/internal/wire"
)

func main() {
	// 初始化日志系统
	applog.Init(nil)

	// 加载配置获取端口
	cfg := config.NewConfig()
	port := cfg.Server.HTTPPort

	// 单例锁检查：尝试获取端口锁
	listener, err := singleton.CheckAndLock(port)
	if err != nil {
		log.Fatalf("singleton check failed: %v", err)
	}
	if listener == nil {
		// 已有实例运行，直接退出
		log.Println("another instance is already running, exiting")
		os.Exit(0)
	}
	// 关闭临时 listener，实际监听由 HTTP 服务器负责
	_ = listener.Close()

	// Wire 自动生成的初始化函数
	app, err := wire.InitializeAll()
	if err != nil {
		applog.GetLogger().Error("Failed to initialize application",
			"error", err,
		)
		os.Exit(1)
	}

	// 启动所有服务
	if err := app.Start(); err != nil {
		applog.GetLogger().Error("Failed to start application",
			"error", err,
		)
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	applog.GetLogger().Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		applog.GetLogger().Error("Error during application shutdown",
			"error", err,
		)
	}
	applog.GetLogger().Info("Application stopped")
}
