package knowledge

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/vector"
)

// Initializer 向量库生命周期初始化器
// 负责启动本地 Qdrant 进程（或连接已运行实例）并确保集合存在
type Initializer struct {
	qdrantManager *vector.QdrantManager
	embeddingCfg  *config.EmbeddingConfig
	logger        *slog.Logger

	started bool
}

// NewInitializer 创建初始化器
func NewInitializer(qdrantManager *vector.QdrantManager, embeddingCfg *config.EmbeddingConfig) *Initializer {
	return &Initializer{
		qdrantManager: qdrantManager,
		embeddingCfg:  embeddingCfg,
		logger:        log.NewModuleLogger("knowledge", "initializer"),
	}
}

// Initialize 启动向量库并准备集合
// 本地二进制不存在时尝试连接已运行的实例
func (i *Initializer) Initialize() error {
	binaryPath := i.qdrantManager.GetBinaryPath()

	if _, err := os.Stat(binaryPath); err == nil {
		if err := i.qdrantManager.Start(); err != nil {
			return fmt.Errorf("start qdrant: %w", err)
		}
		i.started = true
	} else {
		i.logger.Warn("Qdrant binary not found, connecting to external instance",
			"binary_path", binaryPath,
		)
		if err := i.qdrantManager.Connect(); err != nil {
			return fmt.Errorf("connect to qdrant: %w", err)
		}
	}

	vectorSize := i.embeddingCfg.VectorSize
	if vectorSize == 0 {
		vectorSize = 1536
	}

	if err := i.qdrantManager.EnsureCollections(vectorSize); err != nil {
		return fmt.Errorf("ensure collections: %w", err)
	}

	i.logger.Info("Vector store initialized",
		"local_process", i.started,
		"vector_size", vectorSize,
	)
	return nil
}

// Shutdown 停止向量库
// 只停掉自己启动的本地进程，外部实例保持运行
func (i *Initializer) Shutdown() error {
	if !i.started {
		return nil
	}
	return i.qdrantManager.Stop()
}
