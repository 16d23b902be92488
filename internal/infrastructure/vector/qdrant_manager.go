// Package vector 管理本地 Qdrant 向量数据库进程
package vector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/agentloop/backend/internal/infrastructure/config"
)

// 知识库使用的集合名称
const (
	DocumentCollection = "knowledge_documents"
	FragmentCollection = "knowledge_fragments"
)

// QdrantManager Qdrant 管理器
type QdrantManager struct {
	binaryPath string
	dataPath   string
	grpcPort   int
	httpPort   int
	cmd        *exec.Cmd
	client     *qdrant.Client
}

// NewQdrantManager 创建 Qdrant 管理器
func NewQdrantManager(cfg *config.QdrantConfig) *QdrantManager {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		binaryPath, _ = GetQdrantInstallPath()
	}
	dataPath := cfg.DataPath
	if dataPath == "" {
		dataPath, _ = GetQdrantDataPath()
	}

	return &QdrantManager{
		binaryPath: binaryPath,
		dataPath:   dataPath,
		grpcPort:   cfg.GRPCPort,
		httpPort:   cfg.HTTPPort,
	}
}

// GetBinaryPath 获取 Qdrant 二进制路径
func (q *QdrantManager) GetBinaryPath() string {
	return q.binaryPath
}

// GetDataPath 获取数据存储路径
func (q *QdrantManager) GetDataPath() string {
	return q.dataPath
}

// Start 启动 Qdrant 服务
func (q *QdrantManager) Start() error {
	// 确保数据目录存在
	if err := os.MkdirAll(q.dataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// 检查二进制文件是否存在
	if _, err := os.Stat(q.binaryPath); os.IsNotExist(err) {
		return fmt.Errorf("qdrant binary not found at %s", q.binaryPath)
	}

	args := []string{
		"--config-path", "/dev/null", // 使用命令行参数配置
		"--storage-path", q.dataPath,
		"--grpc-port", fmt.Sprintf("%d", q.grpcPort),
		"--http-port", fmt.Sprintf("%d", q.httpPort),
	}

	q.cmd = exec.Command(q.binaryPath, args...)
	q.cmd.Stdout = os.Stdout
	q.cmd.Stderr = os.Stderr

	if err := q.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start qdrant: %w", err)
	}

	// 等待服务就绪
	if err := q.waitForReady(10 * time.Second); err != nil {
		q.Stop()
		return fmt.Errorf("qdrant failed to become ready: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: "localhost",
		Port: q.grpcPort,
	})
	if err != nil {
		q.Stop()
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	q.client = client

	return nil
}

// Connect 连接到已运行的 Qdrant 实例（不启动本地进程）
func (q *QdrantManager) Connect() error {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: "localhost",
		Port: q.grpcPort,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	if _, err := client.ListCollections(context.Background()); err != nil {
		client.Close()
		return fmt.Errorf("qdrant not reachable on port %d: %w", q.grpcPort, err)
	}

	q.client = client
	return nil
}

// Stop 停止 Qdrant 服务
func (q *QdrantManager) Stop() error {
	if q.cmd != nil && q.cmd.Process != nil {
		if err := q.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill qdrant process: %w", err)
		}
		q.cmd.Wait()
		q.cmd = nil
	}

	if q.client != nil {
		q.client.Close()
		q.client = nil
	}

	return nil
}

// GetClient 获取 Qdrant 客户端
func (q *QdrantManager) GetClient() *qdrant.Client {
	return q.client
}

// waitForReady 等待 Qdrant 服务就绪
func (q *QdrantManager) waitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host: "localhost",
			Port: q.grpcPort,
		})
		if err == nil {
			// 测试连接：尝试列出集合
			_, err = client.ListCollections(context.Background())
			if err == nil {
				client.Close()
				return nil
			}
			client.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for qdrant to be ready")
}

// EnsureCollections 确保知识库集合存在
func (q *QdrantManager) EnsureCollections(vectorSize uint64) error {
	if q.client == nil {
		return fmt.Errorf("qdrant client not initialized")
	}

	collections := []string{DocumentCollection, FragmentCollection}
	ctx := context.Background()

	existingCollections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	collectionMap := make(map[string]bool)
	for _, name := range existingCollections {
		collectionMap[name] = true
	}

	for _, collectionName := range collections {
		if !collectionMap[collectionName] {
			err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: collectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     vectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				return fmt.Errorf("failed to create collection %s: %w", collectionName, err)
			}
		}
	}

	return nil
}

// GetQdrantInstallPath 获取 Qdrant 安装路径
func GetQdrantInstallPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	binaryName := "qdrant"
	if runtime.GOOS == "windows" {
		binaryName = "qdrant.exe"
	}

	installPath := filepath.Join(homeDir, ".agentloop", "bin", "qdrant", binaryName)
	return installPath, nil
}

// GetQdrantDataPath 获取 Qdrant 数据路径
func GetQdrantDataPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dataPath := filepath.Join(homeDir, ".agentloop", "data", "qdrant")
	return dataPath, nil
}
