// Package config 提供守护进程配置的加载与访问
// 配置来源优先级：环境变量 > 配置文件 > 代码默认值
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Agent       AgentConfig       `yaml:"agent"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Qdrant      QdrantConfig      `yaml:"qdrant"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTPPort 固定端口，同时用于单例锁
	HTTPPort string `yaml:"http_port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path SQLite 数据库路径，留空表示使用数据目录下的默认位置
	Path string `yaml:"path"`
}

// AgentConfig Agent 身份配置
type AgentConfig struct {
	// ID Agent 的 UUID，作为所有本地 ID 派生的命名空间
	ID string `yaml:"id"`
	// Name Agent 展示名称
	Name string `yaml:"name"`
}

// CoordinatorConfig 中央协调器配置
type CoordinatorConfig struct {
	// BaseURL 协调器地址，仅允许 localhost 回环地址
	// 非法配置会在客户端侧回退到安全默认值
	BaseURL string `yaml:"base_url"`
	// APIKey 请求头 X-API-KEY，通常由环境变量 AGENTLOOP_API_KEY 注入
	APIKey string `yaml:"api_key"`
}

// EmbeddingConfig Embedding 服务配置
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// VectorSize 向量维度，需与模型输出一致
	VectorSize uint64 `yaml:"vector_size"`
}

// KnowledgeConfig 知识库配置
type KnowledgeConfig struct {
	// DocsDir 私有知识文档目录
	DocsDir string `yaml:"docs_dir"`
	// SharedDocsDir 共享知识文档目录（跨 Agent 可见）
	SharedDocsDir string `yaml:"shared_docs_dir"`
	// Watch 是否监听目录变化自动重建索引
	Watch bool `yaml:"watch"`
}

// QdrantConfig Qdrant 配置
type QdrantConfig struct {
	// BinaryPath Qdrant 二进制路径，留空表示使用数据目录下的默认位置
	BinaryPath string `yaml:"binary_path"`
	// DataPath Qdrant 存储路径
	DataPath string `yaml:"data_path"`
	// GRPCPort gRPC 端口
	GRPCPort int `yaml:"grpc_port"`
	// HTTPPort HTTP 端口
	HTTPPort int `yaml:"http_port"`
}

// NewConfig 创建配置（默认值 + 配置文件 + 环境变量）
func NewConfig() *Config {
	cfg := defaultConfig()

	// 配置文件覆盖默认值，文件不存在不是错误
	if err := loadConfigFile(cfg); err != nil {
		// 配置文件损坏时继续使用默认值
		fmt.Fprintf(os.Stderr, "warning: failed to load config file: %v\n", err)
	}

	applyEnvOverrides(cfg)

	// Agent ID 是所有本地 ID 派生的命名空间，未配置时生成临时身份，
	// 重启后派生结果会变化
	if cfg.Agent.ID == "" {
		cfg.Agent.ID = uuid.NewString()
		fmt.Fprintf(os.Stderr, "warning: agent id not configured, generated ephemeral identity %s\n", cfg.Agent.ID)
	}

	return cfg
}

// defaultConfig 代码内置默认值
func defaultConfig() *Config {
	dataDir := GetDataDir()
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19970",
		},
		Database: DatabaseConfig{
			Path: "", // 空表示 <dataDir>/agentloop.db
		},
		Agent: AgentConfig{
			ID:   "",
			Name: "agent",
		},
		Coordinator: CoordinatorConfig{
			BaseURL: "http://localhost:3000",
			APIKey:  "",
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com",
			Model:      "text-embedding-3-small",
			VectorSize: 1536,
		},
		Knowledge: KnowledgeConfig{
			DocsDir:       filepath.Join(dataDir, "docs"),
			SharedDocsDir: filepath.Join(dataDir, "docs-shared"),
			Watch:         true,
		},
		Qdrant: QdrantConfig{
			BinaryPath: "",
			DataPath:   filepath.Join(dataDir, "data", "qdrant"),
			GRPCPort:   6334,
			HTTPPort:   6333,
		},
	}
}

// ConfigFilePath 配置文件路径
func ConfigFilePath() string {
	return filepath.Join(GetDataDir(), "config.yaml")
}

// loadConfigFile 从数据目录读取 config.yaml
func loadConfigFile(cfg *Config) error {
	data, err := os.ReadFile(ConfigFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyEnvOverrides 环境变量覆盖
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTLOOP_AGENT_ID"); v != "" {
		cfg.Agent.ID = v
	}
	if v := os.Getenv("AGENTLOOP_AGENT_NAME"); v != "" {
		cfg.Agent.Name = v
	}
	if v := os.Getenv("AGENTLOOP_COORDINATOR_URL"); v != "" {
		cfg.Coordinator.BaseURL = v
	}
	// X-API-KEY 密钥优先从环境变量读取，避免落盘
	if v := os.Getenv("AGENTLOOP_API_KEY"); v != "" {
		cfg.Coordinator.APIKey = v
	}
	if v := os.Getenv("AGENTLOOP_EMBEDDING_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("AGENTLOOP_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("AGENTLOOP_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewAgentConfig 创建 Agent 配置
func NewAgentConfig(cfg *Config) *AgentConfig {
	return &cfg.Agent
}

// NewCoordinatorConfig 创建协调器配置
func NewCoordinatorConfig(cfg *Config) *CoordinatorConfig {
	return &cfg.Coordinator
}

// NewEmbeddingConfig 创建 Embedding 配置
func NewEmbeddingConfig(cfg *Config) *EmbeddingConfig {
	return &cfg.Embedding
}

// NewKnowledgeConfig 创建知识库配置
func NewKnowledgeConfig(cfg *Config) *KnowledgeConfig {
	return &cfg.Knowledge
}

// NewQdrantConfig 创建 Qdrant 配置
func NewQdrantConfig(cfg *Config) *QdrantConfig {
	return &cfg.Qdrant
}
