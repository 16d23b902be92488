package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/agentloop/backend/internal/infrastructure/config"
)

// GetDBPath 获取数据库路径
// 默认 <dataDir>/agentloop.db
func GetDBPath(cfg *config.DatabaseConfig) string {
	if cfg != nil && cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(config.GetDataDir(), "agentloop.db")
}

// OpenDB 打开数据库连接并初始化表结构
func OpenDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dbPath := GetDBPath(cfg)

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// initSchema 初始化表结构
// 主键约束是幂等创建的基础：重复创建返回唯一约束错误，
// 调用方通过 IsUniqueConstraint 将其视为成功
func initSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS worlds (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			server_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			name TEXT,
			source TEXT,
			type TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			names TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			world_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_room ON memories(room_id);`,
		`CREATE TABLE IF NOT EXISTS knowledge_documents (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			path TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			is_shared INTEGER NOT NULL,
			source TEXT,
			doc_type TEXT,
			fragment_count INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_fragments (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			point_id TEXT NOT NULL,
			is_shared INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_document ON knowledge_fragments(document_id);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}
