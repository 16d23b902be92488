// Package watcher 监听知识库目录的文件变化
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/log"
)

// WatchConfig FileWatcher 配置
type WatchConfig struct {
	// DocsDir 私有知识目录
	DocsDir string
	// SharedDocsDir 共享知识目录
	SharedDocsDir string
	// DebounceDelay 防抖延迟
	DebounceDelay time.Duration
}

// NewWatchConfig 从知识库配置构建监听配置
func NewWatchConfig(cfg *config.KnowledgeConfig) WatchConfig {
	return WatchConfig{
		DocsDir:       cfg.DocsDir,
		SharedDocsDir: cfg.SharedDocsDir,
		DebounceDelay: 500 * time.Millisecond,
	}
}

// FileWatcher 知识库文件监听器
type FileWatcher struct {
	config   WatchConfig
	eventBus events.EventBus
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// 防抖相关
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFileWatcher 创建文件监听器
func NewFileWatcher(config WatchConfig, eventBus events.EventBus) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		config:         config,
		eventBus:       eventBus,
		watcher:        watcher,
		logger:         log.NewModuleLogger("watcher", "file_watcher"),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 启动文件监听
func (fw *FileWatcher) Start() error {
	fw.logger.Info("Starting file watcher",
		"docs_dir", fw.config.DocsDir,
		"shared_docs_dir", fw.config.SharedDocsDir,
	)

	// 启动时全量扫描，保证已有文档进入索引
	fw.performFullScan()

	if err := fw.addWatchDirs(); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.watchLoop()

	return nil
}

// Stop 停止文件监听
func (fw *FileWatcher) Stop() {
	fw.logger.Info("Stopping file watcher")

	close(fw.stopCh)
	fw.watcher.Close()
	fw.wg.Wait()

	// 取消所有防抖定时器
	fw.debounceMu.Lock()
	for _, timer := range fw.debounceTimers {
		timer.Stop()
	}
	fw.debounceMu.Unlock()

	fw.logger.Info("File watcher stopped")
}

// performFullScan 全量扫描两个知识目录
func (fw *FileWatcher) performFullScan() {
	startTime := time.Now()

	privateCount := fw.scanDirectory(fw.config.DocsDir, false)
	sharedCount := fw.scanDirectory(fw.config.SharedDocsDir, true)

	fw.logger.Info("Full scan completed",
		"private_docs", privateCount,
		"shared_docs", sharedCount,
		"duration", time.Since(startTime),
	)
}

// scanDirectory 扫描单个知识目录
func (fw *FileWatcher) scanDirectory(dir string, shared bool) int {
	count := 0

	if dir == "" {
		return count
	}

	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // 忽略无法访问的条目
		}
		if info.IsDir() || !IsSupportedFile(path) {
			return nil
		}

		fw.eventBus.Publish(&events.KnowledgeFileEvent{
			Path:   path,
			Shared: shared,
			At:     time.Now(),
		})
		count++
		return nil
	})

	return count
}

// addWatchDirs 添加监听目录
func (fw *FileWatcher) addWatchDirs() error {
	for _, dir := range []string{fw.config.DocsDir, fw.config.SharedDocsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			fw.logger.Warn("Failed to create knowledge directory", "dir", dir, "error", err)
			continue
		}
		if err := fw.addDirRecursive(dir); err != nil {
			fw.logger.Warn("Failed to add knowledge directory to watch", "dir", dir, "error", err)
		}
	}

	return nil
}

// addDirRecursive 递归添加目录监听
func (fw *FileWatcher) addDirRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // 忽略无法访问的目录
		}

		if info.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				fw.logger.Debug("Failed to add directory to watch",
					"path", path,
					"error", err,
				)
			} else {
				fw.logger.Debug("Added directory to watch", "path", path)
			}
		}
		return nil
	})
}

// watchLoop 事件监听循环
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件
func (fw *FileWatcher) handleFsEvent(event fsnotify.Event) {
	// 新创建的子目录需要补充监听
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			fw.addDirRecursive(event.Name)
			return
		}
	}

	if !IsSupportedFile(event.Name) {
		return
	}

	fw.debounceFileEvent(event)
}

// debounceFileEvent 文件事件防抖：编辑器保存往往触发一串事件
func (fw *FileWatcher) debounceFileEvent(fsEvent fsnotify.Event) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.debounceTimers[fsEvent.Name]; exists {
		timer.Stop()
	}

	fw.debounceTimers[fsEvent.Name] = time.AfterFunc(fw.config.DebounceDelay, func() {
		fw.emitFileEvent(fsEvent)

		fw.debounceMu.Lock()
		delete(fw.debounceTimers, fsEvent.Name)
		fw.debounceMu.Unlock()
	})
}

// emitFileEvent 发送知识文件事件
func (fw *FileWatcher) emitFileEvent(fsEvent fsnotify.Event) {
	shared, ok := fw.classifyPath(fsEvent.Name)
	if !ok {
		return
	}

	removed := false
	switch {
	case fsEvent.Has(fsnotify.Remove) || fsEvent.Has(fsnotify.Rename):
		removed = true
	case fsEvent.Has(fsnotify.Create) || fsEvent.Has(fsnotify.Write):
		// 防抖窗口内文件可能又被删掉
		if _, err := os.Stat(fsEvent.Name); err != nil {
			removed = true
		}
	default:
		return
	}

	fw.eventBus.Publish(&events.KnowledgeFileEvent{
		Path:    fsEvent.Name,
		Shared:  shared,
		Removed: removed,
		At:      time.Now(),
	})

	fw.logger.Debug("Knowledge file event emitted",
		"path", fsEvent.Name,
		"shared", shared,
		"removed", removed,
	)
}

// classifyPath 判断路径属于哪个知识目录
func (fw *FileWatcher) classifyPath(path string) (shared bool, ok bool) {
	if fw.config.SharedDocsDir != "" && isUnderDir(path, fw.config.SharedDocsDir) {
		return true, true
	}
	if fw.config.DocsDir != "" && isUnderDir(path, fw.config.DocsDir) {
		return false, true
	}
	return false, false
}

func isUnderDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// IsSupportedFile 判断是否为受支持的知识文档
func IsSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}
