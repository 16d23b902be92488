package watcher

import "github.com/google/wire"

// ProviderSet 文件监听器 ProviderSet
var ProviderSet = wire.NewSet(NewWatchConfig, NewFileWatcher)
