package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/backend/internal/domain/events"
	"github.com/agentloop/backend/internal/infrastructure/bus"
)

func TestIsSupportedFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/docs/notes.md", true},
		{"/docs/notes.markdown", true},
		{"/docs/notes.txt", true},
		{"/docs/NOTES.MD", true},
		{"/docs/image.png", false},
		{"/docs/data.json", false},
		{"/docs/noext", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSupportedFile(tt.path))
		})
	}
}

func TestFileWatcher_ClassifyPath(t *testing.T) {
	fw := &FileWatcher{
		config: WatchConfig{
			DocsDir:       "/data/docs",
			SharedDocsDir: "/data/shared",
		},
	}

	shared, ok := fw.classifyPath("/data/shared/guide.md")
	assert.True(t, ok)
	assert.True(t, shared)

	shared, ok = fw.classifyPath("/data/docs/guide.md")
	assert.True(t, ok)
	assert.False(t, shared)

	_, ok = fw.classifyPath("/elsewhere/guide.md")
	assert.False(t, ok)
}

// knowledgeRecorder 记录收到的知识文件事件
type knowledgeRecorder struct {
	mu     sync.Mutex
	events []*events.KnowledgeFileEvent
}

func (r *knowledgeRecorder) HandleEvent(event events.Event) error {
	if e, ok := event.(*events.KnowledgeFileEvent); ok {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	}
	return nil
}

func (r *knowledgeRecorder) snapshot() []*events.KnowledgeFileEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.KnowledgeFileEvent(nil), r.events...)
}

func TestFileWatcher_FullScanOnStart(t *testing.T) {
	docsDir := t.TempDir()
	sharedDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "a.md"), []byte("private doc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sharedDir, "b.md"), []byte("shared doc"), 0644))
	// 不支持的文件不应产生事件
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "skip.png"), []byte{0x89}, 0644))

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	recorder := &knowledgeRecorder{}
	eventBus.Subscribe(events.KnowledgeFileChanged, recorder)

	fw, err := NewFileWatcher(WatchConfig{
		DocsDir:       docsDir,
		SharedDocsDir: sharedDir,
		DebounceDelay: 50 * time.Millisecond,
	}, eventBus)
	require.NoError(t, err)

	require.NoError(t, fw.Start())
	defer fw.Stop()

	got := recorder.snapshot()
	require.Len(t, got, 2)

	sharedByPath := map[string]bool{}
	for _, e := range got {
		sharedByPath[filepath.Base(e.Path)] = e.Shared
		assert.False(t, e.Removed)
	}
	assert.False(t, sharedByPath["a.md"])
	assert.True(t, sharedByPath["b.md"])
}

func TestFileWatcher_DebouncedWrite(t *testing.T) {
	docsDir := t.TempDir()

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	recorder := &knowledgeRecorder{}
	eventBus.Subscribe(events.KnowledgeFileChanged, recorder)

	fw, err := NewFileWatcher(WatchConfig{
		DocsDir:       docsDir,
		DebounceDelay: 100 * time.Millisecond,
	}, eventBus)
	require.NoError(t, err)

	require.NoError(t, fw.Start())
	defer fw.Stop()

	time.Sleep(50 * time.Millisecond)

	testFile := filepath.Join(docsDir, "note.md")
	require.NoError(t, os.WriteFile(testFile, []byte("initial"), 0644))

	// 快速多次写入应被防抖合并
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, os.WriteFile(testFile, []byte("update"), 0644))
	}

	time.Sleep(300 * time.Millisecond)

	count := len(recorder.snapshot())
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 2, "events should be debounced")
}

func TestFileWatcher_RemoveEmitsRemovedEvent(t *testing.T) {
	docsDir := t.TempDir()

	testFile := filepath.Join(docsDir, "gone.md")
	require.NoError(t, os.WriteFile(testFile, []byte("doomed"), 0644))

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	recorder := &knowledgeRecorder{}
	eventBus.Subscribe(events.KnowledgeFileRemoved, recorder)

	fw, err := NewFileWatcher(WatchConfig{
		DocsDir:       docsDir,
		DebounceDelay: 50 * time.Millisecond,
	}, eventBus)
	require.NoError(t, err)

	require.NoError(t, fw.Start())
	defer fw.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(testFile))

	assert.Eventually(t, func() bool {
		for _, e := range recorder.snapshot() {
			if e.Removed && filepath.Base(e.Path) == "gone.md" {
				return true
			}
		}
		return false
	}, 2*time.Second, 50*time.Millisecond)
}
