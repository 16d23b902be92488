// Package knowledge 实现知识文档的索引与检索
//
// 索引是两级的：整份文档一条向量，外加按 token 窗口切出的分块向量。
// 检索时以分块为主，文档级命中可选合并。
package knowledge

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器，避免运行期下载编码文件
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// 分块窗口参数（token 计）
const (
	// ChunkWindow 单个分块的窗口大小
	ChunkWindow = 512
	// ChunkOverlap 相邻分块的重叠量
	ChunkOverlap = 20
	// chunkStride 窗口步长
	chunkStride = ChunkWindow - ChunkOverlap
)

// Chunker 基于 cl100k_base 编码的文本分块器
type Chunker struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	chunkerInstance *Chunker
	chunkerOnce     sync.Once
	chunkerErr      error
)

// NewChunker 获取分块器单例
// 编码文件只加载一次
func NewChunker() (*Chunker, error) {
	chunkerOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			chunkerErr = err
			return
		}
		chunkerInstance = &Chunker{encoding: enc}
	})

	if chunkerErr != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", chunkerErr)
	}
	return chunkerInstance, nil
}

// CountTokens 计算文本的 token 数量
func (c *Chunker) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// Split 把文本切成重叠的 token 窗口并解码回文本
// 长度不超过一个窗口的文本恰好产生一个分块
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := c.encoding.Encode(text, nil, nil)
	windows := splitTokens(tokens, ChunkWindow, ChunkOverlap)

	chunks := make([]string, len(windows))
	for i, w := range windows {
		chunks[i] = c.encoding.Decode(w)
	}
	return chunks
}

// splitTokens 按窗口/重叠切分 token 序列
func splitTokens(tokens []int, window, overlap int) [][]int {
	if len(tokens) == 0 {
		return nil
	}

	stride := window - overlap
	length := len(tokens)

	var windows [][]int
	for start := 0; start == 0 || start < length-overlap; start += stride {
		end := start + window
		if end > length {
			end = length
		}
		windows = append(windows, tokens[start:end])
		if end == length {
			break
		}
	}
	return windows
}

// ChunkCount 给定 token 长度的文档会产生的分块数
// L ≤ window 时恰好 1 块，否则 ceil((L-overlap)/stride)
func ChunkCount(tokenCount int) int {
	if tokenCount <= 0 {
		return 0
	}
	if tokenCount <= ChunkWindow {
		return 1
	}
	return (tokenCount - ChunkOverlap + chunkStride - 1) / chunkStride
}
