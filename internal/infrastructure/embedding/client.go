// Package embedding 提供 OpenAI 兼容的向量化 API 客户端
package embedding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/log"
)

// Client Embedding API 客户端
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 Embedding 客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	// 规范化 baseURL：移除末尾斜杠
	normalizedURL := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		baseURL: normalizedURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.NewModuleLogger("embedding", "client"),
	}
}

// buildEmbeddingURL 构建 Embedding API URL
// 支持多种输入格式，智能拼接 /v1/embeddings 路径
func buildEmbeddingURL(baseURL string) string {
	// 已包含完整路径，直接使用
	if strings.Contains(baseURL, "/v1/embeddings") {
		return baseURL
	}

	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/embeddings"
	}

	if strings.HasSuffix(baseURL, "/v1/") {
		return baseURL + "embeddings"
	}

	return fmt.Sprintf("%s/v1/embeddings", baseURL)
}

// EmbeddingRequest Embedding 请求
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse Embedding 响应
type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedText 向量化单条文本
func (c *Client) EmbedText(text string) ([]float32, error) {
	vectors, err := c.EmbedTexts([]string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("invalid embedding result")
	}
	return vectors[0], nil
}

// EmbedTexts 批量向量化文本
func (c *Client) EmbedTexts(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	// OpenAI embeddings API 批量限制：每次最多 2048 个文本
	const maxBatchSize = 2048
	const maxRetriesPerBatch = 3

	if len(texts) <= maxBatchSize {
		return c.embedTextsWithRetry(texts, maxRetriesPerBatch)
	}

	c.logger.Info("Splitting texts into batches",
		"total_texts", len(texts),
		"batch_limit", maxBatchSize,
	)

	allVectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		batchNum := (i / maxBatchSize) + 1

		vectors, err := c.embedTextsWithRetry(batch, maxRetriesPerBatch)
		if err != nil {
			c.logger.Error("Failed to embed batch",
				"batch", batchNum,
				"error", err,
			)
			return nil, fmt.Errorf("failed to embed batch %d: %w", batchNum, err)
		}

		allVectors = append(allVectors, vectors...)
	}

	return allVectors, nil
}

// embedTextsWithRetry 带重试的嵌入处理
func (c *Client) embedTextsWithRetry(texts []string, maxRetries int) ([][]float32, error) {
	reqBody := EmbeddingRequest{
		Model: c.model,
		Input: texts,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := buildEmbeddingURL(c.baseURL)

	c.logger.Debug("Sending embedding request",
		"url", url,
		"batch_size", len(texts),
		"model", c.model,
		"api_key", maskAPIKey(c.apiKey),
	)

	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		req, err := http.NewRequest("POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		} else {
			vectors, err := decodeEmbeddingResponse(resp.Body, len(texts))
			resp.Body.Close()
			return vectors, err
		}

		if retry < maxRetries-1 {
			c.logger.Warn("Embedding request failed, retrying",
				"attempt", retry+1,
				"max_retries", maxRetries,
				"error", lastErr,
			)
			time.Sleep(time.Duration(retry+1) * time.Second) // 递增延迟
		}
	}

	c.logger.Error("Embedding request failed after all retries",
		"max_retries", maxRetries,
		"error", lastErr,
	)
	return nil, fmt.Errorf("failed to embed texts: %w", lastErr)
}

// decodeEmbeddingResponse 解析响应并按 index 归位向量
func decodeEmbeddingResponse(body io.Reader, expected int) ([][]float32, error) {
	var embeddingResp EmbeddingResponse
	if err := json.NewDecoder(body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	vectors := make([][]float32, expected)
	for _, data := range embeddingResp.Data {
		if data.Index >= 0 && data.Index < expected {
			vectors[data.Index] = data.Embedding
		}
	}
	return vectors, nil
}

// maskAPIKey API Key 脱敏
func maskAPIKey(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "***"
}

// GetVectorDimension 获取向量维度（通过测试请求）
func (c *Client) GetVectorDimension() (int, error) {
	vectors, err := c.EmbedTexts([]string{"test"})
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("invalid embedding response")
	}
	return len(vectors[0]), nil
}
