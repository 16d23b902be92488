// Package coordinator 提供中央协调器的 HTTP 客户端
// 所有请求携带可选的 X-API-KEY 请求头，基地址经过回环校验
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agentloop/backend/internal/infrastructure/config"
	"github.com/agentloop/backend/internal/infrastructure/log"
)

// Client 协调器 HTTP 客户端
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient 创建协调器客户端
// 配置的 BaseURL 先经 SanitizeBaseURL 校验，非法配置回退默认值
func NewClient(cfg *config.CoordinatorConfig) *Client {
	baseURL := SanitizeBaseURL(cfg.BaseURL)

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetHeader("X-API-KEY", cfg.APIKey)
	}

	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		logger:  log.NewModuleLogger("coordinator", "client"),
	}
}

// BaseURL 返回校验后的基地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ChannelInfo 频道信息
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// agentServersResponse GET /agents/{id}/servers 响应
type agentServersResponse struct {
	Servers []string `json:"servers"`
}

// serverChannelsResponse GET /central-servers/{id}/channels 响应
type serverChannelsResponse struct {
	Channels []ChannelInfo `json:"channels"`
}

// channelParticipantsResponse GET /central-channels/{id}/participants 响应
type channelParticipantsResponse struct {
	Participants []string `json:"participants"`
}

// SubmitMessageRequest POST /submit 请求体
// Agent 生成的回复回传给协调器
type SubmitMessageRequest struct {
	ChannelID          string          `json:"channel_id"`
	ServerID           string          `json:"server_id"`
	AuthorID           string          `json:"author_id"`
	Content            string          `json:"content"`
	InReplyToMessageID string          `json:"in_reply_to_message_id,omitempty"`
	SourceType         string          `json:"source_type"`
	RawMessage         json.RawMessage `json:"raw_message,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
}

// CompleteRequest POST /complete 请求体
// 确认某频道/服务器对的一次处理已结束
type CompleteRequest struct {
	ChannelID string `json:"channel_id"`
	ServerID  string `json:"server_id"`
}

// GetAgentServers 列出 Agent 所属的服务器
func (c *Client) GetAgentServers(ctx context.Context, agentID string) ([]string, error) {
	var result agentServersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/messaging/agents/%s/servers", agentID))
	if err != nil {
		return nil, fmt.Errorf("fetch agent servers: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch agent servers: unexpected status %d", resp.StatusCode())
	}
	return result.Servers, nil
}

// GetServerChannels 列出服务器下的频道
func (c *Client) GetServerChannels(ctx context.Context, serverID string) ([]ChannelInfo, error) {
	var result serverChannelsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/messaging/central-servers/%s/channels", serverID))
	if err != nil {
		return nil, fmt.Errorf("fetch server channels: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch server channels: unexpected status %d", resp.StatusCode())
	}
	return result.Channels, nil
}

// GetChannelParticipants 列出频道参与者 ID
func (c *Client) GetChannelParticipants(ctx context.Context, channelID string) ([]string, error) {
	var result channelParticipantsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/messaging/central-channels/%s/participants", channelID))
	if err != nil {
		return nil, fmt.Errorf("fetch channel participants: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch channel participants: unexpected status %d", resp.StatusCode())
	}
	return result.Participants, nil
}

// ValidateChannel 验证频道是否存在
// 404 表示不存在（非错误），其他非 200 状态视为网络层失败
func (c *Client) ValidateChannel(ctx context.Context, channelID string) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/api/messaging/central-channels/%s/details", channelID))
	if err != nil {
		return false, fmt.Errorf("fetch channel details: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("fetch channel details: unexpected status %d", resp.StatusCode())
	}
}

// SubmitMessage 回传 Agent 生成的回复
func (c *Client) SubmitMessage(ctx context.Context, req *SubmitMessageRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/messaging/submit")
	if err != nil {
		return fmt.Errorf("submit message: %w", err)
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("submit message: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// NotifyComplete 通知协调器处理完成
func (c *Client) NotifyComplete(ctx context.Context, req *CompleteRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/messaging/complete")
	if err != nil {
		return fmt.Errorf("notify complete: %w", err)
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("notify complete: unexpected status %d", resp.StatusCode())
	}
	return nil
}
