// Package provider 提供多后端 LLM 的统一接入：
// 注册表、按任务选择与降级、请求/响应规范化、用量追踪。
package provider

import (
	"context"
	"time"

	"contentforge-ai-api/internal/domain/entity"
)

// Health 单个后端的健康状态
type Health struct {
	OK        bool      `json:"ok"`
	LatencyMs int       `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// StreamChunk 流式生成的一个分片。
// 约定：流可能在最后返回 Content 为空但携带 Usage 的分片，用于 Token 统计。
type StreamChunk struct {
	Content      string
	FinishReason string
	Usage        *RawUsage
}

// StreamReader 流式分片读取器，读尽返回 io.EOF；调用方负责 Close
type StreamReader interface {
	Recv() (*StreamChunk, error)
	Close()
}

// Client 单个后端客户端必须满足的能力集。
// 具体实现（SDK、HTTP 细节）在 infrastructure 层。
type Client interface {
	Name() entity.ProviderName
	Generate(ctx context.Context, req *Request) (*RawResponse, error)
	GenerateStream(ctx context.Context, req *Request) (StreamReader, error)
	SupportsStreaming() bool
	TestConnection(ctx context.Context) error
	CheckHealth(ctx context.Context) (*Health, error)
	// EstimateCost 按 Token 数与模型估算花费 (USD)
	EstimateCost(inputTokens, outputTokens int, model string) float64
}

// ClientFactory 按配置实例化后端客户端
type ClientFactory interface {
	NewClient(setting *entity.ProviderSetting, apiKey string) (Client, error)
}
