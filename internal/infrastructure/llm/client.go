package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"contentforge-ai-api/internal/domain/entity"
	einoobs "contentforge-ai-api/internal/observability/eino"
	"contentforge-ai-api/internal/provider"
)

// EinoClient 单个后端的 Eino ChatModel 客户端。
// 同一后端按模型名惰性缓存多个 ChatModel 实例。
type EinoClient struct {
	name         entity.ProviderName
	apiKey       string
	baseURL      string
	defaultModel string
	maxTokens    int
	timeout      time.Duration

	mu     sync.RWMutex
	models map[string]model.BaseChatModel
}

// Name 后端标识
func (c *EinoClient) Name() entity.ProviderName {
	return c.name
}

// chatModel 获取指定模型的 ChatModel，未创建时惰性加载
func (c *EinoClient) chatModel(ctx context.Context, modelName string) (model.BaseChatModel, error) {
	if modelName == "" {
		modelName = c.defaultModel
	}

	c.mu.RLock()
	m, ok := c.models[modelName]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = c.models[modelName]; ok {
		return m, nil
	}

	cfg := &openai.ChatModelConfig{
		APIKey:  c.apiKey,
		BaseURL: c.baseURL,
		Model:   modelName,
		Timeout: c.timeout,
	}
	if c.maxTokens > 0 {
		cfg.MaxTokens = &c.maxTokens
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %s/%s: %w", c.name, modelName, err)
	}

	c.models[modelName] = chatModel
	return chatModel, nil
}

// Generate 执行一次非流式生成
func (c *EinoClient) Generate(ctx context.Context, req *provider.Request) (*provider.RawResponse, error) {
	chatModel, err := c.chatModel(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	ctx = einoobs.WithProvider(ctx, string(c.name))
	outMsg, err := chatModel.Generate(ctx, buildMessages(req), buildModelOptions(req)...)
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	return rawFromMessage(outMsg), nil
}

// GenerateStream 执行一次流式生成；调用方负责读尽并 Close
func (c *EinoClient) GenerateStream(ctx context.Context, req *provider.Request) (provider.StreamReader, error) {
	chatModel, err := c.chatModel(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	ctx = einoobs.WithProvider(ctx, string(c.name))
	sr, err := chatModel.Stream(ctx, buildMessages(req), buildModelOptions(req)...)
	if err != nil {
		return nil, err
	}
	return &einoStream{sr: sr}, nil
}

// SupportsStreaming OpenAI 兼容接入点均支持流式
func (c *EinoClient) SupportsStreaming() bool {
	return true
}

// TestConnection 以最小生成验证凭证与连通性
func (c *EinoClient) TestConnection(ctx context.Context) error {
	chatModel, err := c.chatModel(ctx, c.defaultModel)
	if err != nil {
		return err
	}
	_, err = chatModel.Generate(ctx,
		[]*schema.Message{schema.UserMessage("ping")},
		model.WithMaxTokens(1))
	return err
}

// CheckHealth 实时健康检查
func (c *EinoClient) CheckHealth(ctx context.Context) (*provider.Health, error) {
	start := time.Now()
	err := c.TestConnection(ctx)
	health := &provider.Health{
		OK:        err == nil,
		LatencyMs: int(time.Since(start).Milliseconds()),
		CheckedAt: time.Now(),
	}
	if err != nil {
		health.Error = err.Error()
	}
	return health, nil
}

// einoStream 将 Eino StreamReader 适配为统一分片读取器。
// 约定：流可能在最后返回 Content 为空但携带 Usage 的消息。
type einoStream struct {
	sr *schema.StreamReader[*schema.Message]
}

func (s *einoStream) Recv() (*provider.StreamChunk, error) {
	msg, err := s.sr.Recv()
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return &provider.StreamChunk{}, nil
	}

	chunk := &provider.StreamChunk{Content: msg.Content}
	if msg.ResponseMeta != nil {
		chunk.FinishReason = msg.ResponseMeta.FinishReason
		if u := msg.ResponseMeta.Usage; u != nil {
			chunk.Usage = &provider.RawUsage{
				InputTokens:  u.PromptTokens,
				OutputTokens: u.CompletionTokens,
				TotalTokens:  u.TotalTokens,
			}
		}
	}
	return chunk, nil
}

func (s *einoStream) Close() {
	s.sr.Close()
}

// rawFromMessage 提取生成结果与用量
func rawFromMessage(msg *schema.Message) *provider.RawResponse {
	raw := &provider.RawResponse{Content: msg.Content}
	if msg.ResponseMeta != nil {
		raw.FinishReason = msg.ResponseMeta.FinishReason
		if u := msg.ResponseMeta.Usage; u != nil {
			raw.Usage = &provider.RawUsage{
				InputTokens:  u.PromptTokens,
				OutputTokens: u.CompletionTokens,
				TotalTokens:  u.TotalTokens,
			}
		}
	}
	return raw
}

// buildMessages 组装会话消息：系统指令、历史、当前 Prompt。
// 要求结构化输出时把 Schema 约束并入系统指令。
func buildMessages(req *provider.Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.ConversationHistory)+2)

	system := req.SystemInstruction
	if constraint := schemaConstraint(req); constraint != "" {
		if system != "" {
			system += "\n\n"
		}
		system += constraint
	}
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}

	for _, m := range req.ConversationHistory {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case "system":
			msgs = append(msgs, schema.SystemMessage(m.Content))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}

	msgs = append(msgs, schema.UserMessage(req.Prompt))
	return msgs
}

// schemaConstraint 结构化输出的系统指令片段
func schemaConstraint(req *provider.Request) string {
	if req.ResponseSchema != nil {
		if b, err := json.Marshal(req.ResponseSchema); err == nil {
			return "Respond with a single JSON document that conforms to this JSON Schema. " +
				"Do not include any text outside the JSON.\n" + string(b)
		}
	}
	if strings.EqualFold(req.ResponseFormat, "json") {
		return "Respond with a single valid JSON document. Do not include any text outside the JSON."
	}
	return ""
}

// buildModelOptions 请求级模型参数
func buildModelOptions(req *provider.Request) []model.Option {
	opts := make([]model.Option, 0, 3)
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Temperature)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	return opts
}
