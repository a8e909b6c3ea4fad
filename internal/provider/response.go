package provider

import "encoding/json"

// FinishReason 规范化的生成终止原因
type FinishReason string

const (
	FinishCompleted    FinishReason = "completed"
	FinishMaxTokens    FinishReason = "max_tokens"
	FinishToolCalls    FinishReason = "tool_calls"
	FinishFiltered     FinishReason = "filtered"
	FinishStopSequence FinishReason = "stop_sequence"
	FinishIncomplete   FinishReason = "incomplete"
	FinishUnknown      FinishReason = "unknown"
)

// finishReasonTable 各后端词表 -> 规范枚举
var finishReasonTable = map[string]FinishReason{
	// OpenAI 系
	"stop":            FinishCompleted,
	"length":          FinishMaxTokens,
	"tool_calls":      FinishToolCalls,
	"function_call":   FinishToolCalls,
	"content_filter":  FinishFiltered,
	// Anthropic
	"end_turn":        FinishCompleted,
	"max_tokens":      FinishMaxTokens,
	"tool_use":        FinishToolCalls,
	"stop_sequence":   FinishStopSequence,
	"refusal":         FinishFiltered,
	// Gemini
	"STOP":            FinishCompleted,
	"MAX_TOKENS":      FinishMaxTokens,
	"SAFETY":          FinishFiltered,
	"RECITATION":      FinishFiltered,
	"PROHIBITED_CONTENT": FinishFiltered,
	// 其它常见变体
	"complete":        FinishCompleted,
	"COMPLETE":        FinishCompleted,
	"done":            FinishCompleted,
	"incomplete":      FinishIncomplete,
	"partial":         FinishIncomplete,
}

// NormalizeFinishReason 表查找归一化终止原因。
// 空值归为 unknown；未收录的值原样透传。
func NormalizeFinishReason(reason string) FinishReason {
	if reason == "" {
		return FinishUnknown
	}
	if mapped, ok := finishReasonTable[reason]; ok {
		return mapped
	}
	return FinishReason(reason)
}

// Usage 规范化的用量统计
type Usage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	ReasoningTokens     int     `json:"reasoning_tokens,omitempty"`
	ThinkingTokens      int     `json:"thinking_tokens,omitempty"`
	CacheCreationTokens int     `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int     `json:"cache_read_tokens,omitempty"`
	TotalTokens         int     `json:"total_tokens"`
	CostUSD             float64 `json:"cost_usd"`
	LatencyMs           int     `json:"latency_ms"`
}

// SearchResult 联网检索结果
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ToolCall 工具调用
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Metadata 规范化的响应元数据
type Metadata struct {
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
	FinishReason     FinishReason   `json:"finish_reason"`
	Reasoning        string         `json:"reasoning,omitempty"`
	Thinking         string         `json:"thinking,omitempty"`
	SearchResults    []SearchResult `json:"search_results,omitempty"`
	Citations        []string       `json:"citations,omitempty"`
	RelatedQuestions []string       `json:"related_questions,omitempty"`
	CacheHit         bool           `json:"cache_hit,omitempty"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ResponseID       string         `json:"response_id,omitempty"`
	Errors           []string       `json:"errors,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	// 降级选择时置位：Fallback 为真且 OriginalProvider 指向首选后端
	Fallback         bool           `json:"fallback,omitempty"`
	OriginalProvider string         `json:"original_provider,omitempty"`
}

// Response 规范化的生成响应
type Response struct {
	Content  string   `json:"content"`
	Usage    Usage    `json:"usage"`
	Metadata Metadata `json:"metadata"`
}

// RawUsage 后端客户端上报的原始用量（缺省字段为零值）
type RawUsage struct {
	InputTokens         int
	OutputTokens        int
	ReasoningTokens     int
	ThinkingTokens      int
	CacheCreationTokens int
	CacheReadTokens     int
	TotalTokens         int
	CostUSD             float64
}

// RawResponse 后端客户端返回的半结构化结果，
// 各字段均允许缺省，由 NormalizeResponse 兜底。
type RawResponse struct {
	Content          string
	Usage            *RawUsage
	FinishReason     string
	Reasoning        string
	Thinking         string
	SearchResults    []SearchResult
	Citations        []string
	RelatedQuestions []string
	CacheHit         bool
	ToolCalls        []ToolCall
	ResponseID       string
	Warnings         []string
}

// NormalizeResponse 将后端原始结果映射为规范响应。
// 容忍 nil 结果/缺省用量；TotalTokens 缺省时按
// input+output+reasoning+thinking 重算。
func NormalizeResponse(raw *RawResponse, provider, model string) *Response {
	resp := &Response{
		Metadata: Metadata{
			Provider:     provider,
			Model:        model,
			FinishReason: FinishUnknown,
		},
	}
	if raw == nil {
		return resp
	}

	resp.Content = raw.Content
	resp.Metadata.FinishReason = NormalizeFinishReason(raw.FinishReason)
	resp.Metadata.Reasoning = raw.Reasoning
	resp.Metadata.Thinking = raw.Thinking
	resp.Metadata.SearchResults = raw.SearchResults
	resp.Metadata.Citations = raw.Citations
	resp.Metadata.RelatedQuestions = raw.RelatedQuestions
	resp.Metadata.CacheHit = raw.CacheHit
	resp.Metadata.ToolCalls = raw.ToolCalls
	resp.Metadata.ResponseID = raw.ResponseID
	resp.Metadata.Warnings = raw.Warnings

	if raw.Usage != nil {
		resp.Usage = Usage{
			InputTokens:         raw.Usage.InputTokens,
			OutputTokens:        raw.Usage.OutputTokens,
			ReasoningTokens:     raw.Usage.ReasoningTokens,
			ThinkingTokens:      raw.Usage.ThinkingTokens,
			CacheCreationTokens: raw.Usage.CacheCreationTokens,
			CacheReadTokens:     raw.Usage.CacheReadTokens,
			TotalTokens:         raw.Usage.TotalTokens,
			CostUSD:             raw.Usage.CostUSD,
		}
	}
	if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens +
			resp.Usage.ReasoningTokens + resp.Usage.ThinkingTokens
	}
	return resp
}

// accumulateUsage 流式分片用量累加
func accumulateUsage(total *RawUsage, chunk *RawUsage) {
	if chunk == nil {
		return
	}
	total.InputTokens += chunk.InputTokens
	total.OutputTokens += chunk.OutputTokens
	total.ReasoningTokens += chunk.ReasoningTokens
	total.ThinkingTokens += chunk.ThinkingTokens
	total.CacheCreationTokens += chunk.CacheCreationTokens
	total.CacheReadTokens += chunk.CacheReadTokens
	total.TotalTokens += chunk.TotalTokens
	total.CostUSD += chunk.CostUSD
}
