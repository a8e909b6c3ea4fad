package provider

import (
	"strings"
	"time"
)

// 重试默认值
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
)

// Message 会话历史消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateConfig 调用方提交的原始生成配置。
// Options 是松散词表：既接受规范键，也接受各后端的历史别名。
type GenerateConfig struct {
	Task     string         `json:"task"`
	Prompt   string         `json:"prompt"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// Request 规范化后的生成请求。
// Extra 原样保留调用方的全部选项键（含 legacy 别名），
// 仍按旧键读取的后端客户端不受规范化影响。
type Request struct {
	Task     string
	Prompt   string
	Provider string
	Model    string

	Temperature         *float64
	MaxTokens           int
	TopP                *float64
	TopK                *int
	StopSequences       []string
	EnableCaching       bool
	EnableWebSearch     bool
	ReasoningEffort     string
	ThinkingBudget      int
	ResponseSchema      map[string]any
	ResponseFormat      string
	Images              []string
	SearchDomains       []string
	SearchRecency       string
	AcademicMode        bool
	SystemInstruction   string
	ConversationHistory []Message
	Vertical            string
	MaxRetries          int
	RetryDelayMs        int

	Extra map[string]any
}

// RetryDelay 返回重试间隔
func (r *Request) RetryDelay() time.Duration {
	return time.Duration(r.RetryDelayMs) * time.Millisecond
}

// optionAliases 规范键 -> 可接受的别名（含规范键本身，按优先级排列）
var optionAliases = map[string][]string{
	"temperature":         {"temperature"},
	"maxTokens":           {"maxTokens", "max_tokens", "max_output_tokens", "maxOutputTokens"},
	"topP":                {"topP", "top_p"},
	"topK":                {"topK", "top_k"},
	"stopSequences":       {"stopSequences", "stop_sequences", "stop"},
	"enableCaching":       {"enableCaching", "enable_caching", "cache"},
	"enableWebSearch":     {"enableWebSearch", "enable_web_search", "web_search"},
	"reasoningEffort":     {"reasoningEffort", "reasoning_effort", "reasoning.effort"},
	"thinkingBudget":      {"thinkingBudget", "thinking_budget", "budget_tokens"},
	"responseSchema":      {"responseSchema", "response_schema"},
	"responseFormat":      {"responseFormat", "response_format"},
	"images":              {"images"},
	"searchDomains":       {"searchDomains", "search_domains"},
	"searchRecency":       {"searchRecency", "search_recency"},
	"academicMode":        {"academicMode", "academic_mode"},
	"systemInstruction":   {"systemInstruction", "system_instruction", "system"},
	"conversationHistory": {"conversationHistory", "conversation_history", "messages"},
	"vertical":            {"vertical"},
	"maxRetries":          {"maxRetries", "max_retries"},
	"retryDelay":          {"retryDelay", "retry_delay"},
}

// NormalizeRequest 将调用方配置映射为规范请求。
// 别名键折叠为规范字段；原始键全部保留在 Extra；
// 未识别的后端私有键原样透传。
func NormalizeRequest(cfg *GenerateConfig) *Request {
	req := &Request{
		Task:         strings.TrimSpace(cfg.Task),
		Prompt:       cfg.Prompt,
		Provider:     strings.TrimSpace(cfg.Provider),
		Model:        strings.TrimSpace(cfg.Model),
		MaxRetries:   DefaultMaxRetries,
		RetryDelayMs: DefaultRetryDelayMs,
		Extra:        make(map[string]any, len(cfg.Options)),
	}

	// 原始键全部保留
	for k, v := range cfg.Options {
		req.Extra[k] = v
	}

	if f, ok := lookupFloat(cfg.Options, optionAliases["temperature"]); ok {
		req.Temperature = &f
	}
	if n, ok := lookupInt(cfg.Options, optionAliases["maxTokens"]); ok {
		req.MaxTokens = n
	}
	if f, ok := lookupFloat(cfg.Options, optionAliases["topP"]); ok {
		req.TopP = &f
	}
	if n, ok := lookupInt(cfg.Options, optionAliases["topK"]); ok {
		req.TopK = &n
	}
	if ss, ok := lookupStrings(cfg.Options, optionAliases["stopSequences"]); ok {
		req.StopSequences = ss
	}
	if b, ok := lookupBool(cfg.Options, optionAliases["enableCaching"]); ok {
		req.EnableCaching = b
	}
	if b, ok := lookupBool(cfg.Options, optionAliases["enableWebSearch"]); ok {
		req.EnableWebSearch = b
	}
	if s, ok := lookupString(cfg.Options, optionAliases["reasoningEffort"]); ok {
		req.ReasoningEffort = s
	}
	if n, ok := lookupInt(cfg.Options, optionAliases["thinkingBudget"]); ok {
		req.ThinkingBudget = n
	}
	if m, ok := lookupMap(cfg.Options, optionAliases["responseSchema"]); ok {
		req.ResponseSchema = m
	}
	if s, ok := lookupString(cfg.Options, optionAliases["responseFormat"]); ok {
		req.ResponseFormat = s
	}
	if ss, ok := lookupStrings(cfg.Options, optionAliases["images"]); ok {
		req.Images = ss
	}
	if ss, ok := lookupStrings(cfg.Options, optionAliases["searchDomains"]); ok {
		req.SearchDomains = ss
	}
	if s, ok := lookupString(cfg.Options, optionAliases["searchRecency"]); ok {
		req.SearchRecency = s
	}
	if b, ok := lookupBool(cfg.Options, optionAliases["academicMode"]); ok {
		req.AcademicMode = b
	}
	if s, ok := lookupString(cfg.Options, optionAliases["systemInstruction"]); ok {
		req.SystemInstruction = s
	}
	if msgs, ok := lookupMessages(cfg.Options, optionAliases["conversationHistory"]); ok {
		req.ConversationHistory = msgs
	}
	if s, ok := lookupString(cfg.Options, optionAliases["vertical"]); ok {
		req.Vertical = s
	}
	if n, ok := lookupInt(cfg.Options, optionAliases["maxRetries"]); ok {
		req.MaxRetries = n
	}
	if n, ok := lookupInt(cfg.Options, optionAliases["retryDelay"]); ok {
		req.RetryDelayMs = n
	}

	return req
}

func lookupRaw(opts map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := opts[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupFloat(opts map[string]any, keys []string) (float64, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func lookupInt(opts map[string]any, keys []string) (int, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

func lookupBool(opts map[string]any, keys []string) (bool, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func lookupString(opts map[string]any, keys []string) (string, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func lookupStrings(opts map[string]any, keys []string) ([]string, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return nil, false
	}
	switch ss := v.(type) {
	case []string:
		return ss, true
	case string:
		return []string{ss}, true
	case []any:
		out := make([]string, 0, len(ss))
		for _, item := range ss {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

func lookupMap(opts map[string]any, keys []string) (map[string]any, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func lookupMessages(opts map[string]any, keys []string) ([]Message, bool) {
	v, ok := lookupRaw(opts, keys)
	if !ok {
		return nil, false
	}
	switch msgs := v.(type) {
	case []Message:
		return msgs, true
	case []any:
		out := make([]Message, 0, len(msgs))
		for _, item := range msgs {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role != "" {
				out = append(out, Message{Role: role, Content: content})
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}
