package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRequestDefaults(t *testing.T) {
	req := NormalizeRequest(&GenerateConfig{Task: "blog", Prompt: "write"})
	assert.Equal(t, DefaultMaxRetries, req.MaxRetries)
	assert.Equal(t, DefaultRetryDelayMs, req.RetryDelayMs)
}

func TestNormalizeRequestLegacyKeys(t *testing.T) {
	req := NormalizeRequest(&GenerateConfig{
		Task:   "blog",
		Prompt: "write",
		Options: map[string]any{
			"max_tokens":       2048,
			"top_p":            0.9,
			"reasoning.effort": "high",
			"stop":             []any{"END"},
			"system":           "be concise",
			"x_vendor_flag":    "raw",
		},
	})

	// 规范字段已折叠
	assert.Equal(t, 2048, req.MaxTokens)
	require.NotNil(t, req.TopP)
	assert.InDelta(t, 0.9, *req.TopP, 1e-9)
	assert.Equal(t, "high", req.ReasoningEffort)
	assert.Equal(t, []string{"END"}, req.StopSequences)
	assert.Equal(t, "be concise", req.SystemInstruction)

	// 原始键全部保留（含 legacy 别名与厂商私有键）
	for _, key := range []string{"max_tokens", "top_p", "reasoning.effort", "stop", "system", "x_vendor_flag"} {
		_, ok := req.Extra[key]
		assert.True(t, ok, "legacy key %q must survive normalization", key)
	}
	assert.Equal(t, "raw", req.Extra["x_vendor_flag"])
}

func TestNormalizeRequestCanonicalKeysWin(t *testing.T) {
	req := NormalizeRequest(&GenerateConfig{
		Task: "blog",
		Options: map[string]any{
			"maxTokens":  4096,
			"max_tokens": 1024,
		},
	})
	assert.Equal(t, 4096, req.MaxTokens)
}

func TestNormalizeRequestConversationHistory(t *testing.T) {
	req := NormalizeRequest(&GenerateConfig{
		Task: "blog",
		Options: map[string]any{
			"conversation_history": []any{
				map[string]any{"role": "user", "content": "hi"},
				map[string]any{"role": "assistant", "content": "hello"},
			},
		},
	})
	require.Len(t, req.ConversationHistory, 2)
	assert.Equal(t, "assistant", req.ConversationHistory[1].Role)
}
