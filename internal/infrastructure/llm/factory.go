// Package llm 基于 Eino 的 OpenAI 兼容适配器实现各 LLM 后端客户端
package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/provider"
)

// defaultBaseURLs 各后端的 OpenAI 兼容接入点
var defaultBaseURLs = map[entity.ProviderName]string{
	entity.ProviderOpenAI:     "https://api.openai.com/v1",
	entity.ProviderAnthropic:  "https://api.anthropic.com/v1",
	entity.ProviderGemini:     "https://generativelanguage.googleapis.com/v1beta/openai",
	entity.ProviderDeepSeek:   "https://api.deepseek.com/v1",
	entity.ProviderPerplexity: "https://api.perplexity.ai",
}

const defaultRequestTimeout = 120 * time.Second

// Factory 按后端配置实例化 Eino 客户端
type Factory struct {
	clients map[string]config.LLMConf
}

// NewFactory 创建客户端工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{clients: cfg.Generation.Clients}
}

// NewClient 实例化单个后端客户端。
// BaseURL 优先级：后端配置 > 静态配置 > 内置兼容接入点。
func (f *Factory) NewClient(setting *entity.ProviderSetting, apiKey string) (provider.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key for %s is empty", setting.Provider)
	}

	conf := f.clients[string(setting.Provider)]
	baseURL := strings.TrimSpace(setting.BaseURL)
	if baseURL == "" {
		baseURL = conf.BaseURL
	}
	if baseURL == "" {
		baseURL = defaultBaseURLs[setting.Provider]
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no base url configured for %s", setting.Provider)
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &EinoClient{
		name:         setting.Provider,
		apiKey:       apiKey,
		baseURL:      baseURL,
		defaultModel: setting.DefaultModel,
		maxTokens:    conf.MaxTokens,
		timeout:      timeout,
		models:       make(map[string]model.BaseChatModel),
	}, nil
}
