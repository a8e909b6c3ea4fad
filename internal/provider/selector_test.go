package provider

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
)

// ---- 测试替身 ----

type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return s, nil }
func (plainCipher) Decrypt(s string) (string, error) { return s, nil }

type fakeSettingsRepo struct {
	mu       sync.Mutex
	settings []*entity.ProviderSetting
	incs     map[entity.ProviderName]float64
}

func (r *fakeSettingsRepo) GetProviderSettings(ctx context.Context) ([]*entity.ProviderSetting, error) {
	return r.settings, nil
}
func (r *fakeSettingsRepo) CreateProviderSettings(ctx context.Context, s *entity.ProviderSetting) error {
	r.settings = append(r.settings, s)
	return nil
}
func (r *fakeSettingsRepo) UpdateProviderSettings(ctx context.Context, s *entity.ProviderSetting) error {
	return nil
}
func (r *fakeSettingsRepo) DeleteProviderSettings(ctx context.Context, p entity.ProviderName) error {
	return nil
}
func (r *fakeSettingsRepo) GetProviderUsage(ctx context.Context, p entity.ProviderName, w repository.UsageWindow) (float64, error) {
	return 0, nil
}
func (r *fakeSettingsRepo) IncrementProviderUsage(ctx context.Context, p entity.ProviderName, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incs == nil {
		r.incs = make(map[entity.ProviderName]float64)
	}
	r.incs[p] += delta
	return nil
}

type fakeUsageRepo struct {
	mu      sync.Mutex
	batches [][]*entity.UsageLogEntry
	failN   int
}

func (r *fakeUsageRepo) BatchLogUsage(ctx context.Context, entries []*entity.UsageLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failN > 0 {
		r.failN--
		return fmt.Errorf("store unavailable")
	}
	r.batches = append(r.batches, entries)
	return nil
}
func (r *fakeUsageRepo) GetUsageSince(ctx context.Context, provider string, since time.Time) ([]*entity.UsageLogEntry, error) {
	return nil, nil
}

type stubStream struct {
	chunks []*StreamChunk
	pos    int
}

func (s *stubStream) Recv() (*StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}
func (s *stubStream) Close() {}

type stubClient struct {
	name        entity.ProviderName
	generateErr error
	// generate 可选的按请求响应钩子，优先于固定返回值
	generate  func(req *Request) (*RawResponse, error)
	raw       *RawResponse
	chunks    []*StreamChunk
	streaming bool
	calls     int
}

func (c *stubClient) Name() entity.ProviderName { return c.name }
func (c *stubClient) Generate(ctx context.Context, req *Request) (*RawResponse, error) {
	c.calls++
	if c.generate != nil {
		return c.generate(req)
	}
	if c.generateErr != nil {
		return nil, c.generateErr
	}
	if c.raw != nil {
		return c.raw, nil
	}
	return &RawResponse{
		Content:      "generated by " + string(c.name),
		FinishReason: "stop",
		Usage:        &RawUsage{InputTokens: 10, OutputTokens: 20},
	}, nil
}
func (c *stubClient) GenerateStream(ctx context.Context, req *Request) (StreamReader, error) {
	if c.generateErr != nil {
		return nil, c.generateErr
	}
	return &stubStream{chunks: c.chunks}, nil
}
func (c *stubClient) SupportsStreaming() bool                 { return c.streaming }
func (c *stubClient) TestConnection(ctx context.Context) error { return c.generateErr }
func (c *stubClient) CheckHealth(ctx context.Context) (*Health, error) {
	return &Health{OK: c.generateErr == nil, CheckedAt: time.Now()}, nil
}
func (c *stubClient) EstimateCost(in, out int, model string) float64 {
	return float64(in+out) * 0.00001
}

type stubFactory struct {
	clients map[entity.ProviderName]*stubClient
}

func (f *stubFactory) NewClient(setting *entity.ProviderSetting, apiKey string) (Client, error) {
	c, ok := f.clients[setting.Provider]
	if !ok {
		return nil, fmt.Errorf("no stub for %s", setting.Provider)
	}
	return c, nil
}

func setting(name entity.ProviderName, model string) *entity.ProviderSetting {
	return &entity.ProviderSetting{
		Provider:        name,
		APIKeyEncrypted: "key-" + string(name),
		DefaultModel:    model,
		Active:          true,
	}
}

func newTestSelector(t *testing.T, clients map[entity.ProviderName]*stubClient, cfg *config.GenerationConfig) (*Selector, *fakeSettingsRepo, *fakeUsageRepo) {
	t.Helper()
	settingsRepo := &fakeSettingsRepo{}
	for name := range clients {
		settingsRepo.settings = append(settingsRepo.settings, setting(name, "model-"+string(name)))
	}
	usageRepo := &fakeUsageRepo{}

	registry := NewRegistry(settingsRepo, plainCipher{}, &stubFactory{clients: clients})
	require.NoError(t, registry.LoadProviders(context.Background()))

	tracker := NewUsageTracker(usageRepo, time.Hour, 1000)
	if cfg == nil {
		cfg = &config.GenerationConfig{
			DefaultProvider: "openai",
			DefaultModel:    "gpt-4o",
		}
	}
	return NewSelector(registry, tracker, cfg), settingsRepo, usageRepo
}

// ---- 用例 ----

func TestGenerateExplicitOverride(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI:    {name: entity.ProviderOpenAI},
		entity.ProviderAnthropic: {name: entity.ProviderAnthropic},
	}
	sel, _, _ := newTestSelector(t, clients, nil)

	resp, err := sel.Generate(context.Background(), &GenerateConfig{
		Task:     "blog",
		Prompt:   "write",
		Provider: "anthropic",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated by anthropic", resp.Content)
	assert.Equal(t, "anthropic", resp.Metadata.Provider)
	assert.False(t, resp.Metadata.Fallback)
	assert.Equal(t, 1, clients[entity.ProviderAnthropic].calls)
	assert.Zero(t, clients[entity.ProviderOpenAI].calls)
}

func TestFallbackChain(t *testing.T) {
	// 首选与第一降级不可用，第二降级成功
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderGemini: {name: entity.ProviderGemini},
	}
	sel, _, _ := newTestSelector(t, clients, &config.GenerationConfig{
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o",
		Fallbacks: map[string][]string{
			"openai": {"anthropic", "gemini"},
		},
	})

	resp, err := sel.Generate(context.Background(), &GenerateConfig{Task: "blog", Prompt: "write"})
	require.NoError(t, err)
	assert.True(t, resp.Metadata.Fallback)
	assert.Equal(t, "openai", resp.Metadata.OriginalProvider)
	assert.Equal(t, "gemini", resp.Metadata.Provider)
}

func TestFallbackDisallowed(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderGemini: {name: entity.ProviderGemini},
	}
	sel, _, _ := newTestSelector(t, clients, &config.GenerationConfig{
		DefaultProvider: "openai",
		Fallbacks:       map[string][]string{"openai": {"gemini"}},
	})

	_, err := sel.Generate(context.Background(), &GenerateConfig{
		Task:    "blog",
		Prompt:  "write",
		Options: map[string]any{"fallbackAllowed": false},
	})
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindNotConfigured, pe.Kind)
}

func TestAllProvidersExhausted(t *testing.T) {
	sel, _, _ := newTestSelector(t, map[entity.ProviderName]*stubClient{}, &config.GenerationConfig{
		DefaultProvider: "openai",
		Fallbacks:       map[string][]string{"openai": {"anthropic"}},
	})

	_, err := sel.SelectProviderForTask(context.Background(), "outline", SelectOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `task "outline"`)
}

func TestGetFallbackProvidersUnknown(t *testing.T) {
	sel, _, _ := newTestSelector(t, map[entity.ProviderName]*stubClient{}, nil)
	chain := sel.GetFallbackProviders("no-such-provider", "blog")
	require.NotNil(t, chain)
	assert.Empty(t, chain)
}

func TestGenerateClassifiesError(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {
			name:        entity.ProviderOpenAI,
			generateErr: fmt.Errorf("429 too many requests"),
		},
	}
	sel, _, _ := newTestSelector(t, clients, &config.GenerationConfig{
		DefaultProvider: "openai",
		Fallbacks:       map[string][]string{},
	})

	_, err := sel.Generate(context.Background(), &GenerateConfig{
		Task:    "blog",
		Prompt:  "write",
		Options: map[string]any{"maxRetries": 1},
	})
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindRateLimited, pe.Kind)
	assert.Equal(t, "openai", pe.Provider)
	assert.True(t, pe.Retryable())
}

func TestGenerateRetriesRetryable(t *testing.T) {
	client := &stubClient{
		name:        entity.ProviderOpenAI,
		generateErr: fmt.Errorf("503 service unavailable"),
	}
	sel, _, _ := newTestSelector(t, map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: client,
	}, &config.GenerationConfig{DefaultProvider: "openai", Fallbacks: map[string][]string{}})

	_, err := sel.Generate(context.Background(), &GenerateConfig{
		Task:    "blog",
		Prompt:  "write",
		Options: map[string]any{"maxRetries": 3, "retryDelay": 1},
	})
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestGenerateTracksUsageAndSpend(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {name: entity.ProviderOpenAI},
	}
	sel, settingsRepo, _ := newTestSelector(t, clients, nil)

	_, err := sel.Generate(context.Background(), &GenerateConfig{Task: "blog", Prompt: "write"})
	require.NoError(t, err)

	require.Equal(t, 1, sel.tracker.BufferedCount())
	assert.Greater(t, settingsRepo.incs[entity.ProviderOpenAI], 0.0)

	day, month := sel.Registry().Spend(entity.ProviderOpenAI)
	assert.Greater(t, day, 0.0)
	assert.Greater(t, month, 0.0)
}

func TestDailyBudgetBlocksProvider(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {name: entity.ProviderOpenAI},
	}
	settingsRepo := &fakeSettingsRepo{}
	s := setting(entity.ProviderOpenAI, "gpt-4o")
	s.DailyLimitUSD = 5
	s.SpentDayUSD = 5
	settingsRepo.settings = append(settingsRepo.settings, s)

	registry := NewRegistry(settingsRepo, plainCipher{}, &stubFactory{clients: clients})
	require.NoError(t, registry.LoadProviders(context.Background()))

	_, err := registry.GetProvider(context.Background(), entity.ProviderOpenAI)
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindQuotaExceeded, pe.Kind)
	assert.Contains(t, pe.Error(), "daily")
}

func TestGenerateStream(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {
			name:      entity.ProviderOpenAI,
			streaming: true,
			chunks: []*StreamChunk{
				{Content: "hello "},
				{Content: "world"},
				{FinishReason: "stop", Usage: &RawUsage{InputTokens: 5, OutputTokens: 2}},
			},
		},
	}
	sel, _, _ := newTestSelector(t, clients, nil)

	var got []string
	resp, err := sel.GenerateStream(context.Background(), &GenerateConfig{
		Task: "blog", Prompt: "write",
	}, func(chunk *StreamChunk) error {
		got = append(got, chunk.Content)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello ", "world"}, got)
	assert.Equal(t, "hello world", resp.Content)
	assert.Equal(t, FinishCompleted, resp.Metadata.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestGenerateStreamUnsupported(t *testing.T) {
	clients := map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: {name: entity.ProviderOpenAI, streaming: false},
	}
	sel, _, _ := newTestSelector(t, clients, nil)

	_, err := sel.GenerateStream(context.Background(), &GenerateConfig{
		Task: "blog", Prompt: "write",
	}, nil)
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindStreamingUnsupported, pe.Kind)
}

func TestModelFallbackOnModelNotFound(t *testing.T) {
	// 解析出的模型 404 时按配置的降级模型顺序改试
	client := &stubClient{
		name: entity.ProviderOpenAI,
		generate: func(req *Request) (*RawResponse, error) {
			if req.Model != "gpt-4o-mini" {
				return nil, fmt.Errorf("model %s not found", req.Model)
			}
			return &RawResponse{
				Content:      "from " + req.Model,
				FinishReason: "stop",
				Usage:        &RawUsage{InputTokens: 10, OutputTokens: 20},
			}, nil
		},
	}
	sel, _, _ := newTestSelector(t, map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: client,
	}, nil)

	s := setting(entity.ProviderOpenAI, "gpt-4o")
	s.FallbackModels = pq.StringArray{"gpt-4.1", "gpt-4o-mini"}
	require.NoError(t, sel.Registry().Register(s))

	resp, err := sel.Generate(context.Background(), &GenerateConfig{
		Task: "blog", Prompt: "write", Provider: "openai",
	})
	require.NoError(t, err)
	assert.Equal(t, "from gpt-4o-mini", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Metadata.Model)
	// gpt-4o、gpt-4.1 各失败一次，gpt-4o-mini 成功
	assert.Equal(t, 3, client.calls)
}

func TestModelFallbackSkippedOnOtherErrors(t *testing.T) {
	// 仅模型不存在触发模型降级，鉴权失败等直接上抛
	client := &stubClient{
		name: entity.ProviderOpenAI,
		generate: func(req *Request) (*RawResponse, error) {
			return nil, fmt.Errorf("401 unauthorized")
		},
	}
	sel, _, _ := newTestSelector(t, map[entity.ProviderName]*stubClient{
		entity.ProviderOpenAI: client,
	}, nil)

	s := setting(entity.ProviderOpenAI, "gpt-4o")
	s.FallbackModels = pq.StringArray{"gpt-4o-mini"}
	require.NoError(t, sel.Registry().Register(s))

	_, err := sel.Generate(context.Background(), &GenerateConfig{
		Task: "blog", Prompt: "write", Provider: "openai",
	})
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindAuthentication, pe.Kind)
	assert.Equal(t, 1, client.calls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorKind
	}{
		{"401 unauthorized", ErrKindAuthentication},
		{"invalid api key provided", ErrKindAuthentication},
		{"insufficient_quota: please check billing", ErrKindQuotaExceeded},
		{"request blocked by content policy", ErrKindContentFiltered},
		{"request timeout after 60s", ErrKindTimeout},
		{"rpc error: context canceled", ErrKindCancelled},
		{"model gpt-99 not found", ErrKindModelNotFound},
		{"502 bad gateway", ErrKindServerError},
		{"the model is overloaded", ErrKindServerError},
		{"something inexplicable", ErrKindUnknown},
	}
	for _, tt := range tests {
		pe := Classify(fmt.Errorf("%s", tt.msg), "openai", "gpt-4o")
		assert.Equal(t, tt.want, pe.Kind, "message %q", tt.msg)
	}
}

func TestClassifyCancellationNotRetryable(t *testing.T) {
	// 调用方取消后重试毫无意义，不应吃掉一次退避等待
	pe := Classify(context.Canceled, "openai", "gpt-4o")
	assert.Equal(t, ErrKindCancelled, pe.Kind)
	assert.False(t, pe.Retryable())

	wrapped := Classify(fmt.Errorf("call failed: %w", context.Canceled), "openai", "gpt-4o")
	assert.Equal(t, ErrKindCancelled, wrapped.Kind)
	assert.False(t, wrapped.Retryable())
}
