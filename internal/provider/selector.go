package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/service"
	"contentforge-ai-api/pkg/logger"
	"contentforge-ai-api/pkg/metrics"
)

// defaultFallbacks 配置缺省时各后端的降级链
var defaultFallbacks = map[string][]string{
	"openai":     {"anthropic", "gemini"},
	"anthropic":  {"openai", "gemini"},
	"gemini":     {"openai", "anthropic"},
	"deepseek":   {"openai", "anthropic"},
	"perplexity": {"openai"},
}

// Selection 一次选择的结果。降级成功时 Fallback 为真，
// OriginalProvider 指向原本的首选后端。
type Selection struct {
	Client           Client
	Provider         entity.ProviderName
	Model            string
	Fallback         bool
	OriginalProvider entity.ProviderName
}

// SelectOptions 选择行为开关
type SelectOptions struct {
	// FallbackAllowed 为 nil 时默认允许降级
	FallbackAllowed *bool
	Model           string
}

func (o SelectOptions) fallbackAllowed() bool {
	return o.FallbackAllowed == nil || *o.FallbackAllowed
}

// ChunkSink 流式内容分片的接收端
type ChunkSink func(chunk *StreamChunk) error

// Selector 按任务选择后端并执行生成调用。
// 所有后端经由同一套规范化契约，调用方不感知厂商差异。
type Selector struct {
	registry *Registry
	tracker  *UsageTracker

	taskDefaults    map[string]config.TaskDefault
	fallbacks       map[string][]string
	defaultProvider string
	defaultModel    string
}

// NewSelector 创建选择器
func NewSelector(registry *Registry, tracker *UsageTracker, cfg *config.GenerationConfig) *Selector {
	fallbacks := cfg.Fallbacks
	if len(fallbacks) == 0 {
		fallbacks = defaultFallbacks
	}
	return &Selector{
		registry:        registry,
		tracker:         tracker,
		taskDefaults:    cfg.TaskDefaults,
		fallbacks:       fallbacks,
		defaultProvider: cfg.DefaultProvider,
		defaultModel:    cfg.DefaultModel,
	}
}

// Registry 暴露底层注册表（健康检查、配置操作）
func (s *Selector) Registry() *Registry {
	return s.registry
}

// GetFallbackProviders 返回某后端的降级链。
// 纯查表：未知后端返回空切片，永不报错。
func (s *Selector) GetFallbackProviders(provider string, task string) []string {
	chain, ok := s.fallbacks[provider]
	if !ok {
		return []string{}
	}
	out := make([]string, len(chain))
	copy(out, chain)
	return out
}

// taskDefault 任务默认 Provider/Model，未映射时退回全局默认
func (s *Selector) taskDefault(task string) (string, string) {
	if td, ok := s.taskDefaults[task]; ok && td.Provider != "" {
		return td.Provider, td.Model
	}
	return s.defaultProvider, s.defaultModel
}

// SelectProviderForTask 为任务解析可用后端。
// 首选失败且允许降级时，按降级链逐个顺序尝试（不并发竞速），
// 首个可用者胜出；全部失败聚合为一个命名任务的错误。
func (s *Selector) SelectProviderForTask(ctx context.Context, task string, opts SelectOptions) (*Selection, error) {
	primary, model := s.taskDefault(task)
	if opts.Model != "" {
		model = opts.Model
	}

	client, primaryErr := s.registry.GetProvider(ctx, entity.ProviderName(primary))
	if primaryErr == nil {
		return &Selection{
			Client:   client,
			Provider: entity.ProviderName(primary),
			Model:    s.resolveModel(entity.ProviderName(primary), model),
		}, nil
	}

	if !opts.fallbackAllowed() {
		return nil, primaryErr
	}

	errs := []error{fmt.Errorf("%s: %w", primary, primaryErr)}
	for _, name := range s.GetFallbackProviders(primary, task) {
		client, err := s.registry.GetProvider(ctx, entity.ProviderName(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		logger.Warn(ctx, "primary provider unavailable, falling back",
			"task", task, "primary", primary, "fallback", name)
		metrics.ProviderFallbackTotal.WithLabelValues(primary, name).Inc()
		return &Selection{
			Client:           client,
			Provider:         entity.ProviderName(name),
			Model:            s.resolveModel(entity.ProviderName(name), ""),
			Fallback:         true,
			OriginalProvider: entity.ProviderName(primary),
		}, nil
	}

	return nil, fmt.Errorf("no provider available for task %q: %w", task, errors.Join(errs...))
}

// resolveModel 模型缺省时回退该后端的默认模型
func (s *Selector) resolveModel(provider entity.ProviderName, model string) string {
	if model != "" {
		return model
	}
	if setting, ok := s.registry.Setting(provider); ok && setting.DefaultModel != "" {
		return setting.DefaultModel
	}
	return s.defaultModel
}

// resolve 解析最终选择：显式覆盖优先于按任务自动选择
func (s *Selector) resolve(ctx context.Context, req *Request) (*Selection, error) {
	if req.Provider != "" {
		client, err := s.registry.GetProvider(ctx, entity.ProviderName(req.Provider))
		if err != nil {
			return nil, err
		}
		return &Selection{
			Client:   client,
			Provider: entity.ProviderName(req.Provider),
			Model:    s.resolveModel(entity.ProviderName(req.Provider), req.Model),
		}, nil
	}

	var fallbackAllowed *bool
	if v, ok := lookupBool(req.Extra, []string{"fallbackAllowed", "fallback_allowed"}); ok {
		fallbackAllowed = &v
	}
	return s.SelectProviderForTask(ctx, req.Task, SelectOptions{
		FallbackAllowed: fallbackAllowed,
		Model:           req.Model,
	})
}

// Generate 规范化请求、选择后端、执行调用并规范化响应。
// 成败都会记录用量；失败分类后携带作用方后端重新抛出。
func (s *Selector) Generate(ctx context.Context, cfg *GenerateConfig) (*Response, error) {
	req := NormalizeRequest(cfg)

	selection, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx = service.WithTaskProvider(ctx, req.Task, string(selection.Provider))
	req.Model = selection.Model

	start := time.Now()
	raw, callErr := s.callWithModelFallback(ctx, selection, req)
	latency := time.Since(start)

	if callErr != nil {
		perr := Classify(callErr, string(selection.Provider), selection.Model)
		s.trackUsage(ctx, usageEntry(req, selection, nil, latency, false, perr.Error()))
		metrics.RecordProviderRequest(string(selection.Provider), selection.Model, "error", latency.Seconds())
		return nil, perr
	}

	resp := NormalizeResponse(raw, string(selection.Provider), selection.Model)
	resp.Usage.LatencyMs = int(latency.Milliseconds())
	if resp.Usage.CostUSD == 0 {
		resp.Usage.CostUSD = selection.Client.EstimateCost(
			resp.Usage.InputTokens, resp.Usage.OutputTokens, selection.Model)
	}
	resp.Metadata.Fallback = selection.Fallback
	resp.Metadata.OriginalProvider = string(selection.OriginalProvider)

	s.trackUsage(ctx, usageEntry(req, selection, &resp.Usage, latency, true, ""))
	metrics.RecordProviderRequest(string(selection.Provider), selection.Model, "ok", latency.Seconds())
	metrics.RecordTokens(string(selection.Provider), selection.Model,
		resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if resp.Usage.CostUSD > 0 {
		metrics.ProviderCostTotal.WithLabelValues(
			string(selection.Provider), selection.Model).Add(resp.Usage.CostUSD)
	}
	return resp, nil
}

// callWithRetry 对可重试分类执行有限重试
func (s *Selector) callWithRetry(ctx context.Context, client Client, req *Request) (*RawResponse, error) {
	var lastErr error
	attempts := req.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(req.RetryDelay()):
			}
			logger.Debug(ctx, "retrying provider call",
				"provider", client.Name(), "attempt", attempt+1)
		}
		raw, err := client.Generate(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !Classify(err, string(client.Name()), req.Model).Retryable() {
			break
		}
	}
	return nil, lastErr
}

// modelCandidates 解析出的模型加上该后端配置的降级模型，保序去重
func (s *Selector) modelCandidates(provider entity.ProviderName, model string) []string {
	candidates := []string{model}
	setting, ok := s.registry.Setting(provider)
	if !ok {
		return candidates
	}
	seen := map[string]bool{model: true}
	for _, m := range setting.FallbackModels {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		candidates = append(candidates, m)
	}
	return candidates
}

// callWithModelFallback 模型不存在时按配置的降级模型顺序改试；
// 其他错误分类不触发模型降级
func (s *Selector) callWithModelFallback(ctx context.Context, selection *Selection, req *Request) (*RawResponse, error) {
	var lastErr error
	for _, model := range s.modelCandidates(selection.Provider, selection.Model) {
		req.Model = model
		selection.Model = model
		raw, err := s.callWithRetry(ctx, selection.Client, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if Classify(err, string(selection.Provider), model).Kind != ErrKindModelNotFound {
			break
		}
		logger.Warn(ctx, "model not found, trying next fallback model",
			"provider", selection.Provider, "model", model)
	}
	return nil, lastErr
}

// openStreamWithModelFallback 流式打开失败且分类为模型不存在时，
// 按降级模型顺序改试
func (s *Selector) openStreamWithModelFallback(ctx context.Context, selection *Selection, req *Request) (StreamReader, error) {
	var lastErr error
	for _, model := range s.modelCandidates(selection.Provider, selection.Model) {
		req.Model = model
		selection.Model = model
		reader, err := selection.Client.GenerateStream(ctx, req)
		if err == nil {
			return reader, nil
		}
		lastErr = err
		if Classify(err, string(selection.Provider), model).Kind != ErrKindModelNotFound {
			break
		}
	}
	return nil, lastErr
}

// GenerateStream 流式生成：分片实时转发 sink，用量跨分片累加，
// 结束后返回一条最终规范化响应。
func (s *Selector) GenerateStream(ctx context.Context, cfg *GenerateConfig, sink ChunkSink) (*Response, error) {
	req := NormalizeRequest(cfg)

	selection, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !selection.Client.SupportsStreaming() {
		return nil, StreamingUnsupported(string(selection.Provider))
	}

	ctx = service.WithTaskProvider(ctx, req.Task, string(selection.Provider))
	req.Model = selection.Model

	start := time.Now()
	reader, err := s.openStreamWithModelFallback(ctx, selection, req)
	if err != nil {
		perr := Classify(err, string(selection.Provider), selection.Model)
		s.trackUsage(ctx, streamUsageEntry(req, selection, nil, time.Since(start), false, perr.Error()))
		return nil, perr
	}
	defer reader.Close()

	var content strings.Builder
	var total RawUsage
	finishReason := ""

	for {
		chunk, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			perr := Classify(recvErr, string(selection.Provider), selection.Model)
			s.trackUsage(ctx, streamUsageEntry(req, selection, &total, time.Since(start), false, perr.Error()))
			return nil, perr
		}

		accumulateUsage(&total, chunk.Usage)
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if sink != nil {
				if serr := sink(chunk); serr != nil {
					// sink 断开视为取消：停止转发，但不中止已发出的调用
					logger.Warn(ctx, "stream sink disconnected", "error", serr.Error())
					sink = nil
				}
			}
		}
	}

	latency := time.Since(start)
	resp := NormalizeResponse(&RawResponse{
		Content:      content.String(),
		Usage:        &total,
		FinishReason: finishReason,
	}, string(selection.Provider), selection.Model)
	resp.Usage.LatencyMs = int(latency.Milliseconds())
	if resp.Usage.CostUSD == 0 {
		resp.Usage.CostUSD = selection.Client.EstimateCost(
			resp.Usage.InputTokens, resp.Usage.OutputTokens, selection.Model)
	}
	resp.Metadata.Fallback = selection.Fallback
	resp.Metadata.OriginalProvider = string(selection.OriginalProvider)

	// 估算出的花费同步回流水，保证后端花费计数一致
	total.CostUSD = resp.Usage.CostUSD
	s.trackUsage(ctx, streamUsageEntry(req, selection, &total, latency, true, ""))
	metrics.RecordProviderRequest(string(selection.Provider), selection.Model, "ok", latency.Seconds())
	metrics.RecordTokens(string(selection.Provider), selection.Model,
		resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if resp.Usage.CostUSD > 0 {
		metrics.ProviderCostTotal.WithLabelValues(
			string(selection.Provider), selection.Model).Add(resp.Usage.CostUSD)
	}
	return resp, nil
}

// trackUsage 记录流水；仅成功且花费非零时累加后端花费计数。
// 追踪故障不传播，生成流程不受影响。
func (s *Selector) trackUsage(ctx context.Context, entry *entity.UsageLogEntry) {
	if s.tracker != nil {
		s.tracker.Track(entry)
	}
	if entry.Success && entry.CostUSD > 0 {
		s.registry.AddSpend(ctx, entity.ProviderName(entry.Provider), entry.CostUSD)
	}
}

func usageEntry(req *Request, sel *Selection, usage *Usage, latency time.Duration, success bool, errMsg string) *entity.UsageLogEntry {
	entry := &entity.UsageLogEntry{
		Provider:     string(sel.Provider),
		Model:        sel.Model,
		Task:         req.Task,
		Vertical:     req.Vertical,
		LatencyMs:    int(latency.Milliseconds()),
		Success:      success,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	}
	if usage != nil {
		entry.TokensInput = usage.InputTokens
		entry.TokensOutput = usage.OutputTokens
		entry.TokensReasoning = usage.ReasoningTokens
		entry.TokensThinking = usage.ThinkingTokens
		entry.TokensCacheCreate = usage.CacheCreationTokens
		entry.TokensCacheRead = usage.CacheReadTokens
		entry.TokensTotal = usage.TotalTokens
		entry.CostUSD = usage.CostUSD
	}
	return entry
}

func streamUsageEntry(req *Request, sel *Selection, raw *RawUsage, latency time.Duration, success bool, errMsg string) *entity.UsageLogEntry {
	var usage *Usage
	if raw != nil {
		usage = &Usage{
			InputTokens:         raw.InputTokens,
			OutputTokens:        raw.OutputTokens,
			ReasoningTokens:     raw.ReasoningTokens,
			ThinkingTokens:      raw.ThinkingTokens,
			CacheCreationTokens: raw.CacheCreationTokens,
			CacheReadTokens:     raw.CacheReadTokens,
			TotalTokens:         raw.TotalTokens,
			CostUSD:             raw.CostUSD,
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens +
				usage.ReasoningTokens + usage.ThinkingTokens
		}
	}
	entry := usageEntry(req, sel, usage, latency, success, errMsg)
	entry.Streaming = true
	return entry
}
