package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
	"contentforge-ai-api/internal/domain/service"
	"contentforge-ai-api/pkg/logger"
)

// microUSD 花费计数的定点精度
const microUSD = 1_000_000

// spendState 单个后端的运行中花费计数。
// 并发自增走互斥量；窗口翻转时清零。
type spendState struct {
	mu       sync.Mutex
	dayKey   string
	monthKey string
	dayMicro int64
	monMicro int64
}

func (s *spendState) add(now time.Time, costUSD float64) (dayUSD, monthUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll(now)
	s.dayMicro += int64(costUSD * microUSD)
	s.monMicro += int64(costUSD * microUSD)
	return float64(s.dayMicro) / microUSD, float64(s.monMicro) / microUSD
}

func (s *spendState) snapshot(now time.Time) (dayUSD, monthUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll(now)
	return float64(s.dayMicro) / microUSD, float64(s.monMicro) / microUSD
}

// roll 日/月窗口翻转
func (s *spendState) roll(now time.Time) {
	if day := entity.DaySpendKey(now); s.dayKey != day {
		s.dayKey = day
		s.dayMicro = 0
	}
	if month := entity.MonthSpendKey(now); s.monthKey != month {
		s.monthKey = month
		s.monMicro = 0
	}
}

// Registry 已配置后端的唯一事实来源：
// 持有配置与客户端实例，执行预算与健康检查。
type Registry struct {
	repo    repository.ProviderSettingsRepository
	cipher  service.CredentialCipher
	factory ClientFactory

	mu       sync.RWMutex
	clients  map[entity.ProviderName]Client
	settings map[entity.ProviderName]*entity.ProviderSetting
	spend    map[entity.ProviderName]*spendState
}

// NewRegistry 创建后端注册表
func NewRegistry(repo repository.ProviderSettingsRepository, cipher service.CredentialCipher, factory ClientFactory) *Registry {
	return &Registry{
		repo:     repo,
		cipher:   cipher,
		factory:  factory,
		clients:  make(map[entity.ProviderName]Client),
		settings: make(map[entity.ProviderName]*entity.ProviderSetting),
		spend:    make(map[entity.ProviderName]*spendState),
	}
}

// LoadProviders 启动时从仓储加载全部后端配置并实例化客户端。
// 单个配置加载失败只记日志并跳过，不中断启动。
func (r *Registry) LoadProviders(ctx context.Context) error {
	settings, err := r.repo.GetProviderSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load provider settings: %w", err)
	}

	loaded := 0
	for _, setting := range settings {
		if err := r.Register(setting); err != nil {
			logger.Error(ctx, "failed to configure provider", err,
				"provider", setting.Provider)
			continue
		}
		loaded++
	}

	logger.Info(ctx, "providers loaded", "configured", loaded, "total", len(settings))
	return nil
}

// Register 解密凭证、实例化客户端并登记配置
func (r *Registry) Register(setting *entity.ProviderSetting) error {
	apiKey, err := r.cipher.Decrypt(setting.APIKeyEncrypted)
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials for %s: %w", setting.Provider, err)
	}

	client, err := r.factory.NewClient(setting, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", setting.Provider, err)
	}

	now := time.Now()
	state := &spendState{
		dayKey:   entity.DaySpendKey(now),
		monthKey: entity.MonthSpendKey(now),
	}
	// 只继承仍处于当前窗口的持久化花费；窗口键不匹配的是
	// 历史窗口的余额，计入会让后端被既往花费永久禁用
	if setting.SpendDayKey == state.dayKey {
		state.dayMicro = int64(setting.SpentDayUSD * microUSD)
	}
	if setting.SpendMonthKey == state.monthKey {
		state.monMicro = int64(setting.SpentMonthUSD * microUSD)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[setting.Provider] = client
	r.settings[setting.Provider] = setting
	r.spend[setting.Provider] = state
	return nil
}

// Unregister 移除后端
func (r *Registry) Unregister(name entity.ProviderName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
	delete(r.settings, name)
	delete(r.spend, name)
}

// GetProvider 返回可用性检查通过的客户端
func (r *Registry) GetProvider(ctx context.Context, name entity.ProviderName) (Client, error) {
	r.mu.RLock()
	client, ok := r.clients[name]
	r.mu.RUnlock()
	if !ok {
		return nil, NotConfigured(string(name))
	}
	if err := r.CheckProviderAvailability(name); err != nil {
		return nil, err
	}
	return client, nil
}

// CheckProviderAvailability 校验激活状态与日/月预算
func (r *Registry) CheckProviderAvailability(name entity.ProviderName) error {
	r.mu.RLock()
	setting, ok := r.settings[name]
	state := r.spend[name]
	r.mu.RUnlock()
	if !ok {
		return NotConfigured(string(name))
	}
	if !setting.Active {
		return &ProviderError{Kind: ErrKindNotConfigured, Provider: string(name),
			Err: fmt.Errorf("provider is disabled")}
	}

	dayUSD, monthUSD := state.snapshot(time.Now())
	if setting.DailyLimitUSD > 0 && dayUSD >= setting.DailyLimitUSD {
		return &ProviderError{Kind: ErrKindQuotaExceeded, Provider: string(name),
			Err: fmt.Errorf("daily spend limit exceeded: %.4f >= %.4f", dayUSD, setting.DailyLimitUSD)}
	}
	if setting.MonthlyLimitUSD > 0 && monthUSD >= setting.MonthlyLimitUSD {
		return &ProviderError{Kind: ErrKindQuotaExceeded, Provider: string(name),
			Err: fmt.Errorf("monthly spend limit exceeded: %.4f >= %.4f", monthUSD, setting.MonthlyLimitUSD)}
	}
	return nil
}

// CheckProviderHealth 独立于选择路径的实时健康检查
func (r *Registry) CheckProviderHealth(ctx context.Context, name entity.ProviderName) (*Health, error) {
	r.mu.RLock()
	client, ok := r.clients[name]
	setting := r.settings[name]
	r.mu.RUnlock()
	if !ok {
		return nil, NotConfigured(string(name))
	}

	health, err := client.CheckHealth(ctx)
	if err != nil {
		health = &Health{OK: false, Error: err.Error(), CheckedAt: time.Now()}
	}

	// 健康结果回写仓储，失败不影响检查本身
	now := health.CheckedAt
	setting.LastHealthOK = health.OK
	setting.LastHealthAt = &now
	if uerr := r.repo.UpdateProviderSettings(ctx, setting); uerr != nil {
		logger.Warn(ctx, "failed to persist health check result",
			"provider", name, "error", uerr.Error())
	}
	return health, nil
}

// AddSpend 累加运行中花费并异步落库
func (r *Registry) AddSpend(ctx context.Context, name entity.ProviderName, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	r.mu.RLock()
	state, ok := r.spend[name]
	r.mu.RUnlock()
	if !ok {
		return
	}
	state.add(time.Now(), costUSD)

	if err := r.repo.IncrementProviderUsage(ctx, name, costUSD); err != nil {
		logger.Warn(ctx, "failed to persist spend increment",
			"provider", name, "error", err.Error())
	}
}

// Spend 当前窗口花费快照
func (r *Registry) Spend(name entity.ProviderName) (dayUSD, monthUSD float64) {
	r.mu.RLock()
	state, ok := r.spend[name]
	r.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return state.snapshot(time.Now())
}

// Setting 返回后端配置
func (r *Registry) Setting(name entity.ProviderName) (*entity.ProviderSetting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	setting, ok := r.settings[name]
	return setting, ok
}

// Providers 已配置后端名（有序）
func (r *Registry) Providers() []entity.ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]entity.ProviderName, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
