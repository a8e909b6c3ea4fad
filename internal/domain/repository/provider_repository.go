// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"contentforge-ai-api/internal/domain/entity"
)

// UsageWindow 用量统计窗口
type UsageWindow string

const (
	UsageWindowDay   UsageWindow = "day"
	UsageWindowMonth UsageWindow = "month"
)

// ProviderSettingsRepository 后端配置仓储
type ProviderSettingsRepository interface {
	GetProviderSettings(ctx context.Context) ([]*entity.ProviderSetting, error)
	CreateProviderSettings(ctx context.Context, setting *entity.ProviderSetting) error
	UpdateProviderSettings(ctx context.Context, setting *entity.ProviderSetting) error
	DeleteProviderSettings(ctx context.Context, provider entity.ProviderName) error
	// GetProviderUsage 返回窗口内累计花费 (USD)
	GetProviderUsage(ctx context.Context, provider entity.ProviderName, window UsageWindow) (float64, error)
	// IncrementProviderUsage 累加运行中的花费计数
	IncrementProviderUsage(ctx context.Context, provider entity.ProviderName, deltaUSD float64) error
}

// UsageLogRepository 用量流水仓储
type UsageLogRepository interface {
	BatchLogUsage(ctx context.Context, entries []*entity.UsageLogEntry) error
	GetUsageSince(ctx context.Context, provider string, since time.Time) ([]*entity.UsageLogEntry, error)
}
