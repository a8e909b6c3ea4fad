// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
)

// ProviderSettingsRepository 后端配置仓储实现
type ProviderSettingsRepository struct {
	client *Client
}

// NewProviderSettingsRepository 创建后端配置仓储
func NewProviderSettingsRepository(client *Client) *ProviderSettingsRepository {
	return &ProviderSettingsRepository{client: client}
}

// GetProviderSettings 获取全部后端配置
func (r *ProviderSettingsRepository) GetProviderSettings(ctx context.Context) ([]*entity.ProviderSetting, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProviderSettingsRepository.GetProviderSettings")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var settings []*entity.ProviderSetting
	if err := db.Order("provider ASC").Find(&settings).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get provider settings: %w", err)
	}
	return settings, nil
}

// CreateProviderSettings 创建后端配置
func (r *ProviderSettingsRepository) CreateProviderSettings(ctx context.Context, setting *entity.ProviderSetting) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderSettingsRepository.CreateProviderSettings")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(setting).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create provider settings: %w", err)
	}
	return nil
}

// UpdateProviderSettings 更新后端配置
func (r *ProviderSettingsRepository) UpdateProviderSettings(ctx context.Context, setting *entity.ProviderSetting) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderSettingsRepository.UpdateProviderSettings")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(setting).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update provider settings: %w", err)
	}
	return nil
}

// DeleteProviderSettings 删除后端配置
func (r *ProviderSettingsRepository) DeleteProviderSettings(ctx context.Context, provider entity.ProviderName) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderSettingsRepository.DeleteProviderSettings")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.ProviderSetting{}, "provider = ?", provider).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete provider settings: %w", err)
	}
	return nil
}

// GetProviderUsage 返回窗口内累计花费 (USD)
func (r *ProviderSettingsRepository) GetProviderUsage(ctx context.Context, provider entity.ProviderName, window repository.UsageWindow) (float64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProviderSettingsRepository.GetProviderUsage")
	defer span.End()

	now := time.Now()
	column, keyColumn, key := "spent_day_usd", "spend_day_key", entity.DaySpendKey(now)
	if window == repository.UsageWindowMonth {
		column, keyColumn, key = "spent_month_usd", "spend_month_key", entity.MonthSpendKey(now)
	}

	// 窗口键不匹配说明计数属于历史窗口，当前窗口花费为 0
	db := getDB(ctx, r.client.db)
	var spent float64
	if err := db.Model(&entity.ProviderSetting{}).
		Where("provider = ? AND "+keyColumn+" = ?", provider, key).
		Select(column).
		Scan(&spent).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get provider usage: %w", err)
	}
	return spent, nil
}

// IncrementProviderUsage 原子累加日/月花费计数
func (r *ProviderSettingsRepository) IncrementProviderUsage(ctx context.Context, provider entity.ProviderName, deltaUSD float64) error {
	ctx, span := tracer.Start(ctx, "postgres.ProviderSettingsRepository.IncrementProviderUsage")
	defer span.End()

	// 跨窗口的首次写入把计数重置为本次增量，同时落下新窗口键
	now := time.Now()
	dayKey, monthKey := entity.DaySpendKey(now), entity.MonthSpendKey(now)

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.ProviderSetting{}).
		Where("provider = ?", provider).
		Updates(map[string]any{
			"spent_day_usd":   gorm.Expr("CASE WHEN spend_day_key = ? THEN spent_day_usd + ? ELSE ? END", dayKey, deltaUSD, deltaUSD),
			"spend_day_key":   dayKey,
			"spent_month_usd": gorm.Expr("CASE WHEN spend_month_key = ? THEN spent_month_usd + ? ELSE ? END", monthKey, deltaUSD, deltaUSD),
			"spend_month_key": monthKey,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to increment provider usage: %w", err)
	}
	return nil
}
