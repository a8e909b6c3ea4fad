// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"contentforge-ai-api/internal/domain/entity"
)

// UsageLogRepository 用量流水仓储实现
type UsageLogRepository struct {
	client *Client
}

// NewUsageLogRepository 创建用量流水仓储
func NewUsageLogRepository(client *Client) *UsageLogRepository {
	return &UsageLogRepository{client: client}
}

// BatchLogUsage 批量写入用量流水
func (r *UsageLogRepository) BatchLogUsage(ctx context.Context, entries []*entity.UsageLogEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageLogRepository.BatchLogUsage")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	db := getDB(ctx, r.client.db)
	if err := db.Create(entries).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to batch log usage: %w", err)
	}
	return nil
}

// GetUsageSince 查询某后端自指定时刻以来的流水
func (r *UsageLogRepository) GetUsageSince(ctx context.Context, provider string, since time.Time) ([]*entity.UsageLogEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageLogRepository.GetUsageSince")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var entries []*entity.UsageLogEntry
	query := db.Where("created_at >= ?", since)
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get usage since %s: %w", since.Format(time.RFC3339), err)
	}
	return entries, nil
}
