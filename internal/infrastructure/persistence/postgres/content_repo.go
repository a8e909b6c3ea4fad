// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"contentforge-ai-api/internal/domain/entity"
)

// StyleGuideRepository 风格指引仓储实现
type StyleGuideRepository struct {
	client *Client
}

// NewStyleGuideRepository 创建风格指引仓储
func NewStyleGuideRepository(client *Client) *StyleGuideRepository {
	return &StyleGuideRepository{client: client}
}

// GetActiveStyleGuides 获取启用的风格指引；vertical 为空时返回全部
func (r *StyleGuideRepository) GetActiveStyleGuides(ctx context.Context, vertical string) ([]*entity.StyleGuide, error) {
	ctx, span := tracer.Start(ctx, "postgres.StyleGuideRepository.GetActiveStyleGuides")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Where("active = true")
	if vertical != "" {
		// 垂直领域专属指引 + 通用指引
		query = query.Where("vertical = ? OR vertical = ''", vertical)
	}

	var guides []*entity.StyleGuide
	if err := query.Order("name ASC").Find(&guides).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get active style guides: %w", err)
	}
	return guides, nil
}

// ContentRepository 历史内容仓储实现
type ContentRepository struct {
	client *Client
}

// NewContentRepository 创建历史内容仓储
func NewContentRepository(client *Client) *ContentRepository {
	return &ContentRepository{client: client}
}

// ListRecent 最近发布的内容
func (r *ContentRepository) ListRecent(ctx context.Context, limit int) ([]*entity.ContentPiece, error) {
	ctx, span := tracer.Start(ctx, "postgres.ContentRepository.ListRecent")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var pieces []*entity.ContentPiece
	if err := db.Order("created_at DESC").Limit(limit).Find(&pieces).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent content: %w", err)
	}
	return pieces, nil
}

// ListByVertical 按垂直领域筛选的最近内容
func (r *ContentRepository) ListByVertical(ctx context.Context, vertical string, limit int) ([]*entity.ContentPiece, error) {
	ctx, span := tracer.Start(ctx, "postgres.ContentRepository.ListByVertical")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var pieces []*entity.ContentPiece
	if err := db.Where("vertical = ?", vertical).
		Order("created_at DESC").
		Limit(limit).
		Find(&pieces).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list content by vertical: %w", err)
	}
	return pieces, nil
}

// GetByIDs 按 ID 集合获取内容
func (r *ContentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.ContentPiece, error) {
	ctx, span := tracer.Start(ctx, "postgres.ContentRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var pieces []*entity.ContentPiece
	if err := db.Where("id IN ?", ids).Find(&pieces).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get content by ids: %w", err)
	}
	return pieces, nil
}
