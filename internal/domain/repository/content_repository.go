// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"contentforge-ai-api/internal/domain/entity"
)

// StyleGuideRepository 风格指引查询（上下文装配消费）
type StyleGuideRepository interface {
	GetActiveStyleGuides(ctx context.Context, vertical string) ([]*entity.StyleGuide, error)
}

// ContentRepository 历史内容查询（上下文装配消费）
type ContentRepository interface {
	ListRecent(ctx context.Context, limit int) ([]*entity.ContentPiece, error)
	ListByVertical(ctx context.Context, vertical string, limit int) ([]*entity.ContentPiece, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.ContentPiece, error)
}
