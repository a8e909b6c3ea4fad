// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"contentforge-ai-api/internal/domain/entity"
)

// NodeRepository 生成节点仓储。
// GetTree 返回扁平行，树形重建由应用层完成。
type NodeRepository interface {
	CreateNode(ctx context.Context, node *entity.GenerationNode) error
	UpdateNode(ctx context.Context, node *entity.GenerationNode) error
	GetNode(ctx context.Context, id string) (*entity.GenerationNode, error)
	GetTree(ctx context.Context, rootID string) ([]*entity.GenerationNode, error)
	GetChildren(ctx context.Context, parentID string) ([]*entity.GenerationNode, error)
	// ListByTypes 按节点类型过滤（供上下文装配读取历史产出）
	ListByTypes(ctx context.Context, types []entity.NodeType, limit int) ([]*entity.GenerationNode, error)
}
