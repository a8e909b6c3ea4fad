// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"contentforge-ai-api/internal/domain/entity"
)

// NodeRepository 生成节点仓储实现
type NodeRepository struct {
	client *Client
}

// NewNodeRepository 创建生成节点仓储
func NewNodeRepository(client *Client) *NodeRepository {
	return &NodeRepository{client: client}
}

// CreateNode 创建节点
func (r *NodeRepository) CreateNode(ctx context.Context, node *entity.GenerationNode) error {
	ctx, span := tracer.Start(ctx, "postgres.NodeRepository.CreateNode")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(node).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create generation node: %w", err)
	}
	return nil
}

// UpdateNode 更新节点
func (r *NodeRepository) UpdateNode(ctx context.Context, node *entity.GenerationNode) error {
	ctx, span := tracer.Start(ctx, "postgres.NodeRepository.UpdateNode")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(node).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update generation node: %w", err)
	}
	return nil
}

// GetNode 根据 ID 获取节点
func (r *NodeRepository) GetNode(ctx context.Context, id string) (*entity.GenerationNode, error) {
	ctx, span := tracer.Start(ctx, "postgres.NodeRepository.GetNode")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var node entity.GenerationNode
	if err := db.First(&node, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get generation node: %w", err)
	}
	return &node, nil
}

// GetTree 返回整棵树的扁平行，按创建时间排序
func (r *NodeRepository) GetTree(ctx context.Context, rootID string) ([]*entity.GenerationNode, error) {
	ctx, span := tracer.Start(ctx, "postgres.NodeRepository.GetTree")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var nodes []*entity.GenerationNode
	if err := db.Where("root_id = ?", rootID).
		Order("created_at ASC").
		Find(&nodes).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get generation tree: %w", err)
	}
	return nodes, nil
}

// GetChildren 获取直接子节点，按创建时间排序
func (r *NodeRepository) GetChildren(ctx context.Context, parentID string) ([]*entity.GenerationNode, error) {
	ctx, span := tracer.Start(ctx, "postgres.NodeRepository.GetChildren")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var nodes []*entity.GenerationNode
	if err := db.Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Find(&nodes).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	return nodes, nil
}

// ListByTypes 按节点类型过滤最近的未删除节点
func (r *NodeRepository) ListByTypes(ctx context.Context, types []entity.NodeType, limit int) ([]*entity.GenerationNode, error) {
	ctx, span := tracer.Start(ctx, "postgres.NodeRepository.ListByTypes")
	defer span.End()

	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	db := getDB(ctx, r.client.db)
	var nodes []*entity.GenerationNode
	if err := db.Where("type = ANY(?) AND deleted = false", pq.Array(names)).
		Order("created_at DESC").
		Limit(limit).
		Find(&nodes).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list nodes by types: %w", err)
	}
	return nodes, nil
}
