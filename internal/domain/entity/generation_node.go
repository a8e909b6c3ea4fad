// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// NodeType 生成节点类型（开放集合）
type NodeType string

const (
	NodeTypeIdea     NodeType = "idea"
	NodeTypeTitle    NodeType = "title"
	NodeTypeSynopsis NodeType = "synopsis"
	NodeTypeOutline  NodeType = "outline"
	NodeTypeBlog     NodeType = "blog"
	NodeTypeSocial   NodeType = "social"
	NodeTypeEdit     NodeType = "edit"
)

// GenerationMode 生成模式
type GenerationMode string

const (
	ModeDirect        GenerationMode = "direct"
	ModeStructured    GenerationMode = "structured"
	ModeMultiVertical GenerationMode = "multi_vertical"
	ModeBatch         GenerationMode = "batch"
	ModeEditExisting  GenerationMode = "edit_existing"
)

// GenerationNode 单次生成输出及其谱系的不可变记录。
// ParentID 为弱引用；RootID 对根节点等于自身 ID，IsRoot
// 在构造期显式置位，避免仅靠自引用判断根。
type GenerationNode struct {
	ID              string          `json:"id" gorm:"type:uuid;primaryKey"`
	Type            NodeType        `json:"type" gorm:"type:varchar(32);index;not null"`
	Content         string          `json:"content" gorm:"type:text"`
	Mode            GenerationMode  `json:"mode" gorm:"type:varchar(32);not null"`
	Vertical        string          `json:"vertical,omitempty" gorm:"type:varchar(64);index"`
	ParentID        *string         `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	RootID          string          `json:"root_id" gorm:"type:uuid;index;not null"`
	IsRoot          bool            `json:"is_root" gorm:"not null;default:false"`
	Provider        string          `json:"provider" gorm:"type:varchar(32)"`
	Model           string          `json:"model" gorm:"type:varchar(64)"`
	Prompt          string          `json:"prompt,omitempty" gorm:"type:text"`
	ContextSnapshot json.RawMessage `json:"context_snapshot,omitempty" gorm:"type:jsonb"`
	TokensUsed      int             `json:"tokens_used" gorm:"not null;default:0"`
	CostUSD         float64         `json:"cost_usd" gorm:"not null;default:0"`
	Selected        bool            `json:"selected" gorm:"not null;default:false"`
	Visible         bool            `json:"visible" gorm:"not null;default:true"`
	Deleted         bool            `json:"deleted" gorm:"not null;default:false"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GenerationNode) TableName() string {
	return "generation_nodes"
}

// MarkRoot 将节点标记为根：RootID 指向自身
func (n *GenerationNode) MarkRoot() {
	n.RootID = n.ID
	n.IsRoot = true
	n.ParentID = nil
}

// SoftDelete 软删除：不物理移除，仅置位并隐藏
func (n *GenerationNode) SoftDelete() {
	n.Deleted = true
	n.Visible = false
	n.Selected = false
}

// TreeNode 嵌套树视图节点（由仓储的扁平行重建）
type TreeNode struct {
	*GenerationNode
	Children []*TreeNode `json:"children,omitempty"`
}

// TreeStats 单次深度优先遍历的聚合统计
type TreeStats struct {
	NodeCount    int              `json:"node_count"`
	ByType       map[NodeType]int `json:"by_type"`
	ByProvider   map[string]int   `json:"by_provider"`
	TotalCostUSD float64          `json:"total_cost_usd"`
	TotalTokens  int              `json:"total_tokens"`
	MaxDepth     int              `json:"max_depth"`
	SelectedPath []string         `json:"selected_path"`
}
