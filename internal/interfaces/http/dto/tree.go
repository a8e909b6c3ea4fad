// Package dto 提供 HTTP 层数据传输对象
package dto

// MoveNodeRequest 节点移动请求
type MoveNodeRequest struct {
	NewParentID string `json:"new_parent_id" binding:"required"`
}

// VisibilityRequest 节点可见性切换请求
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// DeleteNodeRequest 节点删除请求
type DeleteNodeRequest struct {
	// DeleteChildren 为真时级联删除子树，否则子节点上提
	DeleteChildren bool `json:"delete_children,omitempty"`
}

// CloneNodeRequest 节点克隆请求
type CloneNodeRequest struct {
	NewParentID string `json:"new_parent_id" binding:"required"`
	// Subtree 为真时连同子树一起克隆
	Subtree bool `json:"subtree,omitempty"`
}
