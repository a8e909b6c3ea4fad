// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"contentforge-ai-api/internal/application/tree"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/interfaces/http/dto"
)

// TreeHandler 生成树处理器
type TreeHandler struct {
	store *tree.Store
}

// NewTreeHandler 创建生成树处理器
func NewTreeHandler(store *tree.Store) *TreeHandler {
	return &TreeHandler{store: store}
}

// GetTree 获取整棵生成树
// @Summary 获取生成树
// @Tags Trees
// @Produce json
// @Param tid path string true "树根节点 ID"
// @Success 200 {object} dto.Response[entity.TreeNode]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/trees/{tid} [get]
func (h *TreeHandler) GetTree(c *gin.Context) {
	node, err := h.store.GetTree(c.Request.Context(), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, node)
}

// GetTreeStats 获取生成树统计信息
// @Summary 获取生成树统计
// @Tags Trees
// @Produce json
// @Param tid path string true "树根节点 ID"
// @Success 200 {object} dto.Response[entity.TreeStats]
// @Router /v1/trees/{tid}/stats [get]
func (h *TreeHandler) GetTreeStats(c *gin.Context) {
	stats, err := h.store.GetTreeStats(c.Request.Context(), c.Param("tid"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, stats)
}

// GetNodePath 获取根到节点的路径
// @Summary 获取节点路径
// @Tags Nodes
// @Produce json
// @Param nid path string true "节点 ID"
// @Success 200 {object} dto.Response[[]entity.GenerationNode]
// @Router /v1/nodes/{nid}/path [get]
func (h *TreeHandler) GetNodePath(c *gin.Context) {
	path, err := h.store.GetNodePath(c.Request.Context(), c.Param("nid"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, path)
}

// GetChildren 获取节点的直接子节点
// @Summary 获取子节点
// @Tags Nodes
// @Produce json
// @Param nid path string true "节点 ID"
// @Success 200 {object} dto.Response[[]entity.GenerationNode]
// @Router /v1/nodes/{nid}/children [get]
func (h *TreeHandler) GetChildren(c *gin.Context) {
	children, err := h.store.GetChildren(c.Request.Context(), c.Param("nid"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, children)
}

// GetSiblings 获取节点的同级节点
// @Summary 获取同级节点
// @Tags Nodes
// @Produce json
// @Param nid path string true "节点 ID"
// @Success 200 {object} dto.Response[[]entity.GenerationNode]
// @Router /v1/nodes/{nid}/siblings [get]
func (h *TreeHandler) GetSiblings(c *gin.Context) {
	siblings, err := h.store.GetSiblings(c.Request.Context(), c.Param("nid"))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, siblings)
}

// ListNodes 跨树按类型列出最近节点
// @Summary 按类型列出节点
// @Tags Nodes
// @Produce json
// @Param types query string true "节点类型，逗号分隔"
// @Param limit query int false "返回条数上限"
// @Success 200 {object} dto.Response[[]entity.GenerationNode]
// @Router /v1/nodes [get]
func (h *TreeHandler) ListNodes(c *gin.Context) {
	raw := strings.Split(c.Query("types"), ",")
	types := make([]entity.NodeType, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, entity.NodeType(t))
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	nodes, err := h.store.ListByTypes(c.Request.Context(), types, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, nodes)
}

// SelectNode 选中节点（同级互斥）
// @Summary 选中节点
// @Tags Nodes
// @Produce json
// @Param nid path string true "节点 ID"
// @Success 204
// @Router /v1/nodes/{nid}/select [post]
func (h *TreeHandler) SelectNode(c *gin.Context) {
	if err := h.store.SelectNode(c.Request.Context(), c.Param("nid")); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// ToggleVisibility 切换节点可见性
// @Summary 切换节点可见性
// @Tags Nodes
// @Accept json
// @Produce json
// @Param nid path string true "节点 ID"
// @Param request body dto.VisibilityRequest true "可见性"
// @Success 204
// @Router /v1/nodes/{nid}/visibility [put]
func (h *TreeHandler) ToggleVisibility(c *gin.Context) {
	var req dto.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.store.ToggleNodeVisibility(c.Request.Context(), c.Param("nid"), req.Visible); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// DeleteNode 删除节点
// @Summary 删除节点
// @Description delete_children 为真时级联删除子树，否则子节点上提至被删节点的父节点
// @Tags Nodes
// @Produce json
// @Param nid path string true "节点 ID"
// @Param delete_children query bool false "是否级联删除"
// @Success 204
// @Router /v1/nodes/{nid} [delete]
func (h *TreeHandler) DeleteNode(c *gin.Context) {
	deleteChildren := c.Query("delete_children") == "true"
	if err := h.store.DeleteNode(c.Request.Context(), c.Param("nid"), deleteChildren); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// MoveNode 移动节点到新父节点
// @Summary 移动节点
// @Tags Nodes
// @Accept json
// @Produce json
// @Param nid path string true "节点 ID"
// @Param request body dto.MoveNodeRequest true "移动目标"
// @Success 204
// @Router /v1/nodes/{nid}/move [post]
func (h *TreeHandler) MoveNode(c *gin.Context) {
	var req dto.MoveNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.store.MoveNode(c.Request.Context(), c.Param("nid"), req.NewParentID); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// CloneNode 克隆节点或子树
// @Summary 克隆节点
// @Tags Nodes
// @Accept json
// @Produce json
// @Param nid path string true "节点 ID"
// @Param request body dto.CloneNodeRequest true "克隆目标"
// @Success 201 {object} dto.Response[entity.GenerationNode]
// @Router /v1/nodes/{nid}/clone [post]
func (h *TreeHandler) CloneNode(c *gin.Context) {
	var req dto.CloneNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	nodeID := c.Param("nid")
	if req.Subtree {
		clone, err := h.store.CloneSubtree(c.Request.Context(), nodeID, req.NewParentID)
		if err != nil {
			respondError(c, err)
			return
		}
		dto.Created(c, clone)
		return
	}

	clone, err := h.store.CloneNode(c.Request.Context(), nodeID, req.NewParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Created(c, clone)
}
