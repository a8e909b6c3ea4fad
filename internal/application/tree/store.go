// Package tree 维护生成树：节点谱系、选择、可见性与统计
package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
	apperrors "contentforge-ai-api/pkg/errors"
	"contentforge-ai-api/pkg/logger"
)

// Cache 树缓存端口（Redis 实现满足该接口）
type Cache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// Store 生成树应用服务。
// 读路径走缓存（Read-Through），所有变更同步失效缓存。
type Store struct {
	nodes repository.NodeRepository
	txMgr repository.Transactor

	cache        Cache
	cacheEnabled bool
	cacheTTL     time.Duration
}

// NewStore 创建生成树服务；cache 可为 nil（禁用缓存）
func NewStore(nodes repository.NodeRepository, txMgr repository.Transactor, cache Cache, cfg *config.TreeCacheConfig) *Store {
	s := &Store{
		nodes: nodes,
		txMgr: txMgr,
		cache: cache,
	}
	if cfg != nil && cache != nil {
		s.cacheEnabled = cfg.CacheEnabled
		s.cacheTTL = cfg.CacheTTL
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 10 * time.Minute
	}
	return s
}

func treeKey(rootID string) string {
	return fmt.Sprintf("tree:%s", rootID)
}

// invalidate 同步失效树缓存；失效失败只记日志
func (s *Store) invalidate(ctx context.Context, rootID string) {
	if !s.cacheEnabled {
		return
	}
	if err := s.cache.Delete(ctx, treeKey(rootID)); err != nil {
		logger.Warn(ctx, "failed to invalidate tree cache",
			"root_id", rootID, "error", err.Error())
	}
}

// getExisting 获取节点，不存在时返回类型化错误
func (s *Store) getExisting(ctx context.Context, id string) (*entity.GenerationNode, error) {
	node, err := s.nodes.GetNode(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load node")
	}
	if node == nil {
		return nil, apperrors.New(apperrors.CodeNodeNotFound, "generation node not found").WithDetail(id)
	}
	return node, nil
}

// CreateTree 创建一棵新树：节点成为根，RootID 指向自身
func (s *Store) CreateTree(ctx context.Context, node *entity.GenerationNode) error {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.MarkRoot()
	if node.Mode == "" {
		node.Mode = entity.ModeDirect
	}
	node.Visible = true

	if err := s.nodes.CreateNode(ctx, node); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create tree")
	}
	return nil
}

// AddNode 在已有父节点下追加节点
func (s *Store) AddNode(ctx context.Context, node *entity.GenerationNode) error {
	if node.ParentID == nil || *node.ParentID == "" {
		return apperrors.New(apperrors.CodeValidationFailed, "parent_id is required")
	}

	parent, err := s.getExisting(ctx, *node.ParentID)
	if err != nil {
		return err
	}
	if parent.Deleted {
		return apperrors.New(apperrors.CodeValidationFailed, "cannot add node under a deleted parent")
	}

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.RootID = parent.RootID
	node.IsRoot = false
	node.Visible = true

	if err := s.nodes.CreateNode(ctx, node); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to add node")
	}
	s.invalidate(ctx, node.RootID)
	return nil
}

// GetTree 返回嵌套树视图。缓存命中时直接反序列化，
// 未命中时从仓储加载扁平行并重建（singleflight 防击穿）。
func (s *Store) GetTree(ctx context.Context, rootID string) (*entity.TreeNode, error) {
	if !s.cacheEnabled {
		return s.loadTree(ctx, rootID)
	}

	bytes, err := s.cache.GetOrLoadSafe(ctx, treeKey(rootID), s.cacheTTL, func() (interface{}, error) {
		return s.loadTree(ctx, rootID)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		// 缓存故障降级为直读
		logger.Warn(ctx, "tree cache unavailable, falling back to repository",
			"root_id", rootID, "error", err.Error())
		return s.loadTree(ctx, rootID)
	}

	var root entity.TreeNode
	if uerr := json.Unmarshal(bytes, &root); uerr != nil {
		return nil, apperrors.Wrap(uerr, apperrors.CodeCacheError, "failed to decode cached tree")
	}
	return &root, nil
}

// loadTree 从仓储加载并重建嵌套树
func (s *Store) loadTree(ctx context.Context, rootID string) (*entity.TreeNode, error) {
	rows, err := s.nodes.GetTree(ctx, rootID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load tree")
	}
	root := buildTree(rootID, rows)
	if root == nil {
		return nil, apperrors.New(apperrors.CodeTreeNotFound, "generation tree not found").WithDetail(rootID)
	}
	return root, nil
}

// buildTree 扁平行 -> 嵌套树。行已按创建时间升序，
// 子节点顺序随之确定；软删除的节点不进入视图。
func buildTree(rootID string, rows []*entity.GenerationNode) *entity.TreeNode {
	byID := make(map[string]*entity.TreeNode, len(rows))
	for _, row := range rows {
		if row.Deleted {
			continue
		}
		byID[row.ID] = &entity.TreeNode{GenerationNode: row}
	}

	var root *entity.TreeNode
	for _, row := range rows {
		node, ok := byID[row.ID]
		if !ok {
			continue
		}
		if row.ID == rootID {
			root = node
			continue
		}
		if row.ParentID != nil {
			if parent, ok := byID[*row.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		// 父节点缺失（弱引用悬空）：挂到根下，不丢数据
		if row.ID != rootID {
			if r, ok := byID[rootID]; ok {
				r.Children = append(r.Children, node)
			}
		}
	}
	return root
}

// GetNodePath 返回从根到该节点的路径。
// ParentID 是弱引用：父节点缺失时从断点截断。
func (s *Store) GetNodePath(ctx context.Context, nodeID string) ([]*entity.GenerationNode, error) {
	node, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	path := []*entity.GenerationNode{node}
	seen := map[string]bool{node.ID: true}

	current := node
	for current.ParentID != nil && *current.ParentID != "" {
		if seen[*current.ParentID] {
			return nil, apperrors.New(apperrors.CodeTreeCycle, "cycle detected in node lineage").WithDetail(nodeID)
		}
		parent, err := s.nodes.GetNode(ctx, *current.ParentID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to walk node path")
		}
		if parent == nil {
			break
		}
		seen[parent.ID] = true
		path = append(path, parent)
		current = parent
	}

	// 反转为根在前
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// GetChildren 直接子节点（不含软删除）
func (s *Store) GetChildren(ctx context.Context, parentID string) ([]*entity.GenerationNode, error) {
	if _, err := s.getExisting(ctx, parentID); err != nil {
		return nil, err
	}
	children, err := s.nodes.GetChildren(ctx, parentID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load children")
	}
	return filterDeleted(children), nil
}

// GetSiblings 同父兄弟节点（不含自身与软删除）
func (s *Store) GetSiblings(ctx context.Context, nodeID string) ([]*entity.GenerationNode, error) {
	node, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.ParentID == nil || *node.ParentID == "" {
		return nil, nil
	}

	children, err := s.nodes.GetChildren(ctx, *node.ParentID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load siblings")
	}

	siblings := make([]*entity.GenerationNode, 0, len(children))
	for _, c := range filterDeleted(children) {
		if c.ID != nodeID {
			siblings = append(siblings, c)
		}
	}
	return siblings, nil
}

// ListByTypes 跨树按类型列出最近的节点
func (s *Store) ListByTypes(ctx context.Context, types []entity.NodeType, limit int) ([]*entity.GenerationNode, error) {
	if len(types) == 0 {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "at least one node type is required")
	}
	if limit <= 0 {
		limit = 20
	}
	nodes, err := s.nodes.ListByTypes(ctx, types, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list nodes")
	}
	return nodes, nil
}

// SelectNode 选中节点并取消全部兄弟的选中，同一事务内完成。
// 不变式：任意兄弟集合中至多一个节点处于选中态。
func (s *Store) SelectNode(ctx context.Context, nodeID string) error {
	node, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.Deleted {
		return apperrors.New(apperrors.CodeValidationFailed, "cannot select a deleted node")
	}

	err = s.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		if node.ParentID != nil && *node.ParentID != "" {
			siblings, serr := s.nodes.GetChildren(txCtx, *node.ParentID)
			if serr != nil {
				return serr
			}
			for _, sib := range siblings {
				if sib.ID != nodeID && sib.Selected {
					sib.Selected = false
					if uerr := s.nodes.UpdateNode(txCtx, sib); uerr != nil {
						return uerr
					}
				}
			}
		}
		node.Selected = true
		return s.nodes.UpdateNode(txCtx, node)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to select node")
	}

	s.invalidate(ctx, node.RootID)
	return nil
}

// ToggleNodeVisibility 切换可见性。
// 隐藏向下级联整棵子树；显示只作用于该节点本身。
func (s *Store) ToggleNodeVisibility(ctx context.Context, nodeID string, visible bool) error {
	node, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return err
	}

	err = s.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		if visible {
			node.Visible = true
			return s.nodes.UpdateNode(txCtx, node)
		}

		subtree, serr := s.collectSubtree(txCtx, node)
		if serr != nil {
			return serr
		}
		for _, n := range subtree {
			if n.Visible {
				n.Visible = false
				if uerr := s.nodes.UpdateNode(txCtx, n); uerr != nil {
					return uerr
				}
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to toggle visibility")
	}

	s.invalidate(ctx, node.RootID)
	return nil
}

// DeleteNode 软删除节点。
// deleteChildren 为真时级联删除子树；否则子节点重挂到祖父节点。
func (s *Store) DeleteNode(ctx context.Context, nodeID string, deleteChildren bool) error {
	node, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.IsRoot && !deleteChildren {
		return apperrors.New(apperrors.CodeValidationFailed, "deleting a root requires delete_children")
	}

	err = s.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		if deleteChildren {
			subtree, serr := s.collectSubtree(txCtx, node)
			if serr != nil {
				return serr
			}
			for _, n := range subtree {
				n.SoftDelete()
				if uerr := s.nodes.UpdateNode(txCtx, n); uerr != nil {
					return uerr
				}
			}
			return nil
		}

		children, serr := s.nodes.GetChildren(txCtx, nodeID)
		if serr != nil {
			return serr
		}
		for _, child := range children {
			child.ParentID = node.ParentID
			if uerr := s.nodes.UpdateNode(txCtx, child); uerr != nil {
				return uerr
			}
		}
		node.SoftDelete()
		return s.nodes.UpdateNode(txCtx, node)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete node")
	}

	s.invalidate(ctx, node.RootID)
	return nil
}

// MoveNode 将节点挂到新父节点下，禁止跨树与环
func (s *Store) MoveNode(ctx context.Context, nodeID, newParentID string) error {
	node, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.IsRoot {
		return apperrors.New(apperrors.CodeValidationFailed, "cannot move a root node")
	}

	newParent, err := s.getExisting(ctx, newParentID)
	if err != nil {
		return err
	}
	if newParent.Deleted {
		return apperrors.New(apperrors.CodeValidationFailed, "cannot move under a deleted node")
	}
	if newParent.RootID != node.RootID {
		return apperrors.New(apperrors.CodeValidationFailed, "cannot move a node across trees")
	}

	// 新父节点位于该节点子树内会构成环
	if nodeID == newParentID {
		return apperrors.New(apperrors.CodeTreeCycle, "move would create a cycle").WithDetail(nodeID)
	}
	ancestors, err := s.GetNodePath(ctx, newParentID)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if a.ID == nodeID {
			return apperrors.New(apperrors.CodeTreeCycle, "move would create a cycle").WithDetail(nodeID)
		}
	}

	node.ParentID = &newParent.ID
	if err := s.nodes.UpdateNode(ctx, node); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to move node")
	}

	s.invalidate(ctx, node.RootID)
	return nil
}

// GetTreeStats 单次深度优先遍历产出全部聚合统计
func (s *Store) GetTreeStats(ctx context.Context, rootID string) (*entity.TreeStats, error) {
	root, err := s.GetTree(ctx, rootID)
	if err != nil {
		return nil, err
	}

	stats := &entity.TreeStats{
		ByType:       make(map[entity.NodeType]int),
		ByProvider:   make(map[string]int),
		SelectedPath: []string{root.ID},
	}

	var walk func(node *entity.TreeNode, depth int)
	walk = func(node *entity.TreeNode, depth int) {
		stats.NodeCount++
		stats.ByType[node.Type]++
		if node.Provider != "" {
			stats.ByProvider[node.Provider]++
		}
		stats.TotalCostUSD += node.CostUSD
		stats.TotalTokens += node.TokensUsed
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	walk(root, 0)

	// 选中路径：从根沿选中子节点下行
	current := root
	for {
		var next *entity.TreeNode
		for _, child := range current.Children {
			if child.Selected {
				next = child
				break
			}
		}
		if next == nil {
			break
		}
		stats.SelectedPath = append(stats.SelectedPath, next.ID)
		current = next
	}

	return stats, nil
}

// CloneNode 复制单个节点到新父节点下（不复制选中态）
func (s *Store) CloneNode(ctx context.Context, nodeID, newParentID string) (*entity.GenerationNode, error) {
	source, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	parent, err := s.getExisting(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if parent.Deleted {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "cannot clone under a deleted node")
	}

	clone := cloneOf(source, &parent.ID, parent.RootID)
	if err := s.nodes.CreateNode(ctx, clone); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to clone node")
	}
	s.invalidate(ctx, parent.RootID)
	return clone, nil
}

// CloneSubtree 递归复制整棵子树到新父节点下
func (s *Store) CloneSubtree(ctx context.Context, nodeID, newParentID string) (*entity.GenerationNode, error) {
	source, err := s.getExisting(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	parent, err := s.getExisting(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if parent.Deleted {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "cannot clone under a deleted node")
	}

	var top *entity.GenerationNode
	err = s.txMgr.WithTransaction(ctx, func(txCtx context.Context) error {
		var copyRec func(src *entity.GenerationNode, parentID *string) (*entity.GenerationNode, error)
		copyRec = func(src *entity.GenerationNode, parentID *string) (*entity.GenerationNode, error) {
			clone := cloneOf(src, parentID, parent.RootID)
			if cerr := s.nodes.CreateNode(txCtx, clone); cerr != nil {
				return nil, cerr
			}
			children, cerr := s.nodes.GetChildren(txCtx, src.ID)
			if cerr != nil {
				return nil, cerr
			}
			for _, child := range filterDeleted(children) {
				if _, cerr := copyRec(child, &clone.ID); cerr != nil {
					return nil, cerr
				}
			}
			return clone, nil
		}

		var cerr error
		top, cerr = copyRec(source, &parent.ID)
		return cerr
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to clone subtree")
	}

	s.invalidate(ctx, parent.RootID)
	return top, nil
}

// collectSubtree 广度优先收集节点及其全部后代
func (s *Store) collectSubtree(ctx context.Context, node *entity.GenerationNode) ([]*entity.GenerationNode, error) {
	out := []*entity.GenerationNode{node}
	queue := []string{node.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := s.nodes.GetChildren(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if child.Deleted {
				continue
			}
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

func cloneOf(src *entity.GenerationNode, parentID *string, rootID string) *entity.GenerationNode {
	return &entity.GenerationNode{
		ID:              uuid.NewString(),
		Type:            src.Type,
		Content:         src.Content,
		Mode:            src.Mode,
		Vertical:        src.Vertical,
		ParentID:        parentID,
		RootID:          rootID,
		Provider:        src.Provider,
		Model:           src.Model,
		Prompt:          src.Prompt,
		ContextSnapshot: src.ContextSnapshot,
		TokensUsed:      src.TokensUsed,
		CostUSD:         src.CostUSD,
		Visible:         true,
	}
}

func filterDeleted(nodes []*entity.GenerationNode) []*entity.GenerationNode {
	out := make([]*entity.GenerationNode, 0, len(nodes))
	for _, n := range nodes {
		if !n.Deleted {
			out = append(out, n)
		}
	}
	return out
}
