package tree

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge-ai-api/internal/domain/entity"
	apperrors "contentforge-ai-api/pkg/errors"
)

// memNodeRepo 内存节点仓储
type memNodeRepo struct {
	mu    sync.Mutex
	nodes map[string]*entity.GenerationNode
	seq   int
}

func newMemNodeRepo() *memNodeRepo {
	return &memNodeRepo{nodes: make(map[string]*entity.GenerationNode)}
}

func (r *memNodeRepo) CreateNode(ctx context.Context, node *entity.GenerationNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	// 单调递增的创建时间，保证排序稳定
	cp := *node
	cp.CreatedAt = time.Unix(int64(r.seq), 0)
	node.CreatedAt = cp.CreatedAt
	r.nodes[node.ID] = &cp
	return nil
}

func (r *memNodeRepo) UpdateNode(ctx context.Context, node *entity.GenerationNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *node
	r.nodes[node.ID] = &cp
	return nil
}

func (r *memNodeRepo) GetNode(ctx context.Context, id string) (*entity.GenerationNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r *memNodeRepo) GetTree(ctx context.Context, rootID string) ([]*entity.GenerationNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.GenerationNode
	for _, n := range r.nodes {
		if n.RootID == rootID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memNodeRepo) GetChildren(ctx context.Context, parentID string) ([]*entity.GenerationNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.GenerationNode
	for _, n := range r.nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memNodeRepo) ListByTypes(ctx context.Context, types []entity.NodeType, limit int) ([]*entity.GenerationNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[entity.NodeType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*entity.GenerationNode
	for _, n := range r.nodes {
		if want[n.Type] && !n.Deleted {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// noopTx 直接执行，无真实事务
type noopTx struct{}

func (noopTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestStore() (*Store, *memNodeRepo) {
	repo := newMemNodeRepo()
	return NewStore(repo, noopTx{}, nil, nil), repo
}

func mustCreateTree(t *testing.T, s *Store, id string) *entity.GenerationNode {
	t.Helper()
	root := &entity.GenerationNode{ID: id, Type: entity.NodeTypeIdea, Content: "root"}
	require.NoError(t, s.CreateTree(context.Background(), root))
	return root
}

func mustAddNode(t *testing.T, s *Store, parentID string, nodeType entity.NodeType, content string) *entity.GenerationNode {
	t.Helper()
	node := &entity.GenerationNode{Type: nodeType, Content: content, ParentID: &parentID}
	require.NoError(t, s.AddNode(context.Background(), node))
	return node
}

func TestCreateTreeMarksRoot(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")

	assert.True(t, root.IsRoot)
	assert.Equal(t, root.ID, root.RootID)
	assert.Nil(t, root.ParentID)
}

func TestAddNodeInheritsRoot(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")
	child := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "t")

	assert.Equal(t, root.ID, child.RootID)
	assert.False(t, child.IsRoot)
	assert.NotEmpty(t, child.ID)
}

func TestAddNodeUnknownParent(t *testing.T) {
	s, _ := newTestStore()
	missing := "nope"
	err := s.AddNode(context.Background(), &entity.GenerationNode{
		Type: entity.NodeTypeTitle, ParentID: &missing,
	})
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeNodeNotFound, appErr.Code)
}

func TestGetTreeNested(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	b := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "b")
	mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")

	tree, err := s.GetTree(context.Background(), root.ID)
	require.NoError(t, err)
	require.Len(t, tree.Children, 2)
	// 子节点按创建时间排序
	assert.Equal(t, a.ID, tree.Children[0].ID)
	assert.Equal(t, b.ID, tree.Children[1].ID)
	require.Len(t, tree.Children[0].Children, 1)
}

func TestGetTreeNotFound(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.GetTree(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTreeNotFound, apperrors.AsAppError(err).Code)
}

func TestSelectNodeDeselectsSiblings(t *testing.T) {
	s, repo := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	b := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "b")
	c := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "c")

	ctx := context.Background()
	require.NoError(t, s.SelectNode(ctx, a.ID))
	require.NoError(t, s.SelectNode(ctx, b.ID))

	// 兄弟集合中至多一个选中
	selected := 0
	for _, id := range []string{a.ID, b.ID, c.ID} {
		n, _ := repo.GetNode(ctx, id)
		if n.Selected {
			selected++
			assert.Equal(t, b.ID, n.ID)
		}
	}
	assert.Equal(t, 1, selected)
}

func TestToggleVisibilityHideCascades(t *testing.T) {
	s, repo := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	a1 := mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")

	ctx := context.Background()
	require.NoError(t, s.ToggleNodeVisibility(ctx, a.ID, false))

	for _, id := range []string{a.ID, a1.ID} {
		n, _ := repo.GetNode(ctx, id)
		assert.False(t, n.Visible, "node %s should be hidden", id)
	}

	// 显示不级联
	require.NoError(t, s.ToggleNodeVisibility(ctx, a.ID, true))
	n, _ := repo.GetNode(ctx, a.ID)
	assert.True(t, n.Visible)
	n, _ = repo.GetNode(ctx, a1.ID)
	assert.False(t, n.Visible)
}

func TestDeleteNodeReparentsChildren(t *testing.T) {
	s, repo := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	a1 := mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")

	ctx := context.Background()
	require.NoError(t, s.DeleteNode(ctx, a.ID, false))

	deleted, _ := repo.GetNode(ctx, a.ID)
	assert.True(t, deleted.Deleted)
	assert.False(t, deleted.Visible)

	orphan, _ := repo.GetNode(ctx, a1.ID)
	require.NotNil(t, orphan.ParentID)
	assert.Equal(t, root.ID, *orphan.ParentID)
	assert.False(t, orphan.Deleted)
}

func TestDeleteNodeCascade(t *testing.T) {
	s, repo := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	a1 := mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")

	ctx := context.Background()
	require.NoError(t, s.DeleteNode(ctx, a.ID, true))

	for _, id := range []string{a.ID, a1.ID} {
		n, _ := repo.GetNode(ctx, id)
		assert.True(t, n.Deleted, "node %s should be deleted", id)
	}
}

func TestMoveNodeCycleRejected(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	a1 := mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")

	ctx := context.Background()
	err := s.MoveNode(ctx, a.ID, a1.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTreeCycle, apperrors.AsAppError(err).Code)

	err = s.MoveNode(ctx, a.ID, a.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTreeCycle, apperrors.AsAppError(err).Code)
}

func TestMoveNodeAcrossTreesRejected(t *testing.T) {
	s, _ := newTestStore()
	root1 := mustCreateTree(t, s, "r1")
	root2 := mustCreateTree(t, s, "r2")
	a := mustAddNode(t, s, root1.ID, entity.NodeTypeTitle, "a")

	err := s.MoveNode(context.Background(), a.ID, root2.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.AsAppError(err).Code)
}

func TestMoveNodeOK(t *testing.T) {
	s, repo := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	b := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "b")

	ctx := context.Background()
	require.NoError(t, s.MoveNode(ctx, b.ID, a.ID))
	moved, _ := repo.GetNode(ctx, b.ID)
	assert.Equal(t, a.ID, *moved.ParentID)
}

func TestGetNodePathRootFirst(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	a1 := mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")

	path, err := s.GetNodePath(context.Background(), a1.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, root.ID, path[0].ID)
	assert.Equal(t, a.ID, path[1].ID)
	assert.Equal(t, a1.ID, path[2].ID)
}

func TestGetTreeStats(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	b := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "b")
	a1 := mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")
	_ = b

	ctx := context.Background()
	// 标注用量与选中链
	for _, n := range []*entity.GenerationNode{a, a1} {
		n.TokensUsed = 100
		n.CostUSD = 0.5
		n.Provider = "openai"
		require.NoError(t, s.nodes.UpdateNode(ctx, n))
	}
	require.NoError(t, s.SelectNode(ctx, a.ID))
	require.NoError(t, s.SelectNode(ctx, a1.ID))

	stats, err := s.GetTreeStats(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.NodeCount)
	assert.Equal(t, 2, stats.ByType[entity.NodeTypeTitle])
	assert.Equal(t, 2, stats.ByProvider["openai"])
	assert.InDelta(t, 1.0, stats.TotalCostUSD, 1e-9)
	assert.Equal(t, 200, stats.TotalTokens)
	assert.Equal(t, 2, stats.MaxDepth)
	assert.Equal(t, []string{root.ID, a.ID, a1.ID}, stats.SelectedPath)
}

func TestCloneSubtree(t *testing.T) {
	s, _ := newTestStore()
	root := mustCreateTree(t, s, "r1")
	a := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "a")
	mustAddNode(t, s, a.ID, entity.NodeTypeSynopsis, "a1")
	b := mustAddNode(t, s, root.ID, entity.NodeTypeTitle, "b")

	ctx := context.Background()
	clone, err := s.CloneSubtree(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, clone.ID)
	assert.Equal(t, b.ID, *clone.ParentID)
	assert.Equal(t, "a", clone.Content)

	children, err := s.GetChildren(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a1", children[0].Content)
}
