package generation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/provider"
)

// stubGen 可编程的生成端口替身
type stubGen struct {
	mu    sync.Mutex
	calls []*provider.GenerateConfig
	// respond 为空时返回 "out:<prompt>" 的默认响应
	respond func(cfg *provider.GenerateConfig) (*provider.Response, error)
}

func (s *stubGen) Generate(ctx context.Context, cfg *provider.GenerateConfig) (*provider.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cfg)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(cfg)
	}
	return okResponse("out:" + cfg.Prompt), nil
}

func (s *stubGen) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func okResponse(content string) *provider.Response {
	return &provider.Response{
		Content: content,
		Usage:   provider.Usage{InputTokens: 5, OutputTokens: 5, TotalTokens: 10, CostUSD: 0.01},
		Metadata: provider.Metadata{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			FinishReason: provider.FinishCompleted,
		},
	}
}

// memTree 内存树替身，维护与真实存储一致的父子与选中语义
type memTree struct {
	mu    sync.Mutex
	nodes map[string]*entity.GenerationNode
}

func newMemTree() *memTree {
	return &memTree{nodes: map[string]*entity.GenerationNode{}}
}

func (m *memTree) CreateTree(ctx context.Context, node *entity.GenerationNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.MarkRoot()
	m.nodes[node.ID] = node
	return nil
}

func (m *memTree) AddNode(ctx context.Context, node *entity.GenerationNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node.ParentID == nil {
		return fmt.Errorf("parent required")
	}
	parent, ok := m.nodes[*node.ParentID]
	if !ok {
		return fmt.Errorf("parent %s not found", *node.ParentID)
	}
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.RootID = parent.RootID
	m.nodes[node.ID] = node
	return nil
}

func (m *memTree) SelectNode(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	for _, sibling := range m.nodes {
		if sameParent(node, sibling) {
			sibling.Selected = sibling.ID == nodeID
		}
	}
	return nil
}

func sameParent(a, b *entity.GenerationNode) bool {
	if a.ParentID == nil || b.ParentID == nil {
		return a.ParentID == nil && b.ParentID == nil
	}
	return *a.ParentID == *b.ParentID
}

func (m *memTree) selectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, node := range m.nodes {
		if node.Selected {
			n++
		}
	}
	return n
}

// eventRecorder 线程安全的事件收集 sink
type eventRecorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *eventRecorder) sink() Sink {
	return func(event *Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		copied := *event
		r.events = append(r.events, &copied)
		return nil
	}
}

func (r *eventRecorder) ofType(t EventType) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(gen *stubGen, trees *memTree) *Orchestrator {
	return New(gen, trees, nil, &config.GenerationConfig{
		BatchSize: 2,
		Verticals: []string{"technology", "finance", "healthcare"},
	})
}

func TestGenerateModeUnsetIsDirect(t *testing.T) {
	gen := &stubGen{}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)

	result, err := o.Generate(context.Background(), &Config{Task: "title", Prompt: "go generics"}, nil)
	require.NoError(t, err)

	assert.Equal(t, entity.ModeDirect, result.Mode)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, 0, result.Outputs[0].Index)
	assert.Equal(t, "out:go generics", result.Outputs[0].Content)
	assert.NotEmpty(t, result.RootID)
	assert.Positive(t, result.Usage.TotalTokens)
}

func TestDirectOutputCountAndSelection(t *testing.T) {
	gen := &stubGen{}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)

	result, err := o.Generate(context.Background(), &Config{
		Task:        "title",
		Prompt:      "topic",
		OutputCount: 3,
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Outputs, 3)
	for i, out := range result.Outputs {
		assert.Equal(t, i, out.Index)
		assert.NotEmpty(t, out.NodeID)
	}
	assert.Len(t, trees.nodes, 3)
	// 首个产出为根且唯一选中
	root := trees.nodes[result.RootID]
	require.NotNil(t, root)
	assert.True(t, root.Selected)
	assert.Equal(t, 1, trees.selectedCount())
}

func TestDirectTemperatureVariation(t *testing.T) {
	gen := &stubGen{}
	o := newTestOrchestrator(gen, newMemTree())

	_, err := o.Generate(context.Background(), &Config{
		Task:        "title",
		Prompt:      "topic",
		OutputCount: 3,
		Options:     map[string]any{"temperature": 0.5},
	}, nil)
	require.NoError(t, err)

	require.Len(t, gen.calls, 3)
	assert.Equal(t, 0.5, gen.calls[0].Options["temperature"])
	assert.InDelta(t, 0.6, gen.calls[1].Options["temperature"].(float64), 1e-9)
	assert.InDelta(t, 0.7, gen.calls[2].Options["temperature"].(float64), 1e-9)
}

func TestDirectUnderExistingParent(t *testing.T) {
	gen := &stubGen{}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)

	parent := &entity.GenerationNode{Type: entity.NodeTypeTitle, Content: "root"}
	require.NoError(t, trees.CreateTree(context.Background(), parent))

	result, err := o.Generate(context.Background(), &Config{
		Task:        "title",
		Prompt:      "variants",
		ParentID:    parent.ID,
		OutputCount: 2,
	}, nil)
	require.NoError(t, err)

	for _, out := range result.Outputs {
		node := trees.nodes[out.NodeID]
		require.NotNil(t, node)
		require.NotNil(t, node.ParentID)
		assert.Equal(t, parent.ID, *node.ParentID)
	}
	first := trees.nodes[result.Outputs[0].NodeID]
	assert.True(t, first.Selected)
}

func TestStructuredWorkflowChains(t *testing.T) {
	gen := &stubGen{}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)
	rec := &eventRecorder{}

	result, err := o.Generate(context.Background(), &Config{
		Mode:   entity.ModeStructured,
		Task:   "blog",
		Prompt: "why tests matter",
	}, rec.sink())
	require.NoError(t, err)

	require.Len(t, result.Steps, 5)
	assert.Equal(t, StepIdea, result.Steps[0].Step)
	assert.Equal(t, StepBlog, result.Steps[4].Step)

	// 每步提示词由上一步产出构建
	require.Len(t, gen.calls, 5)
	assert.Contains(t, gen.calls[0].Prompt, "why tests matter")
	for i := 1; i < len(gen.calls); i++ {
		assert.Contains(t, gen.calls[i].Prompt, result.Steps[i-1].Content)
	}

	// 节点成链：每步挂在上一步之下
	for i := 1; i < len(result.Steps); i++ {
		node := trees.nodes[result.Steps[i].NodeID]
		require.NotNil(t, node.ParentID)
		assert.Equal(t, result.Steps[i-1].NodeID, *node.ParentID)
	}

	completes := rec.ofType(EventStepComplete)
	require.Len(t, completes, 5)
	assert.InDelta(t, 0.2, completes[0].Progress, 1e-9)
	assert.InDelta(t, 1.0, completes[4].Progress, 1e-9)
}

func TestStructuredStepBudgets(t *testing.T) {
	gen := &stubGen{}
	o := newTestOrchestrator(gen, newMemTree())

	_, err := o.Generate(context.Background(), &Config{
		Mode:   entity.ModeStructured,
		Task:   "blog",
		Prompt: "topic",
	}, nil)
	require.NoError(t, err)

	// 未显式覆盖时按步骤复杂度给出输出预算
	require.Len(t, gen.calls, 5)
	assert.Equal(t, complexityBudget["low"], gen.calls[0].Options["maxTokens"])    // idea
	assert.Equal(t, complexityBudget["medium"], gen.calls[3].Options["maxTokens"]) // outline
	assert.Equal(t, complexityBudget["high"], gen.calls[4].Options["maxTokens"])   // blog

	// 调用方覆盖（含 legacy 键）优先
	gen2 := &stubGen{}
	o2 := newTestOrchestrator(gen2, newMemTree())
	_, err = o2.Generate(context.Background(), &Config{
		Mode:    entity.ModeStructured,
		Task:    "social",
		Prompt:  "topic",
		Options: map[string]any{"max_tokens": 333},
	}, nil)
	require.NoError(t, err)
	for _, call := range gen2.calls {
		assert.Equal(t, 333, call.Options["max_tokens"])
		assert.NotContains(t, call.Options, "maxTokens")
	}
}

func TestStructuredSkipsOnlySkippableSteps(t *testing.T) {
	gen := &stubGen{}
	o := newTestOrchestrator(gen, newMemTree())

	result, err := o.Generate(context.Background(), &Config{
		Mode:      entity.ModeStructured,
		Task:      "blog",
		Prompt:    "topic",
		SkipSteps: []string{StepIdea, StepSynopsis, StepOutline},
	}, nil)
	require.NoError(t, err)

	byStep := map[string]*StepResult{}
	for _, s := range result.Steps {
		byStep[s.Step] = s
	}
	assert.False(t, byStep[StepIdea].Skipped, "idea is not skippable")
	assert.True(t, byStep[StepSynopsis].Skipped)
	assert.True(t, byStep[StepOutline].Skipped)
	assert.Equal(t, 3, gen.callCount())
}

func TestMultiVerticalParallelErrorAsData(t *testing.T) {
	gen := &stubGen{
		respond: func(cfg *provider.GenerateConfig) (*provider.Response, error) {
			if cfg.Options["vertical"] == "finance" {
				return nil, fmt.Errorf("upstream refused")
			}
			return okResponse("for " + cfg.Options["vertical"].(string)), nil
		},
	}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)
	rec := &eventRecorder{}

	result, err := o.Generate(context.Background(), &Config{
		Mode:      entity.ModeMultiVertical,
		Task:      "blog",
		Prompt:    "announcement",
		Verticals: []string{"technology", "finance", "healthcare"},
	}, rec.sink())
	require.NoError(t, err, "one failing vertical must not fail the run")

	require.Len(t, result.Verticals, 3)
	byVertical := map[string]*VerticalResult{}
	for _, v := range result.Verticals {
		byVertical[v.Vertical] = v
	}
	assert.Contains(t, byVertical["finance"].Error, "upstream refused")
	assert.Empty(t, byVertical["finance"].NodeID)
	assert.Equal(t, "for technology", byVertical["technology"].Content)
	assert.Equal(t, "for healthcare", byVertical["healthcare"].Content)

	// 成功的领域挂在容器根之下
	node := trees.nodes[byVertical["technology"].NodeID]
	require.NotNil(t, node.ParentID)
	assert.Equal(t, result.RootID, *node.ParentID)
	assert.Equal(t, "technology", node.Vertical)

	// 失败领域不贡献用量
	assert.Equal(t, 20, result.Usage.TotalTokens)

	completes := rec.ofType(EventVerticalComplete)
	assert.Len(t, completes, 3)
}

func TestMultiVerticalAllExpandsDefaults(t *testing.T) {
	gen := &stubGen{}
	o := newTestOrchestrator(gen, newMemTree())

	result, err := o.Generate(context.Background(), &Config{
		Mode:      entity.ModeMultiVertical,
		Task:      "blog",
		Prompt:    "p",
		Verticals: []string{"all"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Verticals, 3)
}

func TestMultiVerticalSequentialAdaptsFromBase(t *testing.T) {
	gen := &stubGen{}
	o := newTestOrchestrator(gen, newMemTree())

	result, err := o.Generate(context.Background(), &Config{
		Mode:         entity.ModeMultiVertical,
		Task:         "blog",
		Prompt:       "base prompt",
		Verticals:    []string{"technology", "finance"},
		VerticalMode: VerticalSequential,
	}, nil)
	require.NoError(t, err)

	require.Len(t, gen.calls, 2)
	assert.Equal(t, "base prompt", gen.calls[0].Prompt)
	// 后续领域由基准产出改写
	assert.Contains(t, gen.calls[1].Prompt, "finance")
	assert.Contains(t, gen.calls[1].Prompt, result.Verticals[0].Content)
}

func TestBatchNilPromptsRejected(t *testing.T) {
	o := newTestOrchestrator(&stubGen{}, newMemTree())

	_, err := o.Generate(context.Background(), &Config{
		Mode: entity.ModeBatch,
		Task: "title",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed")
	assert.Contains(t, err.Error(), "array of prompts")
}

func TestBatchEmptyIsNoop(t *testing.T) {
	gen := &stubGen{}
	o := newTestOrchestrator(gen, newMemTree())

	result, err := o.Generate(context.Background(), &Config{
		Mode:    entity.ModeBatch,
		Task:    "title",
		Prompts: []string{},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Batch)
	assert.Zero(t, gen.callCount())
}

func TestBatchPartialFailureKeepsOrder(t *testing.T) {
	gen := &stubGen{
		respond: func(cfg *provider.GenerateConfig) (*provider.Response, error) {
			if cfg.Prompt == "bad" {
				return nil, fmt.Errorf("boom")
			}
			return okResponse("out:" + cfg.Prompt), nil
		},
	}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)

	result, err := o.Generate(context.Background(), &Config{
		Mode:    entity.ModeBatch,
		Task:    "title",
		Prompts: []string{"p0", "bad", "p2", "p3", "p4"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Batch, 5)
	for i, item := range result.Batch {
		assert.Equal(t, i, item.Index)
	}
	assert.Contains(t, result.Batch[1].Error, "boom")
	assert.Empty(t, result.Batch[1].NodeID)
	assert.Equal(t, "out:p4", result.Batch[4].Content)
	// 每个成功项一棵独立树
	assert.Len(t, trees.nodes, 4)
}

func TestEditExistingValidation(t *testing.T) {
	o := newTestOrchestrator(&stubGen{}, newMemTree())

	_, err := o.Generate(context.Background(), &Config{
		Mode:         entity.ModeEditExisting,
		Instructions: "shorten it",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "existing content")

	_, err = o.Generate(context.Background(), &Config{
		Mode:            entity.ModeEditExisting,
		ExistingContent: "draft",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edit instructions")
}

func TestEditExistingCreatesNewNode(t *testing.T) {
	gen := &stubGen{}
	trees := newMemTree()
	o := newTestOrchestrator(gen, trees)

	source := &entity.GenerationNode{Type: entity.NodeTypeBlog, Content: "original draft"}
	require.NoError(t, trees.CreateTree(context.Background(), source))

	result, err := o.Generate(context.Background(), &Config{
		Mode:            entity.ModeEditExisting,
		ExistingContent: "original draft",
		Instructions:    "make it formal",
		SourceNodeID:    source.ID,
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Outputs, 1)
	edited := trees.nodes[result.Outputs[0].NodeID]
	require.NotNil(t, edited)
	assert.Equal(t, entity.NodeTypeEdit, edited.Type)
	require.NotNil(t, edited.ParentID)
	assert.Equal(t, source.ID, *edited.ParentID)
	// 原节点不被改写
	assert.Equal(t, "original draft", trees.nodes[source.ID].Content)

	require.Len(t, gen.calls, 1)
	assert.Contains(t, gen.calls[0].Prompt, "make it formal")
	assert.Contains(t, gen.calls[0].Prompt, "original draft")
}

func TestGenerateEmitsStartAndEndEvents(t *testing.T) {
	o := newTestOrchestrator(&stubGen{}, newMemTree())
	rec := &eventRecorder{}

	_, err := o.Generate(context.Background(), &Config{Task: "title", Prompt: "p"}, rec.sink())
	require.NoError(t, err)

	require.NotEmpty(t, rec.events)
	assert.Equal(t, EventGenerationStart, rec.events[0].Type)
	assert.Equal(t, EventEnd, rec.events[len(rec.events)-1].Type)
	for _, e := range rec.events {
		assert.Equal(t, "direct", e.Mode)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestGenerateWrapsFailures(t *testing.T) {
	gen := &stubGen{
		respond: func(cfg *provider.GenerateConfig) (*provider.Response, error) {
			return nil, fmt.Errorf("provider exploded")
		},
	}
	o := newTestOrchestrator(gen, newMemTree())
	rec := &eventRecorder{}

	_, err := o.Generate(context.Background(), &Config{Task: "title", Prompt: "p"}, rec.sink())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed")
	assert.Contains(t, err.Error(), "provider exploded")

	errEvents := rec.ofType(EventError)
	require.Len(t, errEvents, 1)
	assert.Contains(t, errEvents[0].Error, "provider exploded")
	assert.Equal(t, EventEnd, rec.events[len(rec.events)-1].Type)
}

func TestAggregateUsageSkipsNil(t *testing.T) {
	total := AggregateUsage([]*provider.Usage{
		{TotalTokens: 100, CostUSD: 0.01},
		nil,
		{TotalTokens: 200, CostUSD: 0.02},
	})
	assert.Equal(t, 300, total.TotalTokens)
	assert.InDelta(t, 0.03, total.CostUSD, 1e-9)
}

func TestBrokenSinkDoesNotFailGeneration(t *testing.T) {
	o := newTestOrchestrator(&stubGen{}, newMemTree())

	broken := func(event *Event) error {
		return fmt.Errorf("client went away")
	}
	result, err := o.Generate(context.Background(), &Config{Task: "title", Prompt: "p"}, Sink(broken))
	require.NoError(t, err)
	assert.Len(t, result.Outputs, 1)
}
