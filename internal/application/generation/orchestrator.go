// Package generation 实现生成编排：五种模式的统一入口，
// 驱动后端选择、上下文装配与生成树写入。
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"contentforge-ai-api/internal/application/assembler"
	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/service"
	"contentforge-ai-api/internal/provider"
	apperrors "contentforge-ai-api/pkg/errors"
	"contentforge-ai-api/pkg/logger"
	"contentforge-ai-api/pkg/metrics"
)

// Generator 生成调用端口（选择器满足该接口）
type Generator interface {
	Generate(ctx context.Context, cfg *provider.GenerateConfig) (*provider.Response, error)
}

// TreeWriter 生成树写入端口
type TreeWriter interface {
	CreateTree(ctx context.Context, node *entity.GenerationNode) error
	AddNode(ctx context.Context, node *entity.GenerationNode) error
	SelectNode(ctx context.Context, nodeID string) error
}

// ContextBuilder 上下文装配端口
type ContextBuilder interface {
	BuildContext(ctx context.Context, cfg *assembler.BuildConfig) *assembler.Bundle
}

// VerticalMode 多垂直领域子模式
const (
	VerticalParallel   = "parallel"
	VerticalSequential = "sequential"
	VerticalAdaptive   = "adaptive"
)

// Config 一次生成请求的完整配置
type Config struct {
	Mode     entity.GenerationMode `json:"mode,omitempty"`
	Task     string                `json:"task"`
	Prompt   string                `json:"prompt,omitempty"`
	Provider string                `json:"provider,omitempty"`
	Model    string                `json:"model,omitempty"`
	Options  map[string]any        `json:"options,omitempty"`

	// direct
	OutputCount int    `json:"output_count,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`

	// structured
	SkipSteps []string `json:"skip_steps,omitempty"`

	// multi_vertical
	Verticals    []string `json:"verticals,omitempty"`
	VerticalMode string   `json:"vertical_mode,omitempty"`

	// batch：nil 表示未提供（校验失败），空数组是合法的空操作
	Prompts []string `json:"prompts,omitempty"`

	// edit_existing
	ExistingContent string `json:"existing_content,omitempty"`
	Instructions    string `json:"instructions,omitempty"`
	SourceNodeID    string `json:"source_node_id,omitempty"`

	Context *assembler.BuildConfig `json:"context,omitempty"`
}

// Output 单个产出（direct 与 batch 复用；batch 的失败项携带 Error）
type Output struct {
	Index    int             `json:"index"`
	Content  string          `json:"content,omitempty"`
	NodeID   string          `json:"node_id,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Model    string          `json:"model,omitempty"`
	Usage    *provider.Usage `json:"usage,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// StepResult 结构化工作流单步结果
type StepResult struct {
	Step    string          `json:"step"`
	Task    string          `json:"task"`
	Content string          `json:"content,omitempty"`
	NodeID  string          `json:"node_id,omitempty"`
	Usage   *provider.Usage `json:"usage,omitempty"`
	Skipped bool            `json:"skipped,omitempty"`
}

// VerticalResult 单个垂直领域的结果；失败以 Error 字段承载
type VerticalResult struct {
	Vertical string          `json:"vertical"`
	Content  string          `json:"content,omitempty"`
	NodeID   string          `json:"node_id,omitempty"`
	Usage    *provider.Usage `json:"usage,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Result 生成结果：聚合用量与墙钟耗时始终填充
type Result struct {
	Mode       entity.GenerationMode `json:"mode"`
	RootID     string                `json:"root_id,omitempty"`
	Outputs    []*Output             `json:"outputs,omitempty"`
	Steps      []*StepResult         `json:"steps,omitempty"`
	Verticals  []*VerticalResult     `json:"verticals,omitempty"`
	Batch      []*Output             `json:"batch,omitempty"`
	Content    string                `json:"content,omitempty"`
	Usage      provider.Usage        `json:"usage"`
	DurationMs int64                 `json:"duration_ms"`
}

// Orchestrator 生成编排器
type Orchestrator struct {
	llm       Generator
	trees     TreeWriter
	assembler ContextBuilder

	batchSize int
	verticals []string
}

// New 创建编排器
func New(llm Generator, trees TreeWriter, ctxBuilder ContextBuilder, cfg *config.GenerationConfig) *Orchestrator {
	o := &Orchestrator{
		llm:       llm,
		trees:     trees,
		assembler: ctxBuilder,
		batchSize: 5,
		verticals: []string{"technology", "healthcare", "finance", "education", "retail"},
	}
	if cfg != nil {
		if cfg.BatchSize > 0 {
			o.batchSize = cfg.BatchSize
		}
		if len(cfg.Verticals) > 0 {
			o.verticals = cfg.Verticals
		}
	}
	return o
}

// Generate 统一入口：按模式分派，未设置模式等同 direct。
// 任何模式失败都包装为 generation failed 并携带根因。
func (o *Orchestrator) Generate(ctx context.Context, cfg *Config, sink Sink) (*Result, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "generation config is required")
	}

	mode := cfg.Mode
	if mode == "" {
		mode = entity.ModeDirect
	}

	em := newEmitter(sink, string(mode))
	em.emit(&Event{Type: EventGenerationStart, Task: cfg.Task})

	start := time.Now()
	var (
		result *Result
		err    error
	)
	switch mode {
	case entity.ModeDirect:
		result, err = o.direct(ctx, cfg, em)
	case entity.ModeStructured:
		result, err = o.structured(ctx, cfg, em)
	case entity.ModeMultiVertical:
		result, err = o.multiVertical(ctx, cfg, em)
	case entity.ModeBatch:
		result, err = o.batch(ctx, cfg, em)
	case entity.ModeEditExisting:
		result, err = o.editExisting(ctx, cfg, em)
	default:
		err = apperrors.New(apperrors.CodeValidationFailed,
			fmt.Sprintf("unknown generation mode %q", mode))
	}
	duration := time.Since(start)

	if err != nil {
		em.emit(&Event{Type: EventError, Task: cfg.Task, Error: err.Error()})
		em.emit(&Event{Type: EventEnd})
		metrics.GenerationTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationFailed, "generation failed")
	}

	result.Mode = mode
	result.DurationMs = duration.Milliseconds()
	em.emit(&Event{Type: EventEnd})
	metrics.GenerationTotal.WithLabelValues(string(mode), "ok").Inc()
	metrics.GenerationDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
	return result, nil
}

// direct 为同一任务生成 outputCount 个候选。
// 首个产出默认选中；其后的产出温度逐个 +0.1 以增加多样性。
func (o *Orchestrator) direct(ctx context.Context, cfg *Config, em *emitter) (*Result, error) {
	count := cfg.OutputCount
	if count < 1 {
		count = 1
	}

	contextText, snapshot := o.assembleContext(ctx, cfg)

	var (
		outputs  []*Output
		usages   []*provider.Usage
		parentID = cfg.ParentID
		rootID   string
	)
	for i := 0; i < count; i++ {
		em.emit(&Event{Type: EventOutputStart, Task: cfg.Task, Index: i})

		genCfg := o.generateConfig(cfg, cfg.Task, cfg.Prompt, contextText)
		if i > 0 {
			bumpTemperature(genCfg, 0.1*float64(i))
		}

		resp, err := o.llm.Generate(ctx, genCfg)
		if err != nil {
			return nil, err
		}

		node := newNode(cfg, cfg.Task, "", resp, snapshot)
		node.Mode = entity.ModeDirect
		if parentID == "" && i == 0 {
			node.Selected = true
			if cerr := o.trees.CreateTree(ctx, node); cerr != nil {
				return nil, cerr
			}
			// 后续产出挂在首个产出（根）之下
			parentID = node.ID
			rootID = node.ID
		} else {
			parent := parentID
			node.ParentID = &parent
			if aerr := o.trees.AddNode(ctx, node); aerr != nil {
				return nil, aerr
			}
			if rootID == "" {
				rootID = node.RootID
			}
			if cfg.ParentID != "" && i == 0 {
				if serr := o.trees.SelectNode(ctx, node.ID); serr != nil {
					return nil, serr
				}
			}
		}

		outputs = append(outputs, &Output{
			Index:    i,
			Content:  resp.Content,
			NodeID:   node.ID,
			Provider: resp.Metadata.Provider,
			Model:    resp.Metadata.Model,
			Usage:    &resp.Usage,
		})
		usages = append(usages, &resp.Usage)

		em.emit(&Event{Type: EventOutputComplete, Task: cfg.Task, Index: i, NodeID: node.ID})
	}

	return &Result{
		RootID:  rootID,
		Outputs: outputs,
		Content: outputs[0].Content,
		Usage:   AggregateUsage(usages),
	}, nil
}

// structured 按任务的有序步骤链执行：每步的提示词由上一步
// 产出构建，每步的节点挂在上一步节点之下，同根成链。
func (o *Orchestrator) structured(ctx context.Context, cfg *Config, em *emitter) (*Result, error) {
	if strings.TrimSpace(cfg.Prompt) == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "structured mode requires a prompt")
	}

	steps := WorkflowFor(cfg.Task)
	skip := make(map[string]bool, len(cfg.SkipSteps))
	for _, s := range cfg.SkipSteps {
		skip[s] = true
	}

	contextText, snapshot := o.assembleContext(ctx, cfg)

	var (
		results      []*StepResult
		usages       []*provider.Usage
		rootID       string
		prevNodeID   string
		prevContent  string
		totalSteps   = float64(len(steps))
		finalContent string
	)
	for i, step := range steps {
		if skip[step] && skippableSteps[step] {
			results = append(results, &StepResult{Step: step, Task: TaskForStep(step), Skipped: true})
			continue
		}

		em.emit(&Event{Type: EventStepStart, Task: cfg.Task, Step: step,
			Progress: float64(i) / totalSteps})

		task := TaskForStep(step)
		prompt := stepPrompt(step, cfg.Prompt, prevContent)
		genCfg := o.generateConfig(cfg, task, prompt, contextText)
		applyStepOptions(genCfg, step, OptionsForStep(step))

		resp, err := o.llm.Generate(ctx, genCfg)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step, err)
		}

		node := newNode(cfg, task, "", resp, snapshot)
		node.Mode = entity.ModeStructured
		node.Prompt = prompt
		if prevNodeID == "" {
			if cerr := o.trees.CreateTree(ctx, node); cerr != nil {
				return nil, cerr
			}
			rootID = node.ID
		} else {
			parent := prevNodeID
			node.ParentID = &parent
			if aerr := o.trees.AddNode(ctx, node); aerr != nil {
				return nil, aerr
			}
		}
		prevNodeID = node.ID
		prevContent = resp.Content
		finalContent = resp.Content

		results = append(results, &StepResult{
			Step:    step,
			Task:    task,
			Content: resp.Content,
			NodeID:  node.ID,
			Usage:   &resp.Usage,
		})
		usages = append(usages, &resp.Usage)

		em.emit(&Event{Type: EventStepComplete, Task: cfg.Task, Step: step,
			Progress: float64(i+1) / totalSteps, NodeID: node.ID})
	}

	return &Result{
		RootID:  rootID,
		Steps:   results,
		Content: finalContent,
		Usage:   AggregateUsage(usages),
	}, nil
}

// multiVertical 为多个垂直领域生成内容。
// parallel 并发互不影响，单个领域失败以数据返回；
// sequential 先生成基准再逐个改写；adaptive 链式传递前一领域产出。
func (o *Orchestrator) multiVertical(ctx context.Context, cfg *Config, em *emitter) (*Result, error) {
	verticals := o.resolveVerticals(cfg.Verticals)
	if len(verticals) == 0 {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "multi_vertical mode requires at least one vertical")
	}

	contextText, snapshot := o.assembleContext(ctx, cfg)

	// 容器根节点：承载本次运行的提示词，各领域产出为其子节点
	root := &entity.GenerationNode{
		Type:   NodeTypeForTask(cfg.Task),
		Mode:   entity.ModeMultiVertical,
		Prompt: cfg.Prompt,
	}
	if err := o.trees.CreateTree(ctx, root); err != nil {
		return nil, err
	}
	ctx = service.WithRootID(ctx, root.ID)

	mode := cfg.VerticalMode
	if mode == "" {
		mode = VerticalParallel
	}

	slots := make([]*VerticalResult, len(verticals))
	switch mode {
	case VerticalParallel:
		g, gctx := errgroup.WithContext(ctx)
		for i, vertical := range verticals {
			i, vertical := i, vertical
			g.Go(func() error {
				em.emit(&Event{Type: EventVerticalStart, Task: cfg.Task, Vertical: vertical})
				slots[i] = o.generateVertical(gctx, cfg, vertical, cfg.Prompt, contextText, snapshot, root.ID)
				em.emit(&Event{Type: EventVerticalComplete, Task: cfg.Task, Vertical: vertical,
					NodeID: slots[i].NodeID, Error: slots[i].Error})
				// 单个领域失败不取消其余分支
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

	case VerticalSequential:
		base := ""
		for i, vertical := range verticals {
			em.emit(&Event{Type: EventVerticalStart, Task: cfg.Task, Vertical: vertical})
			prompt := cfg.Prompt
			if i > 0 && base != "" {
				prompt = fmt.Sprintf("Adapt the following content for the %s audience, keeping the core message intact:\n\n%s", vertical, base)
			}
			slots[i] = o.generateVertical(ctx, cfg, vertical, prompt, contextText, snapshot, root.ID)
			if i == 0 && slots[i].Error == "" {
				base = slots[i].Content
			}
			em.emit(&Event{Type: EventVerticalComplete, Task: cfg.Task, Vertical: vertical,
				NodeID: slots[i].NodeID, Error: slots[i].Error})
		}

	case VerticalAdaptive:
		prev := ""
		for i, vertical := range verticals {
			em.emit(&Event{Type: EventVerticalStart, Task: cfg.Task, Vertical: vertical})
			prompt := cfg.Prompt
			if prev != "" {
				prompt = fmt.Sprintf("%s\n\nFor continuity, here is the version written for the previous vertical:\n%s", cfg.Prompt, prev)
			}
			slots[i] = o.generateVertical(ctx, cfg, vertical, prompt, contextText, snapshot, root.ID)
			if slots[i].Error == "" {
				prev = slots[i].Content
			}
			em.emit(&Event{Type: EventVerticalComplete, Task: cfg.Task, Vertical: vertical,
				NodeID: slots[i].NodeID, Error: slots[i].Error})
		}

	default:
		return nil, apperrors.New(apperrors.CodeValidationFailed,
			fmt.Sprintf("unknown vertical mode %q", mode))
	}

	var usages []*provider.Usage
	for _, slot := range slots {
		if slot != nil {
			usages = append(usages, slot.Usage)
		}
	}
	return &Result{
		RootID:    root.ID,
		Verticals: slots,
		Usage:     AggregateUsage(usages),
	}, nil
}

// generateVertical 单个垂直领域的生成；失败以 Error 字段承载
func (o *Orchestrator) generateVertical(ctx context.Context, cfg *Config, vertical, prompt, contextText string, snapshot json.RawMessage, rootID string) *VerticalResult {
	genCfg := o.generateConfig(cfg, cfg.Task, prompt, contextText)
	genCfg.Options["vertical"] = vertical

	resp, err := o.llm.Generate(ctx, genCfg)
	if err != nil {
		logger.Warn(ctx, "vertical generation failed",
			"vertical", vertical, "error", err.Error())
		return &VerticalResult{Vertical: vertical, Error: err.Error()}
	}

	node := newNode(cfg, cfg.Task, vertical, resp, snapshot)
	node.Mode = entity.ModeMultiVertical
	parent := rootID
	node.ParentID = &parent
	if aerr := o.trees.AddNode(ctx, node); aerr != nil {
		return &VerticalResult{Vertical: vertical, Content: resp.Content,
			Usage: &resp.Usage, Error: aerr.Error()}
	}

	return &VerticalResult{
		Vertical: vertical,
		Content:  resp.Content,
		NodeID:   node.ID,
		Usage:    &resp.Usage,
	}
}

// batch 对提示词数组逐个执行 direct 生成。
// 固定大小子批限制并发；单项失败记录 {index, error} 不中止整批。
func (o *Orchestrator) batch(ctx context.Context, cfg *Config, em *emitter) (*Result, error) {
	if cfg.Prompts == nil {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "batch mode requires an array of prompts")
	}
	if len(cfg.Prompts) == 0 {
		return &Result{Batch: []*Output{}}, nil
	}

	contextText, snapshot := o.assembleContext(ctx, cfg)

	slots := make([]*Output, len(cfg.Prompts))
	for start := 0; start < len(cfg.Prompts); start += o.batchSize {
		end := start + o.batchSize
		if end > len(cfg.Prompts) {
			end = len(cfg.Prompts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				em.emit(&Event{Type: EventBatchItemStart, Task: cfg.Task, Index: i})
				slots[i] = o.batchItem(gctx, cfg, i, contextText, snapshot)
				em.emit(&Event{Type: EventBatchItemComplete, Task: cfg.Task, Index: i,
					NodeID: slots[i].NodeID, Error: slots[i].Error})
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var usages []*provider.Usage
	for _, slot := range slots {
		usages = append(usages, slot.Usage)
	}
	return &Result{
		Batch: slots,
		Usage: AggregateUsage(usages),
	}, nil
}

// batchItem 批量中单个提示词的生成，每项一棵独立树
func (o *Orchestrator) batchItem(ctx context.Context, cfg *Config, index int, contextText string, snapshot json.RawMessage) *Output {
	genCfg := o.generateConfig(cfg, cfg.Task, cfg.Prompts[index], contextText)

	resp, err := o.llm.Generate(ctx, genCfg)
	if err != nil {
		return &Output{Index: index, Error: err.Error()}
	}

	node := newNode(cfg, cfg.Task, "", resp, snapshot)
	node.Mode = entity.ModeBatch
	node.Prompt = cfg.Prompts[index]
	node.Selected = true
	if cerr := o.trees.CreateTree(ctx, node); cerr != nil {
		return &Output{Index: index, Content: resp.Content, Usage: &resp.Usage, Error: cerr.Error()}
	}

	return &Output{
		Index:    index,
		Content:  resp.Content,
		NodeID:   node.ID,
		Provider: resp.Metadata.Provider,
		Model:    resp.Metadata.Model,
		Usage:    &resp.Usage,
	}
}

// editExisting 按编辑指令改写既有内容：单次生成，
// 产出落为新节点，绝不改写原节点。
func (o *Orchestrator) editExisting(ctx context.Context, cfg *Config, em *emitter) (*Result, error) {
	if strings.TrimSpace(cfg.ExistingContent) == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "edit_existing mode requires existing content")
	}
	if strings.TrimSpace(cfg.Instructions) == "" {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "edit_existing mode requires edit instructions")
	}

	contextText, snapshot := o.assembleContext(ctx, cfg)

	prompt := fmt.Sprintf(
		"Revise the content below according to the instructions. Return only the revised content.\n\nInstructions:\n%s\n\nContent:\n%s",
		cfg.Instructions, cfg.ExistingContent)

	task := cfg.Task
	if task == "" {
		task = "edit"
	}

	em.emit(&Event{Type: EventOutputStart, Task: task, Index: 0})

	genCfg := o.generateConfig(cfg, task, prompt, contextText)
	resp, err := o.llm.Generate(ctx, genCfg)
	if err != nil {
		return nil, err
	}

	node := newNode(cfg, task, "", resp, snapshot)
	node.Type = entity.NodeTypeEdit
	node.Mode = entity.ModeEditExisting
	node.Prompt = prompt

	var rootID string
	if cfg.SourceNodeID != "" {
		parent := cfg.SourceNodeID
		node.ParentID = &parent
		if aerr := o.trees.AddNode(ctx, node); aerr != nil {
			return nil, aerr
		}
		rootID = node.RootID
	} else {
		if cerr := o.trees.CreateTree(ctx, node); cerr != nil {
			return nil, cerr
		}
		rootID = node.ID
	}

	em.emit(&Event{Type: EventOutputComplete, Task: task, Index: 0, NodeID: node.ID})

	return &Result{
		RootID:  rootID,
		Content: resp.Content,
		Outputs: []*Output{{
			Index:    0,
			Content:  resp.Content,
			NodeID:   node.ID,
			Provider: resp.Metadata.Provider,
			Model:    resp.Metadata.Model,
			Usage:    &resp.Usage,
		}},
		Usage: resp.Usage,
	}, nil
}

// assembleContext 装配上下文；失败降级为空上下文，不中止生成
func (o *Orchestrator) assembleContext(ctx context.Context, cfg *Config) (string, json.RawMessage) {
	if o.assembler == nil || cfg.Context == nil {
		return "", nil
	}
	bundle := o.assembler.BuildContext(ctx, cfg.Context)
	if bundle == nil || bundle.Text == "" {
		return "", nil
	}
	snapshot, err := json.Marshal(bundle)
	if err != nil {
		snapshot = nil
	}
	return bundle.Text, snapshot
}

// generateConfig 组装一次选择器调用的配置；
// 装配好的上下文并入系统指令，调用方选项原样透传。
func (o *Orchestrator) generateConfig(cfg *Config, task, prompt, contextText string) *provider.GenerateConfig {
	opts := make(map[string]any, len(cfg.Options)+1)
	for k, v := range cfg.Options {
		opts[k] = v
	}
	if contextText != "" {
		if existing, ok := opts["systemInstruction"].(string); ok && existing != "" {
			opts["systemInstruction"] = existing + "\n\n" + contextText
		} else {
			opts["systemInstruction"] = contextText
		}
	}
	return &provider.GenerateConfig{
		Task:     task,
		Prompt:   prompt,
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Options:  opts,
	}
}

// bumpTemperature 在基准温度上增量，封顶 2.0
func bumpTemperature(genCfg *provider.GenerateConfig, delta float64) {
	base := 0.7
	if v, ok := genCfg.Options["temperature"].(float64); ok {
		base = v
	}
	t := base + delta
	if t > 2.0 {
		t = 2.0
	}
	genCfg.Options["temperature"] = t
}

// complexityBudget 复杂度对应的缺省输出 Token 预算
var complexityBudget = map[string]int{
	"low":    1024,
	"medium": 2048,
	"high":   8192,
}

// applyStepOptions 步骤级参数仅在调用方未覆盖时生效
func applyStepOptions(genCfg *provider.GenerateConfig, step string, opts StepOptions) {
	if _, ok := genCfg.Options["temperature"]; !ok {
		genCfg.Options["temperature"] = opts.Temperature
	}
	for _, key := range []string{"maxTokens", "max_tokens", "max_output_tokens", "maxOutputTokens"} {
		if _, ok := genCfg.Options[key]; ok {
			return
		}
	}
	genCfg.Options["maxTokens"] = complexityBudget[ComplexityForStep(step)]
}

// stepPromptTemplates 步骤提示词模板；%s 为上一步产出（首步为主题）
var stepPromptTemplates = map[string]string{
	StepIdea:     "Brainstorm one strong content idea for the following topic. Describe the angle and the audience:\n%s",
	StepTitle:    "Write one compelling title based on this idea:\n%s",
	StepSynopsis: "Write a short synopsis (2-3 sentences) for the piece with this title:\n%s",
	StepOutline:  "Create a detailed section-by-section outline based on this synopsis:\n%s",
	StepBlog:     "Write the full blog post following this outline:\n%s",
	StepSocial:   "Write a short social media post promoting this piece:\n%s",
}

// stepPrompt 由上一步产出构建本步提示词；首步使用原始主题
func stepPrompt(step, topic, previous string) string {
	input := previous
	if input == "" {
		input = topic
	}
	if tpl, ok := stepPromptTemplates[step]; ok {
		return fmt.Sprintf(tpl, input)
	}
	return input
}

// newNode 由规范化响应构建生成节点
func newNode(cfg *Config, task, vertical string, resp *provider.Response, snapshot json.RawMessage) *entity.GenerationNode {
	return &entity.GenerationNode{
		Type:            NodeTypeForTask(task),
		Content:         resp.Content,
		Vertical:        vertical,
		Provider:        resp.Metadata.Provider,
		Model:           resp.Metadata.Model,
		Prompt:          cfg.Prompt,
		ContextSnapshot: snapshot,
		TokensUsed:      resp.Usage.TotalTokens,
		CostUSD:         resp.Usage.CostUSD,
		Visible:         true,
	}
}

// resolveVerticals 解析目标领域集合；"all" 展开为默认集合
func (o *Orchestrator) resolveVerticals(requested []string) []string {
	if len(requested) == 0 {
		return nil
	}
	if len(requested) == 1 && strings.EqualFold(requested[0], "all") {
		out := make([]string, len(o.verticals))
		copy(out, o.verticals)
		return out
	}
	return requested
}
