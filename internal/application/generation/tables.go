package generation

import "contentforge-ai-api/internal/domain/entity"

// 结构化工作流的步骤标识
const (
	StepIdea     = "idea"
	StepTitle    = "title"
	StepSynopsis = "synopsis"
	StepOutline  = "outline"
	StepBlog     = "blog"
	StepSocial   = "social"
)

// taskWorkflows 按任务的有序步骤序列
var taskWorkflows = map[string][]string{
	"blog":   {StepIdea, StepTitle, StepSynopsis, StepOutline, StepBlog},
	"social": {StepIdea, StepTitle, StepSocial},
}

// defaultWorkflow 未映射任务的缺省序列
var defaultWorkflow = []string{StepIdea, StepTitle, StepSynopsis, StepOutline, StepBlog}

// skippableSteps 允许调用方跳过的步骤
var skippableSteps = map[string]bool{
	StepSynopsis: true,
	StepOutline:  true,
}

// stepToTask 步骤 -> 选择器任务标识
var stepToTask = map[string]string{
	StepIdea:     "idea",
	StepTitle:    "title",
	StepSynopsis: "synopsis",
	StepOutline:  "outline",
	StepBlog:     "blog",
	StepSocial:   "social",
}

// taskToNodeType 任务 -> 节点类型
var taskToNodeType = map[string]entity.NodeType{
	"idea":     entity.NodeTypeIdea,
	"title":    entity.NodeTypeTitle,
	"synopsis": entity.NodeTypeSynopsis,
	"outline":  entity.NodeTypeOutline,
	"blog":     entity.NodeTypeBlog,
	"social":   entity.NodeTypeSocial,
	"edit":     entity.NodeTypeEdit,
}

// stepComplexity 步骤相对复杂度，用于偏置模型选择
var stepComplexity = map[string]string{
	StepIdea:     "low",
	StepTitle:    "low",
	StepSynopsis: "medium",
	StepOutline:  "medium",
	StepBlog:     "high",
	StepSocial:   "medium",
}

// StepOptions 步骤级生成参数
type StepOptions struct {
	OutputCount int
	Temperature float64
}

// stepOptions 步骤 -> 生成参数
var stepOptions = map[string]StepOptions{
	StepIdea:     {OutputCount: 1, Temperature: 0.9},
	StepTitle:    {OutputCount: 1, Temperature: 0.8},
	StepSynopsis: {OutputCount: 1, Temperature: 0.7},
	StepOutline:  {OutputCount: 1, Temperature: 0.5},
	StepBlog:     {OutputCount: 1, Temperature: 0.7},
	StepSocial:   {OutputCount: 1, Temperature: 0.8},
}

// WorkflowFor 任务的步骤序列（拷贝，调用方可安全改动）
func WorkflowFor(task string) []string {
	steps, ok := taskWorkflows[task]
	if !ok {
		steps = defaultWorkflow
	}
	out := make([]string, len(steps))
	copy(out, steps)
	return out
}

// TaskForStep 步骤对应的任务标识
func TaskForStep(step string) string {
	if task, ok := stepToTask[step]; ok {
		return task
	}
	return step
}

// NodeTypeForTask 任务对应的节点类型，未映射时沿用任务名
func NodeTypeForTask(task string) entity.NodeType {
	if t, ok := taskToNodeType[task]; ok {
		return t
	}
	return entity.NodeType(task)
}

// ComplexityForStep 步骤复杂度，未映射时为 medium
func ComplexityForStep(step string) string {
	if c, ok := stepComplexity[step]; ok {
		return c
	}
	return "medium"
}

// OptionsForStep 步骤生成参数
func OptionsForStep(step string) StepOptions {
	if o, ok := stepOptions[step]; ok {
		return o
	}
	return StepOptions{OutputCount: 1, Temperature: 0.7}
}
