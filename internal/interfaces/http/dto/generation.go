// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"contentforge-ai-api/internal/application/assembler"
	"contentforge-ai-api/internal/application/generation"
	"contentforge-ai-api/internal/domain/entity"
)

// GenerateRequest 生成请求
type GenerateRequest struct {
	Mode     string         `json:"mode,omitempty"`
	Task     string         `json:"task" binding:"required"`
	Prompt   string         `json:"prompt,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Options  map[string]any `json:"options,omitempty"`

	OutputCount int    `json:"output_count,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`

	SkipSteps []string `json:"skip_steps,omitempty"`

	Verticals    []string `json:"verticals,omitempty"`
	VerticalMode string   `json:"vertical_mode,omitempty"`

	Prompts []string `json:"prompts,omitempty"`

	ExistingContent string `json:"existing_content,omitempty"`
	Instructions    string `json:"instructions,omitempty"`
	SourceNodeID    string `json:"source_node_id,omitempty"`

	Context *ContextRequest `json:"context,omitempty"`
}

// ContextRequest 上下文装配请求
type ContextRequest struct {
	Vertical          string                       `json:"vertical,omitempty"`
	IncludeStyleGuide bool                         `json:"include_style_guide,omitempty"`
	PreviousMode      string                       `json:"previous_mode,omitempty"`
	PreviousLimit     int                          `json:"previous_limit,omitempty"`
	PreviousIDs       []string                     `json:"previous_ids,omitempty"`
	Elements          *assembler.ElementSelection  `json:"elements,omitempty"`
	ReferenceImages   []assembler.ImageDescriptor  `json:"reference_images,omitempty"`
	CustomContext     string                       `json:"custom_context,omitempty"`
}

// ToConfig 转换为编排器配置
func (r *GenerateRequest) ToConfig() *generation.Config {
	cfg := &generation.Config{
		Mode:            entity.GenerationMode(r.Mode),
		Task:            r.Task,
		Prompt:          r.Prompt,
		Provider:        r.Provider,
		Model:           r.Model,
		Options:         r.Options,
		OutputCount:     r.OutputCount,
		ParentID:        r.ParentID,
		SkipSteps:       r.SkipSteps,
		Verticals:       r.Verticals,
		VerticalMode:    r.VerticalMode,
		Prompts:         r.Prompts,
		ExistingContent: r.ExistingContent,
		Instructions:    r.Instructions,
		SourceNodeID:    r.SourceNodeID,
	}
	if r.Context != nil {
		build := &assembler.BuildConfig{
			Vertical:          r.Context.Vertical,
			IncludeStyleGuide: r.Context.IncludeStyleGuide,
			PreviousMode:      assembler.PreviousContentMode(r.Context.PreviousMode),
			PreviousLimit:     r.Context.PreviousLimit,
			PreviousIDs:       r.Context.PreviousIDs,
			ReferenceImages:   r.Context.ReferenceImages,
			CustomContext:     r.Context.CustomContext,
		}
		if r.Context.Elements != nil {
			build.Elements = *r.Context.Elements
		}
		cfg.Context = build
	}
	return cfg
}
