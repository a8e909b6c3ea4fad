// Package assembler 将风格指引、历史内容与参考素材装配为
// 有界的提示词上下文，并按配置做确定性缓存。
package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"contentforge-ai-api/internal/config"
	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
	"contentforge-ai-api/pkg/logger"
	"contentforge-ai-api/pkg/metrics"
)

// 章节标题与分隔符；顺序固定：风格指引、历史内容、参考素材、自定义
const (
	headingStyleGuide      = "## Style Guide"
	headingPreviousContent = "## Previous Content"
	headingReferenceImages = "## Reference Images"
	headingCustomContext   = "## Additional Context"

	sectionSeparator = "\n\n---\n\n"

	// contentPreviewLimit 历史内容正文预览的硬截断长度
	contentPreviewLimit = 1000
)

// PreviousContentMode 历史内容的取材方式
type PreviousContentMode string

const (
	PreviousNone     PreviousContentMode = "none"
	PreviousAll      PreviousContentMode = "all"
	PreviousVertical PreviousContentMode = "vertical"
	PreviousSelected PreviousContentMode = "selected"
)

// ElementSelection 历史内容条目里要渲染的元素
type ElementSelection struct {
	Title          bool `json:"title"`
	Synopsis       bool `json:"synopsis"`
	Tags           bool `json:"tags"`
	ContentPreview bool `json:"content_preview"`
	Metadata       bool `json:"metadata"`
}

func (e ElementSelection) isZero() bool {
	return e == ElementSelection{}
}

// ImageDescriptor 参考素材描述（由调用方提供，不做检索）
type ImageDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// BuildConfig 一次上下文装配的完整配置；缓存键由其全量内容派生
type BuildConfig struct {
	Vertical          string              `json:"vertical,omitempty"`
	IncludeStyleGuide bool                `json:"include_style_guide"`
	PreviousMode      PreviousContentMode `json:"previous_mode,omitempty"`
	PreviousLimit     int                 `json:"previous_limit,omitempty"`
	PreviousIDs       []string            `json:"previous_ids,omitempty"`
	Elements          ElementSelection    `json:"elements,omitempty"`
	ReferenceImages   []ImageDescriptor   `json:"reference_images,omitempty"`
	CustomContext     string              `json:"custom_context,omitempty"`
}

// Bundle 装配结果
type Bundle struct {
	Text            string    `json:"text"`
	EstimatedTokens int       `json:"estimated_tokens"`
	CacheKey        string    `json:"cache_key"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type cacheEntry struct {
	bundle    *Bundle
	expiresAt time.Time
}

// Assembler 上下文装配器，带有界 TTL 缓存
type Assembler struct {
	styleGuides repository.StyleGuideRepository
	contents    repository.ContentRepository

	maxTokens    int
	cacheTTL     time.Duration
	cacheMaxSize int

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// New 创建上下文装配器
func New(styleGuides repository.StyleGuideRepository, contents repository.ContentRepository, cfg *config.ContextConfig) *Assembler {
	a := &Assembler{
		styleGuides:  styleGuides,
		contents:     contents,
		maxTokens:    8000,
		cacheTTL:     30 * time.Minute,
		cacheMaxSize: 256,
		cache:        make(map[string]*cacheEntry),
	}
	if cfg != nil {
		if cfg.MaxTokens > 0 {
			a.maxTokens = cfg.MaxTokens
		}
		if cfg.CacheTTL > 0 {
			a.cacheTTL = cfg.CacheTTL
		}
		if cfg.CacheMaxSize > 0 {
			a.cacheMaxSize = cfg.CacheMaxSize
		}
	}
	return a
}

// BuildContext 装配上下文。任何来源的读取失败都降级为跳过
// 对应章节，装配本身绝不让生成失败。
func (a *Assembler) BuildContext(ctx context.Context, cfg *BuildConfig) *Bundle {
	if cfg == nil {
		return &Bundle{}
	}

	key := cacheKey(cfg)
	if cached := a.fromCache(key); cached != nil {
		metrics.ContextCacheHits.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.ContextCacheHits.WithLabelValues("miss").Inc()

	var sections []string
	if s := a.styleGuideSection(ctx, cfg); s != "" {
		sections = append(sections, s)
	}
	if s := a.previousContentSection(ctx, cfg); s != "" {
		sections = append(sections, s)
	}
	if s := referenceImageSection(cfg.ReferenceImages); s != "" {
		sections = append(sections, s)
	}
	if custom := strings.TrimSpace(cfg.CustomContext); custom != "" {
		sections = append(sections, headingCustomContext+"\n\n"+custom)
	}

	text := strings.Join(sections, sectionSeparator)
	text = a.OptimizeContext(text, a.maxTokens)

	bundle := &Bundle{
		Text:            text,
		EstimatedTokens: EstimateTokens(text),
		CacheKey:        key,
		ExpiresAt:       time.Now().Add(a.cacheTTL),
	}
	a.toCache(key, bundle)
	return bundle
}

// styleGuideSection 风格指引章节；读取失败降级为空
func (a *Assembler) styleGuideSection(ctx context.Context, cfg *BuildConfig) string {
	if !cfg.IncludeStyleGuide || a.styleGuides == nil {
		return ""
	}
	guides, err := a.styleGuides.GetActiveStyleGuides(ctx, cfg.Vertical)
	if err != nil {
		logger.Warn(ctx, "failed to load style guides, skipping section", "error", err.Error())
		return ""
	}
	if len(guides) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(headingStyleGuide)
	for _, g := range guides {
		b.WriteString("\n\n### ")
		b.WriteString(g.Name)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(g.Guidance))
	}
	return b.String()
}

// previousContentSection 历史内容章节；按模式取材，失败降级为空
func (a *Assembler) previousContentSection(ctx context.Context, cfg *BuildConfig) string {
	mode := cfg.PreviousMode
	if mode == "" || mode == PreviousNone || a.contents == nil {
		return ""
	}

	limit := cfg.PreviousLimit
	if limit <= 0 {
		limit = 5
	}

	var (
		pieces []*entity.ContentPiece
		err    error
	)
	switch mode {
	case PreviousAll:
		pieces, err = a.contents.ListRecent(ctx, limit)
	case PreviousVertical:
		pieces, err = a.contents.ListByVertical(ctx, cfg.Vertical, limit)
	case PreviousSelected:
		pieces, err = a.contents.GetByIDs(ctx, cfg.PreviousIDs)
	default:
		logger.Warn(ctx, "unknown previous content mode, skipping section", "mode", string(mode))
		return ""
	}
	if err != nil {
		logger.Warn(ctx, "failed to load previous content, skipping section", "error", err.Error())
		return ""
	}
	if len(pieces) == 0 {
		return ""
	}

	elements := cfg.Elements
	if elements.isZero() {
		elements = ElementSelection{Title: true, Synopsis: true, ContentPreview: true}
	}

	var b strings.Builder
	b.WriteString(headingPreviousContent)
	for _, p := range pieces {
		b.WriteString("\n\n")
		b.WriteString(renderPiece(p, elements))
	}
	return b.String()
}

// renderPiece 按元素选择渲染单条历史内容
func renderPiece(p *entity.ContentPiece, elements ElementSelection) string {
	var lines []string
	if elements.Title && p.Title != "" {
		lines = append(lines, "Title: "+p.Title)
	}
	if elements.Synopsis && p.Synopsis != "" {
		lines = append(lines, "Synopsis: "+p.Synopsis)
	}
	if elements.Tags && p.Tags != "" {
		lines = append(lines, "Tags: "+p.Tags)
	}
	if elements.ContentPreview && p.Content != "" {
		lines = append(lines, "Content: "+Truncate(p.Content, contentPreviewLimit))
	}
	if elements.Metadata && len(p.Metadata) > 0 {
		lines = append(lines, "Metadata: "+string(p.Metadata))
	}
	return strings.Join(lines, "\n")
}

// referenceImageSection 参考素材章节
func referenceImageSection(images []ImageDescriptor) string {
	if len(images) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(headingReferenceImages)
	for _, img := range images {
		b.WriteString("\n- ")
		b.WriteString(img.Name)
		if img.Description != "" {
			b.WriteString(": ")
			b.WriteString(img.Description)
		}
		if img.URL != "" {
			b.WriteString(" (")
			b.WriteString(img.URL)
			b.WriteString(")")
		}
	}
	return b.String()
}

// OptimizeContext 超预算时分级降级：
// 1) 逐块截断过长的章节；2) 丢弃低优先级章节；3) 整体硬截断。
// 每级之后都重新核对预算。
func (a *Assembler) OptimizeContext(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}

	// 第一级：单块截断
	blocks := strings.Split(text, sectionSeparator)
	blockLimit := maxTokens * 4 / len(blocks)
	if blockLimit < contentPreviewLimit {
		blockLimit = contentPreviewLimit
	}
	for i, block := range blocks {
		blocks[i] = Truncate(block, blockLimit)
	}
	text = strings.Join(blocks, sectionSeparator)
	if EstimateTokens(text) <= maxTokens {
		return text
	}

	// 第二级：丢弃低优先级章节
	kept := blocks[:0]
	for _, block := range blocks {
		if strings.HasPrefix(block, headingReferenceImages) ||
			strings.HasPrefix(block, headingCustomContext) {
			continue
		}
		kept = append(kept, block)
	}
	text = strings.Join(kept, sectionSeparator)
	if EstimateTokens(text) <= maxTokens {
		return text
	}

	// 第三级：整体硬截断
	return Truncate(text, maxTokens*4)
}

// ClearCache 清空全部缓存
func (a *Assembler) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[string]*cacheEntry)
}

func (a *Assembler) fromCache(key string) *Bundle {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[key]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(a.cache, key)
		return nil
	}
	return entry.bundle
}

func (a *Assembler) toCache(key string, bundle *Bundle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// 溢出时淘汰最早过期的条目
	if len(a.cache) >= a.cacheMaxSize {
		var oldestKey string
		var oldest time.Time
		for k, e := range a.cache {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey = k
				oldest = e.expiresAt
			}
		}
		delete(a.cache, oldestKey)
	}

	a.cache[key] = &cacheEntry{bundle: bundle, expiresAt: bundle.ExpiresAt}
}

// cacheKey 由全量配置派生的确定性缓存键
func cacheKey(cfg *BuildConfig) string {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("ctx:%v", cfg)
	}
	sum := sha256.Sum256(raw)
	return "ctx:" + hex.EncodeToString(sum[:16])
}

// EstimateTokens 粗略估算 Token 数（≈ 字符数/4）
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Truncate 硬截断并附省略标记，截断点回退到完整 rune 边界
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
