// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"contentforge-ai-api/internal/application/generation"
	"contentforge-ai-api/internal/interfaces/http/dto"
	"contentforge-ai-api/internal/provider"
	apperrors "contentforge-ai-api/pkg/errors"
)

// GenerationHandler 生成编排处理器
type GenerationHandler struct {
	orchestrator *generation.Orchestrator
	selector     *provider.Selector
}

// NewGenerationHandler 创建生成处理器
func NewGenerationHandler(orchestrator *generation.Orchestrator, selector *provider.Selector) *GenerationHandler {
	return &GenerationHandler{
		orchestrator: orchestrator,
		selector:     selector,
	}
}

// respondError 按应用错误链映射 HTTP 状态码
func respondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus
	detail := &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	}
	// 外层包装错误（如 generation failed）沿用内层错误的状态码
	var inner *apperrors.AppError
	if errors.As(appErr.Err, &inner) {
		status = inner.HTTPStatus
		detail.Details = inner.Message
	}
	dto.ErrorWithDetail(c, status, appErr.Message, detail)
}

// Generate 执行一次生成
// @Summary 执行生成
// @Description 按指定模式执行内容生成并写入生成树
// @Tags Generation
// @Accept json
// @Produce json
// @Param request body dto.GenerateRequest true "生成请求"
// @Success 200 {object} dto.Response[generation.Result]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.orchestrator.Generate(c.Request.Context(), req.ToConfig(), nil)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, result)
}

// GenerateStream 执行生成并以 SSE 推送进度事件
// @Summary 流式执行生成
// @Description 以 SSE 推送进度事件，最后一条 result 事件携带完整结果
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Param request body dto.GenerateRequest true "生成请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/generate/stream [post]
func (h *GenerationHandler) GenerateStream(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := make(chan *generation.Event, 16)
	type outcome struct {
		result *generation.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer close(events)
		sink := func(event *generation.Event) error {
			select {
			case events <- event:
				return nil
			case <-c.Request.Context().Done():
				return c.Request.Context().Err()
			}
		}
		result, err := h.orchestrator.Generate(c.Request.Context(), req.ToConfig(), sink)
		done <- outcome{result: result, err: err}
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				// 事件流结束，追加最终结果
				out := <-done
				if out.err != nil {
					return false
				}
				c.SSEvent("result", out.result)
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true

		case <-c.Request.Context().Done():
			// 客户端断开
			return false
		}
	})
}

// StreamDirect 直接模式的 Token 级流式生成
// @Summary Token 级流式生成
// @Description 将后端的流式分片逐个推送，结束时携带用量元数据
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Param request body dto.GenerateRequest true "生成请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/generate/direct/stream [post]
func (h *GenerationHandler) StreamDirect(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	chunks := make(chan *provider.StreamChunk, 16)
	type outcome struct {
		resp *provider.Response
		err  error
	}
	done := make(chan outcome, 1)

	cfg := req.ToConfig()
	go func() {
		defer close(chunks)
		sink := func(chunk *provider.StreamChunk) error {
			select {
			case chunks <- chunk:
				return nil
			case <-c.Request.Context().Done():
				return c.Request.Context().Err()
			}
		}
		resp, err := h.selector.GenerateStream(c.Request.Context(), &provider.GenerateConfig{
			Task:     cfg.Task,
			Prompt:   cfg.Prompt,
			Provider: cfg.Provider,
			Model:    cfg.Model,
			Options:  cfg.Options,
		}, sink)
		done <- outcome{resp: resp, err: err}
	}()

	index := 0
	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				out := <-done
				if out.err != nil {
					c.SSEvent("error", gin.H{"message": out.err.Error()})
					return false
				}
				c.SSEvent("metadata", gin.H{
					"usage":    out.resp.Usage,
					"provider": out.resp.Metadata.Provider,
					"model":    out.resp.Metadata.Model,
				})
				return false
			}
			if chunk.Content != "" {
				c.SSEvent("content", gin.H{
					"chunk": chunk.Content,
					"index": index,
				})
				index++
			}
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}
