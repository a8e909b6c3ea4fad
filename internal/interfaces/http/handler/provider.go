// Package handler 提供 HTTP 请求处理器
package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"contentforge-ai-api/internal/domain/entity"
	"contentforge-ai-api/internal/domain/repository"
	"contentforge-ai-api/internal/domain/service"
	"contentforge-ai-api/internal/interfaces/http/dto"
	"contentforge-ai-api/internal/provider"
	apperrors "contentforge-ai-api/pkg/errors"
)

// ProviderHandler 后端配置与健康处理器
type ProviderHandler struct {
	registry *provider.Registry
	settings repository.ProviderSettingsRepository
	usage    repository.UsageLogRepository
	cipher   service.CredentialCipher
}

// NewProviderHandler 创建后端处理器
func NewProviderHandler(
	registry *provider.Registry,
	settings repository.ProviderSettingsRepository,
	usage repository.UsageLogRepository,
	cipher service.CredentialCipher,
) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		settings: settings,
		usage:    usage,
		cipher:   cipher,
	}
}

// ListProviders 列出全部后端配置
// @Summary 列出后端
// @Tags Providers
// @Produce json
// @Success 200 {object} dto.Response[[]dto.ProviderResponse]
// @Router /v1/providers [get]
func (h *ProviderHandler) ListProviders(c *gin.Context) {
	settings, err := h.settings.GetProviderSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	registered := make(map[entity.ProviderName]bool)
	for _, name := range h.registry.Providers() {
		registered[name] = true
	}

	out := make([]*dto.ProviderResponse, 0, len(settings))
	for _, setting := range settings {
		day, month := h.registry.Spend(setting.Provider)
		resp := dto.FromSetting(setting, day, month)
		resp.Registered = registered[setting.Provider]
		out = append(out, resp)
	}
	dto.Success(c, out)
}

// UpsertProvider 创建或更新后端配置并热注册
// @Summary 配置后端
// @Tags Providers
// @Accept json
// @Produce json
// @Param request body dto.ProviderSettingRequest true "后端配置"
// @Success 200 {object} dto.Response[dto.ProviderResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/providers [put]
func (h *ProviderHandler) UpsertProvider(c *gin.Context) {
	var req dto.ProviderSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	name := entity.ProviderName(req.Provider)

	existing, _ := h.registry.Setting(name)
	setting := existing
	isNew := setting == nil
	if isNew {
		if req.APIKey == "" {
			dto.BadRequest(c, "api_key is required for a new provider")
			return
		}
		setting = &entity.ProviderSetting{Provider: name}
	}

	if req.APIKey != "" {
		encrypted, err := h.cipher.Encrypt(req.APIKey)
		if err != nil {
			respondError(c, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encrypt credential"))
			return
		}
		setting.APIKeyEncrypted = encrypted
	}
	setting.BaseURL = req.BaseURL
	setting.DefaultModel = req.DefaultModel
	setting.FallbackModels = pq.StringArray(req.FallbackModels)
	setting.DailyLimitUSD = req.DailyLimitUSD
	setting.MonthlyLimitUSD = req.MonthlyLimitUSD
	if req.Active != nil {
		setting.Active = *req.Active
	} else if isNew {
		setting.Active = true
	}

	var err error
	if isNew {
		err = h.settings.CreateProviderSettings(ctx, setting)
	} else {
		err = h.settings.UpdateProviderSettings(ctx, setting)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	// 持久化成功后热更新注册表
	if setting.Active {
		if err := h.registry.Register(setting); err != nil {
			respondError(c, err)
			return
		}
	} else {
		h.registry.Unregister(name)
	}

	day, month := h.registry.Spend(name)
	dto.Success(c, dto.FromSetting(setting, day, month))
}

// DeleteProvider 删除后端配置并注销
// @Summary 删除后端
// @Tags Providers
// @Produce json
// @Param name path string true "后端名称"
// @Success 204
// @Router /v1/providers/{name} [delete]
func (h *ProviderHandler) DeleteProvider(c *gin.Context) {
	name := entity.ProviderName(c.Param("name"))
	if err := h.settings.DeleteProviderSettings(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	h.registry.Unregister(name)
	dto.NoContent(c)
}

// CheckHealth 执行单个后端的健康检查
// @Summary 后端健康检查
// @Tags Providers
// @Produce json
// @Param name path string true "后端名称"
// @Success 200 {object} dto.Response[provider.Health]
// @Router /v1/providers/{name}/health [get]
func (h *ProviderHandler) CheckHealth(c *gin.Context) {
	health, err := h.registry.CheckProviderHealth(c.Request.Context(), entity.ProviderName(c.Param("name")))
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, health)
}

// TestConnection 用最小请求验证后端凭证
// @Summary 测试后端连接
// @Tags Providers
// @Produce json
// @Param name path string true "后端名称"
// @Success 200 {object} dto.Response[gin.H]
// @Router /v1/providers/{name}/test [post]
func (h *ProviderHandler) TestConnection(c *gin.Context) {
	ctx := c.Request.Context()
	client, err := h.registry.GetProvider(ctx, entity.ProviderName(c.Param("name")))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := client.TestConnection(ctx); err != nil {
		dto.ServiceUnavailable(c, err.Error())
		return
	}
	dto.Success(c, gin.H{"status": "ok"})
}

// GetUsage 查询后端用量流水
// @Summary 查询用量
// @Tags Providers
// @Produce json
// @Param name path string true "后端名称"
// @Param since query string false "起始时间 (RFC3339)，默认 24 小时前"
// @Success 200 {object} dto.Response[[]entity.UsageLogEntry]
// @Router /v1/providers/{name}/usage [get]
func (h *ProviderHandler) GetUsage(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			dto.BadRequest(c, "invalid since timestamp: "+err.Error())
			return
		}
		since = parsed
	}

	entries, err := h.usage.GetUsageSince(c.Request.Context(), c.Param("name"), since)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, entries)
}
