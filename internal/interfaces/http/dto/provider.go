// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"contentforge-ai-api/internal/domain/entity"
)

// ProviderSettingRequest 后端配置创建/更新请求
type ProviderSettingRequest struct {
	Provider        string   `json:"provider" binding:"required"`
	APIKey          string   `json:"api_key,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	DefaultModel    string   `json:"default_model" binding:"required"`
	FallbackModels  []string `json:"fallback_models,omitempty"`
	DailyLimitUSD   float64  `json:"daily_limit_usd,omitempty"`
	MonthlyLimitUSD float64  `json:"monthly_limit_usd,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

// ProviderResponse 后端状态响应；凭证绝不回显
type ProviderResponse struct {
	Provider        string  `json:"provider"`
	BaseURL         string  `json:"base_url,omitempty"`
	DefaultModel    string  `json:"default_model"`
	FallbackModels  []string `json:"fallback_models,omitempty"`
	Active          bool    `json:"active"`
	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd"`
	SpentDayUSD     float64 `json:"spent_day_usd"`
	SpentMonthUSD   float64 `json:"spent_month_usd"`
	// Registered 当前进程内是否已注册可用
	Registered   bool `json:"registered"`
	LastHealthOK bool `json:"last_health_ok"`
}

// FromSetting 由实体构建响应，叠加注册表中的运行时花费
func FromSetting(setting *entity.ProviderSetting, dayUSD, monthUSD float64) *ProviderResponse {
	return &ProviderResponse{
		Provider:        string(setting.Provider),
		BaseURL:         setting.BaseURL,
		DefaultModel:    setting.DefaultModel,
		FallbackModels:  setting.FallbackModels,
		Active:          setting.Active,
		DailyLimitUSD:   setting.DailyLimitUSD,
		MonthlyLimitUSD: setting.MonthlyLimitUSD,
		SpentDayUSD:     dayUSD,
		SpentMonthUSD:   monthUSD,
		LastHealthOK:    setting.LastHealthOK,
	}
}
