// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// ProviderName 后端标识（可扩展集合）
type ProviderName string

const (
	ProviderOpenAI     ProviderName = "openai"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderGemini     ProviderName = "gemini"
	ProviderDeepSeek   ProviderName = "deepseek"
	ProviderPerplexity ProviderName = "perplexity"
)

// ProviderSetting 单个 LLM 后端的持久化配置。
// APIKeyEncrypted 仅保存密文，解密能力由注入的 Cipher 提供。
type ProviderSetting struct {
	ID              string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Provider        ProviderName   `json:"provider" gorm:"type:varchar(32);uniqueIndex;not null"`
	APIKeyEncrypted string         `json:"-" gorm:"type:text;not null"`
	BaseURL         string         `json:"base_url,omitempty" gorm:"type:varchar(255)"`
	DefaultModel    string         `json:"default_model" gorm:"type:varchar(64);not null"`
	FallbackModels  pq.StringArray `json:"fallback_models,omitempty" gorm:"type:text[]"`
	DailyLimitUSD   float64        `json:"daily_limit_usd" gorm:"not null;default:0"`
	MonthlyLimitUSD float64        `json:"monthly_limit_usd" gorm:"not null;default:0"`
	SpentDayUSD     float64        `json:"spent_day_usd" gorm:"not null;default:0"`
	SpentMonthUSD   float64        `json:"spent_month_usd" gorm:"not null;default:0"`
	SpendDayKey     string         `json:"-" gorm:"type:varchar(10);not null;default:''"`
	SpendMonthKey   string         `json:"-" gorm:"type:varchar(7);not null;default:''"`
	Active          bool           `json:"active" gorm:"not null;default:true"`
	LastHealthOK    bool           `json:"last_health_ok" gorm:"not null;default:false"`
	LastHealthAt    *time.Time     `json:"last_health_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ProviderSetting) TableName() string {
	return "provider_settings"
}

// DaySpendKey 日花费窗口键。持久化计数必须与窗口键一同读写，
// 否则重启后会把历史花费算进当前窗口。
func DaySpendKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthSpendKey 月花费窗口键
func MonthSpendKey(t time.Time) string {
	return t.Format("2006-01")
}

