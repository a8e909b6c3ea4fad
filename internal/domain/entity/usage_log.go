// Package entity 定义领域实体
package entity

import "time"

// UsageLogEntry 一次 LLM 调用的计费与可观测流水。
// 先在内存缓冲，批量落库；落库前不保证单条持久。
type UsageLogEntry struct {
	ID                string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Provider          string    `json:"provider" gorm:"type:varchar(32);index;not null"`
	Model             string    `json:"model" gorm:"type:varchar(64);not null"`
	Task              string    `json:"task" gorm:"type:varchar(64)"`
	TokensInput       int       `json:"tokens_input" gorm:"not null;default:0"`
	TokensOutput      int       `json:"tokens_output" gorm:"not null;default:0"`
	TokensReasoning   int       `json:"tokens_reasoning" gorm:"not null;default:0"`
	TokensThinking    int       `json:"tokens_thinking" gorm:"not null;default:0"`
	TokensCacheCreate int       `json:"tokens_cache_create" gorm:"not null;default:0"`
	TokensCacheRead   int       `json:"tokens_cache_read" gorm:"not null;default:0"`
	TokensTotal       int       `json:"tokens_total" gorm:"not null;default:0"`
	CostUSD           float64   `json:"cost_usd" gorm:"not null;default:0"`
	LatencyMs         int       `json:"latency_ms" gorm:"not null;default:0"`
	Success           bool      `json:"success" gorm:"not null;default:true"`
	ErrorMessage      string    `json:"error_message,omitempty" gorm:"type:text"`
	Vertical          string    `json:"vertical,omitempty" gorm:"type:varchar(64)"`
	Mode              string    `json:"mode,omitempty" gorm:"type:varchar(32)"`
	Streaming         bool      `json:"streaming" gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (UsageLogEntry) TableName() string {
	return "usage_log_entries"
}
