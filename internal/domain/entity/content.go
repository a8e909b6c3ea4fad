// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// StyleGuide 写作风格指引，上下文装配的首选来源
type StyleGuide struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `json:"name" gorm:"type:varchar(128);not null"`
	Vertical  string    `json:"vertical,omitempty" gorm:"type:varchar(64);index"`
	Guidance  string    `json:"guidance" gorm:"type:text;not null"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (StyleGuide) TableName() string {
	return "style_guides"
}

// ContentPiece 已发布/历史内容，用作前文上下文
type ContentPiece struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title     string          `json:"title" gorm:"type:varchar(255);not null"`
	Synopsis  string          `json:"synopsis,omitempty" gorm:"type:text"`
	Tags      string          `json:"tags,omitempty" gorm:"type:varchar(255)"`
	Content   string          `json:"content" gorm:"type:text"`
	Vertical  string          `json:"vertical,omitempty" gorm:"type:varchar(64);index"`
	Metadata  json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (ContentPiece) TableName() string {
	return "content_pieces"
}
