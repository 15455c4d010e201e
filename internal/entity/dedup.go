package entity

import (
	"time"
)

// DedupEntry 已发送告警的去重键, 过期后删除
type DedupEntry struct {
	Key       string    `gorm:"primaryKey;size:32"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
