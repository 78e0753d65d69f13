package domain

import "time"

// ModerationBlock is a denylist row. While present, every submission by
// UserName is auto-rejected into the spam folder instead of pending.
type ModerationBlock struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserName  string    `gorm:"column:user_name;type:varchar(255);uniqueIndex" json:"user_name"`
	BlockedBy string    `gorm:"column:blocked_by;type:varchar(255)" json:"blocked_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ModerationBlock
func (ModerationBlock) TableName() string { return "moderation_blocks" }
