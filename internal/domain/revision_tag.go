package domain

import "time"

// RevisionTag schedules a tag for a content-store revision. The row is
// written before the tag is pushed to the content store, so a crash
// between marking a change merged and tagging its revision leaves a
// record to drain later.
type RevisionTag struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RevID     uint64    `gorm:"column:rev_id;index" json:"rev_id"`
	Tag       string    `gorm:"column:tag;type:varchar(255)" json:"tag"`
	Applied   bool      `gorm:"column:applied;default:false;index" json:"applied"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName returns the table name for RevisionTag
func (RevisionTag) TableName() string { return "moderation_revision_tags" }
