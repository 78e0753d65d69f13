package domain

import (
	"strings"
	"time"
)

// ChangeType classifies a pending change.
type ChangeType string

const (
	ChangeEdit   ChangeType = "edit"
	ChangeUpload ChangeType = "upload"
	ChangeMove   ChangeType = "move"
)

// PendingChange is a queued edit, upload or move awaiting review.
//
// The composite unique index (preloadable, namespace, title, preload_id,
// change_type) is the upsert key: a user's second pending edit to the same
// page overwrites the first instead of stacking. Merged rows are taken out
// of the key by pointing Preloadable at their own row id.
type PendingChange struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`

	Type      ChangeType `gorm:"column:change_type;type:varchar(10);uniqueIndex:uniq_preload_key,priority:5" json:"type"`
	Namespace int        `gorm:"column:namespace;uniqueIndex:uniq_preload_key,priority:2" json:"namespace"`
	Title     string     `gorm:"column:title;type:varchar(255);uniqueIndex:uniq_preload_key,priority:3" json:"title"`

	// Destination of a move; zero-valued for edits and uploads.
	DstNamespace int    `gorm:"column:dst_namespace" json:"dst_namespace,omitempty"`
	DstTitle     string `gorm:"column:dst_title;type:varchar(255)" json:"dst_title,omitempty"`

	UserID    uint64 `gorm:"column:user_id;index" json:"user_id"`
	UserName  string `gorm:"column:user_name;type:varchar(255);index" json:"user_name"`
	IP        string `gorm:"column:ip;type:varchar(45)" json:"-"`
	XFF       string `gorm:"column:xff;type:varchar(512)" json:"-"`
	UserAgent string `gorm:"column:user_agent;type:varchar(512)" json:"-"`

	// Preloadable is 0 while the row may still be resumed through the
	// preload key; it is flipped to the row's own id once the row is
	// merged, which frees the key for a fresh submission.
	Preloadable uint64 `gorm:"column:preloadable;default:0;uniqueIndex:uniq_preload_key,priority:1" json:"-"`
	PreloadID   string `gorm:"column:preload_id;type:varchar(256);uniqueIndex:uniq_preload_key,priority:4" json:"-"`

	Text      string `gorm:"column:text;type:longtext" json:"text,omitempty"`
	StashKey  string `gorm:"column:stash_key;type:varchar(255)" json:"stash_key,omitempty"`
	PageText  string `gorm:"column:page_text;type:longtext" json:"page_text,omitempty"`
	Comment   string `gorm:"column:comment;type:varchar(512)" json:"comment"`
	Minor     bool   `gorm:"column:minor;default:false" json:"minor"`
	Bot       bool   `gorm:"column:bot;default:false" json:"bot"`
	BaseRevID uint64 `gorm:"column:base_rev_id;default:0" json:"base_rev_id"`
	OldLen    int    `gorm:"column:old_len;default:0" json:"old_len"`
	NewLen    int    `gorm:"column:new_len;default:0" json:"new_len"`

	// Tags assigned by upstream content-classification filters,
	// newline-separated, preserved verbatim through approval.
	Tags string `gorm:"column:tags;type:text" json:"tags,omitempty"`

	WatchPage bool `gorm:"column:watch_page;default:false" json:"watch_page"`

	Rejected bool `gorm:"column:rejected;default:false" json:"rejected"`
	// RejectedAt anchors the approval grace window; UpdatedAt cannot,
	// since any later touch of the row would move it.
	RejectedAt time.Time `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	RejectedBy string    `gorm:"column:rejected_by;type:varchar(255)" json:"rejected_by,omitempty"`
	RejectedBatch bool   `gorm:"column:rejected_batch;default:false" json:"rejected_batch"`
	RejectedAuto  bool   `gorm:"column:rejected_auto;default:false" json:"rejected_auto"`
	MergedRevID   uint64 `gorm:"column:merged_rev_id;default:0" json:"merged_rev_id"`
	Conflict      bool   `gorm:"column:conflict;default:false" json:"conflict"`

	// ReceivedAt is the original submission time. It is set once on
	// enqueue and must survive into the final audit record on approval.
	ReceivedAt time.Time `gorm:"column:received_at;index" json:"received_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for PendingChange
func (PendingChange) TableName() string { return "moderation_queue" }

// IsTerminal reports whether the row has reached a terminal state.
// Approved rows are deleted, so a stored row is terminal iff it was
// rejected or merged.
func (p *PendingChange) IsTerminal() bool {
	return p.Rejected || p.MergedRevID != 0
}

// TagList splits the stored newline-separated tags.
func (p *PendingChange) TagList() []string {
	if p.Tags == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(p.Tags, "\n") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinTags builds the stored representation of a tag list.
func JoinTags(tags []string) string {
	return strings.Join(tags, "\n")
}
