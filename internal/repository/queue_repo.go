package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wikigate/moderation-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter narrows List results.
type ListFilter struct {
	// Folder is one of "pending", "spam", "rejected", "merged"; empty
	// means pending.
	Folder   string
	UserName string
	Page     int
	Limit    int
}

// QueueRepository moderation queue data access
type QueueRepository interface {
	// Enqueue upserts on the (preloadable, namespace, title, preload_id,
	// change_type) uniqueness key and returns the row id. When the key
	// already exists the new submission overwrites the old row, so a
	// user's second pending edit to a page replaces the first.
	Enqueue(ctx context.Context, row *domain.PendingChange) (uint64, error)
	FindByID(ctx context.Context, id uint64) (*domain.PendingChange, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, f ListFilter) ([]*domain.PendingChange, int64, error)
	// ListPendingByUser returns the user's non-terminal rows, oldest first.
	ListPendingByUser(ctx context.Context, userName string) ([]*domain.PendingChange, error)

	// MarkRejected succeeds only if the row is not already rejected and
	// not already merged; reports whether anything changed so callers
	// can distinguish "I rejected it" from "someone else already had".
	MarkRejected(ctx context.Context, id uint64, reviewer string, batch, auto bool) (bool, error)
	// MarkRejectedBatch applies the same conditional update to every
	// non-terminal row by one author and returns the count changed.
	MarkRejectedBatch(ctx context.Context, userName, reviewer string) (int64, error)
	// MarkMerged is conditional on not-already-merged and (race decision,
	// see DESIGN.md) not-already-rejected. On success the row's
	// preloadable marker is flipped onto itself so a later duplicate by
	// the same author supersedes rather than stacks, and the conflict
	// flag is cleared.
	MarkMerged(ctx context.Context, id, revID uint64) (bool, error)
	// SetConflict flips the conflict flag; set only by an approval that
	// discovered a base-revision mismatch.
	SetConflict(ctx context.Context, id uint64, conflict bool) (bool, error)

	LatestPendingTimestamp(ctx context.Context) (*time.Time, error)
	// PromotePreloadID rewrites all rows of an anonymous preload
	// identity onto a freshly registered account.
	PromotePreloadID(ctx context.Context, oldID, newID string, userID uint64, userName string) (int64, error)

	// WithTx returns a copy bound to tx and its guard; redo closures
	// registered by Enqueue target the base connection. guard must be
	// scoped to tx (RunInTransaction hands out the pair).
	WithTx(tx *gorm.DB, guard *TxGuard) QueueRepository
}

type queueRepository struct {
	db    *gorm.DB // current connection, possibly a transaction
	base  *gorm.DB // root connection for rollback-resistant redo
	guard *TxGuard // nil unless transaction-bound via WithTx
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db, base: db}
}

func (r *queueRepository) WithTx(tx *gorm.DB, guard *TxGuard) QueueRepository {
	return &queueRepository{db: tx, base: r.base, guard: guard}
}

// enqueueUpdateColumns are the fields a re-submission overwrites on the
// existing row. Status flags reset: the new submission starts pending.
var enqueueUpdateColumns = []string{
	"user_id", "user_name", "ip", "xff", "user_agent",
	"dst_namespace", "dst_title",
	"text", "stash_key", "page_text", "comment", "minor", "bot",
	"base_rev_id", "old_len", "new_len", "tags", "watch_page",
	"rejected", "rejected_at", "rejected_by", "rejected_batch", "rejected_auto",
	"merged_rev_id", "conflict", "received_at",
}

func (r *queueRepository) Enqueue(ctx context.Context, row *domain.PendingChange) (uint64, error) {
	id, err := enqueueOn(r.db.WithContext(ctx), row)
	if err != nil {
		return 0, err
	}
	if r.guard != nil {
		redo := *row
		redo.ID = 0
		base := r.base
		r.guard.Protect(func() error {
			cp := redo
			_, err := enqueueOn(base, &cp)
			return err
		})
	}
	return id, nil
}

func enqueueOn(db *gorm.DB, row *domain.PendingChange) (uint64, error) {
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "preloadable"}, {Name: "namespace"}, {Name: "title"},
			{Name: "preload_id"}, {Name: "change_type"},
		},
		DoUpdates: clause.AssignmentColumns(enqueueUpdateColumns),
	}).Create(row).Error
	if err != nil {
		return 0, err
	}
	if row.ID == 0 {
		// Upsert hit the existing row; fetch its id through the key.
		var existing domain.PendingChange
		err = db.Where(
			"preloadable = ? AND namespace = ? AND title = ? AND preload_id = ? AND change_type = ?",
			row.Preloadable, row.Namespace, row.Title, row.PreloadID, row.Type,
		).First(&existing).Error
		if err != nil {
			return 0, err
		}
		row.ID = existing.ID
	}
	return row.ID, nil
}

func (r *queueRepository) FindByID(ctx context.Context, id uint64) (*domain.PendingChange, error) {
	var row domain.PendingChange
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *queueRepository) Exists(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *queueRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).
		Delete(&domain.PendingChange{}).Error
}

func (r *queueRepository) List(ctx context.Context, f ListFilter) ([]*domain.PendingChange, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.PendingChange{})
	switch f.Folder {
	case "", "pending":
		query = query.Where("rejected = ? AND merged_rev_id = 0", false)
	case "spam":
		query = query.Where("rejected = ? AND rejected_auto = ?", true, true)
	case "rejected":
		query = query.Where("rejected = ? AND rejected_auto = ?", true, false)
	case "merged":
		query = query.Where("merged_rev_id <> 0")
	}
	if f.UserName != "" {
		query = query.Where("user_name = ?", f.UserName)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var rows []*domain.PendingChange
	err := query.Order("received_at DESC, id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *queueRepository) ListPendingByUser(ctx context.Context, userName string) ([]*domain.PendingChange, error) {
	var rows []*domain.PendingChange
	err := r.db.WithContext(ctx).
		Where("user_name = ? AND rejected = ? AND merged_rev_id = 0", userName, false).
		Order("received_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *queueRepository) MarkRejected(ctx context.Context, id uint64, reviewer string, batch, auto bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ? AND rejected = ? AND merged_rev_id = 0", id, false).
		Updates(map[string]interface{}{
			"rejected":       true,
			"rejected_at":    time.Now(),
			"rejected_by":    reviewer,
			"rejected_batch": batch,
			"rejected_auto":  auto,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *queueRepository) MarkRejectedBatch(ctx context.Context, userName, reviewer string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("user_name = ? AND rejected = ? AND merged_rev_id = 0", userName, false).
		Updates(map[string]interface{}{
			"rejected":       true,
			"rejected_at":    time.Now(),
			"rejected_by":    reviewer,
			"rejected_batch": true,
			"rejected_auto":  false,
		})
	return result.RowsAffected, result.Error
}

func (r *queueRepository) MarkMerged(ctx context.Context, id, revID uint64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ? AND merged_rev_id = 0 AND rejected = ?", id, false).
		Updates(map[string]interface{}{
			"merged_rev_id": revID,
			"conflict":      false,
			"preloadable":   id,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *queueRepository) SetConflict(ctx context.Context, id uint64, conflict bool) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ?", id).
		Update("conflict", conflict)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *queueRepository) LatestPendingTimestamp(ctx context.Context) (*time.Time, error) {
	var row domain.PendingChange
	err := r.db.WithContext(ctx).
		Where("rejected = ? AND merged_rev_id = 0", false).
		Order("received_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts := row.ReceivedAt
	return &ts, nil
}

func (r *queueRepository) PromotePreloadID(ctx context.Context, oldID, newID string, userID uint64, userName string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("preload_id = ?", oldID).
		Updates(map[string]interface{}{
			"preload_id": newID,
			"user_id":    userID,
			"user_name":  userName,
		})
	return result.RowsAffected, result.Error
}
