package repository

import (
	"context"

	"github.com/wikigate/moderation-backend/internal/domain"
	"gorm.io/gorm"
)

// TagRepository scheduled revision-tag data access
type TagRepository interface {
	Schedule(ctx context.Context, revID uint64, tags []string) error
	MarkApplied(ctx context.Context, revID uint64) error
	FindUnapplied(ctx context.Context) ([]*domain.RevisionTag, error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new TagRepository
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Schedule(ctx context.Context, revID uint64, tags []string) error {
	rows := make([]*domain.RevisionTag, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, &domain.RevisionTag{RevID: revID, Tag: t})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

func (r *tagRepository) MarkApplied(ctx context.Context, revID uint64) error {
	return r.db.WithContext(ctx).Model(&domain.RevisionTag{}).
		Where("rev_id = ? AND applied = ?", revID, false).
		Update("applied", true).Error
}

func (r *tagRepository) FindUnapplied(ctx context.Context) ([]*domain.RevisionTag, error) {
	var rows []*domain.RevisionTag
	err := r.db.WithContext(ctx).Where("applied = ?", false).
		Order("id ASC").Find(&rows).Error
	return rows, err
}
