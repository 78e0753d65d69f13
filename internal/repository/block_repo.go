package repository

import (
	"context"
	"errors"

	"github.com/wikigate/moderation-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockRepository moderation denylist data access
type BlockRepository interface {
	// Block adds a denylist row; returns false if the user was already
	// blocked.
	Block(ctx context.Context, userName, blockedBy string) (bool, error)
	// Unblock removes the row; returns false if there was none.
	Unblock(ctx context.Context, userName string) (bool, error)
	IsBlocked(ctx context.Context, userName string) (bool, error)
	Find(ctx context.Context, userName string) (*domain.ModerationBlock, error)
	List(ctx context.Context, page, limit int) ([]*domain.ModerationBlock, int64, error)
}

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository creates a new BlockRepository
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

func (r *blockRepository) Block(ctx context.Context, userName, blockedBy string) (bool, error) {
	block := &domain.ModerationBlock{UserName: userName, BlockedBy: blockedBy}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(block)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *blockRepository) Unblock(ctx context.Context, userName string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_name = ?", userName).
		Delete(&domain.ModerationBlock{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *blockRepository) IsBlocked(ctx context.Context, userName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ModerationBlock{}).
		Where("user_name = ?", userName).Count(&count).Error
	return count > 0, err
}

func (r *blockRepository) Find(ctx context.Context, userName string) (*domain.ModerationBlock, error) {
	var block domain.ModerationBlock
	err := r.db.WithContext(ctx).Where("user_name = ?", userName).First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *blockRepository) List(ctx context.Context, page, limit int) ([]*domain.ModerationBlock, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.ModerationBlock{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var blocks []*domain.ModerationBlock
	err := r.db.WithContext(ctx).Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&blocks).Error
	return blocks, total, err
}
