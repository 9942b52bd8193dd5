package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

type GroupRepo interface {
	Create(ctx context.Context, tx *gorm.DB, group *types.Group) (*types.Group, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, groupIDs []uuid.UUID) ([]*types.Group, error)
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{db: db, log: baseLog.With("repo", "GroupRepo")}
}

func (r *groupRepo) Create(ctx context.Context, tx *gorm.DB, group *types.Group) (*types.Group, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

func (r *groupRepo) GetByIDs(ctx context.Context, tx *gorm.DB, groupIDs []uuid.UUID) ([]*types.Group, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(groupIDs) == 0 {
		return []*types.Group{}, nil
	}
	var results []*types.Group
	if err := transaction.WithContext(ctx).
		Where("id IN ?", groupIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
