package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

type MaterialRepo interface {
	Create(ctx context.Context, tx *gorm.DB, materials []*types.Material) ([]*types.Material, error)
	GetByLectureID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) ([]*types.Material, error)
}

type materialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMaterialRepo(db *gorm.DB, baseLog *logger.Logger) MaterialRepo {
	return &materialRepo{db: db, log: baseLog.With("repo", "MaterialRepo")}
}

func (r *materialRepo) Create(ctx context.Context, tx *gorm.DB, materials []*types.Material) ([]*types.Material, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(materials) == 0 {
		return []*types.Material{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

func (r *materialRepo) GetByLectureID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) ([]*types.Material, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Material
	if err := transaction.WithContext(ctx).
		Where("lecture_id = ?", lectureID).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
