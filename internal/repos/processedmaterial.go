package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

type ProcessedMaterialRepo interface {
	Create(ctx context.Context, tx *gorm.DB, pm *types.ProcessedMaterial) (*types.ProcessedMaterial, error)
	GetByMaterialIDs(ctx context.Context, tx *gorm.DB, materialIDs []uuid.UUID) ([]*types.ProcessedMaterial, error)
	// GetTextedByLectureID returns rows with non-null extracted text, in
	// material display order.
	GetTextedByLectureID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) ([]*types.ProcessedMaterial, error)
}

type processedMaterialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessedMaterialRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedMaterialRepo {
	return &processedMaterialRepo{db: db, log: baseLog.With("repo", "ProcessedMaterialRepo")}
}

func (r *processedMaterialRepo) Create(ctx context.Context, tx *gorm.DB, pm *types.ProcessedMaterial) (*types.ProcessedMaterial, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(pm).Error; err != nil {
		return nil, err
	}
	return pm, nil
}

func (r *processedMaterialRepo) GetByMaterialIDs(ctx context.Context, tx *gorm.DB, materialIDs []uuid.UUID) ([]*types.ProcessedMaterial, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ProcessedMaterial
	if len(materialIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("material_id IN ?", materialIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *processedMaterialRepo) GetTextedByLectureID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) ([]*types.ProcessedMaterial, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ProcessedMaterial
	if err := transaction.WithContext(ctx).
		Joins("JOIN lecture_materials ON lecture_materials.id = processed_materials.material_id").
		Where("processed_materials.lecture_id = ? AND processed_materials.processed_text IS NOT NULL", lectureID).
		Order("lecture_materials.order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
