package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

type LectureRepo interface {
	Create(ctx context.Context, tx *gorm.DB, lecture *types.Lecture) (*types.Lecture, error)
	GetByID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) (*types.Lecture, error)
	MarkPublished(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) error
	SetLastPublishError(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID, message string) error
}

type lectureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLectureRepo(db *gorm.DB, baseLog *logger.Logger) LectureRepo {
	return &lectureRepo{db: db, log: baseLog.With("repo", "LectureRepo")}
}

func (r *lectureRepo) Create(ctx context.Context, tx *gorm.DB, lecture *types.Lecture) (*types.Lecture, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(lecture).Error; err != nil {
		return nil, err
	}
	return lecture, nil
}

func (r *lectureRepo) GetByID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) (*types.Lecture, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var lecture types.Lecture
	if err := transaction.WithContext(ctx).
		Where("id = ?", lectureID).
		First(&lecture).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &lecture, nil
}

func (r *lectureRepo) MarkPublished(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Lecture{}).
		Where("id = ?", lectureID).
		Updates(map[string]any{"published": true, "last_publish_error": ""}).Error
}

func (r *lectureRepo) SetLastPublishError(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID, message string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Lecture{}).
		Where("id = ?", lectureID).
		Update("last_publish_error", message).Error
}
