package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

type TestRepo interface {
	Create(ctx context.Context, tx *gorm.DB, test *types.Test) (*types.Test, error)
	// GetLatestShared returns the newest test with no student owner, or nil.
	GetLatestShared(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) (*types.Test, error)
	// GetLatestForStudent returns the newest test owned by the student, or nil.
	GetLatestForStudent(ctx context.Context, tx *gorm.DB, lectureID, userID uuid.UUID) (*types.Test, error)
	GetByLectureID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) ([]*types.Test, error)
}

type testRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTestRepo(db *gorm.DB, baseLog *logger.Logger) TestRepo {
	return &testRepo{db: db, log: baseLog.With("repo", "TestRepo")}
}

func (r *testRepo) Create(ctx context.Context, tx *gorm.DB, test *types.Test) (*types.Test, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(test).Error; err != nil {
		return nil, err
	}
	return test, nil
}

func (r *testRepo) GetLatestShared(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) (*types.Test, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var test types.Test
	err := transaction.WithContext(ctx).
		Where("lecture_id = ? AND user_id IS NULL", lectureID).
		Order("created_at DESC").
		First(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (r *testRepo) GetLatestForStudent(ctx context.Context, tx *gorm.DB, lectureID, userID uuid.UUID) (*types.Test, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var test types.Test
	err := transaction.WithContext(ctx).
		Where("lecture_id = ? AND user_id = ?", lectureID, userID).
		Order("created_at DESC").
		First(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (r *testRepo) GetByLectureID(ctx context.Context, tx *gorm.DB, lectureID uuid.UUID) ([]*types.Test, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Test
	if err := transaction.WithContext(ctx).
		Where("lecture_id = ?", lectureID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
