package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/types"
)

type TestAttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *types.TestAttempt) (*types.TestAttempt, error)
	CountByTestAndUser(ctx context.Context, tx *gorm.DB, testID, userID uuid.UUID) (int64, error)
	GetByTestAndUser(ctx context.Context, tx *gorm.DB, testID, userID uuid.UUID) ([]*types.TestAttempt, error)
	GetByTestIDs(ctx context.Context, tx *gorm.DB, testIDs []uuid.UUID) ([]*types.TestAttempt, error)
}

type testAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTestAttemptRepo(db *gorm.DB, baseLog *logger.Logger) TestAttemptRepo {
	return &testAttemptRepo{db: db, log: baseLog.With("repo", "TestAttemptRepo")}
}

func (r *testAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *types.TestAttempt) (*types.TestAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *testAttemptRepo) CountByTestAndUser(ctx context.Context, tx *gorm.DB, testID, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.TestAttempt{}).
		Where("test_id = ? AND user_id = ?", testID, userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *testAttemptRepo) GetByTestAndUser(ctx context.Context, tx *gorm.DB, testID, userID uuid.UUID) ([]*types.TestAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TestAttempt
	if err := transaction.WithContext(ctx).
		Where("test_id = ? AND user_id = ?", testID, userID).
		Order("completed_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *testAttemptRepo) GetByTestIDs(ctx context.Context, tx *gorm.DB, testIDs []uuid.UUID) ([]*types.TestAttempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.TestAttempt
	if len(testIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("test_id IN ?", testIDs).
		Order("completed_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
