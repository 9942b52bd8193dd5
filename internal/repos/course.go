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

type CourseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, course *types.Course) (*types.Course, error)
	GetByID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error)
	AddTeacher(ctx context.Context, tx *gorm.DB, courseID, teacherID uuid.UUID) error
	AddGroup(ctx context.Context, tx *gorm.DB, courseID, groupID uuid.UUID) error
	TeacherIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]uuid.UUID, error)
	GroupIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]uuid.UUID, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, course *types.Course) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(course).Error; err != nil {
		return nil, err
	}
	return course, nil
}

func (r *courseRepo) GetByID(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.Course, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var course types.Course
	if err := transaction.WithContext(ctx).Where("id = ?", courseID).First(&course).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &course, nil
}

func (r *courseRepo) AddTeacher(ctx context.Context, tx *gorm.DB, courseID, teacherID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Create(&types.CourseTeacher{CourseID: courseID, TeacherID: teacherID}).Error
}

func (r *courseRepo) AddGroup(ctx context.Context, tx *gorm.DB, courseID, groupID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Create(&types.CourseGroup{CourseID: courseID, GroupID: groupID}).Error
}

func (r *courseRepo) TeacherIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.CourseTeacher{}).
		Where("course_id = ?", courseID).
		Pluck("teacher_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *courseRepo) GroupIDs(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.CourseGroup{}).
		Where("course_id = ?", courseID).
		Pluck("group_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
