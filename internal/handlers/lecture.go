package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/repos"
	"github.com/edulight/edulight-backend/internal/requestdata"
	"github.com/edulight/edulight-backend/internal/services"
	"github.com/edulight/edulight-backend/internal/types"
)

type LectureHandler struct {
	log          *logger.Logger
	lectureRepo  repos.LectureRepo
	materialRepo repos.MaterialRepo
	pmRepo       repos.ProcessedMaterialRepo
	courseRepo   repos.CourseRepo
	publisher    services.PublicationService
}

func NewLectureHandler(
	log *logger.Logger,
	lectureRepo repos.LectureRepo,
	materialRepo repos.MaterialRepo,
	pmRepo repos.ProcessedMaterialRepo,
	courseRepo repos.CourseRepo,
	publisher services.PublicationService,
) *LectureHandler {
	return &LectureHandler{
		log:          log.With("handler", "LectureHandler"),
		lectureRepo:  lectureRepo,
		materialRepo: materialRepo,
		pmRepo:       pmRepo,
		courseRepo:   courseRepo,
		publisher:    publisher,
	}
}

// requireCourseStaff rejects students outright and teachers who do not
// teach the lecture's course.
func (h *LectureHandler) requireCourseStaff(ctx context.Context, lecture *types.Lecture, actor requestdata.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsTeacher() {
		return fmt.Errorf("%w: teacher role required", apperr.ErrAccess)
	}
	teacherIDs, err := h.courseRepo.TeacherIDs(ctx, nil, lecture.CourseID)
	if err != nil {
		return err
	}
	for _, id := range teacherIDs {
		if id == actor.UserID {
			return nil
		}
	}
	return fmt.Errorf("%w: not a teacher of this course", apperr.ErrAccess)
}

// POST /api/lectures/:id/publish
// Fire-and-forget: schedules the publish cycle and returns immediately.
// Completion is observable through GET /api/lectures/:id/status.
func (h *LectureHandler) PublishLecture(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid lecture id"))
		return
	}
	actor, ok := requestdata.GetActor(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing identity"))
		return
	}

	lecture, err := h.lectureRepo.GetByID(c.Request.Context(), nil, lectureID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if err := h.requireCourseStaff(c.Request.Context(), lecture, actor); err != nil {
		RespondAppError(c, err)
		return
	}

	outcome, err := h.publisher.Publish(c.Request.Context(), lectureID, actor.UserID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if outcome.AlreadyPublished {
		RespondOK(c, gin.H{"accepted": false, "already_published": true})
		return
	}
	if outcome.InFlight {
		RespondOK(c, gin.H{"accepted": false, "already_running": true})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// GET /api/lectures/:id/status
// Polling endpoint for the publish cycle: published flag, per-material
// processed counts, and the last aggregated error if a cycle failed.
func (h *LectureHandler) LectureStatus(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid lecture id"))
		return
	}
	actor, ok := requestdata.GetActor(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing identity"))
		return
	}

	ctx := c.Request.Context()
	lecture, err := h.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if err := h.requireCourseStaff(ctx, lecture, actor); err != nil {
		RespondAppError(c, err)
		return
	}

	materials, err := h.materialRepo.GetByLectureID(ctx, nil, lectureID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	materialIDs := make([]uuid.UUID, 0, len(materials))
	for _, m := range materials {
		materialIDs = append(materialIDs, m.ID)
	}
	processed, err := h.pmRepo.GetByMaterialIDs(ctx, nil, materialIDs)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"lecture_id":         lecture.ID,
		"published":          lecture.Published,
		"total_materials":    len(materials),
		"processed":          len(processed),
		"last_publish_error": lecture.LastPublishError,
	})
}

// GET /api/lectures/:id/materials
func (h *LectureHandler) ListMaterials(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid lecture id"))
		return
	}
	actor, ok := requestdata.GetActor(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing identity"))
		return
	}

	ctx := c.Request.Context()
	lecture, err := h.lectureRepo.GetByID(ctx, nil, lectureID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	if actor.IsStudent() && !lecture.Published {
		RespondAppError(c, fmt.Errorf("%w: lecture is not published", apperr.ErrAccess))
		return
	}

	materials, err := h.materialRepo.GetByLectureID(ctx, nil, lectureID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"materials": materials})
}
