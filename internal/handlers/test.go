package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/requestdata"
	"github.com/edulight/edulight-backend/internal/services"
)

type TestHandler struct {
	log       *logger.Logger
	assignSvc services.TestAssignService
}

func NewTestHandler(log *logger.Logger, assignSvc services.TestAssignService) *TestHandler {
	return &TestHandler{
		log:       log.With("handler", "TestHandler"),
		assignSvc: assignSvc,
	}
}

func lectureIDAndActor(c *gin.Context) (uuid.UUID, requestdata.Actor, bool) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("invalid lecture id"))
		return uuid.Nil, requestdata.Actor{}, false
	}
	actor, ok := requestdata.GetActor(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing identity"))
		return uuid.Nil, requestdata.Actor{}, false
	}
	return lectureID, actor, true
}

// GET /api/lectures/:id/test
func (h *TestHandler) GetLectureTest(c *gin.Context) {
	lectureID, actor, ok := lectureIDAndActor(c)
	if !ok {
		return
	}
	view, err := h.assignSvc.GetTest(c.Request.Context(), lectureID, actor)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, view)
}

// POST /api/lectures/:id/test/check
// Body: {"<question_id>": "<answer>", ...}
func (h *TestHandler) CheckTestAnswers(c *gin.Context) {
	lectureID, actor, ok := lectureIDAndActor(c)
	if !ok {
		return
	}
	var answers map[string]string
	if err := c.ShouldBindJSON(&answers); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("malformed answers payload: %v", err))
		return
	}
	result, err := h.assignSvc.SubmitAnswers(c.Request.Context(), lectureID, answers, actor)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/lectures/:id/test/attempts
func (h *TestHandler) GetTestAttempts(c *gin.Context) {
	lectureID, actor, ok := lectureIDAndActor(c)
	if !ok {
		return
	}
	report, err := h.assignSvc.ListAttempts(c.Request.Context(), lectureID, actor)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, report)
}

// GET /api/lectures/:id/test/all-attempts
func (h *TestHandler) GetAllTestAttempts(c *gin.Context) {
	lectureID, actor, ok := lectureIDAndActor(c)
	if !ok {
		return
	}
	report, err := h.assignSvc.ListAllAttempts(c.Request.Context(), lectureID, actor)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, report)
}
