package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizora/quizora-backend/internal/middleware"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
	"github.com/quizora/quizora-backend/internal/validator"
)

// ExamHandler handles exam authoring endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// ListExams godoc
// GET /api/v1/author/exams
// Lists the authenticated author's exams with pagination.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	exams, pagination, err := h.examService.ListByOwner(c.Request.Context(), claims.AuthorID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// CreateExam godoc
// POST /api/v1/author/exams
// Creates a new unpublished exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:            req.Title,
		Description:      req.Description,
		TimeLimitMinutes: req.TimeLimitMinutes,
		SoloMode:         req.SoloMode,
		OwnerID:          claims.AuthorID,
	}

	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/author/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetOwned(c.Request.Context(), examID, claims.AuthorID)
	if err != nil {
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/author/exams/:exam_id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	existing, err := h.examService.GetOwned(c.Request.Context(), examID, claims.AuthorID)
	if err != nil {
		failOwned(c, err)
		return
	}

	if req.Title != "" {
		existing.Title = req.Title
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.TimeLimitMinutes != nil {
		existing.TimeLimitMinutes = req.TimeLimitMinutes
	}
	if req.SoloMode != nil {
		existing.SoloMode = *req.SoloMode
	}

	if err := h.examService.Update(c.Request.Context(), claims.AuthorID, existing); err != nil {
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": existing})
}

// DeleteExam godoc
// DELETE /api/v1/author/exams/:exam_id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID, claims.AuthorID); err != nil {
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PublishExam godoc
// POST /api/v1/author/exams/:exam_id/publish
// Publishing warms the Redis fast lane: the redacted paper and the
// answer key hash become servable without touching PostgreSQL.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Publish(c.Request.Context(), examID, claims.AuthorID); err != nil {
		if errors.Is(err, service.ErrNoQuestions) {
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
			return
		}
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"is_published": true})
}

// UnpublishExam godoc
// POST /api/v1/author/exams/:exam_id/unpublish
func (h *ExamHandler) UnpublishExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Unpublish(c.Request.Context(), examID, claims.AuthorID); err != nil {
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"is_published": false})
}

// failOwned maps GetOwned-path errors onto HTTP statuses.
func failOwned(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotExamOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotExamOwner)
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
