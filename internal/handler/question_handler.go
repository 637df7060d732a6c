package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizora/quizora-backend/internal/middleware"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
	"github.com/quizora/quizora-backend/internal/validator"
)

// QuestionHandler handles question authoring endpoints. It serves the
// full questions including answer keys, so every route is owner-gated.
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// ListQuestions godoc
// GET /api/v1/author/exams/:exam_id/questions
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
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

	questions, err := h.questionService.ListByExam(c.Request.Context(), examID, claims.AuthorID)
	if err != nil {
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ReplaceQuestions godoc
// PUT /api/v1/author/exams/:exam_id/questions
// Replaces the exam's question set wholesale. Order follows the payload.
func (h *QuestionHandler) ReplaceQuestions(c *gin.Context) {
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

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.questionService.Replace(c.Request.Context(), examID, claims.AuthorID, req.Questions)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuestion) {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		failOwned(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}
