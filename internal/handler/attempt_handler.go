package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizora/quizora-backend/internal/middleware"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
	"github.com/quizora/quizora-backend/internal/validator"
)

// AttemptHandler handles the candidate-facing attempt endpoints. These
// routes authenticate with opaque session tokens, not JWTs: the token
// presented at start is the only capability needed for the rest of the
// attempt's life.
type AttemptHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, examService *service.ExamService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		examService:    examService,
	}
}

// StartAttempt godoc
// POST /api/v1/exams/:exam_id/attempts
// Starts a new attempt. A fresh attempt id is minted on every call;
// restarting an exam never resurrects a previous attempt.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), examID, middleware.AuthorID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrForbidden):
			response.Fail(c, http.StatusForbidden, response.ErrExamNotPublished)
		case errors.Is(err, service.ErrAttemptLimit):
			response.Fail(c, http.StatusConflict, response.ErrAttemptLimitReached)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// GetPaper godoc
// GET /api/v1/attempts/:attempt_id/paper
// Serves the redacted exam paper for an open attempt. The payload comes
// from the Redis fast lane and never contains answer-key fields.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	attempt, ok := h.openAttempt(c)
	if !ok {
		return
	}

	paper, err := h.examService.GetPaper(c.Request.Context(), attempt.ExamID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id/state
// Returns autosaved answers and the server-authoritative remaining time
// so a reloaded client can resume where it left off.
func (h *AttemptHandler) GetState(c *gin.Context) {
	attemptID, token, ok := attemptParams(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), attemptID, token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAttempt) {
			response.Fail(c, http.StatusConflict, response.ErrInvalidAttempt)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// SubmitAttempt godoc
// POST /api/v1/attempts/:attempt_id/submit
// Finalizes the attempt: grades server-side and writes answers, score
// and submitted_at in one atomic step. Every precondition failure maps
// to the same INVALID_ATTEMPT response.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, req.SessionToken, req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedAnswers):
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
		case errors.Is(err, service.ErrInvalidAttempt):
			response.Fail(c, http.StatusConflict, response.ErrInvalidAttempt)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ReviewAttempt godoc
// GET /api/v1/attempts/:attempt_id/review
// Returns the submitted attempt with the full question set, including
// correct answers and explanations. Only available after submission.
func (h *AttemptHandler) ReviewAttempt(c *gin.Context) {
	attemptID, token, ok := attemptParams(c)
	if !ok {
		return
	}

	attempt, questions, err := h.attemptService.Review(c.Request.Context(), attemptID, token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAttempt) {
			response.Fail(c, http.StatusConflict, response.ErrInvalidAttempt)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":   attempt,
		"questions": questions,
	})
}

// ListResults godoc
// GET /api/v1/author/exams/:exam_id/attempts
// Lists attempts for an exam the caller owns.
func (h *AttemptHandler) ListResults(c *gin.Context) {
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

	if _, err := h.examService.GetOwned(c.Request.Context(), examID, claims.AuthorID); err != nil {
		failOwned(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	results, total, err := h.attemptService.ListResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if results == nil {
		results = []repository.AttemptResult{}
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// openAttempt resolves the route params and verifies the attempt is
// open under the presented session token.
func (h *AttemptHandler) openAttempt(c *gin.Context) (*model.Attempt, bool) {
	attemptID, token, ok := attemptParams(c)
	if !ok {
		return nil, false
	}

	attempt, err := h.attemptService.VerifyOpen(c.Request.Context(), attemptID, token)
	if err != nil {
		response.Fail(c, http.StatusConflict, response.ErrInvalidAttempt)
		return nil, false
	}
	return attempt, true
}

// attemptParams extracts the attempt id from the path and the session
// token from the X-Session-Token header (query fallback for GETs).
func attemptParams(c *gin.Context) (uuid.UUID, string, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, "", false
	}

	token := c.GetHeader("X-Session-Token")
	if token == "" {
		token = c.Query("session_token")
	}
	if token == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, "", false
	}
	return attemptID, token, true
}
