package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quizora/quizora-backend/internal/middleware"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
	"github.com/quizora/quizora-backend/internal/validator"
)

// GenerationHandler handles AI-assisted authoring: drafting questions
// from a topic and extracting text from uploaded study material.
// Everything it returns is a draft; persistence goes through the
// regular question endpoints after author review.
type GenerationHandler struct {
	generationService *service.GenerationService
	extractionService *service.ExtractionService
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(generationService *service.GenerationService, extractionService *service.ExtractionService) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		extractionService: extractionService,
	}
}

// GenerateQuestions godoc
// POST /api/v1/author/generate
// Drafts questions with the configured model, charging the author's
// daily quota.
func (h *GenerationHandler) GenerateQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req service.GenerateQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	drafts, err := h.generationService.Generate(c.Request.Context(), claims.AuthorID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationDisabled):
			response.Fail(c, http.StatusServiceUnavailable, response.ErrGenerationDisabled)
		case errors.Is(err, service.ErrQuotaExceeded):
			response.Fail(c, http.StatusTooManyRequests, response.ErrQuotaExceeded)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": drafts})
}

// ImportDocument godoc
// POST /api/v1/author/import
// Extracts plain text from an uploaded PDF so it can be used as source
// material for generation. Scanned documents fall back to OCR.
func (h *GenerationHandler) ImportDocument(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		return
	}
	if fileHeader.Size > service.MaxImportSize {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, service.MaxImportSize+1))
	if err != nil || len(data) > service.MaxImportSize {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	text, err := h.extractionService.ExtractPDF(c.Request.Context(), data)
	if err != nil {
		if errors.Is(err, service.ErrExtractionFailed) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrExtractionFailed)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"text": text})
}
