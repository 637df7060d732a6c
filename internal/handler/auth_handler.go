package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quizora/quizora-backend/internal/middleware"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
	"github.com/quizora/quizora-backend/internal/validator"
)

// AuthHandler handles author authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	authorRepo  *repository.AuthorRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, authorRepo *repository.AuthorRepository) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		authorRepo:  authorRepo,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Authenticates an author and returns a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	author, err := h.authorRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// Same response whether the email is unknown or the password is
		// wrong.
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(author.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateAuthorToken(author.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"author": gin.H{
			"id":    author.ID,
			"name":  author.Name,
			"email": author.Email,
		},
	})
}

// GetProfile godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated author.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	author, err := h.authorRepo.GetByID(c.Request.Context(), claims.AuthorID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"author": author})
}

// NewSession godoc
// POST /api/v1/session
// Issues a fresh opaque session token for a candidate. Clients may also
// generate their own; the server only ever treats the token as an
// opaque capability scoped to the attempts created with it.
func (h *AuthHandler) NewSession(c *gin.Context) {
	response.Success(c, http.StatusCreated, gin.H{
		"session_token": h.authService.NewSessionToken(),
	})
}
