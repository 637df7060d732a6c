package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/handler"
	"github.com/quizora/quizora-backend/internal/middleware"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Exam       *handler.ExamHandler
	Question   *handler.QuestionHandler
	Attempt    *handler.AttemptHandler
	Generation *handler.GenerationHandler
	Media      *handler.MediaHandler
	WS         *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Session-Token"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Serve uploaded media files statically with aggressive caching (1 year).
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiters: logins against brute force, attempt starts against
	// attempt spam.
	authLimiter := middleware.NewRateLimiter(30, time.Minute)
	startLimiter := middleware.NewRateLimiter(20, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireAuthorJWT(authService), handlers.Auth.GetProfile)
	}

	// ─── 2. Candidate Group (Session Token) ────────────────────────────
	// No JWT here: the opaque session token presented per request is the
	// only credential a candidate carries.
	public := router.Group("/api/v1")
	{
		public.POST("/session", handlers.Auth.NewSession)

		public.POST("/exams/:exam_id/attempts",
			startLimiter.Middleware(),
			middleware.OptionalAuthorJWT(authService),
			handlers.Attempt.StartAttempt,
		)

		public.GET("/attempts/:attempt_id/paper", handlers.Attempt.GetPaper)
		public.GET("/attempts/:attempt_id/state", handlers.Attempt.GetState)
		public.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)
		public.GET("/attempts/:attempt_id/review", handlers.Attempt.ReviewAttempt)
	}

	// ─── 3. WebSocket Group (Session Token via Query) ──────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Author Group (JWT) ─────────────────────────────────────────
	authorAPI := router.Group("/api/v1/author")
	authorAPI.Use(middleware.RequireAuthorJWT(authService))
	{
		authorAPI.GET("/exams", handlers.Exam.ListExams)
		authorAPI.POST("/exams", handlers.Exam.CreateExam)
		authorAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		authorAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		authorAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		authorAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		authorAPI.POST("/exams/:exam_id/unpublish", handlers.Exam.UnpublishExam)

		authorAPI.GET("/exams/:exam_id/questions", handlers.Question.ListQuestions)
		authorAPI.PUT("/exams/:exam_id/questions", handlers.Question.ReplaceQuestions)

		authorAPI.GET("/exams/:exam_id/attempts", handlers.Attempt.ListResults)

		authorAPI.POST("/generate", handlers.Generation.GenerateQuestions)
		authorAPI.POST("/import", handlers.Generation.ImportDocument)

		authorAPI.POST("/media/upload", handlers.Media.UploadMedia)
	}

	return router
}
