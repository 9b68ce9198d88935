package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/handler"
	"github.com/courseloop/assessment-backend/internal/middleware"
	"github.com/courseloop/assessment-backend/internal/response"
	"github.com/courseloop/assessment-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Questionnaire *handler.QuestionnaireHandler
	Attempt       *handler.AttemptHandler
	Grading       *handler.GradingHandler
	Analytics     *handler.AnalyticsHandler
	WS            *handler.WSHandler
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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/instructor/login", handlers.Auth.InstructorLogin)

		// Authenticated profile routes
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/instructor/me", middleware.RequireInstructorJWT(authService), handlers.Auth.GetInstructorProfile)
	}

	// ─── 2. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		studentAPI.GET("/questionnaires", handlers.Attempt.ListQuestionnaires)
		studentAPI.GET("/questionnaires/:questionnaire_id", handlers.Attempt.GetQuestionnairePayload)
		studentAPI.POST("/questionnaires/:questionnaire_id/attempts", handlers.Attempt.StartAttempt)
		studentAPI.GET("/questionnaires/:questionnaire_id/attempts/current", handlers.Attempt.GetAttemptState)
		studentAPI.PUT("/attempts/:attempt_id/answers", handlers.Attempt.RecordAnswer)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)
		studentAPI.GET("/attempts/:attempt_id", handlers.Attempt.GetAttemptResult)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/questionnaires/:questionnaire_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Instructor Group (JWT) ─────────────────────────────────────
	instructorAPI := router.Group("/api/v1/instructor")
	instructorAPI.Use(middleware.RequireInstructorJWT(authService))
	{
		instructorAPI.GET("/questionnaires", handlers.Questionnaire.ListQuestionnaires)
		instructorAPI.POST("/questionnaires", handlers.Questionnaire.CreateQuestionnaire)
		instructorAPI.GET("/questionnaires/:questionnaire_id", handlers.Questionnaire.GetQuestionnaire)
		instructorAPI.PATCH("/questionnaires/:questionnaire_id", handlers.Questionnaire.UpdateQuestionnaire)
		instructorAPI.POST("/questionnaires/:questionnaire_id/validate", handlers.Questionnaire.ValidateQuestionnaire)
		instructorAPI.POST("/questionnaires/:questionnaire_id/publish", handlers.Questionnaire.PublishQuestionnaire)

		instructorAPI.GET("/questionnaires/:questionnaire_id/submissions", handlers.Grading.ListSubmissions)
		instructorAPI.GET("/attempts/:attempt_id/grading", handlers.Grading.GetGradingSuggestion)
		instructorAPI.POST("/attempts/:attempt_id/grade", handlers.Grading.GradeAttempt)

		instructorAPI.GET("/questionnaires/:questionnaire_id/summary", handlers.Analytics.GetSummary)
		instructorAPI.GET("/questionnaires/:questionnaire_id/export", handlers.Analytics.ExportCSV)
	}

	return router
}
