package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/courseloop/assessment-backend/internal/middleware"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/response"
	"github.com/courseloop/assessment-backend/internal/service"
	"github.com/courseloop/assessment-backend/internal/store"
	"github.com/courseloop/assessment-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	directory   store.StudentDirectory
	instructors store.InstructorStore
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, directory store.StudentDirectory, instructors store.InstructorStore) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		directory:   directory,
		instructors: instructors,
	}
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Exchanges student credentials for a JWT.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, student, err := h.authService.StudentLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	response.Success(c, http.StatusOK, model.LoginResponse{
		Token: token,
		User: gin.H{
			"id":            student.ID,
			"name":          student.Name,
			"email":         student.Email,
			"learning_path": student.LearningPath,
		},
	})
}

// InstructorLogin godoc
// POST /api/v1/auth/instructor/login
// Exchanges instructor credentials for a JWT.
func (h *AuthHandler) InstructorLogin(c *gin.Context) {
	var req model.InstructorLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, instructor, err := h.authService.InstructorLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	response.Success(c, http.StatusOK, model.LoginResponse{
		Token: token,
		User: gin.H{
			"id":    instructor.ID,
			"name":  instructor.Name,
			"email": instructor.Email,
		},
	})
}

// GetStudentProfile godoc
// GET /api/v1/auth/student/me
// Returns the profile of the currently authenticated student.
func (h *AuthHandler) GetStudentProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	student, err := h.directory.GetStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// GetInstructorProfile godoc
// GET /api/v1/auth/instructor/me
// Returns the profile of the currently authenticated instructor.
func (h *AuthHandler) GetInstructorProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	instructor, err := h.instructors.GetInstructor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"instructor": instructor})
}
