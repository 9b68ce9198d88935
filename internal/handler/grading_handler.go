package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseloop/assessment-backend/internal/middleware"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/response"
	"github.com/courseloop/assessment-backend/internal/service"
	"github.com/courseloop/assessment-backend/internal/store"
	"github.com/courseloop/assessment-backend/internal/validator"
)

// GradingHandler handles the instructor's manual grading endpoints.
type GradingHandler struct {
	gradingService *service.GradingService
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(gradingService *service.GradingService) *GradingHandler {
	return &GradingHandler{gradingService: gradingService}
}

// ListSubmissions godoc
// GET /api/v1/instructor/questionnaires/:questionnaire_id/submissions
// Lists submitted attempts, ungraded first.
func (h *GradingHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("questionnaire_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempts, err := h.gradingService.ListSubmissions(c.Request.Context(), id, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetGradingSuggestion godoc
// GET /api/v1/instructor/attempts/:attempt_id/grading
// Returns the attempt with the auto-scored objective baseline.
func (h *GradingHandler) GetGradingSuggestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	suggestion, err := h.gradingService.Suggest(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		case errors.Is(err, service.ErrNotSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrNotSubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"grading": suggestion})
}

// GradeAttempt godoc
// POST /api/v1/instructor/attempts/:attempt_id/grade
// Records the final score and feedback.
func (h *GradingHandler) GradeAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.GradeAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.gradingService.Grade(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		case errors.Is(err, service.ErrNotSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrNotSubmitted)
		case errors.Is(err, service.ErrScoreOutOfRange):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrScoreOutOfRange)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
