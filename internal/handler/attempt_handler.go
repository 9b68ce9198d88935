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

// AttemptHandler handles the student attempt lifecycle over HTTP. The
// WebSocket channel covers the same autosave/submit operations for clients
// that keep a live connection.
type AttemptHandler struct {
	sessionService       *service.SessionService
	questionnaireService *service.QuestionnaireService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(sessionService *service.SessionService, questionnaireService *service.QuestionnaireService) *AttemptHandler {
	return &AttemptHandler{
		sessionService:       sessionService,
		questionnaireService: questionnaireService,
	}
}

// ListQuestionnaires godoc
// GET /api/v1/student/questionnaires
// Lists published questionnaires targeting the student, with attempt
// history overlaid.
func (h *AttemptHandler) ListQuestionnaires(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	listed, err := h.sessionService.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if listed == nil {
		listed = []service.StudentQuestionnaire{}
	}

	response.Success(c, http.StatusOK, gin.H{"questionnaires": listed})
}

// GetQuestionnairePayload godoc
// GET /api/v1/student/questionnaires/:questionnaire_id
// Returns the student-facing definition, stripped of correct-answer
// markers. Served from the Redis cache when warm.
func (h *AttemptHandler) GetQuestionnairePayload(c *gin.Context) {
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

	payload, err := h.questionnaireService.GetPayload(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotPublished) {
			response.Fail(c, http.StatusForbidden, response.ErrNotPublished)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questionnaire": payload})
}

// StartAttempt godoc
// POST /api/v1/student/questionnaires/:questionnaire_id/attempts
// Starts a new attempt or resumes the open one.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
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

	attempt, err := h.sessionService.Start(c.Request.Context(), id, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotPublished):
			response.Fail(c, http.StatusForbidden, response.ErrNotPublished)
		case errors.Is(err, service.ErrNotEligible):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, service.ErrAttemptBudgetExhausted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptBudgetExhausted)
		case errors.Is(err, service.ErrOverdue):
			response.Fail(c, http.StatusForbidden, response.ErrOverdue)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// GetAttemptState godoc
// GET /api/v1/student/questionnaires/:questionnaire_id/attempts/current
// Resume view: persisted answers plus the authoritative remaining time.
func (h *AttemptHandler) GetAttemptState(c *gin.Context) {
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

	state, err := h.sessionService.GetState(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// RecordAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
// Persists a single answer. Re-recording a question overwrites the
// previous value.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
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

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	_, err = h.sessionService.RecordAnswer(c.Request.Context(), attemptID, claims.UserID, req.QuestionID, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotYourAttempt):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, store.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		case errors.Is(err, service.ErrOverdue):
			response.Fail(c, http.StatusForbidden, response.ErrOverdue)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Finalizes the attempt. Fully objective questionnaires come back graded.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
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

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.sessionService.Submit(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		var shapeErr *service.AnswerShapeError
		switch {
		case errors.As(err, &shapeErr):
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrValidation, violationFields(shapeErr.Violations))
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotYourAttempt):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		case errors.Is(err, store.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		case errors.Is(err, service.ErrRequiredUnanswered):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrRequiredUnanswered)
		case errors.Is(err, service.ErrOverdue):
			response.Fail(c, http.StatusForbidden, response.ErrOverdue)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	body := gin.H{
		"attempt": attempt,
		"state":   attempt.State(),
	}
	response.Success(c, http.StatusOK, body)
}

// GetAttemptResult godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns a submitted attempt with score and feedback once graded.
func (h *AttemptHandler) GetAttemptResult(c *gin.Context) {
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

	attempt, correctAnswers, err := h.sessionService.Result(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotYourAttempt) {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	body := gin.H{
		"attempt": attempt,
		"state":   attempt.State(),
	}
	if correctAnswers != nil {
		body["correct_answers"] = correctAnswers
	}
	response.Success(c, http.StatusOK, body)
}
