package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/courseloop/assessment-backend/internal/middleware"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/response"
	"github.com/courseloop/assessment-backend/internal/service"
	"github.com/courseloop/assessment-backend/internal/store"
	"github.com/courseloop/assessment-backend/internal/validator"
)

// QuestionnaireHandler handles instructor questionnaire management.
type QuestionnaireHandler struct {
	questionnaireService *service.QuestionnaireService
}

// NewQuestionnaireHandler creates a new QuestionnaireHandler.
func NewQuestionnaireHandler(questionnaireService *service.QuestionnaireService) *QuestionnaireHandler {
	return &QuestionnaireHandler{questionnaireService: questionnaireService}
}

// ListQuestionnaires godoc
// GET /api/v1/instructor/questionnaires
// Lists the instructor's questionnaires with pagination.
func (h *QuestionnaireHandler) ListQuestionnaires(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	questionnaires, pagination, err := h.questionnaireService.ListByOwner(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questionnaires": questionnaires}, pagination)
}

// CreateQuestionnaire godoc
// POST /api/v1/instructor/questionnaires
// Creates a draft questionnaire. Definition violations are returned as
// warnings; a draft may be saved in any state.
func (h *QuestionnaireHandler) CreateQuestionnaire(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateQuestionnaireRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, warnings, err := h.questionnaireService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"questionnaire": q,
		"warnings":      warnings,
	})
}

// GetQuestionnaire godoc
// GET /api/v1/instructor/questionnaires/:questionnaire_id
// Returns the full definition, including correct-answer markers.
func (h *QuestionnaireHandler) GetQuestionnaire(c *gin.Context) {
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

	q, err := h.questionnaireService.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if q.OwnerID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questionnaire": q})
}

// UpdateQuestionnaire godoc
// PATCH /api/v1/instructor/questionnaires/:questionnaire_id
// Applies a partial update. Published questionnaires reject updates that
// would leave the definition invalid; existing attempts are never touched.
func (h *QuestionnaireHandler) UpdateQuestionnaire(c *gin.Context) {
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

	var req model.UpdateQuestionnaireRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, warnings, err := h.questionnaireService.Update(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		var defErr *service.DefinitionError
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		case errors.As(err, &defErr):
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrDefinitionInvalid, violationFields(defErr.Violations))
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"questionnaire": q,
		"warnings":      warnings,
	})
}

// ValidateQuestionnaire godoc
// POST /api/v1/instructor/questionnaires/:questionnaire_id/validate
// Dry-runs definition validation without changing any state.
func (h *QuestionnaireHandler) ValidateQuestionnaire(c *gin.Context) {
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

	q, err := h.questionnaireService.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if q.OwnerID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		return
	}

	violations := q.Validate()
	response.Success(c, http.StatusOK, gin.H{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}

// PublishQuestionnaire godoc
// POST /api/v1/instructor/questionnaires/:questionnaire_id/publish
// Validates and publishes. A definition with violations cannot go live.
func (h *QuestionnaireHandler) PublishQuestionnaire(c *gin.Context) {
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

	if err := h.questionnaireService.Publish(c.Request.Context(), id, claims.UserID); err != nil {
		var defErr *service.DefinitionError
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotOwner):
			response.Fail(c, http.StatusForbidden, response.ErrNotQuestionnaireOwner)
		case errors.As(err, &defErr):
			response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrDefinitionInvalid, violationFields(defErr.Violations))
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"published": true})
}

func violationFields(violations []model.ValidationError) map[string]string {
	fields := make(map[string]string, len(violations))
	for _, v := range violations {
		fields[v.Field] = v.Message
	}
	return fields
}
