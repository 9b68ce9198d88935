package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/response"
	"github.com/courseloop/assessment-backend/internal/store"
)

// Domain errors.
var (
	ErrNotOwner     = errors.New("not the owner of this questionnaire")
	ErrNotPublished = errors.New("questionnaire is not published")
)

// DefinitionError carries the validation failures that blocked a publish.
type DefinitionError struct {
	Violations []model.ValidationError
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("definition failed validation with %d violation(s)", len(e.Violations))
}

// QuestionnaireService handles authoring, validation and publication of
// questionnaire definitions, and keeps the Redis fast lane warm.
type QuestionnaireService struct {
	questionnaires store.QuestionnaireStore
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewQuestionnaireService creates a new QuestionnaireService.
func NewQuestionnaireService(questionnaires store.QuestionnaireStore, rdb *redis.Client, log zerolog.Logger) *QuestionnaireService {
	return &QuestionnaireService{
		questionnaires: questionnaires,
		rdb:            rdb,
		log:            log.With().Str("component", "questionnaire_service").Logger(),
	}
}

// buildQuestions converts authoring inputs into definitions. Question ids
// are always server-assigned; option ids only when the client omits them
// (edits may resend existing ids to keep recorded answers resolvable).
func buildQuestions(inputs []model.QuestionInput) []model.QuestionDefinition {
	out := make([]model.QuestionDefinition, len(inputs))
	for i, in := range inputs {
		opts := make([]model.Option, len(in.Options))
		for j, opt := range in.Options {
			if opt.ID == "" {
				opt.ID = uuid.NewString()
			}
			opts[j] = opt
		}
		if len(opts) == 0 {
			opts = nil
		}
		out[i] = model.QuestionDefinition{
			ID:          uuid.New(),
			Type:        model.QuestionType(in.Type),
			Prompt:      in.Prompt,
			Description: in.Description,
			Required:    in.Required,
			Points:      in.Points,
			Position:    i,
			Options:     opts,
			MinValue:    in.MinValue,
			MaxValue:    in.MaxValue,
			MinLabel:    in.MinLabel,
			MaxLabel:    in.MaxLabel,
		}
	}
	return out
}

// Create saves a new draft. Validation violations do not block a draft; they
// are returned as warnings so authoring can proceed incrementally.
func (s *QuestionnaireService) Create(ctx context.Context, ownerID int, req *model.CreateQuestionnaireRequest) (*model.Questionnaire, []model.ValidationError, error) {
	q := &model.Questionnaire{
		Title:               req.Title,
		Description:         req.Description,
		OwnerID:             ownerID,
		Questions:           buildQuestions(req.Questions),
		TargetLearningPaths: req.TargetLearningPaths,
		TargetStudentIDs:    req.TargetStudentIDs,
		DueDate:             req.DueDate,
		AllowLateSubmission: req.AllowLateSubmission,
		ShowCorrectAnswers:  req.ShowCorrectAnswers,
		MaxAttempts:         req.MaxAttempts,
		TimeLimitMinutes:    req.TimeLimitMinutes,
	}

	warnings := q.Validate()

	if err := s.questionnaires.CreateQuestionnaire(ctx, q); err != nil {
		return nil, nil, fmt.Errorf("create questionnaire: %w", err)
	}
	return q, warnings, nil
}

// Update edits a definition. Drafts accept violations as warnings; a
// published definition must stay valid, so violations block the edit.
// Edits never re-grade existing attempts.
func (s *QuestionnaireService) Update(ctx context.Context, id uuid.UUID, ownerID int, req *model.UpdateQuestionnaireRequest) (*model.Questionnaire, []model.ValidationError, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if q.OwnerID != ownerID {
		return nil, nil, ErrNotOwner
	}

	if req.Title != nil {
		q.Title = *req.Title
	}
	if req.Description != nil {
		q.Description = *req.Description
	}
	if req.Questions != nil {
		q.Questions = buildQuestions(req.Questions)
	}
	if req.TargetLearningPaths != nil {
		q.TargetLearningPaths = req.TargetLearningPaths
		q.TargetStudentIDs = nil
	}
	if req.TargetStudentIDs != nil {
		q.TargetStudentIDs = req.TargetStudentIDs
		q.TargetLearningPaths = nil
	}
	if req.DueDate != nil {
		q.DueDate = req.DueDate
	}
	if req.AllowLateSubmission != nil {
		q.AllowLateSubmission = *req.AllowLateSubmission
	}
	if req.ShowCorrectAnswers != nil {
		q.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.MaxAttempts != nil {
		q.MaxAttempts = *req.MaxAttempts
	}
	if req.TimeLimitMinutes != nil {
		q.TimeLimitMinutes = req.TimeLimitMinutes
	}

	warnings := q.Validate()
	if q.IsPublished && len(warnings) > 0 {
		return nil, warnings, &DefinitionError{Violations: warnings}
	}

	if err := s.questionnaires.UpdateQuestionnaire(ctx, q); err != nil {
		return nil, nil, fmt.Errorf("update questionnaire: %w", err)
	}

	if q.IsPublished {
		if err := s.WarmCache(ctx, q); err != nil {
			s.log.Warn().Err(err).Str("questionnaire_id", q.ID.String()).Msg("Cache refresh after edit failed")
		}
	}
	return q, warnings, nil
}

// GetByID retrieves a definition with its questions.
func (s *QuestionnaireService) GetByID(ctx context.Context, id uuid.UUID) (*model.Questionnaire, error) {
	return s.questionnaires.GetQuestionnaire(ctx, id)
}

// ListByOwner retrieves paginated definitions authored by ownerID.
func (s *QuestionnaireService) ListByOwner(ctx context.Context, ownerID, page, perPage int) ([]model.Questionnaire, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	items, total, err := s.questionnaires.ListQuestionnairesByOwner(ctx, ownerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if items == nil {
		items = []model.Questionnaire{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return items, pagination, nil
}

// Publish validates the definition, warms the Redis fast lane and flips the
// publish flag. Any validation violation refuses the publish.
func (s *QuestionnaireService) Publish(ctx context.Context, id uuid.UUID, ownerID int) error {
	q, err := s.questionnaires.GetQuestionnaire(ctx, id)
	if err != nil {
		return fmt.Errorf("get questionnaire: %w", err)
	}
	if q.OwnerID != ownerID {
		return ErrNotOwner
	}

	if violations := q.Validate(); len(violations) > 0 {
		return &DefinitionError{Violations: violations}
	}

	if err := s.WarmCache(ctx, q); err != nil {
		return err
	}

	if err := s.questionnaires.SetPublished(ctx, id, true); err != nil {
		return fmt.Errorf("set published: %w", err)
	}

	s.log.Info().
		Str("questionnaire_id", id.String()).
		Int("questions", len(q.Questions)).
		Msg("Questionnaire published")
	return nil
}

// WarmCache stores the student payload and the timing policy in Redis. The
// payload serves the take-questionnaire read, the policy serves the session
// layer's deadline checks. Redis is a convenience layer; every consumer
// falls back to PostgreSQL on a miss.
func (s *QuestionnaireService) WarmCache(ctx context.Context, q *model.Questionnaire) error {
	id := q.ID.String()

	payload, err := json.Marshal(q.Payload())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	policy, err := json.Marshal(q.Policy())
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuestionnairePayloadKey(id), payload, 0)
	pipe.Set(ctx, config.CacheKey.QuestionnairePolicyKey(id), policy, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm cache: %w", err)
	}
	return nil
}

// GetPayload returns the student-facing payload, preferring the cache.
func (s *QuestionnaireService) GetPayload(ctx context.Context, id uuid.UUID) (*model.QuestionnairePayload, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.QuestionnairePayloadKey(id.String())).Result()
	if err == nil {
		payload := &model.QuestionnairePayload{}
		if jsonErr := json.Unmarshal([]byte(raw), payload); jsonErr == nil {
			return payload, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Payload cache read failed, falling back to DB")
	}

	// Cache miss. Rebuild from the source of truth and self-heal.
	q, err := s.questionnaires.GetQuestionnaire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if !q.IsPublished {
		return nil, ErrNotPublished
	}
	if warmErr := s.WarmCache(ctx, q); warmErr != nil {
		s.log.Warn().Err(warmErr).Msg("Cache self-heal failed")
	}
	return q.Payload(), nil
}

// PrewarmAllCaches loads every published questionnaire into Redis. Called
// once at boot, before traffic, to avoid lazy-load stampedes.
func (s *QuestionnaireService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.questionnaires.ListPublishedQuestionnaireIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published: %w", err)
	}

	warmed := 0
	start := time.Now()
	for _, id := range ids {
		q, err := s.questionnaires.GetQuestionnaire(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("questionnaire_id", id.String()).Msg("Prewarm fetch failed")
			continue
		}
		if err := s.WarmCache(ctx, q); err != nil {
			s.log.Warn().Err(err).Str("questionnaire_id", id.String()).Msg("Prewarm failed")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Dur("elapsed", time.Since(start)).
		Msg("Questionnaire caches prewarmed")
	return nil
}
