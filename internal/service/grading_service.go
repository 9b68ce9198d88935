package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/grading"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

var (
	ErrNotSubmitted    = errors.New("attempt has not been submitted")
	ErrScoreOutOfRange = errors.New("score must be between 0 and 100")
)

// GradingSuggestion is the grader's starting point: the attempt, the full
// definition with correct answers, and the objective-part auto score.
type GradingSuggestion struct {
	Attempt        *model.Attempt             `json:"attempt"`
	Questions      []model.QuestionDefinition `json:"questions"`
	AutoRawScore   float64                    `json:"auto_raw_score"`
	AutoMaxScore   float64                    `json:"auto_max_score"`
	SuggestedPct   float64                    `json:"suggested_pct"`
	FullyObjective bool                       `json:"fully_objective"`
}

// GradingService handles the instructor's manual grading pass over
// submitted attempts with subjective questions.
type GradingService struct {
	attempts       store.AttemptStore
	questionnaires store.QuestionnaireStore
	rdb            *redis.Client
	log            zerolog.Logger
	now            func() time.Time
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	attempts store.AttemptStore,
	questionnaires store.QuestionnaireStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		attempts:       attempts,
		questionnaires: questionnaires,
		rdb:            rdb,
		log:            log.With().Str("component", "grading_service").Logger(),
		now:            time.Now,
	}
}

// loadForGrading fetches the attempt and its questionnaire, enforcing that
// the attempt is submitted and the caller owns the questionnaire.
func (s *GradingService) loadForGrading(ctx context.Context, attemptID uuid.UUID, instructorID int) (*model.Attempt, *model.Questionnaire, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.SubmittedAt == nil {
		return nil, nil, ErrNotSubmitted
	}
	q, err := s.questionnaires.GetQuestionnaire(ctx, attempt.QuestionnaireID)
	if err != nil {
		return nil, nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if q.OwnerID != instructorID {
		return nil, nil, ErrNotOwner
	}
	return attempt, q, nil
}

// Suggest returns the attempt alongside the auto-scored objective part so
// the grader reviews subjective answers against a pre-filled baseline.
func (s *GradingService) Suggest(ctx context.Context, attemptID uuid.UUID, instructorID int) (*GradingSuggestion, error) {
	attempt, q, err := s.loadForGrading(ctx, attemptID, instructorID)
	if err != nil {
		return nil, err
	}

	result := grading.AutoScore(q.Questions, attempt.Answers)
	return &GradingSuggestion{
		Attempt:        attempt,
		Questions:      q.Questions,
		AutoRawScore:   result.RawScore,
		AutoMaxScore:   result.MaxScore,
		SuggestedPct:   result.Percent(),
		FullyObjective: q.AutoGradableOnly(),
	}, nil
}

// Grade records the instructor's final score and feedback in one write.
// The score is an overall percentage the instructor is free to set; it
// overrides any synchronous auto score. Re-grading is allowed.
func (s *GradingService) Grade(ctx context.Context, attemptID uuid.UUID, instructorID int, req *model.GradeAttemptRequest) (*model.Attempt, error) {
	if req.Score < 0 || req.Score > 100 {
		return nil, ErrScoreOutOfRange
	}

	attempt, q, err := s.loadForGrading(ctx, attemptID, instructorID)
	if err != nil {
		return nil, err
	}

	params := store.GradeParams{
		Score:    req.Score,
		Feedback: req.Feedback,
		GradedBy: instructorID,
		GradedAt: s.now(),
	}
	if attempt.MaxScore == nil {
		// Older rows can predate the submit-time max score. Fill it here so
		// analytics never divides by a missing denominator.
		result := grading.AutoScore(q.Questions, attempt.Answers)
		params.MaxScore = &result.MaxScore
	}

	if err := s.attempts.GradeAttempt(ctx, attemptID, params); err != nil {
		return nil, fmt.Errorf("grade attempt: %w", err)
	}

	attempt.Score = &params.Score
	attempt.Feedback = params.Feedback
	attempt.GradedBy = &params.GradedBy
	attempt.GradedAt = &params.GradedAt
	attempt.IsGraded = true
	if params.MaxScore != nil {
		attempt.MaxScore = params.MaxScore
	}

	s.enqueueAnalyticsRefresh(ctx, attempt.QuestionnaireID)

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("graded_by", instructorID).
		Float64("score", req.Score).
		Msg("Attempt graded")
	return attempt, nil
}

// ListSubmissions returns every submitted attempt for a questionnaire the
// instructor owns, ungraded first so the manual queue surfaces naturally.
func (s *GradingService) ListSubmissions(ctx context.Context, questionnaireID uuid.UUID, instructorID int) ([]model.Attempt, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if q.OwnerID != instructorID {
		return nil, ErrNotOwner
	}

	attempts, err := s.attempts.ListAttemptsByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	submitted := make([]model.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.SubmittedAt == nil {
			continue
		}
		submitted = append(submitted, a)
	}
	// Stable partition: ungraded before graded, list order preserved inside
	// each group.
	ordered := make([]model.Attempt, 0, len(submitted))
	for _, a := range submitted {
		if !a.IsGraded {
			ordered = append(ordered, a)
		}
	}
	for _, a := range submitted {
		if a.IsGraded {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

func (s *GradingService) enqueueAnalyticsRefresh(ctx context.Context, questionnaireID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.AnalyticsRefreshQueue, questionnaireID.String()).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue analytics refresh")
	}
}
