package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/grading"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

// Domain errors for the attempt lifecycle.
var (
	ErrAttemptBudgetExhausted = errors.New("maximum number of attempts reached")
	ErrOverdue                = errors.New("due date has passed and late submission is not allowed")
	ErrNotEligible            = errors.New("student is not targeted by this questionnaire")
	ErrNotYourAttempt         = errors.New("attempt belongs to a different student")
	ErrRequiredUnanswered     = errors.New("required questions are unanswered")
)

// AnswerShapeError carries the per-answer violations that blocked a submit:
// unknown option ids, out-of-range scale values, wrong value types.
type AnswerShapeError struct {
	Violations []model.ValidationError
}

func (e *AnswerShapeError) Error() string {
	return fmt.Sprintf("%d answer(s) failed validation", len(e.Violations))
}

// SessionService governs one student's attempt at one questionnaire:
// start/resume, auto-save, the server-authoritative timer and submission.
// The Redis client is a convenience cache and may be nil (unit tests);
// PostgreSQL stays the source of truth for every decision.
type SessionService struct {
	attempts       store.AttemptStore
	questionnaires store.QuestionnaireStore
	directory      store.StudentDirectory
	rdb            *redis.Client
	log            zerolog.Logger

	// now is swappable so deadline behavior is testable.
	now func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	attempts store.AttemptStore,
	questionnaires store.QuestionnaireStore,
	directory store.StudentDirectory,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		attempts:       attempts,
		questionnaires: questionnaires,
		directory:      directory,
		rdb:            rdb,
		log:            log.With().Str("component", "session_service").Logger(),
		now:            time.Now,
	}
}

// eligible reports whether the student is targeted by the questionnaire.
func (s *SessionService) eligible(ctx context.Context, q *model.Questionnaire, studentID int) (bool, error) {
	for _, id := range q.TargetStudentIDs {
		if id == studentID {
			return true, nil
		}
	}
	if len(q.TargetStudentIDs) > 0 {
		return false, nil
	}
	if len(q.TargetLearningPaths) == 0 {
		return false, nil
	}
	student, err := s.directory.GetStudent(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("get student: %w", err)
	}
	for _, path := range q.TargetLearningPaths {
		if path == student.LearningPath {
			return true, nil
		}
	}
	return false, nil
}

// Start begins a new attempt or resumes the open one. Calling it twice
// without a submit in between returns the same attempt: resuming is the
// idempotency guarantee, never a duplicate.
func (s *SessionService) Start(ctx context.Context, questionnaireID uuid.UUID, studentID int) (*model.Attempt, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if !q.IsPublished {
		return nil, ErrNotPublished
	}

	ok, err := s.eligible(ctx, q, studentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEligible
	}

	// Resume an open attempt before anything else; an overdue questionnaire
	// never strands a student mid-attempt.
	existing, err := s.attempts.GetInProgressAttempt(ctx, questionnaireID, studentID)
	if err == nil {
		s.cacheStartTime(ctx, existing)
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check open attempt: %w", err)
	}

	if q.Overdue(s.now()) && !q.AllowLateSubmission {
		return nil, ErrOverdue
	}

	count, err := s.attempts.CountAttempts(ctx, questionnaireID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if count >= q.MaxAttempts {
		return nil, ErrAttemptBudgetExhausted
	}

	attempt := &model.Attempt{
		QuestionnaireID: questionnaireID,
		StudentID:       studentID,
		Answers:         model.AnswerMap{},
		StartedAt:       s.now(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, store.ErrConflictingAttempt) {
			// Lost a race with a concurrent start. Resume theirs.
			existing, fetchErr := s.attempts.GetInProgressAttempt(ctx, questionnaireID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			s.cacheStartTime(ctx, existing)
			return existing, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheStartTime(ctx, attempt)
	return attempt, nil
}

func (s *SessionService) cacheStartTime(ctx context.Context, a *model.Attempt) {
	if s.rdb == nil {
		return
	}
	key := config.CacheKey.AttemptStartKey(a.QuestionnaireID.String(), a.StudentID)
	if err := s.rdb.Set(ctx, key, a.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache attempt start time")
	}
}

// policy returns the questionnaire's timing policy, preferring the fast
// lane warmed at publish time, with a store fallback.
func (s *SessionService) policy(ctx context.Context, questionnaireID uuid.UUID) (*model.TimingPolicy, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, config.CacheKey.QuestionnairePolicyKey(questionnaireID.String())).Result()
		if err == nil {
			var p model.TimingPolicy
			if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr == nil {
				return &p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Policy cache read failed")
		}
	}
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	p := q.Policy()
	return &p, nil
}

// GetOwnedAttempt fetches an attempt after checking it belongs to the
// student.
func (s *SessionService) GetOwnedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotYourAttempt
	}
	return attempt, nil
}

// Result returns a submitted or graded attempt for its owner. Once the
// attempt is graded and the definition opts in with show_correct_answers,
// the correct options are returned alongside it.
func (s *SessionService) Result(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, map[string][]string, error) {
	attempt, err := s.GetOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if !attempt.IsGraded {
		return attempt, nil, nil
	}

	q, err := s.questionnaires.GetQuestionnaire(ctx, attempt.QuestionnaireID)
	if err != nil {
		return nil, nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if !q.ShowCorrectAnswers {
		return attempt, nil, nil
	}
	return attempt, q.CorrectAnswerKey(), nil
}

// RecordAnswer merges one answer into the attempt's map and persists the
// whole map immediately. Last writer wins; there is no delta log. Timer
// expiry is enforced here lazily: writes past the deadline are refused, and
// the client is expected to auto-submit instead.
func (s *SessionService) RecordAnswer(ctx context.Context, attemptID uuid.UUID, studentID int, questionID string, value []byte) (*model.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotYourAttempt
	}
	if attempt.SubmittedAt != nil {
		return nil, store.ErrAlreadySubmitted
	}

	p, err := s.policy(ctx, attempt.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	if deadline, ok := attempt.Deadline(p.TimeLimitMinutes); ok && s.now().After(deadline) {
		return nil, ErrOverdue
	}

	attempt.Answers[questionID] = value
	if err := s.attempts.UpsertAnswers(ctx, attemptID, attempt.Answers); err != nil {
		return nil, fmt.Errorf("persist answers: %w", err)
	}
	return attempt, nil
}

// TimeRemaining computes the advisory countdown in seconds from the
// server-side start time. Returns nil for untimed questionnaires; never
// negative.
func (s *SessionService) TimeRemaining(attempt *model.Attempt, limitMinutes *int) *float64 {
	deadline, ok := attempt.Deadline(limitMinutes)
	if !ok {
		return nil
	}
	remaining := deadline.Sub(s.now()).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// GetState returns the resume view after a reload: the persisted answer map
// and the authoritative remaining time. The start time is read from Redis
// when cached, with a self-healing PostgreSQL fallback.
func (s *SessionService) GetState(ctx context.Context, questionnaireID uuid.UUID, studentID int) (*model.AttemptStateView, error) {
	attempt, err := s.attempts.GetInProgressAttempt(ctx, questionnaireID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get open attempt: %w", err)
	}

	if s.rdb != nil {
		key := config.CacheKey.AttemptStartKey(questionnaireID.String(), studentID)
		val, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			if unix, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
				attempt.StartedAt = time.Unix(unix, 0)
			}
		case errors.Is(err, redis.Nil):
			// Evicted or legacy attempt. Self-heal from the DB value.
			s.cacheStartTime(ctx, attempt)
		default:
			s.log.Warn().Err(err).Msg("Start-time cache read failed")
		}
	}

	p, err := s.policy(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}

	return &model.AttemptStateView{
		AttemptID:        attempt.ID,
		QuestionnaireID:  attempt.QuestionnaireID,
		StudentID:        attempt.StudentID,
		AttemptNumber:    attempt.AttemptNumber,
		Answers:          attempt.Answers,
		RemainingSeconds: s.TimeRemaining(attempt, p.TimeLimitMinutes),
	}, nil
}

// Submit finalizes an attempt. The deadline is recomputed server-side from
// started_at; a client-reported countdown is never trusted. auto marks a
// timer-expiry submission and bypasses the required-question check.
// On failure the attempt stays in progress and the call is safe to retry.
func (s *SessionService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.SubmitAttemptRequest) (*model.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotYourAttempt
	}
	if attempt.SubmittedAt != nil {
		return nil, store.ErrAlreadySubmitted
	}

	q, err := s.questionnaires.GetQuestionnaire(ctx, attempt.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}

	// Fold the auto-save buffer in ahead of whatever came with the submit;
	// a WS-buffered answer must survive a submit over HTTP that races the
	// persistence worker. The request payload wins on overlap.
	buffered := s.bufferedAnswers(ctx, attempt.QuestionnaireID, studentID)
	attempt.Answers = mergeAnswers(attempt.Answers, buffered, req.Answers)

	if violations := model.ValidateAnswers(q.Questions, attempt.Answers); len(violations) > 0 {
		return nil, &AnswerShapeError{Violations: violations}
	}

	if !req.Auto {
		for i := range q.Questions {
			question := &q.Questions[i]
			if question.Required && attempt.Answers.Empty(question.ID.String()) {
				return nil, fmt.Errorf("%w: question %s", ErrRequiredUnanswered, question.ID)
			}
		}
	}

	now := s.now()
	late := false
	if deadline, ok := attempt.Deadline(q.TimeLimitMinutes); ok && now.After(deadline) {
		late = true
	}
	if q.Overdue(now) {
		late = true
	}
	if late && !q.AllowLateSubmission {
		return nil, ErrOverdue
	}

	result := grading.AutoScore(q.Questions, attempt.Answers)
	maxScore := result.MaxScore

	params := store.SubmitParams{
		SubmittedAt:      now,
		TimeSpentSeconds: int(now.Sub(attempt.StartedAt).Seconds()),
		Late:             late,
		Answers:          attempt.Answers,
		MaxScore:         &maxScore,
	}
	// Fully objective definitions are graded synchronously; anything with a
	// graded subjective question waits for the manual pass.
	if q.AutoGradableOnly() {
		percent := result.Percent()
		params.Score = &percent
		params.IsGraded = true
	}

	if err := s.attempts.SubmitAttempt(ctx, attemptID, params); err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	attempt.SubmittedAt = &params.SubmittedAt
	attempt.TimeSpentSeconds = &params.TimeSpentSeconds
	attempt.Late = late
	attempt.MaxScore = params.MaxScore
	attempt.Score = params.Score
	attempt.IsGraded = params.IsGraded

	s.clearAttemptCache(ctx, attempt)
	s.enqueueAnalyticsRefresh(ctx, attempt.QuestionnaireID)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("student_id", studentID).
		Bool("auto", req.Auto).
		Bool("late", late).
		Bool("graded", attempt.IsGraded).
		Msg("Attempt submitted")
	return attempt, nil
}

// mergeAnswers overlays the maps left to right; later sources win.
func mergeAnswers(base model.AnswerMap, overlays ...model.AnswerMap) model.AnswerMap {
	if base == nil {
		base = model.AnswerMap{}
	}
	for _, overlay := range overlays {
		for qid, v := range overlay {
			base[qid] = v
		}
	}
	return base
}

// bufferedAnswers reads the WS auto-save buffer, if any.
func (s *SessionService) bufferedAnswers(ctx context.Context, questionnaireID uuid.UUID, studentID int) model.AnswerMap {
	if s.rdb == nil {
		return nil
	}
	key := config.CacheKey.AttemptAnswersKey(questionnaireID.String(), studentID)
	buffered, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Answer buffer read failed")
		return nil
	}
	out := make(model.AnswerMap, len(buffered))
	for qid, raw := range buffered {
		out[qid] = json.RawMessage(raw)
	}
	return out
}

func (s *SessionService) clearAttemptCache(ctx context.Context, a *model.Attempt) {
	if s.rdb == nil {
		return
	}
	qid := a.QuestionnaireID.String()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(qid, a.StudentID))
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(qid, a.StudentID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear attempt cache")
	}
}

func (s *SessionService) enqueueAnalyticsRefresh(ctx context.Context, questionnaireID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.AnalyticsRefreshQueue, questionnaireID.String()).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue analytics refresh")
	}
}

// ListForStudent returns the published questionnaires targeting the
// student, with the student's attempt history overlaid.
type StudentQuestionnaire struct {
	Questionnaire model.Questionnaire `json:"questionnaire"`
	Attempts      []model.Attempt     `json:"attempts"`
	AttemptsLeft  int                 `json:"attempts_left"`
	InProgress    bool                `json:"in_progress"`
}

// ListForStudent builds the student's questionnaire list.
func (s *SessionService) ListForStudent(ctx context.Context, studentID int) ([]StudentQuestionnaire, error) {
	ids, err := s.questionnaires.ListPublishedQuestionnaireIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	attempts, err := s.attempts.ListAttemptsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	byQuestionnaire := make(map[uuid.UUID][]model.Attempt)
	for _, a := range attempts {
		byQuestionnaire[a.QuestionnaireID] = append(byQuestionnaire[a.QuestionnaireID], a)
	}

	var out []StudentQuestionnaire
	for _, id := range ids {
		q, err := s.questionnaires.GetQuestionnaire(ctx, id)
		if err != nil {
			continue // Skip if the definition was deleted meanwhile
		}
		ok, err := s.eligible(ctx, q, studentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		entry := StudentQuestionnaire{
			Questionnaire: *q,
			Attempts:      byQuestionnaire[id],
			AttemptsLeft:  q.MaxAttempts - len(byQuestionnaire[id]),
		}
		if entry.Attempts == nil {
			entry.Attempts = []model.Attempt{}
		}
		for i := range entry.Attempts {
			if entry.Attempts[i].SubmittedAt == nil {
				entry.InProgress = true
			}
		}
		if entry.AttemptsLeft < 0 {
			entry.AttemptsLeft = 0
		}
		out = append(out, entry)
	}
	return out, nil
}
