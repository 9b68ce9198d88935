package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store/memory"
)

const instructorID = 42

func newGradingFixture(t *testing.T) (*SessionService, *GradingService, *model.Questionnaire, uuid.UUID, uuid.UUID) {
	t.Helper()
	sessions, st := newSessionFixture(t)
	essayID := uuid.New()
	q, mcID := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.OwnerID = instructorID
		q.Questions = append(q.Questions, model.QuestionDefinition{
			ID:     essayID,
			Type:   model.QuestionTypeLongAnswer,
			Prompt: "explain",
			Points: 10,
		})
	})

	grading := NewGradingService(st, st, nil, zerolog.Nop())
	grading.now = func() time.Time { return baseTime.Add(time.Hour) }
	return sessions, grading, q, mcID, essayID
}

func submitMixedAttempt(t *testing.T, sessions *SessionService, q *model.Questionnaire, mcID, essayID uuid.UUID) *model.Attempt {
	t.Helper()
	ctx := context.Background()
	attempt, err := sessions.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	submitted, err := sessions.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{
			mcID.String():    rawJSON(t, "B"),
			essayID.String(): rawJSON(t, "a thorough explanation"),
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return submitted
}

func TestSuggestPrefillsObjectiveScore(t *testing.T) {
	sessions, grading, q, mcID, essayID := newGradingFixture(t)
	attempt := submitMixedAttempt(t, sessions, q, mcID, essayID)

	suggestion, err := grading.Suggest(context.Background(), attempt.ID, instructorID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if suggestion.AutoRawScore != 10 || suggestion.AutoMaxScore != 20 {
		t.Fatalf("auto score = %v/%v, want 10/20", suggestion.AutoRawScore, suggestion.AutoMaxScore)
	}
	if suggestion.SuggestedPct != 50 {
		t.Fatalf("suggested pct = %v, want 50", suggestion.SuggestedPct)
	}
	if suggestion.FullyObjective {
		t.Fatal("mixed definition reported fully objective")
	}
	// The grader view carries the correct-answer markers.
	if len(suggestion.Questions[0].CorrectOptionIDs()) == 0 {
		t.Fatal("correct options stripped from grader view")
	}
}

func TestSuggestRejectsInProgressAttempt(t *testing.T) {
	sessions, grading, q, _, _ := newGradingFixture(t)
	attempt, err := sessions.Start(context.Background(), q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = grading.Suggest(context.Background(), attempt.ID, instructorID)
	if !errors.Is(err, ErrNotSubmitted) {
		t.Fatalf("err = %v, want ErrNotSubmitted", err)
	}
}

func TestGradeRecordsScoreAndAudit(t *testing.T) {
	sessions, grading, q, mcID, essayID := newGradingFixture(t)
	attempt := submitMixedAttempt(t, sessions, q, mcID, essayID)

	graded, err := grading.Grade(context.Background(), attempt.ID, instructorID, &model.GradeAttemptRequest{
		Score:    85,
		Feedback: "solid reasoning",
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}

	if graded.State() != model.AttemptStateGraded {
		t.Fatalf("state = %s, want GRADED", graded.State())
	}
	if graded.Score == nil || *graded.Score != 85 {
		t.Fatalf("score = %v, want 85", graded.Score)
	}
	if graded.GradedBy == nil || *graded.GradedBy != instructorID {
		t.Fatalf("graded_by = %v, want %d", graded.GradedBy, instructorID)
	}
	if graded.Feedback != "solid reasoning" {
		t.Fatalf("feedback = %q", graded.Feedback)
	}
}

func TestGradeValidatesScoreRange(t *testing.T) {
	sessions, grading, q, mcID, essayID := newGradingFixture(t)
	attempt := submitMixedAttempt(t, sessions, q, mcID, essayID)

	for _, score := range []float64{-1, 100.5} {
		_, err := grading.Grade(context.Background(), attempt.ID, instructorID, &model.GradeAttemptRequest{Score: score})
		if !errors.Is(err, ErrScoreOutOfRange) {
			t.Fatalf("score %v: err = %v, want ErrScoreOutOfRange", score, err)
		}
	}
}

func TestGradeRejectsNonOwner(t *testing.T) {
	sessions, grading, q, mcID, essayID := newGradingFixture(t)
	attempt := submitMixedAttempt(t, sessions, q, mcID, essayID)

	_, err := grading.Grade(context.Background(), attempt.ID, instructorID+1, &model.GradeAttemptRequest{Score: 50})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestRegradeOverwrites(t *testing.T) {
	sessions, grading, q, mcID, essayID := newGradingFixture(t)
	attempt := submitMixedAttempt(t, sessions, q, mcID, essayID)
	ctx := context.Background()

	if _, err := grading.Grade(ctx, attempt.ID, instructorID, &model.GradeAttemptRequest{Score: 60}); err != nil {
		t.Fatalf("first grade: %v", err)
	}
	regraded, err := grading.Grade(ctx, attempt.ID, instructorID, &model.GradeAttemptRequest{Score: 70, Feedback: "revised"})
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if regraded.Score == nil || *regraded.Score != 70 {
		t.Fatalf("score = %v, want 70", regraded.Score)
	}
}

func TestListSubmissionsOrdersUngradedFirst(t *testing.T) {
	sessions, grading, q, mcID, essayID := newGradingFixture(t)
	st := sessions.attempts.(*memory.Store)
	st.AddStudent(&model.Student{ID: 3, Name: "Grace Hopper", Email: "grace@example.com", LearningPath: "backend"})
	ctx := context.Background()

	first := submitMixedAttempt(t, sessions, q, mcID, essayID)
	if _, err := grading.Grade(ctx, first.ID, instructorID, &model.GradeAttemptRequest{Score: 90}); err != nil {
		t.Fatalf("grade first: %v", err)
	}

	second, err := sessions.Start(ctx, q.ID, 3)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if _, err := sessions.Submit(ctx, second.ID, 3, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{
			mcID.String():    rawJSON(t, "A"),
			essayID.String(): rawJSON(t, "another take"),
		},
	}); err != nil {
		t.Fatalf("submit second: %v", err)
	}

	listed, err := grading.ListSubmissions(ctx, q.ID, instructorID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d attempts, want 2", len(listed))
	}
	if listed[0].IsGraded || !listed[1].IsGraded {
		t.Fatal("ungraded attempt should come first")
	}
}
