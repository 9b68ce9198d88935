package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

func TestOneOpenAttemptPerPair(t *testing.T) {
	ctx := context.Background()
	st := New()
	qid := uuid.New()

	first := &model.Attempt{QuestionnaireID: qid, StudentID: 1, StartedAt: time.Now()}
	if err := st.CreateAttempt(ctx, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := &model.Attempt{QuestionnaireID: qid, StudentID: 1, StartedAt: time.Now()}
	if err := st.CreateAttempt(ctx, second); !errors.Is(err, store.ErrConflictingAttempt) {
		t.Fatalf("err = %v, want ErrConflictingAttempt while an attempt is open", err)
	}

	// A different student or questionnaire is unaffected.
	if err := st.CreateAttempt(ctx, &model.Attempt{QuestionnaireID: qid, StudentID: 2, StartedAt: time.Now()}); err != nil {
		t.Fatalf("other student: %v", err)
	}
	if err := st.CreateAttempt(ctx, &model.Attempt{QuestionnaireID: uuid.New(), StudentID: 1, StartedAt: time.Now()}); err != nil {
		t.Fatalf("other questionnaire: %v", err)
	}
}

func TestAttemptNumbersAreGapless(t *testing.T) {
	ctx := context.Background()
	st := New()
	qid := uuid.New()

	for want := 1; want <= 3; want++ {
		a := &model.Attempt{QuestionnaireID: qid, StudentID: 1, StartedAt: time.Now()}
		if err := st.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("create %d: %v", want, err)
		}
		if a.AttemptNumber != want {
			t.Fatalf("attempt number = %d, want %d", a.AttemptNumber, want)
		}
		if err := st.SubmitAttempt(ctx, a.ID, store.SubmitParams{
			Answers:     model.AnswerMap{},
			SubmittedAt: time.Now(),
		}); err != nil {
			t.Fatalf("submit %d: %v", want, err)
		}
	}

	n, err := st.CountAttempts(ctx, qid, 1)
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v; want 3", n, err)
	}
}

func TestSubmitIsFinal(t *testing.T) {
	ctx := context.Background()
	st := New()
	a := &model.Attempt{QuestionnaireID: uuid.New(), StudentID: 1, StartedAt: time.Now()}
	if err := st.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SubmitAttempt(ctx, a.ID, store.SubmitParams{Answers: model.AnswerMap{}, SubmittedAt: time.Now()}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := st.SubmitAttempt(ctx, a.ID, store.SubmitParams{Answers: model.AnswerMap{}, SubmittedAt: time.Now()}); !errors.Is(err, store.ErrAlreadySubmitted) {
		t.Fatalf("resubmit err = %v, want ErrAlreadySubmitted", err)
	}
	if err := st.UpsertAnswers(ctx, a.ID, model.AnswerMap{"q": []byte(`"x"`)}); !errors.Is(err, store.ErrAlreadySubmitted) {
		t.Fatalf("upsert err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestGradeRequiresSubmission(t *testing.T) {
	ctx := context.Background()
	st := New()
	a := &model.Attempt{QuestionnaireID: uuid.New(), StudentID: 1, StartedAt: time.Now()}
	if err := st.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := st.GradeAttempt(ctx, a.ID, store.GradeParams{Score: 80, GradedBy: 7, GradedAt: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("grade in-progress err = %v, want ErrNotFound", err)
	}

	if err := st.SubmitAttempt(ctx, a.ID, store.SubmitParams{Answers: model.AnswerMap{}, SubmittedAt: time.Now()}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := st.GradeAttempt(ctx, a.ID, store.GradeParams{Score: 80, Feedback: "solid", GradedBy: 7, GradedAt: time.Now()}); err != nil {
		t.Fatalf("grade: %v", err)
	}

	got, err := st.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsGraded || got.Score == nil || *got.Score != 80 || got.Feedback != "solid" {
		t.Fatalf("graded attempt = %+v", got)
	}
}

func TestStoredAttemptsAreIsolatedFromCallers(t *testing.T) {
	ctx := context.Background()
	st := New()
	a := &model.Attempt{QuestionnaireID: uuid.New(), StudentID: 1, StartedAt: time.Now()}
	if err := st.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := st.GetAttempt(ctx, a.ID)
	got.Answers["q"] = []byte(`"mutated"`)

	again, _ := st.GetAttempt(ctx, a.ID)
	if _, leaked := again.Answers["q"]; leaked {
		t.Fatal("caller mutation leaked into the store")
	}
}
