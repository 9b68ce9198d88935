package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
	"github.com/courseloop/assessment-backend/internal/store/memory"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newSessionFixture(t *testing.T) (*SessionService, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.AddStudent(&model.Student{ID: 1, Name: "Ada Lovelace", Email: "ada@example.com", LearningPath: "backend"})
	st.AddStudent(&model.Student{ID: 2, Name: "Alan Turing", Email: "alan@example.com", LearningPath: "frontend"})

	svc := NewSessionService(st, st, st, nil, zerolog.Nop())
	svc.now = func() time.Time { return baseTime }
	return svc, st
}

func objectiveQuestionnaire(t *testing.T, st *memory.Store, mutate func(*model.Questionnaire)) (*model.Questionnaire, uuid.UUID) {
	t.Helper()
	qid := uuid.New()
	q := &model.Questionnaire{
		ID:    uuid.New(),
		Title: "Go fundamentals",
		Questions: []model.QuestionDefinition{
			{
				ID:       qid,
				Type:     model.QuestionTypeMultipleChoice,
				Prompt:   "pick one",
				Required: true,
				Points:   10,
				Options: []model.Option{
					{ID: "A", Text: "a"},
					{ID: "B", Text: "b", IsCorrect: true},
				},
			},
		},
		TargetLearningPaths: []string{"backend"},
		MaxAttempts:         2,
		IsPublished:         true,
	}
	if mutate != nil {
		mutate(q)
	}
	if err := st.CreateQuestionnaire(context.Background(), q); err != nil {
		t.Fatalf("seed questionnaire: %v", err)
	}
	return q, qid
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}
	return raw
}

func TestStartIsIdempotentWhileInProgress(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, _ := objectiveQuestionnaire(t, st, nil)
	ctx := context.Background()

	first, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.AttemptNumber != 1 {
		t.Fatalf("attempt number = %d, want 1", first.AttemptNumber)
	}

	second, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second start created a new attempt: %s != %s", second.ID, first.ID)
	}
}

func TestStartRejectsIneligibleStudent(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, _ := objectiveQuestionnaire(t, st, nil)

	_, err := svc.Start(context.Background(), q.ID, 2)
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible", err)
	}
}

func TestStartRejectsUnpublished(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, _ := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.IsPublished = false
	})

	_, err := svc.Start(context.Background(), q.ID, 1)
	if !errors.Is(err, ErrNotPublished) {
		t.Fatalf("err = %v, want ErrNotPublished", err)
	}
}

// A student on their last allowed attempt gets a budget error on the next
// start, not a silent extra attempt.
func TestStartEnforcesAttemptBudget(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, qid := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.MaxAttempts = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		attempt, err := svc.Start(ctx, q.ID, 1)
		if err != nil {
			t.Fatalf("start %d: %v", i+1, err)
		}
		_, err = svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
			Answers: model.AnswerMap{qid.String(): rawJSON(t, "B")},
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	_, err := svc.Start(ctx, q.ID, 1)
	if !errors.Is(err, ErrAttemptBudgetExhausted) {
		t.Fatalf("err = %v, want ErrAttemptBudgetExhausted", err)
	}
}

func TestStartAfterDueDate(t *testing.T) {
	svc, st := newSessionFixture(t)
	past := baseTime.Add(-24 * time.Hour)
	strict, _ := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.DueDate = &past
	})
	lenient, _ := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.DueDate = &past
		q.AllowLateSubmission = true
	})
	ctx := context.Background()

	if _, err := svc.Start(ctx, strict.ID, 1); !errors.Is(err, ErrOverdue) {
		t.Fatalf("strict: err = %v, want ErrOverdue", err)
	}
	if _, err := svc.Start(ctx, lenient.ID, 1); err != nil {
		t.Fatalf("lenient: %v", err)
	}
}

func TestRecordAnswerRoundTrip(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, qid := objectiveQuestionnaire(t, st, nil)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.RecordAnswer(ctx, attempt.ID, 1, qid.String(), rawJSON(t, "A")); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Overwrite; last writer wins.
	if _, err := svc.RecordAnswer(ctx, attempt.ID, 1, qid.String(), rawJSON(t, "B")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	state, err := svc.GetState(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	got, ok := state.Answers.OptionID(qid.String())
	if !ok || got != "B" {
		t.Fatalf("persisted answer = %q ok=%v, want B", got, ok)
	}
}

func TestRecordAnswerOwnership(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, qid := objectiveQuestionnaire(t, st, nil)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = svc.RecordAnswer(ctx, attempt.ID, 2, qid.String(), rawJSON(t, "B"))
	if !errors.Is(err, ErrNotYourAttempt) {
		t.Fatalf("err = %v, want ErrNotYourAttempt", err)
	}
}

func TestSubmitGradesObjectiveSynchronously(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, qid := objectiveQuestionnaire(t, st, nil)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	submitted, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{qid.String(): rawJSON(t, "B")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if submitted.State() != model.AttemptStateGraded {
		t.Fatalf("state = %s, want GRADED", submitted.State())
	}
	if submitted.Score == nil || *submitted.Score != 100 {
		t.Fatalf("score = %v, want 100", submitted.Score)
	}
	if submitted.Late {
		t.Fatal("on-time submit flagged late")
	}
}

// A definition with a graded subjective question stays SUBMITTED until the
// manual pass, but the max score is still recorded at submit time.
func TestSubmitDefersMixedGrading(t *testing.T) {
	svc, st := newSessionFixture(t)
	essayID := uuid.New()
	q, qid := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.Questions = append(q.Questions, model.QuestionDefinition{
			ID:     essayID,
			Type:   model.QuestionTypeLongAnswer,
			Prompt: "explain your reasoning",
			Points: 10,
		})
	})
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	submitted, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{
			qid.String():     rawJSON(t, "B"),
			essayID.String(): rawJSON(t, "because"),
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if submitted.State() != model.AttemptStateSubmitted {
		t.Fatalf("state = %s, want SUBMITTED", submitted.State())
	}
	if submitted.Score != nil {
		t.Fatalf("score = %v, want nil until manual grading", *submitted.Score)
	}
	if submitted.MaxScore == nil || *submitted.MaxScore != 20 {
		t.Fatalf("max score = %v, want 20", submitted.MaxScore)
	}
}

func TestSubmitRequiresAnswersUnlessAuto(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, _ := objectiveQuestionnaire(t, st, nil)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{})
	if !errors.Is(err, ErrRequiredUnanswered) {
		t.Fatalf("err = %v, want ErrRequiredUnanswered", err)
	}

	// Timer expiry submits whatever is there.
	submitted, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{Auto: true})
	if err != nil {
		t.Fatalf("auto submit: %v", err)
	}
	if submitted.Score == nil || *submitted.Score != 0 {
		t.Fatalf("score = %v, want 0 for blank auto submit", submitted.Score)
	}
}

func TestSubmitPastDeadline(t *testing.T) {
	svc, st := newSessionFixture(t)
	limit := 30
	strict, sq := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.TimeLimitMinutes = &limit
	})
	lenient, lq := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.TimeLimitMinutes = &limit
		q.AllowLateSubmission = true
	})
	ctx := context.Background()

	strictAttempt, err := svc.Start(ctx, strict.ID, 1)
	if err != nil {
		t.Fatalf("start strict: %v", err)
	}
	lenientAttempt, err := svc.Start(ctx, lenient.ID, 1)
	if err != nil {
		t.Fatalf("start lenient: %v", err)
	}

	// Jump the clock past the computed deadline.
	svc.now = func() time.Time { return baseTime.Add(45 * time.Minute) }

	_, err = svc.Submit(ctx, strictAttempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{sq.String(): rawJSON(t, "B")},
	})
	if !errors.Is(err, ErrOverdue) {
		t.Fatalf("strict: err = %v, want ErrOverdue", err)
	}

	submitted, err := svc.Submit(ctx, lenientAttempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{lq.String(): rawJSON(t, "B")},
	})
	if err != nil {
		t.Fatalf("lenient: %v", err)
	}
	if !submitted.Late {
		t.Fatal("late submit not flagged")
	}
	if submitted.TimeSpentSeconds == nil || *submitted.TimeSpentSeconds != 45*60 {
		t.Fatalf("time spent = %v, want %d", submitted.TimeSpentSeconds, 45*60)
	}
}

// Submitted values must match their question's shape: option ids must
// exist, rating and scale values must sit inside their bounds. A bad
// answer blocks the submit and the attempt stays open for correction.
func TestSubmitRejectsMalformedAnswers(t *testing.T) {
	svc, st := newSessionFixture(t)
	ratingID, scaleID := uuid.New(), uuid.New()
	one, five := 1, 5
	q, mcID := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.Questions = append(q.Questions,
			model.QuestionDefinition{
				ID: ratingID, Type: model.QuestionTypeRating, Prompt: "rate it",
			},
			model.QuestionDefinition{
				ID: scaleID, Type: model.QuestionTypeLinearScale, Prompt: "how hard",
				MinValue: &one, MaxValue: &five,
			},
		)
	})
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	bad := []model.AnswerMap{
		// unknown option, rating out of range, past scale max, array where
		// a single option id is expected
		{mcID.String(): rawJSON(t, "Z")},
		{mcID.String(): rawJSON(t, "B"), ratingID.String(): rawJSON(t, 7)},
		{mcID.String(): rawJSON(t, "B"), scaleID.String(): rawJSON(t, 9)},
		{mcID.String(): rawJSON(t, []string{"B"})},
	}
	for i, answers := range bad {
		_, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{Answers: answers})
		var shapeErr *AnswerShapeError
		if !errors.As(err, &shapeErr) {
			t.Fatalf("case %d: err = %v, want AnswerShapeError", i, err)
		}
		if len(shapeErr.Violations) == 0 {
			t.Fatalf("case %d: no violations reported", i)
		}
	}

	// The corrected submit still goes through.
	if _, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{
			mcID.String():     rawJSON(t, "B"),
			ratingID.String(): rawJSON(t, 4),
			scaleID.String():  rawJSON(t, 3),
		},
	}); err != nil {
		t.Fatalf("corrected submit: %v", err)
	}
}

// Timer expiry is enforced lazily on the next write: recording past the
// deadline is refused so a stalled client cannot keep extending its work.
func TestRecordAnswerRejectedAfterExpiry(t *testing.T) {
	svc, st := newSessionFixture(t)
	limit := 30
	q, qid := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.TimeLimitMinutes = &limit
	})
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.RecordAnswer(ctx, attempt.ID, 1, qid.String(), rawJSON(t, "B")); err != nil {
		t.Fatalf("record within limit: %v", err)
	}

	svc.now = func() time.Time { return baseTime.Add(45 * time.Minute) }
	_, err = svc.RecordAnswer(ctx, attempt.ID, 1, qid.String(), rawJSON(t, "A"))
	if !errors.Is(err, ErrOverdue) {
		t.Fatalf("err = %v, want ErrOverdue past the time limit", err)
	}
}

func TestResultRevealsCorrectAnswersWhenEnabled(t *testing.T) {
	svc, st := newSessionFixture(t)
	ctx := context.Background()

	reveal, revealQID := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.ShowCorrectAnswers = true
	})
	hidden, hiddenQID := objectiveQuestionnaire(t, st, nil)

	submitGraded := func(q *model.Questionnaire, qid uuid.UUID) *model.Attempt {
		attempt, err := svc.Start(ctx, q.ID, 1)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		submitted, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
			Answers: model.AnswerMap{qid.String(): rawJSON(t, "B")},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return submitted
	}

	revealed := submitGraded(reveal, revealQID)
	_, key, err := svc.Result(ctx, revealed.ID, 1)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got := key[revealQID.String()]; len(got) != 1 || got[0] != "B" {
		t.Fatalf("correct answers = %v, want [B]", got)
	}

	// Opted out: graded, but the key stays hidden.
	concealed := submitGraded(hidden, hiddenQID)
	_, key, err = svc.Result(ctx, concealed.ID, 1)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if key != nil {
		t.Fatalf("correct answers = %v, want nil when show_correct_answers is off", key)
	}
}

// An ungraded attempt never reveals the key, even when the definition opts
// in; reveal waits for the graded state.
func TestResultWithholdsAnswersUntilGraded(t *testing.T) {
	svc, st := newSessionFixture(t)
	essayID := uuid.New()
	q, qid := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.ShowCorrectAnswers = true
		q.Questions = append(q.Questions, model.QuestionDefinition{
			ID:     essayID,
			Type:   model.QuestionTypeLongAnswer,
			Prompt: "explain",
			Points: 10,
		})
	})
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	submitted, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{
			qid.String():     rawJSON(t, "B"),
			essayID.String(): rawJSON(t, "because"),
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, key, err := svc.Result(ctx, submitted.ID, 1)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if key != nil {
		t.Fatalf("correct answers = %v, want nil before the manual grade", key)
	}
}

// Submit folds three answer sources; the explicit payload beats the
// auto-save buffer, which beats what was already persisted.
func TestMergeAnswersPrecedence(t *testing.T) {
	persisted := model.AnswerMap{"q1": rawJSON(t, "old"), "q2": rawJSON(t, "old")}
	buffered := model.AnswerMap{"q2": rawJSON(t, "buffered"), "q3": rawJSON(t, "buffered")}
	request := model.AnswerMap{"q3": rawJSON(t, "request")}

	merged := mergeAnswers(persisted, buffered, request)

	want := map[string]string{"q1": "old", "q2": "buffered", "q3": "request"}
	for qid, expected := range want {
		got, ok := merged.Text(qid)
		if !ok || got != expected {
			t.Fatalf("%s = %q ok=%v, want %q", qid, got, ok, expected)
		}
	}
}

func TestSubmitTwiceFails(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, qid := objectiveQuestionnaire(t, st, nil)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{qid.String(): rawJSON(t, "B")},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{Auto: true})
	if !errors.Is(err, store.ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestTimeRemaining(t *testing.T) {
	svc, st := newSessionFixture(t)
	limit := 30
	q, _ := objectiveQuestionnaire(t, st, func(q *model.Questionnaire) {
		q.TimeLimitMinutes = &limit
	})
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.now = func() time.Time { return baseTime.Add(10 * time.Minute) }
	remaining := svc.TimeRemaining(attempt, q.TimeLimitMinutes)
	if remaining == nil || *remaining != float64(20*60) {
		t.Fatalf("remaining = %v, want 1200", remaining)
	}

	svc.now = func() time.Time { return baseTime.Add(2 * time.Hour) }
	remaining = svc.TimeRemaining(attempt, q.TimeLimitMinutes)
	if remaining == nil || *remaining != 0 {
		t.Fatalf("remaining after expiry = %v, want 0", remaining)
	}

	if got := svc.TimeRemaining(attempt, nil); got != nil {
		t.Fatalf("untimed remaining = %v, want nil", *got)
	}
}

func TestListForStudent(t *testing.T) {
	svc, st := newSessionFixture(t)
	q, qid := objectiveQuestionnaire(t, st, nil)
	objectiveQuestionnaire(t, st, func(other *model.Questionnaire) {
		other.TargetLearningPaths = []string{"frontend"}
	})
	ctx := context.Background()

	attempt, err := svc.Start(ctx, q.ID, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	listed, err := svc.ListForStudent(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d questionnaires, want 1", len(listed))
	}
	if !listed[0].InProgress {
		t.Fatal("open attempt not reflected")
	}
	if listed[0].AttemptsLeft != 1 {
		t.Fatalf("attempts left = %d, want 1", listed[0].AttemptsLeft)
	}

	if _, err := svc.Submit(ctx, attempt.ID, 1, &model.SubmitAttemptRequest{
		Answers: model.AnswerMap{qid.String(): rawJSON(t, "B")},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	listed, err = svc.ListForStudent(ctx, 1)
	if err != nil {
		t.Fatalf("list after submit: %v", err)
	}
	if listed[0].InProgress {
		t.Fatal("submitted attempt still marked in progress")
	}
}
