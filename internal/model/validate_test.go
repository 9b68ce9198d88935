package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func validDefinition() *Questionnaire {
	return &Questionnaire{
		Title:               "Midterm Review",
		MaxAttempts:         1,
		TargetLearningPaths: []string{"backend"},
		Questions: []QuestionDefinition{
			{
				Type:     QuestionTypeMultipleChoice,
				Prompt:   "Pick one",
				Required: true,
				Points:   10,
				Options: []Option{
					{ID: "a", Text: "First", IsCorrect: true},
					{ID: "b", Text: "Second"},
				},
			},
		},
	}
}

func hasViolation(errs []ValidationError, field, fragment string) bool {
	for _, e := range errs {
		if e.Field == field && strings.Contains(e.Message, fragment) {
			return true
		}
	}
	return false
}

func TestValidDefinitionPasses(t *testing.T) {
	if errs := validDefinition().Validate(); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestTopLevelRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Questionnaire)
		field    string
		fragment string
	}{
		{"blank title", func(q *Questionnaire) { q.Title = "   " }, "title", "empty"},
		{"no questions", func(q *Questionnaire) { q.Questions = nil }, "questions", "at least one"},
		{"zero max attempts", func(q *Questionnaire) { q.MaxAttempts = 0 }, "max_attempts", "at least 1"},
		{"zero time limit", func(q *Questionnaire) { z := 0; q.TimeLimitMinutes = &z }, "time_limit_minutes", "positive"},
		{"no targeting", func(q *Questionnaire) { q.TargetLearningPaths = nil }, "targeting", "at least one"},
		{"both targeting modes", func(q *Questionnaire) { q.TargetStudentIDs = []int{1} }, "targeting", "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validDefinition()
			tt.mutate(q)
			errs := q.Validate()
			if !hasViolation(errs, tt.field, tt.fragment) {
				t.Fatalf("missing violation on %s (%q), got %v", tt.field, tt.fragment, errs)
			}
		})
	}
}

func TestChoiceQuestionRules(t *testing.T) {
	t.Run("too few options", func(t *testing.T) {
		q := validDefinition()
		q.Questions[0].Options = q.Questions[0].Options[:1]
		if !hasViolation(q.Validate(), "questions[0].options", "at least two") {
			t.Fatal("expected option-count violation")
		}
	})

	t.Run("blank option id", func(t *testing.T) {
		q := validDefinition()
		q.Questions[0].Options[1].ID = " "
		if !hasViolation(q.Validate(), "questions[0].options[1].id", "empty") {
			t.Fatal("expected blank-id violation")
		}
	})

	t.Run("duplicate option id", func(t *testing.T) {
		q := validDefinition()
		q.Questions[0].Options[1].ID = "a"
		if !hasViolation(q.Validate(), "questions[0].options[1].id", "duplicated") {
			t.Fatal("expected duplicate-id violation")
		}
	})

	t.Run("graded multiple choice needs exactly one correct", func(t *testing.T) {
		q := validDefinition()
		q.Questions[0].Options[0].IsCorrect = false
		if !hasViolation(q.Validate(), "questions[0].options", "exactly one correct") {
			t.Fatal("expected zero-correct violation")
		}

		q.Questions[0].Options[0].IsCorrect = true
		q.Questions[0].Options[1].IsCorrect = true
		if !hasViolation(q.Validate(), "questions[0].options", "exactly one correct") {
			t.Fatal("expected two-correct violation")
		}
	})

	t.Run("survey multiple choice allows no correct option", func(t *testing.T) {
		q := validDefinition()
		q.Questions[0].Points = 0
		q.Questions[0].Options[0].IsCorrect = false
		if errs := q.Validate(); len(errs) != 0 {
			t.Fatalf("expected no violations for zero-point question, got %v", errs)
		}
	})

	t.Run("checkbox allows several correct options", func(t *testing.T) {
		q := validDefinition()
		q.Questions[0].Type = QuestionTypeCheckbox
		q.Questions[0].Options[1].IsCorrect = true
		if errs := q.Validate(); len(errs) != 0 {
			t.Fatalf("expected no violations, got %v", errs)
		}
	})

	t.Run("scale bounds rejected on choice questions", func(t *testing.T) {
		q := validDefinition()
		one := 1
		q.Questions[0].MinValue = &one
		if !hasViolation(q.Validate(), "questions[0].min_value", "linear_scale") {
			t.Fatal("expected bounds violation")
		}
	})
}

func TestLinearScaleRules(t *testing.T) {
	scale := func(min, max *int) *Questionnaire {
		q := validDefinition()
		q.Questions[0] = QuestionDefinition{
			Type:     QuestionTypeLinearScale,
			Prompt:   "Rate the difficulty",
			Points:   0,
			MinValue: min,
			MaxValue: max,
		}
		return q
	}
	one, five := 1, 5

	if errs := scale(&one, &five).Validate(); len(errs) != 0 {
		t.Fatalf("expected valid scale, got %v", errs)
	}
	if !hasViolation(scale(nil, &five).Validate(), "questions[0].min_value", "need min_value") {
		t.Fatal("expected missing-bounds violation")
	}
	if !hasViolation(scale(&five, &one).Validate(), "questions[0].min_value", "less than") {
		t.Fatal("expected inverted-bounds violation")
	}
}

func TestTextQuestionRules(t *testing.T) {
	q := validDefinition()
	q.Questions[0] = QuestionDefinition{
		Type:    QuestionTypeShortAnswer,
		Prompt:  "Explain briefly",
		Points:  5,
		Options: []Option{{ID: "x", Text: "stray"}},
	}
	if !hasViolation(q.Validate(), "questions[0].options", "only valid on choice") {
		t.Fatal("expected stray-options violation")
	}

	q.Questions[0].Options = nil
	q.Questions[0].Type = "matrix"
	if !hasViolation(q.Validate(), "questions[0].type", "unknown question type") {
		t.Fatal("expected unknown-type violation")
	}
}

func TestValidateAnswers(t *testing.T) {
	checkboxID, essayID := uuid.New(), uuid.New()
	questions := []QuestionDefinition{
		{
			ID:   checkboxID,
			Type: QuestionTypeCheckbox,
			Options: []Option{
				{ID: "a", Text: "First"},
				{ID: "b", Text: "Second"},
			},
		},
		{ID: essayID, Type: QuestionTypeLongAnswer},
	}
	answer := func(qid uuid.UUID, v interface{}) AnswerMap {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return AnswerMap{qid.String(): raw}
	}

	if errs := ValidateAnswers(questions, answer(checkboxID, []string{"a", "b"})); len(errs) != 0 {
		t.Fatalf("valid checkbox answer rejected: %v", errs)
	}
	if errs := ValidateAnswers(questions, answer(checkboxID, []string{"a", "nope"})); len(errs) != 1 {
		t.Fatalf("unknown checkbox option: got %v", errs)
	}
	if errs := ValidateAnswers(questions, answer(checkboxID, "a")); len(errs) != 1 {
		t.Fatalf("scalar for checkbox: got %v", errs)
	}
	if errs := ValidateAnswers(questions, answer(essayID, 42)); len(errs) != 1 {
		t.Fatalf("number for text answer: got %v", errs)
	}
	if errs := ValidateAnswers(questions, answer(uuid.New(), "stray")); len(errs) != 1 {
		t.Fatalf("answer for unknown question: got %v", errs)
	}
	// Blank answers are skipped; required-ness is a submit concern.
	if errs := ValidateAnswers(questions, answer(essayID, "")); len(errs) != 0 {
		t.Fatalf("blank answer flagged: %v", errs)
	}
}

func TestNegativePointsAndBlankPrompt(t *testing.T) {
	q := validDefinition()
	q.Questions[0].Prompt = "  "
	q.Questions[0].Points = -1
	errs := q.Validate()
	if !hasViolation(errs, "questions[0].prompt", "empty") {
		t.Fatal("expected blank-prompt violation")
	}
	if !hasViolation(errs, "questions[0].points", "negative") {
		t.Fatal("expected negative-points violation")
	}
}
