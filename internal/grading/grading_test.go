package grading

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/courseloop/assessment-backend/internal/model"
)

func mcQuestion(id uuid.UUID, points float64, correct string) model.QuestionDefinition {
	return model.QuestionDefinition{
		ID:     id,
		Type:   model.QuestionTypeMultipleChoice,
		Prompt: "pick one",
		Points: points,
		Options: []model.Option{
			{ID: "A", Text: "a", IsCorrect: correct == "A"},
			{ID: "B", Text: "b", IsCorrect: correct == "B"},
			{ID: "C", Text: "c", IsCorrect: correct == "C"},
		},
	}
}

func checkboxQuestion(id uuid.UUID, points float64, correct ...string) model.QuestionDefinition {
	isCorrect := make(map[string]bool, len(correct))
	for _, c := range correct {
		isCorrect[c] = true
	}
	return model.QuestionDefinition{
		ID:     id,
		Type:   model.QuestionTypeCheckbox,
		Prompt: "pick all that apply",
		Points: points,
		Options: []model.Option{
			{ID: "A", Text: "a", IsCorrect: isCorrect["A"]},
			{ID: "B", Text: "b", IsCorrect: isCorrect["B"]},
			{ID: "C", Text: "c", IsCorrect: isCorrect["C"]},
		},
	}
}

func answer(qid uuid.UUID, v interface{}) model.AnswerMap {
	raw, _ := json.Marshal(v)
	return model.AnswerMap{qid.String(): raw}
}

func TestAutoScoreMultipleChoice(t *testing.T) {
	qid := uuid.New()
	questions := []model.QuestionDefinition{mcQuestion(qid, 10, "B")}

	res := AutoScore(questions, answer(qid, "B"))
	if res.RawScore != 10 || res.MaxScore != 10 {
		t.Fatalf("correct answer: got raw=%v max=%v, want 10/10", res.RawScore, res.MaxScore)
	}
	if res.Percent() != 100 {
		t.Fatalf("percent = %v, want 100", res.Percent())
	}

	res = AutoScore(questions, answer(qid, "A"))
	if res.RawScore != 0 || res.MaxScore != 10 {
		t.Fatalf("wrong answer: got raw=%v max=%v, want 0/10", res.RawScore, res.MaxScore)
	}
}

func TestAutoScoreCheckboxExactSetOnly(t *testing.T) {
	qid := uuid.New()
	questions := []model.QuestionDefinition{checkboxQuestion(qid, 10, "A", "C")}

	cases := []struct {
		name   string
		picked []string
		want   float64
	}{
		{"exact match", []string{"A", "C"}, 10},
		{"exact match reordered", []string{"C", "A"}, 10},
		{"partial selection", []string{"A"}, 0},
		{"superset", []string{"A", "B", "C"}, 0},
		{"disjoint", []string{"B"}, 0},
		{"empty", []string{}, 0},
	}
	for _, c := range cases {
		res := AutoScore(questions, answer(qid, c.picked))
		if res.RawScore != c.want {
			t.Errorf("%s: raw=%v, want %v", c.name, res.RawScore, c.want)
		}
		if res.MaxScore != 10 {
			t.Errorf("%s: max=%v, want 10", c.name, res.MaxScore)
		}
	}
}

func TestAutoScoreSubjectiveCountsTowardMaxOnly(t *testing.T) {
	mcID := uuid.New()
	essayID := uuid.New()
	questions := []model.QuestionDefinition{
		mcQuestion(mcID, 10, "A"),
		{ID: essayID, Type: model.QuestionTypeLongAnswer, Prompt: "explain", Points: 5},
	}

	answers := answer(mcID, "A")
	answers[essayID.String()] = json.RawMessage(`"a long essay"`)

	res := AutoScore(questions, answers)
	if res.RawScore != 10 {
		t.Fatalf("raw = %v, want 10 (essay never auto-scores)", res.RawScore)
	}
	if res.MaxScore != 15 {
		t.Fatalf("max = %v, want 15 (essay points still count)", res.MaxScore)
	}
}

func TestAutoScoreUngradedQuestionsIgnored(t *testing.T) {
	qid := uuid.New()
	survey := mcQuestion(qid, 0, "A")
	res := AutoScore([]model.QuestionDefinition{survey}, answer(qid, "A"))
	if res.RawScore != 0 || res.MaxScore != 0 {
		t.Fatalf("survey question scored: raw=%v max=%v", res.RawScore, res.MaxScore)
	}
	if res.Percent() != 0 {
		t.Fatalf("percent with zero max = %v, want 0", res.Percent())
	}
}

func TestAutoScoreDeterministic(t *testing.T) {
	mcID := uuid.New()
	cbID := uuid.New()
	questions := []model.QuestionDefinition{
		mcQuestion(mcID, 10, "C"),
		checkboxQuestion(cbID, 5, "A", "B"),
	}
	answers := answer(mcID, "C")
	answers[cbID.String()] = json.RawMessage(`["B","A"]`)

	first := AutoScore(questions, answers)
	for i := 0; i < 50; i++ {
		if got := AutoScore(questions, answers); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}
