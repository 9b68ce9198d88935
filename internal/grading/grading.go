// Package grading implements the objective auto-scoring algorithm. It is
// pure: the same definition and answer map always produce the same result.
package grading

import (
	"github.com/courseloop/assessment-backend/internal/model"
)

// Result is the outcome of an auto-grading pass.
type Result struct {
	RawScore float64 `json:"raw_score"`
	MaxScore float64 `json:"max_score"`
}

// Percent normalizes the raw score to 0-100. A questionnaire with no graded
// questions scores 0.
func (r Result) Percent() float64 {
	if r.MaxScore <= 0 {
		return 0
	}
	return r.RawScore / r.MaxScore * 100
}

// AutoScore scores the answer map against the graded questions. Objective
// questions earn full points or nothing; subjective types contribute only to
// MaxScore, so any graded subjective question forces a manual pass before the
// attempt can reach a final score.
func AutoScore(questions []model.QuestionDefinition, answers model.AnswerMap) Result {
	var res Result
	for i := range questions {
		q := &questions[i]
		if !q.Graded() {
			continue
		}
		res.MaxScore += q.Points

		switch q.Type {
		case model.QuestionTypeMultipleChoice:
			if scoreMultipleChoice(q, answers) {
				res.RawScore += q.Points
			}
		case model.QuestionTypeCheckbox:
			if scoreCheckbox(q, answers) {
				res.RawScore += q.Points
			}
		}
	}
	return res
}

func scoreMultipleChoice(q *model.QuestionDefinition, answers model.AnswerMap) bool {
	correct := q.CorrectOptionIDs()
	if len(correct) != 1 {
		return false
	}
	picked, ok := answers.OptionID(q.ID.String())
	return ok && picked == correct[0]
}

// scoreCheckbox requires exact set equality with the correct option set.
// Partial credit is never awarded.
func scoreCheckbox(q *model.QuestionDefinition, answers model.AnswerMap) bool {
	picked, ok := answers.OptionIDSet(q.ID.String())
	if !ok {
		return false
	}
	correct := q.CorrectOptionIDs()
	if len(picked) != len(correct) {
		return false
	}
	for _, id := range correct {
		if _, found := picked[id]; !found {
			return false
		}
	}
	return true
}
