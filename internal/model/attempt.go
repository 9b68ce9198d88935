package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptState enumerates the lifecycle of an attempt. Transitions only
// move forward: InProgress → Submitted → Graded.
type AttemptState string

const (
	AttemptStateInProgress AttemptState = "IN_PROGRESS"
	AttemptStateSubmitted  AttemptState = "SUBMITTED"
	AttemptStateGraded     AttemptState = "GRADED"
)

// AnswerMap maps question id → submitted answer value. The value shape
// depends on the question type: option id string for multiple_choice, array
// of option ids for checkbox, string for short/long answer, integer for
// rating and linear_scale.
type AnswerMap map[string]json.RawMessage

// OptionID decodes the value for qid as a single option id.
func (a AnswerMap) OptionID(qid string) (string, bool) {
	raw, ok := a[qid]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// OptionIDSet decodes the value for qid as a set of option ids.
func (a AnswerMap) OptionIDSet(qid string) (map[string]struct{}, bool) {
	raw, ok := a[qid]
	if !ok {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, true
}

// Text decodes the value for qid as a string.
func (a AnswerMap) Text(qid string) (string, bool) {
	raw, ok := a[qid]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Int decodes the value for qid as an integer. Fractional numbers fail.
func (a AnswerMap) Int(qid string) (int, bool) {
	raw, ok := a[qid]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	n := int(f)
	if float64(n) != f {
		return 0, false
	}
	return n, true
}

// Empty reports whether the answer for qid is missing or blank. JSON null,
// "", and [] all count as blank for the required-question check.
func (a AnswerMap) Empty(qid string) bool {
	raw, ok := a[qid]
	if !ok || len(raw) == 0 {
		return true
	}
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return true
	case bytes.Equal(trimmed, []byte(`""`)):
		return true
	case bytes.Equal(trimmed, []byte("[]")):
		return true
	}
	return false
}

// Attempt is one student's try at a questionnaire. Attempts are append-only
// records; they are never deleted and never move backward in state.
type Attempt struct {
	ID               uuid.UUID  `json:"id"`
	QuestionnaireID  uuid.UUID  `json:"questionnaire_id"`
	StudentID        int        `json:"student_id"`
	AttemptNumber    int        `json:"attempt_number"`
	Answers          AnswerMap  `json:"answers"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	Late             bool       `json:"late"`
	TimeSpentSeconds *int       `json:"time_spent_seconds,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	MaxScore         *float64   `json:"max_score,omitempty"`
	IsGraded         bool       `json:"is_graded"`
	GradedBy         *int       `json:"graded_by,omitempty"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
	Feedback         string     `json:"feedback,omitempty"`
}

// State derives the lifecycle state from the timestamps and grading flag.
func (a *Attempt) State() AttemptState {
	switch {
	case a.IsGraded:
		return AttemptStateGraded
	case a.SubmittedAt != nil:
		return AttemptStateSubmitted
	default:
		return AttemptStateInProgress
	}
}

// Deadline returns the hard submit deadline implied by the time limit,
// or false when the questionnaire is untimed.
func (a *Attempt) Deadline(limitMinutes *int) (time.Time, bool) {
	if limitMinutes == nil {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*limitMinutes) * time.Minute), true
}

// RecordAnswerRequest is the payload for auto-saving one answer.
type RecordAnswerRequest struct {
	QuestionID string          `json:"question_id" binding:"required"`
	Value      json.RawMessage `json:"value" binding:"required"`
}

// SubmitAttemptRequest is the payload for submitting an attempt. Answers, if
// present, are merged over the persisted map before validation. Auto marks a
// timer-expiry submission, which bypasses the required-question check.
type SubmitAttemptRequest struct {
	Answers AnswerMap `json:"answers" binding:"omitempty"`
	Auto    bool      `json:"auto"`
}

// GradeAttemptRequest is the payload for manual grading.
type GradeAttemptRequest struct {
	Score    float64 `json:"score" binding:"min=0,max=100"`
	Feedback string  `json:"feedback" binding:"omitempty,max=5000"`
}

// AttemptStateView is returned on resume/reload: the persisted answer map
// plus the authoritative remaining time in seconds (nil when untimed).
type AttemptStateView struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	QuestionnaireID  uuid.UUID `json:"questionnaire_id"`
	StudentID        int       `json:"student_id"`
	AttemptNumber    int       `json:"attempt_number"`
	Answers          AnswerMap `json:"answers"`
	RemainingSeconds *float64  `json:"remaining_seconds,omitempty"`
}
