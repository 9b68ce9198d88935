// Package memory provides a mutex-guarded in-memory implementation of the
// store contracts. It honors the same invariants as the postgres
// implementation and backs the unit tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

// Store holds everything in process memory.
type Store struct {
	mu             sync.RWMutex
	questionnaires map[uuid.UUID]*model.Questionnaire
	attempts       map[uuid.UUID]*model.Attempt
	students       map[int]*model.Student
	instructors    map[int]*model.Instructor
	nextStudent    int
	nextInstructor int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		questionnaires: map[uuid.UUID]*model.Questionnaire{},
		attempts:       map[uuid.UUID]*model.Attempt{},
		students:       map[int]*model.Student{},
		instructors:    map[int]*model.Instructor{},
		nextStudent:    1,
		nextInstructor: 1,
	}
}

func cloneQuestionnaire(q *model.Questionnaire) *model.Questionnaire {
	out := *q
	out.Questions = append([]model.QuestionDefinition(nil), q.Questions...)
	out.TargetLearningPaths = append([]string(nil), q.TargetLearningPaths...)
	out.TargetStudentIDs = append([]int(nil), q.TargetStudentIDs...)
	return &out
}

func cloneAttempt(a *model.Attempt) *model.Attempt {
	out := *a
	out.Answers = make(model.AnswerMap, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	return &out
}

// ─── QuestionnaireStore ─────────────────────────────────────────────

func (s *Store) CreateQuestionnaire(_ context.Context, q *model.Questionnaire) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	for i := range q.Questions {
		if q.Questions[i].ID == uuid.Nil {
			q.Questions[i].ID = uuid.New()
		}
		q.Questions[i].Position = i
	}
	now := time.Now()
	q.CreatedAt = now
	q.UpdatedAt = now
	s.questionnaires[q.ID] = cloneQuestionnaire(q)
	return nil
}

func (s *Store) UpdateQuestionnaire(_ context.Context, q *model.Questionnaire) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questionnaires[q.ID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range q.Questions {
		if q.Questions[i].ID == uuid.Nil {
			q.Questions[i].ID = uuid.New()
		}
		q.Questions[i].Position = i
	}
	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = time.Now()
	s.questionnaires[q.ID] = cloneQuestionnaire(q)
	return nil
}

func (s *Store) GetQuestionnaire(_ context.Context, id uuid.UUID) (*model.Questionnaire, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questionnaires[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneQuestionnaire(q), nil
}

func (s *Store) ListQuestionnairesByOwner(_ context.Context, ownerID, limit, offset int) ([]model.Questionnaire, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*model.Questionnaire
	for _, q := range s.questionnaires {
		if q.OwnerID == ownerID {
			all = append(all, q)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]model.Questionnaire, len(all))
	for i, q := range all {
		out[i] = *cloneQuestionnaire(q)
	}
	return out, total, nil
}

func (s *Store) ListPublishedQuestionnaireIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for id, q := range s.questionnaires {
		if q.IsPublished {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questionnaires[id]
	if !ok {
		return store.ErrNotFound
	}
	q.IsPublished = published
	q.UpdatedAt = time.Now()
	return nil
}

// ─── AttemptStore ───────────────────────────────────────────────────

func (s *Store) CreateAttempt(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ex := range s.attempts {
		if ex.QuestionnaireID == a.QuestionnaireID && ex.StudentID == a.StudentID {
			if ex.SubmittedAt == nil {
				return store.ErrConflictingAttempt
			}
			count++
		}
	}
	a.ID = uuid.New()
	a.AttemptNumber = count + 1
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	s.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (s *Store) GetInProgressAttempt(_ context.Context, questionnaireID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.QuestionnaireID == questionnaireID && a.StudentID == studentID && a.SubmittedAt == nil {
			return cloneAttempt(a), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CountAttempts(_ context.Context, questionnaireID uuid.UUID, studentID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.QuestionnaireID == questionnaireID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertAnswers(_ context.Context, attemptID uuid.UUID, answers model.AnswerMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	if a.SubmittedAt != nil {
		return store.ErrAlreadySubmitted
	}
	a.Answers = make(model.AnswerMap, len(answers))
	for k, v := range answers {
		a.Answers[k] = v
	}
	return nil
}

func (s *Store) SubmitAttempt(_ context.Context, attemptID uuid.UUID, p store.SubmitParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	if a.SubmittedAt != nil {
		return store.ErrAlreadySubmitted
	}
	submittedAt := p.SubmittedAt
	a.Answers = make(model.AnswerMap, len(p.Answers))
	for k, v := range p.Answers {
		a.Answers[k] = v
	}
	a.SubmittedAt = &submittedAt
	a.TimeSpentSeconds = &p.TimeSpentSeconds
	a.Late = p.Late
	a.MaxScore = p.MaxScore
	a.Score = p.Score
	a.IsGraded = p.IsGraded
	return nil
}

func (s *Store) GradeAttempt(_ context.Context, attemptID uuid.UUID, p store.GradeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok || a.SubmittedAt == nil {
		return store.ErrNotFound
	}
	score := p.Score
	gradedAt := p.GradedAt
	gradedBy := p.GradedBy
	a.Score = &score
	if p.MaxScore != nil {
		a.MaxScore = p.MaxScore
	}
	a.IsGraded = true
	a.Feedback = p.Feedback
	a.GradedBy = &gradedBy
	a.GradedAt = &gradedAt
	return nil
}

func (s *Store) ListAttemptsByQuestionnaire(_ context.Context, questionnaireID uuid.UUID) ([]model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.QuestionnaireID == questionnaireID {
			out = append(out, *cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].SubmittedAt, out[j].SubmittedAt
		switch {
		case ti != nil && tj != nil:
			return ti.After(*tj)
		case ti != nil:
			return true
		case tj != nil:
			return false
		default:
			return out[i].StartedAt.After(out[j].StartedAt)
		}
	})
	return out, nil
}

func (s *Store) ListAttemptsByStudent(_ context.Context, studentID int) ([]model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.StudentID == studentID {
			out = append(out, *cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// ─── StudentDirectory / InstructorStore ─────────────────────────────

// AddStudent registers a student profile, assigning an id when missing.
func (s *Store) AddStudent(st *model.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == 0 {
		st.ID = s.nextStudent
		s.nextStudent++
	} else if st.ID >= s.nextStudent {
		s.nextStudent = st.ID + 1
	}
	copied := *st
	s.students[st.ID] = &copied
}

func (s *Store) GetStudent(_ context.Context, id int) (*model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *st
	return &copied, nil
}

func (s *Store) GetStudentByEmail(_ context.Context, email string) (*model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.students {
		if st.Email == email {
			copied := *st
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ResolveRoster(_ context.Context, learningPaths []string, studentIDs []int) ([]model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Student
	if len(studentIDs) > 0 {
		for _, id := range studentIDs {
			if st, ok := s.students[id]; ok {
				out = append(out, *st)
			}
		}
	} else {
		paths := make(map[string]struct{}, len(learningPaths))
		for _, p := range learningPaths {
			paths[p] = struct{}{}
		}
		for _, st := range s.students {
			if _, ok := paths[st.LearningPath]; ok {
				out = append(out, *st)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetInstructor(_ context.Context, id int) (*model.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ins, ok := s.instructors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *ins
	return &copied, nil
}

func (s *Store) GetInstructorByEmail(_ context.Context, email string) (*model.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ins := range s.instructors {
		if ins.Email == email {
			copied := *ins
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateInstructor(_ context.Context, ins *model.Instructor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ins.ID = s.nextInstructor
	s.nextInstructor++
	now := time.Now()
	ins.CreatedAt = now
	ins.UpdatedAt = now
	copied := *ins
	s.instructors[ins.ID] = &copied
	return nil
}
