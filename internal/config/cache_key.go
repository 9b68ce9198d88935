package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptStartKey returns the cache key for a student's attempt start timestamp
func (r *CacheKeyStruct) AttemptStartKey(questionnaireID string, studentID int) string {
	return fmt.Sprintf("student:%d:questionnaire:%s:attempt_start", studentID, questionnaireID)
}

// AttemptAnswersKey returns the cache key for a student's buffered answers
func (r *CacheKeyStruct) AttemptAnswersKey(questionnaireID string, studentID int) string {
	return fmt.Sprintf("student:%d:questionnaire:%s:answers", studentID, questionnaireID)
}

// QuestionnairePayloadKey returns the cache key for a published questionnaire's
// student-facing payload (correct answers stripped)
func (r *CacheKeyStruct) QuestionnairePayloadKey(questionnaireID string) string {
	return fmt.Sprintf("questionnaire:%s:payload", questionnaireID)
}

// QuestionnairePolicyKey returns the cache key for a questionnaire's timing policy
func (r *CacheKeyStruct) QuestionnairePolicyKey(questionnaireID string) string {
	return fmt.Sprintf("questionnaire:%s:policy", questionnaireID)
}

// AnalyticsSummaryKey returns the cache key for a questionnaire's analytics summary
func (r *CacheKeyStruct) AnalyticsSummaryKey(questionnaireID string) string {
	return fmt.Sprintf("questionnaire:%s:analytics", questionnaireID)
}

var CacheKey = NewCacheKeyStruct()
