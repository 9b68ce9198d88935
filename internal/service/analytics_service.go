package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

// ScoreBucket is one bar of the score distribution histogram.
type ScoreBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary aggregates a questionnaire's results for the instructor
// dashboard. Percentages are fractions in [0,1]; averages cover graded
// attempts only, so a half-graded questionnaire reports a partial average
// rather than a misleading zero.
type Summary struct {
	QuestionnaireID     uuid.UUID     `json:"questionnaire_id"`
	TargetCount         int           `json:"target_count"`
	SubmittedCount      int           `json:"submitted_count"`
	GradedCount         int           `json:"graded_count"`
	LateCount           int           `json:"late_count"`
	SubmissionRate      float64       `json:"submission_rate"`
	AverageScore        *float64      `json:"average_score,omitempty"`
	AverageTimeSpentMin *int          `json:"average_time_spent_min,omitempty"`
	ScoreDistribution   []ScoreBucket `json:"score_distribution"`
}

// AnalyticsService computes per-questionnaire aggregates and the CSV
// export. Summaries are cached in Redis and recomputed by the refresh worker
// after every submit or grade.
type AnalyticsService struct {
	attempts       store.AttemptStore
	questionnaires store.QuestionnaireStore
	directory      store.StudentDirectory
	rdb            *redis.Client
	cacheTTL       time.Duration
	log            zerolog.Logger
}

// NewAnalyticsService creates a new AnalyticsService. cacheTTL bounds
// staleness between worker refreshes; zero disables expiry.
func NewAnalyticsService(
	attempts store.AttemptStore,
	questionnaires store.QuestionnaireStore,
	directory store.StudentDirectory,
	rdb *redis.Client,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		attempts:       attempts,
		questionnaires: questionnaires,
		directory:      directory,
		rdb:            rdb,
		cacheTTL:       cacheTTL,
		log:            log.With().Str("component", "analytics_service").Logger(),
	}
}

// submittedAttempts filters to submitted attempts, most recent first.
// Every retry counts on its own; aggregates are per attempt, not per
// student.
func submittedAttempts(attempts []model.Attempt) []model.Attempt {
	out := make([]model.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.SubmittedAt != nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(*out[j].SubmittedAt)
	})
	return out
}

func distributionBuckets(attempts []model.Attempt) []ScoreBucket {
	buckets := []ScoreBucket{
		{Label: "0-59"}, {Label: "60-69"}, {Label: "70-79"},
		{Label: "80-89"}, {Label: "90-100"},
	}
	for _, a := range attempts {
		if !a.IsGraded || a.Score == nil {
			continue
		}
		switch score := *a.Score; {
		case score < 60:
			buckets[0].Count++
		case score < 70:
			buckets[1].Count++
		case score < 80:
			buckets[2].Count++
		case score < 90:
			buckets[3].Count++
		default:
			buckets[4].Count++
		}
	}
	return buckets
}

// Compute builds the summary from the stores, bypassing the cache. The
// refresh worker and the cache-miss path both land here.
func (s *AnalyticsService) Compute(ctx context.Context, questionnaireID uuid.UUID) (*Summary, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}

	roster, err := s.directory.ResolveRoster(ctx, q.TargetLearningPaths, q.TargetStudentIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}

	all, err := s.attempts.ListAttemptsByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	submitted := submittedAttempts(all)

	summary := &Summary{
		QuestionnaireID:   questionnaireID,
		TargetCount:       len(roster),
		SubmittedCount:    len(submitted),
		ScoreDistribution: distributionBuckets(submitted),
	}
	if summary.TargetCount > 0 {
		summary.SubmissionRate = float64(summary.SubmittedCount) / float64(summary.TargetCount)
	}

	var scoreSum float64
	var timeSum, timeCount int
	for _, a := range submitted {
		if a.Late {
			summary.LateCount++
		}
		if a.IsGraded && a.Score != nil {
			summary.GradedCount++
			scoreSum += *a.Score
		}
		if a.TimeSpentSeconds != nil {
			timeSum += *a.TimeSpentSeconds
			timeCount++
		}
	}
	if summary.GradedCount > 0 {
		avg := scoreSum / float64(summary.GradedCount)
		summary.AverageScore = &avg
	}
	if timeCount > 0 {
		// Whole minutes, rounded half up.
		mins := int(math.Round(float64(timeSum) / float64(timeCount) / 60.0))
		summary.AverageTimeSpentMin = &mins
	}
	return summary, nil
}

// GetSummary serves the dashboard: Redis first, recompute on miss and
// repopulate so the next read is cheap again.
func (s *AnalyticsService) GetSummary(ctx context.Context, questionnaireID uuid.UUID, instructorID int) (*Summary, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if q.OwnerID != instructorID {
		return nil, ErrNotOwner
	}

	if s.rdb != nil {
		key := config.CacheKey.AnalyticsSummaryKey(questionnaireID.String())
		cached, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			var summary Summary
			if jsonErr := json.Unmarshal([]byte(cached), &summary); jsonErr == nil {
				return &summary, nil
			}
			s.log.Warn().Str("key", key).Msg("Corrupt cached summary, recomputing")
		case !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Msg("Summary cache read failed")
		}
	}

	summary, err := s.Compute(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}
	s.CacheSummary(ctx, summary)
	return summary, nil
}

// CacheSummary writes a computed summary back to Redis. Shared with the
// refresh worker.
func (s *AnalyticsService) CacheSummary(ctx context.Context, summary *Summary) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	key := config.CacheKey.AnalyticsSummaryKey(summary.QuestionnaireID.String())
	if err := s.rdb.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache summary")
	}
}

// ExportCSV renders results, one row per submitted attempt (retries
// included), most recent first. Ungraded scores render as N/A.
func (s *AnalyticsService) ExportCSV(ctx context.Context, questionnaireID uuid.UUID, instructorID int) ([]byte, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	if q.OwnerID != instructorID {
		return nil, ErrNotOwner
	}

	all, err := s.attempts.ListAttemptsByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	submitted := submittedAttempts(all)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"Student Name", "Email", "Submitted At", "Score", "Time Spent (min)", "Graded"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, a := range submitted {
		student, err := s.directory.GetStudent(ctx, a.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get student %d: %w", a.StudentID, err)
		}

		score := "N/A"
		if a.IsGraded && a.Score != nil {
			score = strconv.FormatFloat(*a.Score, 'f', 1, 64)
		}
		timeSpent := ""
		if a.TimeSpentSeconds != nil {
			timeSpent = strconv.Itoa(*a.TimeSpentSeconds / 60)
		}
		graded := "no"
		if a.IsGraded {
			graded = "yes"
		}

		row := []string{
			student.Name,
			student.Email,
			a.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			score,
			timeSpent,
			graded,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
