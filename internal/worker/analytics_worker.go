package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/service"
)

const (
	RefreshBatchSize    = 50
	RefreshBatchTimeout = 2 * time.Second
	RefreshPollTimeout  = 1 * time.Second
)

// AnalyticsWorker consumes the refresh queue fed by submit and grade
// events and rebuilds the cached summary for each touched questionnaire.
// Batching with dedupe collapses a burst of submits into one recompute.
type AnalyticsWorker struct {
	analytics *service.AnalyticsService
	rdb       *redis.Client
	log       zerolog.Logger
}

func NewAnalyticsWorker(analytics *service.AnalyticsService, rdb *redis.Client, log zerolog.Logger) *AnalyticsWorker {
	return &AnalyticsWorker{
		analytics: analytics,
		rdb:       rdb,
		log:       log.With().Str("component", "analytics_worker").Logger(),
	}
}

func (w *AnalyticsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnalyticsWorker started")

	batch := make(map[string]struct{}, RefreshBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= RefreshBatchSize || time.Since(lastFlush) >= RefreshBatchTimeout) {

			w.flush(ctx, batch)
			batch = make(map[string]struct{}, RefreshBatchSize)
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flush(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, RefreshPollTimeout, config.WorkerKey.AnalyticsRefreshQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}
			batch[item[1]] = struct{}{}
		}
	}
}

func (w *AnalyticsWorker) flush(ctx context.Context, batch map[string]struct{}) {
	for raw := range batch {
		questionnaireID, err := uuid.Parse(raw)
		if err != nil {
			w.log.Error().Str("id", raw).Msg("Invalid questionnaire id in queue")
			continue
		}

		summary, err := w.analytics.Compute(ctx, questionnaireID)
		if err != nil {
			w.log.Error().Err(err).
				Str("questionnaire_id", raw).
				Msg("Summary recompute failed — requeueing")
			w.rdb.RPush(ctx, config.WorkerKey.AnalyticsRefreshQueue, raw)
			continue
		}
		w.analytics.CacheSummary(ctx, summary)
	}
}
