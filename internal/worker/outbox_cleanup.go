package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/event"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// OutboxCleanupWorker deletes processed outbox rows once they are older than
// the retention window. Failed rows are kept for inspection.
type OutboxCleanupWorker struct {
	outbox          repository.OutboxRepository
	events          *event.EventService
	retention       time.Duration
	cleanupInterval time.Duration
	metrics         *metrics.Metrics
}

func NewOutboxCleanupWorker(
	outbox repository.OutboxRepository,
	events *event.EventService,
	retention, cleanupInterval time.Duration,
	m *metrics.Metrics,
) *OutboxCleanupWorker {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &OutboxCleanupWorker{
		outbox:          outbox,
		events:          events,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		metrics:         m,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Error cleaning up outbox events")
			}
		}
	}
}

func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	rows, err := w.events.CleanupProcessedEvents(ctx, w.outbox, w.retention)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outbox events: %w", err)
	}
	if w.metrics != nil {
		w.metrics.OutboxEventsCleaned.Add(float64(rows))
	}
	if rows > 0 {
		log.Info().Int64("rows", rows).Dur("retention", w.retention).Msg("Cleaned up processed outbox events")
	}
	return rows, nil
}
