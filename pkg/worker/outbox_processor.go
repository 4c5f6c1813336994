package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is the total number of publish attempts per event.
	RetryAttempts int
	RetryDelay    time.Duration
	Channel       string
}

// OutboxProcessor relays committed outbox rows to the broker. Each batch is
// claimed and settled inside one store transaction, so concurrent processors
// never publish the same row twice in the same poll.
type OutboxProcessor struct {
	store   repository.Store
	broker  messaging.Broker
	config  OutboxProcessorConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	store repository.Store,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.Channel == "" {
		panic("Channel must not be empty")
	}

	return &OutboxProcessor{
		store:   store,
		broker:  broker,
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	log.Info().
		Str("channel", p.config.Channel).
		Dur("poll_interval", p.config.PollInterval).
		Msg("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes up to BatchSize due events and returns how many were
// delivered. A failed publish is rescheduled RetryDelay later until the
// attempts run out, then the row is marked failed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	delivered := 0
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		events, err := tx.Outbox().GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			ok, err := p.processEvent(ctx, tx.Outbox(), event)
			if err != nil {
				return err
			}
			if ok {
				delivered++
			}
		}
		return nil
	})
	return delivered, err
}

// processEvent returns an error only when the row could not be settled.
func (p *OutboxProcessor) processEvent(ctx context.Context, outbox repository.OutboxRepository, event *model.OutboxEvent) (bool, error) {
	logger := log.With().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Logger()

	publishErr := p.broker.Publish(ctx, p.config.Channel, event.Envelope())
	if publishErr == nil {
		if err := outbox.MarkProcessed(ctx, event.ID); err != nil {
			return false, fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
		}
		p.metrics.OutboxEventsProcessed.Inc()
		p.metrics.OutboxDeliveryLatency.WithLabelValues(event.EventType).
			Observe(p.now().Sub(event.CreatedAt).Seconds())
		return true, nil
	}

	errMsg := publishErr.Error()
	if event.RetryCount+1 >= p.config.RetryAttempts {
		if err := outbox.MarkFailed(ctx, event.ID, errMsg); err != nil {
			return false, fmt.Errorf("failed to mark event %s failed: %w", event.ID, err)
		}
		p.metrics.OutboxEventsFailed.Inc()
		logger.Error().Err(publishErr).Int("attempts", event.RetryCount+1).Msg("Giving up on event")
		return false, nil
	}

	retryAt := p.now().Add(p.config.RetryDelay)
	if err := outbox.MarkRetry(ctx, event.ID, errMsg, retryAt); err != nil {
		return false, fmt.Errorf("failed to schedule retry for event %s: %w", event.ID, err)
	}
	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	logger.Warn().Err(publishErr).Time("retry_at", retryAt).Msg("Retry publishing event")
	return false, nil
}
