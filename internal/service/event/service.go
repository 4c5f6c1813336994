package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const DefaultRetention = 24 * time.Hour

type EventService struct {
	now func() time.Time
}

func NewEventService() *EventService {
	return &EventService{now: time.Now}
}

func (s *EventService) Emit(ctx context.Context, outbox repository.OutboxRepository, eventType string, aggregateID uuid.UUID, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := s.now().UTC()
	event := &model.OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payloadJSON,
		Status:      model.OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	log.Ctx(ctx).Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", eventType).
		Str("aggregate_id", aggregateID.String()).
		Msg("event recorded")
	return nil
}

// CleanupProcessedEvents deletes processed events older than retention.
func (s *EventService) CleanupProcessedEvents(ctx context.Context, outbox repository.OutboxRepository, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := s.now().Add(-retention)
	count, err := outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup events: %w", err)
	}
	return count, nil
}
