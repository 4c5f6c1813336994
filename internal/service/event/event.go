package event

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

// Emitter records a domain event in the outbox of the caller's transaction,
// so the event commits or rolls back together with the change it describes.
type Emitter interface {
	Emit(ctx context.Context, outbox repository.OutboxRepository, eventType string, aggregateID uuid.UUID, payload interface{}) error
}
