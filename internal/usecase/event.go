package usecase

import (
	"context"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/google/uuid"
)

// eventPublisher is the subset of *eventbus.Publisher the REST event
// path drives. POST /events appends to the same Redis stream an
// external producer would, so the standalone scheduler process's
// eventbus.Consumer is the single place Scheduler.OnEvent actually
// runs, sharing one seen_event dedupe window and one fan-out path
// regardless of which process an event entered through.
type eventPublisher interface {
	Publish(ctx context.Context, id, topic, source string, payload domain.Value) error
}

// EventUsecase implements the ingest half of event handling: it
// assigns an event its ID and hands it to the bus, rather than
// mutating any in-process scheduler state directly.
type EventUsecase struct {
	publisher eventPublisher
}

func NewEventUsecase(publisher eventPublisher) *EventUsecase {
	return &EventUsecase{publisher: publisher}
}

type PublishEventInput struct {
	Topic   string
	Source  string
	Payload domain.Value
}

func (u *EventUsecase) PublishEvent(ctx context.Context, input PublishEventInput) (string, error) {
	id := uuid.NewString()
	if err := u.publisher.Publish(ctx, id, input.Topic, input.Source, input.Payload); err != nil {
		return "", err
	}
	return id, nil
}
