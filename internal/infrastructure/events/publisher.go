package events

import (
	"context"
	"errors"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

// MultiPublisher publishes to every target and joins their errors.
type MultiPublisher []ports.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
