package subscription

import (
	"context"
	"errors"

	"studyboard/domain"
)

// Publisher receives committed board changes.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Multi publishes every event to each of its publishers in order. All publishers
// are tried; their errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
