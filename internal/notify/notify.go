// Package notify delivers dispatched alerts to downstream consumers.
package notify

import (
	"context"
	"errors"

	"alert-service/internal/models"
)

// Notifier receives alerts that were just marked as sent.
type Notifier interface {
	Notify(ctx context.Context, alerts []models.Alert) error
}

// Multi fans a dispatch out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alerts []models.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
