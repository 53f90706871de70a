// Package storage defines the subscriber persistence interface and its
// implementations.
package storage

import (
	"context"
	"errors"

	"feed_notifier/internal/model"
)

// ErrNotFound is returned when a subscriber does not exist.
var ErrNotFound = errors.New("subscriber not found")

// Storage is the interface for all subscriber persistence operations.
type Storage interface {
	ListEnabledSubscribers(ctx context.Context) ([]model.Subscriber, error)
	GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error)
	UpsertSubscriber(ctx context.Context, s *model.Subscriber) error
	SetEnabled(ctx context.Context, chatID int64, enabled bool) error
	SetFilter(ctx context.Context, chatID int64, filter string) error
	DeleteSubscriber(ctx context.Context, chatID int64) error

	Close() error
}
