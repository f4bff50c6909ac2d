// Package notify owns the read/unread transition for notifications. The
// transition is idempotent and the first read timestamp is never
// overwritten.
package notify

import (
	"context"
	"time"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
)

type Store interface {
	GetNotification(ctx context.Context, notificationID string) (model.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID string, readAt time.Time) error
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// MarkRead transitions a notification to read on behalf of its owner.
// Marking an already-read notification is a no-op success that preserves
// the original read_at. A principal that does not own the notification gets
// unauthorized and no mutation happens.
func (t *Tracker) MarkRead(ctx context.Context, p model.Principal, notificationID string) (model.Notification, error) {
	notification, err := t.store.GetNotification(ctx, notificationID)
	if err != nil {
		return model.Notification{}, err
	}
	if notification.UserID != p.UserID {
		return model.Notification{}, apperr.New(apperr.KindUnauthorized, "notification_not_owned")
	}
	if notification.Read {
		return notification, nil
	}

	// The store update is conditional on is_read = FALSE, so a concurrent
	// first transition wins and this one degrades to a no-op.
	if err := t.store.MarkNotificationRead(ctx, notificationID, t.now()); err != nil {
		return model.Notification{}, err
	}
	return t.store.GetNotification(ctx, notificationID)
}
