package notify

import (
	"context"

	"dopahiyaa/api_leads/internal/models"
)

type NotificationStore interface {
	InsertNotification(ctx context.Context, n models.Notification) error
}

// InAppSender stores the rendered notice for the recipient's inbox.
type InAppSender struct {
	store NotificationStore
}

func NewInAppSender(store NotificationStore) *InAppSender {
	return &InAppSender{store: store}
}

func (s *InAppSender) Send(ctx context.Context, msg Message) error {
	title, body, kind, err := Render(msg.Template, msg.Params)
	if err != nil {
		return err
	}
	return s.store.InsertNotification(ctx, models.Notification{
		UserID:  msg.Recipient,
		Title:   title,
		Message: body,
		Type:    kind,
	})
}
