package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/event"
)

// NotificationService turns workflow events into best-effort notifications
type NotificationService interface {
	// Register subscribes the service to every notifying event type
	Register(d dispatcher.Dispatcher)
	// Handle converts one event and delivers it; delivery errors are returned to the dispatcher, which logs them
	Handle(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	logger   Logger
	now      func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

var notificationMessages = map[event.Type]string{
	event.TypeDocumentSubmitted:    "Document %q awaits your approval",
	event.TypeDocumentStepAdvanced: "Document %q awaits your approval",
	event.TypeDocumentApproved:     "Your document %q was approved",
	event.TypeDocumentRejected:     "Your document %q was rejected",
	event.TypeDocumentCompleted:    "Your document %q was completed",
	event.TypeAssignmentCreated:    "You have a new assignment on %q",
	event.TypeAssignmentAccepted:   "An assignment on document %q was accepted",
	event.TypeAssignmentStarted:    "Work started on an assignment for document %q",
	event.TypeAssignmentCompleted:  "An assignment on document %q was completed",
	event.TypeAssignmentRejected:   "An assignment on document %q was declined",
	event.TypeAssignmentOverdue:    "Your assignment on document %q is overdue",
}

// Register subscribes to every event type that has a recipient
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for eventType := range notificationMessages {
		d.SubscribeNamed(eventType, "notification."+eventType.String(), s.Handle)
	}
}

// Handle delivers the notification for evt
func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	format, ok := notificationMessages[evt.Type]
	if !ok {
		return nil
	}
	recipient := evt.GetPayloadInt(event.KeyRecipientID)
	if recipient == 0 {
		return nil
	}

	title := evt.GetPayloadString(event.KeyTitle)
	if title == "" {
		title = fmt.Sprintf("#%d", evt.DocumentID)
	}

	n := &port.Notification{
		Type:         evt.Type.String(),
		DocumentID:   evt.DocumentID,
		AssignmentID: evt.GetPayloadInt(event.KeyAssignmentID),
		RecipientID:  recipient,
		Message:      fmt.Sprintf(format, title),
		At:           s.now().UTC(),
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Error("Notification delivery failed",
			"error", err,
			"event_type", evt.Type,
			"document_id", evt.DocumentID,
			"recipient_id", recipient,
		)
		return fmt.Errorf("notify recipient %d: %w", recipient, err)
	}
	return nil
}
