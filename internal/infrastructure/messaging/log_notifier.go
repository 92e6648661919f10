package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
)

// LogNotifier writes notifications to the log when no broker is configured
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification and never fails
func (n *LogNotifier) Notify(_ context.Context, msg *port.Notification) error {
	n.logger.Info("Notification",
		zap.String("type", msg.Type),
		zap.Int64("document_id", msg.DocumentID),
		zap.Int64("assignment_id", msg.AssignmentID),
		zap.Int64("recipient_id", msg.RecipientID),
		zap.String("message", msg.Message))
	return nil
}

// Verify interface compliance
var _ port.Notifier = (*LogNotifier)(nil)
