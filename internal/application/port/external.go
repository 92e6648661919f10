package port

import (
	"context"
	"time"

	"github.com/garyjia/docflow/internal/domain/entity"
)

// ApproverResolver maps a route step role to the concrete principal who must act.
// Resolution must be deterministic for a given document and role.
type ApproverResolver interface {
	ResolveApprover(ctx context.Context, doc *entity.Document, role string) (*entity.User, error)
}

// Signer produces the signature stored with every audit log entry
type Signer interface {
	Sign(parts ...string) string
}

// Notification is a best-effort message addressed to one principal
type Notification struct {
	Type         string    `json:"type"`
	DocumentID   int64     `json:"document_id"`
	AssignmentID int64     `json:"assignment_id,omitempty"`
	RecipientID  int64     `json:"recipient_id"`
	Message      string    `json:"message"`
	At           time.Time `json:"at"`
}

// Notifier delivers notifications (broker, log, ...)
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// TransitionObserver records the outcome of workflow operations
type TransitionObserver interface {
	ObserveTransition(operation, outcome string, duration time.Duration)
}
