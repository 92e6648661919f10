package workflow

import (
	"context"
	"time"

	"github.com/garyjia/docflow/internal/domain/entity"
)

// WorkflowEngine executes document and assignment transitions. Every operation
// runs as one transaction that mutates the entity and appends exactly one audit
// log entry (two when an assignment transition completes its document).
type WorkflowEngine interface {
	// Submit moves a draft into the first approval step
	Submit(ctx context.Context, req SubmitRequest) (*entity.Document, error)

	// Approve records the current approver's approval and advances the route.
	// The request must name the step or version it decides.
	Approve(ctx context.Context, req DecisionRequest) (*entity.Document, error)

	// Reject ends the approval cycle. A comment and the decided step or version are required.
	Reject(ctx context.Context, req DecisionRequest) (*entity.Document, error)

	// Reopen returns a rejected document to draft for revision
	Reopen(ctx context.Context, req DecisionRequest) (*entity.Document, error)

	// Archive retires a rejected or completed document
	Archive(ctx context.Context, req DecisionRequest) (*entity.Document, error)

	// Assign delegates execution work on an approved document
	Assign(ctx context.Context, req AssignRequest) (*AssignResult, error)

	// AcceptAssignment acknowledges a pending assignment
	AcceptAssignment(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error)

	// StartAssignment marks an accepted assignment as being worked on
	StartAssignment(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error)

	// CompleteAssignment records the response and optional signature
	CompleteAssignment(ctx context.Context, req CompleteRequest) (*AssignmentResult, error)

	// RejectAssignment declines an assignment. A reason is required.
	RejectAssignment(ctx context.Context, req DeclineRequest) (*AssignmentResult, error)
}

// SubmitRequest asks to submit a draft document
type SubmitRequest struct {
	DocumentID int64
	Actor      entity.Principal
	// ExpectedVersion, when non-zero, must equal the stored document version
	ExpectedVersion int64
}

// DecisionRequest carries an approver's decision or an administrative action.
// Step and ExpectedVersion pin the request to the document state the caller saw;
// a mismatch fails with ErrConcurrentModification before any other check.
type DecisionRequest struct {
	DocumentID      int64
	Actor           entity.Principal
	Comment         string
	FileRef         string
	Step            int
	ExpectedVersion int64
}

// AssignRequest delegates work on a document to an assignee
type AssignRequest struct {
	DocumentID      int64
	Actor           entity.Principal
	AssigneeID      int64
	Instruction     string
	Deadline        *time.Time
	ExpectedVersion int64
}

// AssignmentRequest targets one assignment without payload
type AssignmentRequest struct {
	AssignmentID int64
	Actor        entity.Principal
}

// CompleteRequest completes an assignment
type CompleteRequest struct {
	AssignmentID int64
	Actor        entity.Principal
	Response     string
	Signature    string
}

// DeclineRequest rejects an assignment
type DeclineRequest struct {
	AssignmentID int64
	Actor        entity.Principal
	Reason       string
}

// AssignResult is the outcome of Assign
type AssignResult struct {
	Assignment *entity.Assignment `json:"assignment"`
	Document   *entity.Document   `json:"document"`
}

// AssignmentResult is the outcome of an assignment transition.
// DocumentCompleted is set when the transition completed the parent document.
type AssignmentResult struct {
	Assignment        *entity.Assignment `json:"assignment"`
	DocumentCompleted bool               `json:"document_completed"`
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
