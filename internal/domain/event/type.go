package event

// Type identifies the type of domain event
type Type string

const (
	TypeDocumentCreated      Type = "document.created"
	TypeDocumentSubmitted    Type = "document.submitted"
	TypeDocumentStepAdvanced Type = "document.step_advanced"
	TypeDocumentApproved     Type = "document.approved"
	TypeDocumentRejected     Type = "document.rejected"
	TypeDocumentReopened     Type = "document.reopened"
	TypeDocumentArchived     Type = "document.archived"
	TypeDocumentCompleted    Type = "document.completed"

	TypeAssignmentCreated   Type = "assignment.created"
	TypeAssignmentAccepted  Type = "assignment.accepted"
	TypeAssignmentStarted   Type = "assignment.started"
	TypeAssignmentCompleted Type = "assignment.completed"
	TypeAssignmentRejected  Type = "assignment.rejected"
	TypeAssignmentOverdue   Type = "assignment.overdue"
)

var validTypes = map[Type]bool{
	TypeDocumentCreated:      true,
	TypeDocumentSubmitted:    true,
	TypeDocumentStepAdvanced: true,
	TypeDocumentApproved:     true,
	TypeDocumentRejected:     true,
	TypeDocumentReopened:     true,
	TypeDocumentArchived:     true,
	TypeDocumentCompleted:    true,
	TypeAssignmentCreated:    true,
	TypeAssignmentAccepted:   true,
	TypeAssignmentStarted:    true,
	TypeAssignmentCompleted:  true,
	TypeAssignmentRejected:   true,
	TypeAssignmentOverdue:    true,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	return validTypes[t]
}
