package workflow

// State represents a lifecycle state of a document or an assignment
type State string

const (
	StateDraft      State = "draft"
	StatePending    State = "pending"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateArchived   State = "archived"
	StateAccepted   State = "accepted"
)

// IsTerminal reports whether the state ends a lifecycle; only archiving may follow.
// approved is not terminal because assignments can still be issued from it.
// Overdue detection uses its own settled set (entity.Document.IsOverdue).
func (s State) IsTerminal() bool {
	switch s {
	case StateRejected, StateCompleted, StateArchived:
		return true
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StatePending, StateApproved, StateRejected,
		StateInProgress, StateCompleted, StateArchived, StateAccepted:
		return true
	}
	return false
}
