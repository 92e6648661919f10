package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

// Document triggers
const (
	TriggerSubmit       Trigger = "submit"
	TriggerApprove      Trigger = "approve"
	TriggerReject       Trigger = "reject"
	TriggerReopen       Trigger = "reopen"
	TriggerAssign       Trigger = "assign"
	TriggerArchive      Trigger = "archive"
	TriggerAutoComplete Trigger = "auto_complete"
)

// Assignment triggers
const (
	TriggerAccept   Trigger = "accept"
	TriggerStart    Trigger = "start"
	TriggerComplete Trigger = "complete"
	TriggerDecline  Trigger = "decline"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
