package entity

// Document status constants
const (
	DocumentStatusDraft      = "draft"
	DocumentStatusPending    = "pending"
	DocumentStatusApproved   = "approved"
	DocumentStatusRejected   = "rejected"
	DocumentStatusInProgress = "in_progress"
	DocumentStatusCompleted  = "completed"
	DocumentStatusArchived   = "archived"
)

// Assignment status constants
const (
	AssignmentStatusPending    = "pending"
	AssignmentStatusAccepted   = "accepted"
	AssignmentStatusInProgress = "in_progress"
	AssignmentStatusCompleted  = "completed"
	AssignmentStatusRejected   = "rejected"
)

// Priority constants, ordered low < medium < high < urgent
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Organizational roles
const (
	RoleAdmin         = "admin"
	RoleRector        = "rector"
	RoleProrector     = "prorector"
	RoleDeptHead      = "dept_head"
	RoleEmployee      = "employee"
	RoleSecretary     = "secretary"
	RoleCouncilMember = "council_member"
)

// Workflow log actions
const (
	ActionCreated      = "created"
	ActionSubmit       = "submit"
	ActionApprove      = "approve"
	ActionReject       = "reject"
	ActionReturned     = "returned"
	ActionAssign       = "assign"
	ActionAccept       = "accept"
	ActionStart        = "start"
	ActionComplete     = "complete"
	ActionDecline      = "decline"
	ActionArchive      = "archive"
	ActionAutoComplete = "auto_complete"
	ActionComment      = "comment"
)

var priorityRank = map[string]int{
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

var validRoles = map[string]bool{
	RoleAdmin:         true,
	RoleRector:        true,
	RoleProrector:     true,
	RoleDeptHead:      true,
	RoleEmployee:      true,
	RoleSecretary:     true,
	RoleCouncilMember: true,
}

var managerRoles = map[string]bool{
	RoleRector:    true,
	RoleProrector: true,
	RoleDeptHead:  true,
	RoleAdmin:     true,
}

// PriorityRank returns the ordinal of a priority, 0 for unknown values.
func PriorityRank(priority string) int {
	return priorityRank[priority]
}

// IsValidPriority reports whether priority is one of the known priorities.
func IsValidPriority(priority string) bool {
	return priorityRank[priority] > 0
}

// IsValidRole reports whether role is a known organizational role.
func IsValidRole(role string) bool {
	return validRoles[role]
}

// IsManagerRole reports whether role carries managerial capability (may assign work).
func IsManagerRole(role string) bool {
	return managerRoles[role]
}
