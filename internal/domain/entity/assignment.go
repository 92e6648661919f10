package entity

import "time"

// Assignment is a delegated execution task tied to one document
type Assignment struct {
	ID              int64      `json:"id"`
	DocumentID      int64      `json:"document_id"`
	AssigneeID      int64      `json:"assignee_id"`
	AssignedByID    int64      `json:"assigned_by_id"`
	Instruction     string     `json:"instruction"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Status          string     `json:"status"`
	Response        string     `json:"response,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	Signature       string     `json:"signature,omitempty"`
	SignedAt        *time.Time `json:"signed_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the assignment reached completed or rejected.
func (a *Assignment) IsTerminal() bool {
	return a.Status == AssignmentStatusCompleted || a.Status == AssignmentStatusRejected
}

// IsOverdue reports whether the deadline passed while the assignment is still open.
func (a *Assignment) IsOverdue(now time.Time) bool {
	if a.Deadline == nil {
		return false
	}
	return a.Deadline.Before(now) && !a.IsTerminal()
}

// Clone returns a copy that can be mutated without affecting the receiver.
func (a *Assignment) Clone() *Assignment {
	c := *a
	return &c
}
