package entity

import "time"

// WorkflowLog is an immutable record of one workflow transition.
// A nil ActorID marks a system-originated entry.
type WorkflowLog struct {
	ID           int64     `json:"id"`
	DocumentID   int64     `json:"document_id"`
	AssignmentID *int64    `json:"assignment_id,omitempty"`
	ActorID      *int64    `json:"actor_id,omitempty"`
	Action       string    `json:"action"`
	Comment      string    `json:"comment,omitempty"`
	FileRef      string    `json:"file_ref,omitempty"`
	Signature    string    `json:"signature,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// HistoryEntry is a log entry with the acting principal's display name
type HistoryEntry struct {
	*WorkflowLog
	ActorName string `json:"actor_name,omitempty"`
}
