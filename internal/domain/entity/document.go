package entity

import "time"

// Document represents a unit of work moving through the approval route
type Document struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Content            string     `json:"content"`
	DocumentTypeID     int64      `json:"document_type_id"`
	Priority           string     `json:"priority"`
	Status             string     `json:"status"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
	CreatorID          int64      `json:"creator_id"`
	CurrentApproverID  *int64     `json:"current_approver_id,omitempty"`
	CurrentStep        int        `json:"current_step"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	FileRef            string     `json:"file_ref,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DocumentType classifies documents and selects their approval route
type DocumentType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// documentSettled lists the statuses a deadline no longer applies to: the
// route's outcomes plus archived. Every other status is overdue once the
// deadline passes, draft included. This set is wider than
// workflow.State.IsTerminal, where approved still accepts assignments.
var documentSettled = map[string]bool{
	DocumentStatusApproved:  true,
	DocumentStatusRejected:  true,
	DocumentStatusCompleted: true,
	DocumentStatusArchived:  true,
}

// IsOverdue reports whether the deadline passed while the document is still unsettled.
func (d *Document) IsOverdue(now time.Time) bool {
	if d.Deadline == nil {
		return false
	}
	return d.Deadline.Before(now) && !documentSettled[d.Status]
}

// IsCurrentApprover reports whether principalID is the approver the document waits for.
func (d *Document) IsCurrentApprover(principalID int64) bool {
	return d.CurrentApproverID != nil && *d.CurrentApproverID == principalID
}

// Clone returns a copy that can be mutated without affecting the receiver.
func (d *Document) Clone() *Document {
	c := *d
	if d.CurrentApproverID != nil {
		id := *d.CurrentApproverID
		c.CurrentApproverID = &id
	}
	if d.Deadline != nil {
		dl := *d.Deadline
		c.Deadline = &dl
	}
	return &c
}

// DocumentVersion is one uploaded file revision. Numbers start at 1 per document.
type DocumentVersion struct {
	ID            int64     `json:"id"`
	DocumentID    int64     `json:"document_id"`
	VersionNumber int       `json:"version_number"`
	FileRef       string    `json:"file_ref"`
	FileName      string    `json:"file_name"`
	Size          int64     `json:"size"`
	CreatorID     *int64    `json:"creator_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DocumentDetail is a document together with its nested assignments and file versions
type DocumentDetail struct {
	Document    *Document          `json:"document"`
	Assignments []*Assignment      `json:"assignments"`
	Versions    []*DocumentVersion `json:"versions"`
	Overdue     bool               `json:"overdue"`
}
