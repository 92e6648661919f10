package entity

import "time"

// RouteStep is one ordered step of a document type's approval chain
type RouteStep struct {
	ID             int64     `json:"id"`
	DocumentTypeID int64     `json:"document_type_id"`
	StepOrder      int       `json:"step_order"`
	ApproverRole   string    `json:"approver_role"`
	CreatedAt      time.Time `json:"created_at"`
}

// Route is a document type with its ordered steps
type Route struct {
	DocumentType *DocumentType `json:"document_type"`
	Steps        []*RouteStep  `json:"steps"`
}
