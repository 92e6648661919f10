package port

import (
	"context"
	"time"

	"github.com/garyjia/docflow/internal/domain/entity"
)

// DocumentFilter narrows document listings. Zero values mean "any".
type DocumentFilter struct {
	Status         string
	DocumentTypeID int64
	CreatorID      int64
	Viewer         *Visibility
	Limit          int
	Offset         int
}

// Visibility restricts a listing to documents a principal may see.
// A principal always sees documents they created, are the current approver of,
// or are assigned to. With Managerial set they also see documents they assigned,
// and with DepartmentID set the documents created by members of that department.
type Visibility struct {
	PrincipalID  int64
	Managerial   bool
	DepartmentID *int64
}

// AssignmentFilter narrows assignment listings. Zero values mean "any".
type AssignmentFilter struct {
	DocumentID int64
	// PrincipalID matches the assignee, or also the assigner when IncludeAssigned is set
	PrincipalID     int64
	IncludeAssigned bool
	Status          string
	OpenOnly        bool
}

// DocumentRepository defines persistence operations for Document
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	// GetByID returns workflow.ErrNotFound for unknown ids
	GetByID(ctx context.Context, id int64) (*entity.Document, error)
	// Update stores doc when the persisted version still equals doc.Version and
	// increments doc.Version. A stale version yields workflow.ErrConcurrentModification.
	Update(ctx context.Context, doc *entity.Document) error
	List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error)
	// CountPendingAtStep counts pending documents of a type paused at stepOrder
	CountPendingAtStep(ctx context.Context, documentTypeID int64, stepOrder int) (int, error)
}

// DocumentTypeRepository defines persistence operations for DocumentType
type DocumentTypeRepository interface {
	Upsert(ctx context.Context, docType *entity.DocumentType) error
	GetByID(ctx context.Context, id int64) (*entity.DocumentType, error)
	GetByCode(ctx context.Context, code string) (*entity.DocumentType, error)
	List(ctx context.Context) ([]*entity.DocumentType, error)
}

// RouteRepository defines persistence operations for RouteStep
type RouteRepository interface {
	// Create returns workflow.ErrDuplicateStepOrder when the order exists for the type
	Create(ctx context.Context, step *entity.RouteStep) error
	GetByID(ctx context.Context, id int64) (*entity.RouteStep, error)
	Delete(ctx context.Context, id int64) error
	// ListByType returns the steps of a document type ascending by step order
	ListByType(ctx context.Context, documentTypeID int64) ([]*entity.RouteStep, error)
	ListAll(ctx context.Context) ([]*entity.RouteStep, error)
}

// AssignmentRepository defines persistence operations for Assignment
type AssignmentRepository interface {
	Create(ctx context.Context, a *entity.Assignment) error
	GetByID(ctx context.Context, id int64) (*entity.Assignment, error)
	// Update follows the same optimistic version contract as DocumentRepository.Update
	Update(ctx context.Context, a *entity.Assignment) error
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.Assignment, error)
	List(ctx context.Context, filter AssignmentFilter) ([]*entity.Assignment, error)
}

// LogRepository is the append-only audit log. It exposes no update or delete.
type LogRepository interface {
	Append(ctx context.Context, entry *entity.WorkflowLog) error
	// ListByDocument returns entries ordered by timestamp, then id
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.WorkflowLog, error)
	ListSince(ctx context.Context, since time.Time) ([]*entity.WorkflowLog, error)
}

// DocumentVersionRepository stores uploaded file revisions of documents
type DocumentVersionRepository interface {
	// Create assigns the next version number of the document and stores v.
	// A concurrent insert of the same number fails with ErrConcurrentModification.
	Create(ctx context.Context, v *entity.DocumentVersion) error
	// ListByDocument returns versions newest first
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.DocumentVersion, error)
}

// UserRepository defines read and seed operations for directory users
type UserRepository interface {
	Upsert(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	// ListByRole returns active users holding role, ordered by id
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*entity.User, error)
}

// DepartmentRepository defines read and seed operations for departments
type DepartmentRepository interface {
	Upsert(ctx context.Context, dept *entity.Department) error
	GetByID(ctx context.Context, id int64) (*entity.Department, error)
	List(ctx context.Context) ([]*entity.Department, error)
}

// SequenceRepository issues monotonically increasing numbers per named sequence
type SequenceRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
