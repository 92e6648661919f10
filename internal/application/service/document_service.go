package service

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

// CreateDocumentRequest carries the fields of a new draft
type CreateDocumentRequest struct {
	Actor          entity.Principal
	Title          string
	Content        string
	DocumentTypeID int64
	Priority       string
	Deadline       *time.Time
	FileRef        string
}

// DocumentListFilter narrows a visibility-scoped listing
type DocumentListFilter struct {
	Status         string
	DocumentTypeID int64
	Limit          int
	Offset         int
}

// DocumentService manages drafts and the read side of documents
type DocumentService interface {
	Create(ctx context.Context, req CreateDocumentRequest) (*entity.Document, error)
	Get(ctx context.Context, id int64, viewer entity.Principal) (*entity.DocumentDetail, error)
	List(ctx context.Context, viewer entity.Principal, filter DocumentListFilter) ([]*entity.Document, error)
	ListAssignments(ctx context.Context, viewer entity.Principal, status string) ([]*entity.Assignment, error)
	Attach(ctx context.Context, id int64, viewer entity.Principal, filename string, content []byte) (*entity.DocumentVersion, error)
}

type documentServiceImpl struct {
	documents   port.DocumentRepository
	types       port.DocumentTypeRepository
	assignments port.AssignmentRepository
	logs        port.LogRepository
	versions    port.DocumentVersionRepository
	users       port.UserRepository
	txManager   port.TransactionManager
	storage     port.FileStorage
	signer      port.Signer
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

// DocumentServiceDeps are the collaborators of the document service
type DocumentServiceDeps struct {
	Documents   port.DocumentRepository
	Types       port.DocumentTypeRepository
	Assignments port.AssignmentRepository
	Logs        port.LogRepository
	Versions    port.DocumentVersionRepository
	Users       port.UserRepository
	TxManager   port.TransactionManager
	Storage     port.FileStorage
	Signer      port.Signer
	Dispatcher  dispatcher.Dispatcher
	Logger      Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(deps DocumentServiceDeps) DocumentService {
	return &documentServiceImpl{
		documents:   deps.Documents,
		types:       deps.Types,
		assignments: deps.Assignments,
		logs:        deps.Logs,
		versions:    deps.Versions,
		users:       deps.Users,
		txManager:   deps.TxManager,
		storage:     deps.Storage,
		signer:      deps.Signer,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// Create stores a draft and its created log entry
func (s *documentServiceImpl) Create(ctx context.Context, req CreateDocumentRequest) (*entity.Document, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, workflow.Validation("title is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityMedium
	}
	if !entity.IsValidPriority(priority) {
		return nil, workflow.Validation("unknown priority %q", req.Priority)
	}

	now := s.now().UTC()
	doc := &entity.Document{
		Title:          title,
		Content:        req.Content,
		DocumentTypeID: req.DocumentTypeID,
		Priority:       priority,
		Status:         entity.DocumentStatusDraft,
		CreatorID:      req.Actor.ID,
		Deadline:       req.Deadline,
		FileRef:        req.FileRef,
		CreatedAt:      now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.types.GetByID(txCtx, req.DocumentTypeID); err != nil {
			return err
		}
		if err := s.documents.Create(txCtx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}

		entry := &entity.WorkflowLog{
			DocumentID: doc.ID,
			ActorID:    int64Ptr(req.Actor.ID),
			Action:     entity.ActionCreated,
			FileRef:    req.FileRef,
			Timestamp:  now,
		}
		if s.signer != nil {
			entry.Signature = s.signer.Sign(
				strconv.FormatInt(req.Actor.ID, 10),
				strconv.FormatInt(doc.ID, 10),
				entry.Action,
				now.Format(time.RFC3339Nano),
			)
		}
		if err := s.logs.Append(txCtx, entry); err != nil {
			return fmt.Errorf("append created log entry: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create document", "error", err, "creator_id", req.Actor.ID)
		return nil, err
	}

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeDocumentCreated, doc.ID, map[string]interface{}{
			event.KeyActorID: req.Actor.ID,
			event.KeyTitle:   doc.Title,
		}))
	}

	s.logger.Info("Document created", "document_id", doc.ID, "creator_id", req.Actor.ID)
	return doc, nil
}

// Get returns the document with its assignments and versions when viewer may see it
func (s *documentServiceImpl) Get(ctx context.Context, id int64, viewer entity.Principal) (*entity.DocumentDetail, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if err := s.authorizeView(ctx, viewer, doc, assignments); err != nil {
		return nil, err
	}
	versions, err := s.versions.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	return &entity.DocumentDetail{
		Document:    doc,
		Assignments: assignments,
		Versions:    versions,
		Overdue:     doc.IsOverdue(s.now()),
	}, nil
}

func (s *documentServiceImpl) authorizeView(ctx context.Context, viewer entity.Principal, doc *entity.Document, assignments []*entity.Assignment) error {
	var creator *entity.User
	if viewer.SeesDepartmentDocuments() {
		u, err := s.users.GetByID(ctx, doc.CreatorID)
		if err == nil {
			creator = u
		}
	}
	if !canSee(viewer, doc, creator, assignments) {
		return unauthorized("document %d is not visible to principal %d", doc.ID, viewer.ID)
	}
	return nil
}

// List returns the documents visible to viewer, newest first
func (s *documentServiceImpl) List(ctx context.Context, viewer entity.Principal, filter DocumentListFilter) ([]*entity.Document, error) {
	f := port.DocumentFilter{
		Status:         filter.Status,
		DocumentTypeID: filter.DocumentTypeID,
		Limit:          filter.Limit,
		Offset:         filter.Offset,
	}
	if !viewer.SeesAllDocuments() {
		v := &port.Visibility{PrincipalID: viewer.ID, Managerial: viewer.IsManager()}
		if viewer.SeesDepartmentDocuments() {
			v.DepartmentID = viewer.DepartmentID
		}
		f.Viewer = v
	}

	docs, err := s.documents.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ListAssignments returns assignments the viewer received, and for managers also
// those they assigned
func (s *documentServiceImpl) ListAssignments(ctx context.Context, viewer entity.Principal, status string) ([]*entity.Assignment, error) {
	assignments, err := s.assignments.List(ctx, port.AssignmentFilter{
		PrincipalID:     viewer.ID,
		IncludeAssigned: viewer.IsManager(),
		Status:          status,
	})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Attach stores an upload for a visible document and records it as the next
// version. The version's file reference is what callers pass as file_ref on
// later transitions. A stored file whose version cannot be recorded is removed.
func (s *documentServiceImpl) Attach(ctx context.Context, id int64, viewer entity.Principal, filename string, content []byte) (*entity.DocumentVersion, error) {
	if len(content) == 0 {
		return nil, workflow.Validation("attachment is empty")
	}
	if _, err := s.Get(ctx, id, viewer); err != nil {
		return nil, err
	}

	name := unsafeName.ReplaceAllString(path.Base(filename), "_")
	if name == "" || name == "." || name == "/" {
		name = "attachment"
	}
	ref := path.Join(strconv.FormatInt(id, 10), uuid.NewString()+"_"+name)

	if err := s.storage.Save(ctx, ref, content); err != nil {
		s.logger.Error("Failed to store attachment", "error", err, "document_id", id)
		return nil, fmt.Errorf("%w: store attachment: %v", workflow.ErrDependencyUnavailable, err)
	}

	creatorID := viewer.ID
	version := &entity.DocumentVersion{
		DocumentID: id,
		FileRef:    ref,
		FileName:   name,
		Size:       int64(len(content)),
		CreatorID:  &creatorID,
		CreatedAt:  s.now(),
	}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.documents.GetByID(ctx, id); err != nil {
			return err
		}
		return s.versions.Create(ctx, version)
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, ref); delErr != nil {
			s.logger.Error("Failed to remove unrecorded attachment", "error", delErr, "file_ref", ref)
		}
		return nil, fmt.Errorf("record version: %w", err)
	}

	s.logger.Info("Attachment stored", "document_id", id, "file_ref", ref, "version", version.VersionNumber, "size", len(content))
	return version, nil
}
