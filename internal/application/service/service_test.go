package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/port/porttest"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type memStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
}

func (m *memStorage) Save(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[path] = content
	return nil
}

func (m *memStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memStorage) GetFullPath(relativePath string) string { return "/mem/" + relativePath }

const deptA int64 = 100

func ptr(v int64) *int64 { return &v }

type serviceFixture struct {
	store   *porttest.Store
	storage *memStorage
	docs    DocumentService
	audit   AuditService
	typeID  int64
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	store := porttest.NewStore()

	users := []*entity.User{
		{ID: 1, Username: "author", FullName: "Anna Author", Role: entity.RoleEmployee, DepartmentID: ptr(deptA), Active: true},
		{ID: 2, Username: "head", Role: entity.RoleDeptHead, DepartmentID: ptr(deptA), Active: true},
		{ID: 3, Username: "other", Role: entity.RoleEmployee, Active: true},
		{ID: 4, Username: "otherhead", Role: entity.RoleDeptHead, DepartmentID: ptr(999), Active: true},
	}
	for _, u := range users {
		require.NoError(t, store.Users().Upsert(ctx, u))
	}
	memo := &entity.DocumentType{Name: "Memo", Code: "memo"}
	require.NoError(t, store.Types().Upsert(ctx, memo))

	storage := &memStorage{}
	docs := NewDocumentService(DocumentServiceDeps{
		Documents:   store.Documents(),
		Types:       store.Types(),
		Assignments: store.Assignments(),
		Logs:        store.Logs(),
		Versions:    store.Versions(),
		Users:       store.Users(),
		TxManager:   store,
		Storage:     storage,
		Logger:      nopLogger{},
	})
	return &serviceFixture{
		store:   store,
		storage: storage,
		docs:    docs,
		audit:   NewAuditService(docs, store.Logs(), store.Users(), nopLogger{}),
		typeID:  memo.ID,
	}
}

var (
	author    = entity.Principal{ID: 1, Role: entity.RoleEmployee, DepartmentID: ptr(deptA)}
	head      = entity.Principal{ID: 2, Role: entity.RoleDeptHead, DepartmentID: ptr(deptA)}
	outsider  = entity.Principal{ID: 3, Role: entity.RoleEmployee}
	otherHead = entity.Principal{ID: 4, Role: entity.RoleDeptHead, DepartmentID: ptr(999)}
	secretary = entity.Principal{ID: 5, Role: entity.RoleSecretary}
)

func TestDocumentService_CreateDraft(t *testing.T) {
	f := newServiceFixture(t)

	doc, err := f.docs.Create(context.Background(), CreateDocumentRequest{
		Actor:          author,
		Title:          "  Lab budget  ",
		DocumentTypeID: f.typeID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Lab budget", doc.Title)
	assert.Equal(t, entity.DocumentStatusDraft, doc.Status)
	assert.Equal(t, entity.PriorityMedium, doc.Priority)
	assert.Empty(t, doc.RegistrationNumber)
	assert.Equal(t, []string{entity.ActionCreated}, f.store.LogActions(doc.ID))
}

func TestDocumentService_CreateValidation(t *testing.T) {
	f := newServiceFixture(t)
	tests := []struct {
		name string
		req  CreateDocumentRequest
		want error
	}{
		{"missing title", CreateDocumentRequest{Actor: author, DocumentTypeID: f.typeID}, workflow.ErrValidationFailed},
		{"bad priority", CreateDocumentRequest{Actor: author, Title: "x", Priority: "asap", DocumentTypeID: f.typeID}, workflow.ErrValidationFailed},
		{"unknown type", CreateDocumentRequest{Actor: author, Title: "x", DocumentTypeID: 404}, workflow.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.docs.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDocumentService_Visibility(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, CreateDocumentRequest{Actor: author, Title: "Visible", DocumentTypeID: f.typeID})
	require.NoError(t, err)

	tests := []struct {
		name    string
		viewer  entity.Principal
		visible bool
	}{
		{"creator", author, true},
		{"department head of creator", head, true},
		{"secretary sees everything", secretary, true},
		{"unrelated employee", outsider, false},
		{"head of another department", otherHead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail, err := f.docs.Get(ctx, doc.ID, tt.viewer)
			listed, listErr := f.docs.List(ctx, tt.viewer, DocumentListFilter{})
			require.NoError(t, listErr)
			if tt.visible {
				require.NoError(t, err)
				assert.Equal(t, doc.ID, detail.Document.ID)
				assert.Len(t, listed, 1)
			} else {
				assert.ErrorIs(t, err, workflow.ErrUnauthorized)
				assert.Empty(t, listed)
			}
		})
	}
}

func TestDocumentService_AssigneeSeesDocument(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, CreateDocumentRequest{Actor: author, Title: "Work", DocumentTypeID: f.typeID})
	require.NoError(t, err)
	require.NoError(t, f.store.Assignments().Create(ctx, &entity.Assignment{
		DocumentID: doc.ID, AssigneeID: outsider.ID, AssignedByID: head.ID, Status: entity.AssignmentStatusPending,
	}))

	detail, err := f.docs.Get(ctx, doc.ID, outsider)
	require.NoError(t, err)
	assert.Len(t, detail.Assignments, 1)

	mine, err := f.docs.ListAssignments(ctx, outsider, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	assigned, err := f.docs.ListAssignments(ctx, head, "")
	require.NoError(t, err)
	assert.Len(t, assigned, 1, "managers see what they assigned")
}

func TestDocumentService_OverdueFlag(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	yesterday := time.Now().Add(-24 * time.Hour)
	doc, err := f.docs.Create(ctx, CreateDocumentRequest{Actor: author, Title: "Late", DocumentTypeID: f.typeID, Deadline: &yesterday})
	require.NoError(t, err)

	detail, err := f.docs.Get(ctx, doc.ID, author)
	require.NoError(t, err)
	assert.True(t, detail.Overdue)
}

func TestDocumentService_Attach(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, CreateDocumentRequest{Actor: author, Title: "Files", DocumentTypeID: f.typeID})
	require.NoError(t, err)

	v1, err := f.docs.Attach(ctx, doc.ID, author, "../../etc/pass wd.pdf", []byte("%PDF"))
	require.NoError(t, err)
	ref := v1.FileRef
	assert.True(t, strings.HasPrefix(ref, fmt.Sprintf("%d/", doc.ID)))
	assert.True(t, strings.HasSuffix(ref, "_pass_wd.pdf"))
	assert.NotContains(t, ref, "..")
	assert.True(t, f.storage.Exists(ctx, ref))
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, "pass_wd.pdf", v1.FileName)
	assert.Equal(t, int64(4), v1.Size)
	require.NotNil(t, v1.CreatorID)
	assert.Equal(t, author.ID, *v1.CreatorID)

	_, err = f.docs.Attach(ctx, doc.ID, outsider, "x.txt", []byte("x"))
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)

	_, err = f.docs.Attach(ctx, doc.ID, author, "x.txt", nil)
	assert.ErrorIs(t, err, workflow.ErrValidationFailed)

	f.storage.saveErr = errors.New("disk full")
	_, err = f.docs.Attach(ctx, doc.ID, author, "x.txt", []byte("x"))
	assert.ErrorIs(t, err, workflow.ErrDependencyUnavailable)
}

func TestDocumentService_AttachRecordsVersions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, CreateDocumentRequest{Actor: author, Title: "Drafts", DocumentTypeID: f.typeID})
	require.NoError(t, err)

	v1, err := f.docs.Attach(ctx, doc.ID, author, "a.pdf", []byte("one"))
	require.NoError(t, err)
	v2, err := f.docs.Attach(ctx, doc.ID, author, "b.pdf", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	detail, err := f.docs.Get(ctx, doc.ID, author)
	require.NoError(t, err)
	require.Len(t, detail.Versions, 2)
	assert.Equal(t, v2.FileRef, detail.Versions[0].FileRef)
	assert.Equal(t, v1.FileRef, detail.Versions[1].FileRef)

	t.Run("failed record removes the stored file", func(t *testing.T) {
		f.store.FailOn("versions.Create", errors.New("insert failed"))
		defer f.store.FailOn("versions.Create", nil)

		before := len(f.storage.files)
		_, err := f.docs.Attach(ctx, doc.ID, author, "c.pdf", []byte("three"))
		require.Error(t, err)
		assert.Len(t, f.storage.files, before)

		versions, err := f.store.Versions().ListByDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 2)
	})
}

func TestAuditService_History(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, CreateDocumentRequest{Actor: author, Title: "History", DocumentTypeID: f.typeID})
	require.NoError(t, err)
	require.NoError(t, f.store.Logs().Append(ctx, &entity.WorkflowLog{
		DocumentID: doc.ID,
		Action:     entity.ActionAutoComplete,
		Timestamp:  time.Now().Add(time.Hour),
	}))

	history, err := f.audit.History(ctx, doc.ID, author)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionCreated, history[0].Action)
	assert.Equal(t, "Anna Author", history[0].ActorName)
	assert.Equal(t, "system", history[1].ActorName)

	_, err = f.audit.History(ctx, doc.ID, outsider)
	assert.ErrorIs(t, err, workflow.ErrUnauthorized)
}

type mockNotifier struct {
	notifyFunc func(ctx context.Context, n *port.Notification) error
	sent       []*port.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n *port.Notification) error {
	m.sent = append(m.sent, n)
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, n)
	}
	return nil
}

func TestNotificationService_Handle(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, nopLogger{})
	ctx := context.Background()

	evt := event.NewEvent(event.TypeDocumentSubmitted, 7, map[string]interface{}{
		event.KeyRecipientID: int64(2),
		event.KeyTitle:       "Budget",
	})
	require.NoError(t, svc.Handle(ctx, evt))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(2), notifier.sent[0].RecipientID)
	assert.Equal(t, `Document "Budget" awaits your approval`, notifier.sent[0].Message)

	// no recipient, nothing sent
	require.NoError(t, svc.Handle(ctx, event.NewEvent(event.TypeDocumentArchived, 7, nil)))
	assert.Len(t, notifier.sent, 1)

	notifier.notifyFunc = func(ctx context.Context, n *port.Notification) error { return errors.New("broker down") }
	err := svc.Handle(ctx, evt)
	assert.Error(t, err)
}
