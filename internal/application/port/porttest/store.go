// Package porttest provides an in-memory implementation of the persistence ports
// for application-level tests. Transactions are serialized and roll back every
// repository on error; Update enforces the optimistic version contract.
package porttest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
)

type state struct {
	documents   map[int64]*entity.Document
	types       map[int64]*entity.DocumentType
	steps       map[int64]*entity.RouteStep
	assignments map[int64]*entity.Assignment
	logs        []*entity.WorkflowLog
	versions    []*entity.DocumentVersion
	users       map[int64]*entity.User
	departments map[int64]*entity.Department
	sequences   map[string]int64
	nextID      int64
}

func (s *state) clone() *state {
	c := &state{
		documents:   make(map[int64]*entity.Document, len(s.documents)),
		types:       make(map[int64]*entity.DocumentType, len(s.types)),
		steps:       make(map[int64]*entity.RouteStep, len(s.steps)),
		assignments: make(map[int64]*entity.Assignment, len(s.assignments)),
		logs:        append([]*entity.WorkflowLog(nil), s.logs...),
		versions:    append([]*entity.DocumentVersion(nil), s.versions...),
		users:       make(map[int64]*entity.User, len(s.users)),
		departments: make(map[int64]*entity.Department, len(s.departments)),
		sequences:   make(map[string]int64, len(s.sequences)),
		nextID:      s.nextID,
	}
	for k, v := range s.documents {
		c.documents[k] = v.Clone()
	}
	for k, v := range s.types {
		c.types[k] = v
	}
	for k, v := range s.steps {
		c.steps[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v.Clone()
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store is an in-memory backend implementing every repository port
type Store struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.Mutex // guards data and failures
	data *state

	failures map[string]error
	Clock    func() time.Time
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{
		data: &state{
			documents:   map[int64]*entity.Document{},
			types:       map[int64]*entity.DocumentType{},
			steps:       map[int64]*entity.RouteStep{},
			assignments: map[int64]*entity.Assignment{},
			users:       map[int64]*entity.User{},
			departments: map[int64]*entity.Department{},
			sequences:   map[string]int64{},
		},
		failures: map[string]error{},
		Clock:    time.Now,
	}
}

// FailOn makes the named operation (e.g. "logs.Append") return err until cleared with nil.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

// WithTransaction implements port.TransactionManager
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Documents returns the document repository view
func (s *Store) Documents() port.DocumentRepository { return documentRepo{s} }

// Types returns the document type repository view
func (s *Store) Types() port.DocumentTypeRepository { return typeRepo{s} }

// Routes returns the route repository view
func (s *Store) Routes() port.RouteRepository { return routeRepo{s} }

// Assignments returns the assignment repository view
func (s *Store) Assignments() port.AssignmentRepository { return assignmentRepo{s} }

// Logs returns the audit log repository view
func (s *Store) Logs() port.LogRepository { return logRepo{s} }

// Versions returns the document version repository view
func (s *Store) Versions() port.DocumentVersionRepository { return versionRepo{s} }

// Users returns the user repository view
func (s *Store) Users() port.UserRepository { return userRepo{s} }

// Departments returns the department repository view
func (s *Store) Departments() port.DepartmentRepository { return departmentRepo{s} }

// Sequences returns the sequence repository view
func (s *Store) Sequences() port.SequenceRepository { return sequenceRepo{s} }

// LogActions returns the logged actions of a document in order
func (s *Store) LogActions(documentID int64) []string {
	entries, _ := s.Logs().ListByDocument(context.Background(), documentID)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

type documentRepo struct{ s *Store }

func (r documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("documents.Create"); err != nil {
		return err
	}
	doc.ID = r.s.id()
	doc.Version = 1
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.s.Clock()
	}
	doc.UpdatedAt = doc.CreatedAt
	r.s.data.documents[doc.ID] = doc.Clone()
	return nil
}

func (r documentRepo) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("documents.GetByID"); err != nil {
		return nil, err
	}
	doc, ok := r.s.data.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, workflow.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (r documentRepo) Update(ctx context.Context, doc *entity.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("documents.Update"); err != nil {
		return err
	}
	stored, ok := r.s.data.documents[doc.ID]
	if !ok {
		return fmt.Errorf("document %d: %w", doc.ID, workflow.ErrNotFound)
	}
	if stored.Version != doc.Version {
		return fmt.Errorf("document %d: %w", doc.ID, workflow.ErrConcurrentModification)
	}
	doc.Version++
	doc.UpdatedAt = r.s.Clock()
	r.s.data.documents[doc.ID] = doc.Clone()
	return nil
}

func (r documentRepo) List(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Document
	for _, doc := range r.s.data.documents {
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.DocumentTypeID != 0 && doc.DocumentTypeID != filter.DocumentTypeID {
			continue
		}
		if filter.CreatorID != 0 && doc.CreatorID != filter.CreatorID {
			continue
		}
		if filter.Viewer != nil && !r.visible(doc, filter.Viewer) {
			continue
		}
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r documentRepo) visible(doc *entity.Document, v *port.Visibility) bool {
	if doc.CreatorID == v.PrincipalID || doc.IsCurrentApprover(v.PrincipalID) {
		return true
	}
	for _, a := range r.s.data.assignments {
		if a.DocumentID != doc.ID {
			continue
		}
		if a.AssigneeID == v.PrincipalID || (v.Managerial && a.AssignedByID == v.PrincipalID) {
			return true
		}
	}
	if v.DepartmentID != nil {
		if creator, ok := r.s.data.users[doc.CreatorID]; ok && creator.DepartmentID != nil && *creator.DepartmentID == *v.DepartmentID {
			return true
		}
	}
	return false
}

func (r documentRepo) CountPendingAtStep(ctx context.Context, documentTypeID int64, stepOrder int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, doc := range r.s.data.documents {
		if doc.DocumentTypeID == documentTypeID && doc.Status == entity.DocumentStatusPending && doc.CurrentStep == stepOrder {
			n++
		}
	}
	return n, nil
}

type typeRepo struct{ s *Store }

func (r typeRepo) Upsert(ctx context.Context, t *entity.DocumentType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == 0 {
		for _, existing := range r.s.data.types {
			if existing.Code == t.Code {
				t.ID = existing.ID
			}
		}
	}
	if t.ID == 0 {
		t.ID = r.s.id()
	}
	c := *t
	r.s.data.types[t.ID] = &c
	return nil
}

func (r typeRepo) GetByID(ctx context.Context, id int64) (*entity.DocumentType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.types[id]
	if !ok {
		return nil, fmt.Errorf("document type %d: %w", id, workflow.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (r typeRepo) GetByCode(ctx context.Context, code string) (*entity.DocumentType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.data.types {
		if t.Code == code {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("document type %q: %w", code, workflow.ErrNotFound)
}

func (r typeRepo) List(ctx context.Context) ([]*entity.DocumentType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.DocumentType, 0, len(r.s.data.types))
	for _, t := range r.s.data.types {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type routeRepo struct{ s *Store }

func (r routeRepo) Create(ctx context.Context, step *entity.RouteStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("routes.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.data.steps {
		if existing.DocumentTypeID == step.DocumentTypeID && existing.StepOrder == step.StepOrder {
			return fmt.Errorf("type %d order %d: %w", step.DocumentTypeID, step.StepOrder, workflow.ErrDuplicateStepOrder)
		}
	}
	step.ID = r.s.id()
	step.CreatedAt = r.s.Clock()
	c := *step
	r.s.data.steps[step.ID] = &c
	return nil
}

func (r routeRepo) GetByID(ctx context.Context, id int64) (*entity.RouteStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	step, ok := r.s.data.steps[id]
	if !ok {
		return nil, fmt.Errorf("route step %d: %w", id, workflow.ErrNotFound)
	}
	c := *step
	return &c, nil
}

func (r routeRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("routes.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.data.steps[id]; !ok {
		return fmt.Errorf("route step %d: %w", id, workflow.ErrNotFound)
	}
	delete(r.s.data.steps, id)
	return nil
}

func (r routeRepo) ListByType(ctx context.Context, documentTypeID int64) ([]*entity.RouteStep, error) {
	all, _ := r.ListAll(ctx)
	out := all[:0]
	for _, step := range all {
		if step.DocumentTypeID == documentTypeID {
			out = append(out, step)
		}
	}
	return out, nil
}

func (r routeRepo) ListAll(ctx context.Context) ([]*entity.RouteStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.RouteStep, 0, len(r.s.data.steps))
	for _, step := range r.s.data.steps {
		c := *step
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentTypeID != out[j].DocumentTypeID {
			return out[i].DocumentTypeID < out[j].DocumentTypeID
		}
		return out[i].StepOrder < out[j].StepOrder
	})
	return out, nil
}

type assignmentRepo struct{ s *Store }

func (r assignmentRepo) Create(ctx context.Context, a *entity.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("assignments.Create"); err != nil {
		return err
	}
	a.ID = r.s.id()
	a.Version = 1
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.s.Clock()
	}
	a.UpdatedAt = a.CreatedAt
	r.s.data.assignments[a.ID] = a.Clone()
	return nil
}

func (r assignmentRepo) GetByID(ctx context.Context, id int64) (*entity.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %d: %w", id, workflow.ErrNotFound)
	}
	return a.Clone(), nil
}

func (r assignmentRepo) Update(ctx context.Context, a *entity.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("assignments.Update"); err != nil {
		return err
	}
	stored, ok := r.s.data.assignments[a.ID]
	if !ok {
		return fmt.Errorf("assignment %d: %w", a.ID, workflow.ErrNotFound)
	}
	if stored.Version != a.Version {
		return fmt.Errorf("assignment %d: %w", a.ID, workflow.ErrConcurrentModification)
	}
	a.Version++
	a.UpdatedAt = r.s.Clock()
	r.s.data.assignments[a.ID] = a.Clone()
	return nil
}

func (r assignmentRepo) ListByDocument(ctx context.Context, documentID int64) ([]*entity.Assignment, error) {
	return r.List(ctx, port.AssignmentFilter{DocumentID: documentID})
}

func (r assignmentRepo) List(ctx context.Context, filter port.AssignmentFilter) ([]*entity.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Assignment
	for _, a := range r.s.data.assignments {
		if filter.DocumentID != 0 && a.DocumentID != filter.DocumentID {
			continue
		}
		if filter.PrincipalID != 0 && a.AssigneeID != filter.PrincipalID &&
			!(filter.IncludeAssigned && a.AssignedByID == filter.PrincipalID) {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.OpenOnly && a.IsTerminal() {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type versionRepo struct{ s *Store }

func (r versionRepo) Create(ctx context.Context, v *entity.DocumentVersion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("versions.Create"); err != nil {
		return err
	}
	next := 1
	for _, e := range r.s.data.versions {
		if e.DocumentID == v.DocumentID && e.VersionNumber >= next {
			next = e.VersionNumber + 1
		}
	}
	v.ID = r.s.id()
	v.VersionNumber = next
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.s.Clock()
	}
	c := *v
	r.s.data.versions = append(r.s.data.versions, &c)
	return nil
}

func (r versionRepo) ListByDocument(ctx context.Context, documentID int64) ([]*entity.DocumentVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.DocumentVersion
	for _, e := range r.s.data.versions {
		if e.DocumentID == documentID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

type logRepo struct{ s *Store }

func (r logRepo) Append(ctx context.Context, entry *entity.WorkflowLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("logs.Append"); err != nil {
		return err
	}
	entry.ID = r.s.id()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.s.Clock()
	}
	c := *entry
	r.s.data.logs = append(r.s.data.logs, &c)
	return nil
}

func (r logRepo) ListByDocument(ctx context.Context, documentID int64) ([]*entity.WorkflowLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.WorkflowLog
	for _, e := range r.s.data.logs {
		if e.DocumentID == documentID {
			c := *e
			out = append(out, &c)
		}
	}
	sortLogs(out)
	return out, nil
}

func (r logRepo) ListSince(ctx context.Context, since time.Time) ([]*entity.WorkflowLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.WorkflowLog
	for _, e := range r.s.data.logs {
		if !e.Timestamp.Before(since) {
			c := *e
			out = append(out, &c)
		}
	}
	sortLogs(out)
	return out, nil
}

func sortLogs(entries []*entity.WorkflowLog) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
}

type userRepo struct{ s *Store }

func (r userRepo) Upsert(ctx context.Context, u *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.users {
		if existing.Username == u.Username && u.Username != "" {
			u.ID = existing.ID
		}
	}
	if u.ID == 0 {
		u.ID = r.s.id()
	} else if u.ID > r.s.data.nextID {
		r.s.data.nextID = u.ID
	}
	c := *u
	r.s.data.users[u.ID] = &c
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, workflow.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (r userRepo) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.User
	for _, u := range r.s.data.users {
		if u.Role == role && u.Active {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r userRepo) ListByIDs(ctx context.Context, ids []int64) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.User
	for _, id := range ids {
		if u, ok := r.s.data.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) Upsert(ctx context.Context, d *entity.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.departments {
		if existing.Code == d.Code && d.Code != "" {
			d.ID = existing.ID
		}
	}
	if d.ID == 0 {
		d.ID = r.s.id()
	} else if d.ID > r.s.data.nextID {
		r.s.data.nextID = d.ID
	}
	c := *d
	r.s.data.departments[d.ID] = &c
	return nil
}

func (r departmentRepo) GetByID(ctx context.Context, id int64) (*entity.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.departments[id]
	if !ok {
		return nil, fmt.Errorf("department %d: %w", id, workflow.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (r departmentRepo) List(ctx context.Context) ([]*entity.Department, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Department, 0, len(r.s.data.departments))
	for _, d := range r.s.data.departments {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type sequenceRepo struct{ s *Store }

func (r sequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("sequences.Next"); err != nil {
		return 0, err
	}
	r.s.data.sequences[name]++
	return r.s.data.sequences[name], nil
}
