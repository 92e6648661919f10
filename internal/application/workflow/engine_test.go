package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port/porttest"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

const (
	deptID      int64 = 10
	creatorID   int64 = 1
	deptHeadID  int64 = 2
	rectorID    int64 = 3
	adminID     int64 = 4
	executorID  int64 = 5
	prorectorID int64 = 6
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *porttest.Store
	engine   WorkflowEngine
	typeID   int64
	bareType int64
}

func principal(id int64, role string) entity.Principal {
	d := deptID
	return entity.Principal{ID: id, Role: role, DepartmentID: &d}
}

var (
	creator   = principal(creatorID, entity.RoleEmployee)
	deptHead  = principal(deptHeadID, entity.RoleDeptHead)
	prorector = principal(prorectorID, entity.RoleProrector)
	rector    = entity.Principal{ID: rectorID, Role: entity.RoleRector}
	admin     = entity.Principal{ID: adminID, Role: entity.RoleAdmin}
	executor  = principal(executorID, entity.RoleEmployee)
)

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	ctx := context.Background()
	store := porttest.NewStore()
	store.Clock = func() time.Time { return fixedNow }

	d := deptID
	head := deptHeadID
	require.NoError(t, store.Departments().Upsert(ctx, &entity.Department{ID: deptID, Name: "Physics", Code: "PHY", HeadID: &head}))

	users := []*entity.User{
		{ID: creatorID, Username: "author", Role: entity.RoleEmployee, DepartmentID: &d, Active: true},
		{ID: deptHeadID, Username: "head", FullName: "Dept Head", Role: entity.RoleDeptHead, DepartmentID: &d, Active: true},
		{ID: rectorID, Username: "rector", Role: entity.RoleRector, Active: true},
		{ID: adminID, Username: "admin", Role: entity.RoleAdmin, Active: true},
		{ID: executorID, Username: "exec", Role: entity.RoleEmployee, DepartmentID: &d, Active: true},
		{ID: prorectorID, Username: "pro", Role: entity.RoleProrector, DepartmentID: &d, Active: true},
	}
	for _, u := range users {
		require.NoError(t, store.Users().Upsert(ctx, u))
	}

	memo := &entity.DocumentType{Name: "Memo", Code: "memo"}
	require.NoError(t, store.Types().Upsert(ctx, memo))
	bare := &entity.DocumentType{Name: "Order", Code: "order"}
	require.NoError(t, store.Types().Upsert(ctx, bare))

	for i, role := range []string{entity.RoleDeptHead, entity.RoleProrector, entity.RoleRector} {
		require.NoError(t, store.Routes().Create(ctx, &entity.RouteStep{
			DocumentTypeID: memo.ID,
			StepOrder:      i + 1,
			ApproverRole:   role,
		}))
	}

	deps := Deps{
		Documents:   store.Documents(),
		Assignments: store.Assignments(),
		Logs:        store.Logs(),
		Routes:      store.Routes(),
		Users:       store.Users(),
		Sequences:   store.Sequences(),
		TxManager:   store,
		Resolver:    NewDirectoryResolver(store.Users(), store.Departments(), nil),
		Logger:      nopLogger{},
	}
	opts = append([]EngineOption{WithClock(func() time.Time { return fixedNow })}, opts...)

	return &fixture{
		store:    store,
		engine:   NewEngine(deps, opts...),
		typeID:   memo.ID,
		bareType: bare.ID,
	}
}

func (f *fixture) draft(t *testing.T, typeID int64) *entity.Document {
	t.Helper()
	doc := &entity.Document{
		Title:          "Equipment purchase",
		Content:        "Please approve",
		DocumentTypeID: typeID,
		Priority:       entity.PriorityHigh,
		Status:         entity.DocumentStatusDraft,
		CreatorID:      creatorID,
	}
	require.NoError(t, f.store.Documents().Create(context.Background(), doc))
	return doc
}

// approved drives a fresh draft through the whole route
func (f *fixture) approved(t *testing.T) *entity.Document {
	t.Helper()
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)
	for i, p := range []entity.Principal{deptHead, prorector, rector} {
		_, err = f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: p, Step: i + 1})
		require.NoError(t, err)
	}
	return doc
}

func (f *fixture) reload(t *testing.T, id int64) *entity.Document {
	t.Helper()
	doc, err := f.store.Documents().GetByID(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func TestSubmit_AssignsFirstApproverAndRegistrationNumber(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, f.typeID)

	got, err := f.engine.Submit(context.Background(), SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	assert.Equal(t, entity.DocumentStatusPending, got.Status)
	assert.Equal(t, 1, got.CurrentStep)
	require.NotNil(t, got.CurrentApproverID)
	assert.Equal(t, deptHeadID, *got.CurrentApproverID)
	assert.Equal(t, "2025-00001", got.RegistrationNumber)
	assert.Equal(t, []string{entity.ActionSubmit}, f.store.LogActions(doc.ID))
}

func TestApprove_WalksEveryStep(t *testing.T) {
	f := newFixture(t)
	doc := f.approved(t)

	got := f.reload(t, doc.ID)
	assert.Equal(t, entity.DocumentStatusApproved, got.Status)
	assert.Nil(t, got.CurrentApproverID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Equal(t, []string{
		entity.ActionSubmit,
		entity.ActionApprove,
		entity.ActionApprove,
		entity.ActionApprove,
	}, f.store.LogActions(doc.ID))

	logs, err := f.store.Logs().ListByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	for _, entry := range logs {
		require.NotNil(t, entry.ActorID)
	}
	assert.Equal(t, rectorID, *logs[3].ActorID)
}

func TestSubmit_NoRouteConfigured(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, f.bareType)

	_, err := f.engine.Submit(context.Background(), SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.ErrorIs(t, err, domainwf.ErrNoRouteConfigured)
	assert.Equal(t, domainwf.CodeNoRouteConfigured, domainwf.CodeOf(err))

	assert.Equal(t, entity.DocumentStatusDraft, f.reload(t, doc.ID).Status)
	assert.Empty(t, f.store.LogActions(doc.ID))
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture) int64
		actor entity.Principal
		want  error
	}{
		{
			name:  "unknown document",
			setup: func(t *testing.T, f *fixture) int64 { return 999 },
			actor: creator,
			want:  domainwf.ErrNotFound,
		},
		{
			name:  "not the creator",
			setup: func(t *testing.T, f *fixture) int64 { return f.draft(t, f.typeID).ID },
			actor: deptHead,
			want:  domainwf.ErrUnauthorized,
		},
		{
			name: "already pending",
			setup: func(t *testing.T, f *fixture) int64 {
				doc := f.draft(t, f.typeID)
				_, err := f.engine.Submit(context.Background(), SubmitRequest{DocumentID: doc.ID, Actor: creator})
				require.NoError(t, err)
				return doc.ID
			},
			actor: creator,
			want:  domainwf.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := tt.setup(t, f)
			_, err := f.engine.Submit(context.Background(), SubmitRequest{DocumentID: id, Actor: tt.actor})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApprove_OnlyCurrentApproverOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: rector, Step: 1})
	require.ErrorIs(t, err, domainwf.ErrUnauthorized)
	assert.Equal(t, []string{entity.ActionSubmit}, f.store.LogActions(doc.ID))

	got, err := f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: admin, Comment: "override", Step: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, prorectorID, *got.CurrentApproverID)
}

func TestReject_RequiresComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	_, err = f.engine.Reject(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, Comment: "  ", Step: 1})
	require.ErrorIs(t, err, domainwf.ErrValidationFailed)
	assert.Equal(t, entity.DocumentStatusPending, f.reload(t, doc.ID).Status)
}

func TestReject_ThenApproveIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	got, err := f.engine.Reject(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, Comment: "budget missing", Step: 1})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusRejected, got.Status)
	assert.Nil(t, got.CurrentApproverID)

	_, err = f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, ExpectedVersion: got.Version})
	require.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	assert.Equal(t, domainwf.CodeInvalidTransition, domainwf.CodeOf(err))
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionReject}, f.store.LogActions(doc.ID))
}

func TestReopen_KeepsRegistrationNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	first, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)
	_, err = f.engine.Reject(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, Comment: "fix", Step: 1})
	require.NoError(t, err)

	_, err = f.engine.Reopen(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead})
	require.ErrorIs(t, err, domainwf.ErrUnauthorized)

	reopened, err := f.engine.Reopen(ctx, DecisionRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusDraft, reopened.Status)

	again, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)
	assert.Equal(t, first.RegistrationNumber, again.RegistrationNumber)
	assert.Equal(t, []string{
		entity.ActionSubmit,
		entity.ActionReject,
		entity.ActionReturned,
		entity.ActionSubmit,
	}, f.store.LogActions(doc.ID))
}

func TestArchive_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	_, err = f.engine.Archive(ctx, DecisionRequest{DocumentID: doc.ID, Actor: admin})
	require.ErrorIs(t, err, domainwf.ErrInvalidTransition, "pending documents cannot be archived")

	_, err = f.engine.Reject(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, Comment: "no", Step: 1})
	require.NoError(t, err)

	_, err = f.engine.Archive(ctx, DecisionRequest{DocumentID: doc.ID, Actor: creator})
	require.ErrorIs(t, err, domainwf.ErrUnauthorized)

	got, err := f.engine.Archive(ctx, DecisionRequest{DocumentID: doc.ID, Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusArchived, got.Status)
}

func TestApprove_ConcurrentExactlyOneSucceeds(t *testing.T) {
	tests := []struct {
		name  string
		actor entity.Principal
	}{
		{name: "step approver", actor: deptHead},
		{name: "admin override", actor: admin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			doc := f.draft(t, f.typeID)
			_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
			require.NoError(t, err)

			const workers = 8
			var wg sync.WaitGroup
			errs := make([]error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: tt.actor, Step: 1})
				}(i)
			}
			wg.Wait()

			successes := 0
			for _, err := range errs {
				if err == nil {
					successes++
					continue
				}
				assert.Contains(t, []domainwf.Code{domainwf.CodeConcurrentModification, domainwf.CodeInvalidTransition},
					domainwf.CodeOf(err), "loser error: %v", err)
			}
			assert.Equal(t, 1, successes)
			assert.Equal(t, 2, f.reload(t, doc.ID).CurrentStep)
			assert.Equal(t, []string{entity.ActionSubmit, entity.ActionApprove}, f.store.LogActions(doc.ID))
		})
	}
}

func TestApprove_RequiresDecisionTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead})
	require.ErrorIs(t, err, domainwf.ErrValidationFailed)
	_, err = f.engine.Reject(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, Comment: "no"})
	require.ErrorIs(t, err, domainwf.ErrValidationFailed)
	assert.Equal(t, []string{entity.ActionSubmit}, f.store.LogActions(doc.ID))
}

func TestApprove_StaleRequestIsConcurrentModification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)
	submitted, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, ExpectedVersion: submitted.Version})
	require.NoError(t, err)

	// Repeats of the step 1 decision, by the former approver and by admin
	for _, req := range []DecisionRequest{
		{DocumentID: doc.ID, Actor: deptHead, Step: 1},
		{DocumentID: doc.ID, Actor: admin, Step: 1},
		{DocumentID: doc.ID, Actor: admin, ExpectedVersion: submitted.Version},
		{DocumentID: doc.ID, Actor: deptHead, Step: 1, Comment: "late"},
	} {
		_, err = f.engine.Approve(ctx, req)
		assert.ErrorIs(t, err, domainwf.ErrConcurrentModification)
	}
	_, err = f.engine.Reject(ctx, DecisionRequest{DocumentID: doc.ID, Actor: deptHead, Step: 1, Comment: "late"})
	assert.ErrorIs(t, err, domainwf.ErrConcurrentModification)

	got := f.reload(t, doc.ID)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, []string{entity.ActionSubmit, entity.ActionApprove}, f.store.LogActions(doc.ID))

	_, err = f.engine.Assign(ctx, AssignRequest{DocumentID: doc.ID, Actor: rector, AssigneeID: executorID, Instruction: "x", ExpectedVersion: submitted.Version})
	assert.ErrorIs(t, err, domainwf.ErrConcurrentModification, "version is checked before the transition")
}

func TestSubmit_LogFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.draft(t, f.typeID)

	f.store.FailOn("logs.Append", errors.New("disk full"))
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.Error(t, err)

	got := f.reload(t, doc.ID)
	assert.Equal(t, entity.DocumentStatusDraft, got.Status)
	assert.Empty(t, got.RegistrationNumber)
	assert.Equal(t, doc.Version, got.Version)

	f.store.FailOn("logs.Append", nil)
	submitted, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)
	assert.Equal(t, "2025-00001", submitted.RegistrationNumber, "sequence is rolled back with the transaction")
}

func TestAssign_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.draft(t, f.typeID)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: pending.ID, Actor: creator})
	require.NoError(t, err)
	_, err = f.engine.Assign(ctx, AssignRequest{DocumentID: pending.ID, Actor: rector, AssigneeID: executorID, Instruction: "do"})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	doc := f.approved(t)
	_, err = f.engine.Assign(ctx, AssignRequest{DocumentID: doc.ID, Actor: executor, AssigneeID: creatorID, Instruction: "do"})
	assert.ErrorIs(t, err, domainwf.ErrUnauthorized)

	_, err = f.engine.Assign(ctx, AssignRequest{DocumentID: doc.ID, Actor: rector, AssigneeID: executorID})
	assert.ErrorIs(t, err, domainwf.ErrValidationFailed)

	_, err = f.engine.Assign(ctx, AssignRequest{DocumentID: doc.ID, Actor: rector, AssigneeID: 404, Instruction: "do"})
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	assert.Equal(t, entity.DocumentStatusApproved, f.reload(t, doc.ID).Status)
}

func TestAssignmentLifecycle_AutoCompletesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.approved(t)
	deadline := fixedNow.Add(48 * time.Hour)

	assigned, err := f.engine.Assign(ctx, AssignRequest{
		DocumentID:  doc.ID,
		Actor:       rector,
		AssigneeID:  executorID,
		Instruction: "Order the equipment",
		Deadline:    &deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusInProgress, assigned.Document.Status)
	assert.Equal(t, entity.AssignmentStatusPending, assigned.Assignment.Status)
	id := assigned.Assignment.ID

	_, err = f.engine.AcceptAssignment(ctx, AssignmentRequest{AssignmentID: id, Actor: creator})
	require.ErrorIs(t, err, domainwf.ErrUnauthorized)

	accepted, err := f.engine.AcceptAssignment(ctx, AssignmentRequest{AssignmentID: id, Actor: executor})
	require.NoError(t, err)
	require.NotNil(t, accepted.Assignment.AcceptedAt)

	_, err = f.engine.StartAssignment(ctx, AssignmentRequest{AssignmentID: id, Actor: executor})
	require.NoError(t, err)

	_, err = f.engine.CompleteAssignment(ctx, CompleteRequest{AssignmentID: id, Actor: executor})
	require.ErrorIs(t, err, domainwf.ErrValidationFailed)

	done, err := f.engine.CompleteAssignment(ctx, CompleteRequest{
		AssignmentID: id,
		Actor:        executor,
		Response:     "Ordered",
		Signature:    "exec-sig",
	})
	require.NoError(t, err)
	assert.True(t, done.DocumentCompleted)
	assert.Equal(t, entity.AssignmentStatusCompleted, done.Assignment.Status)
	assert.Equal(t, "exec-sig", done.Assignment.Signature)
	require.NotNil(t, done.Assignment.SignedAt)
	require.NotNil(t, done.Assignment.CompletedAt)

	assert.Equal(t, entity.DocumentStatusCompleted, f.reload(t, doc.ID).Status)

	logs, err := f.store.Logs().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, entity.ActionAutoComplete, last.Action)
	assert.Nil(t, last.ActorID)
	assert.Equal(t, []string{
		entity.ActionSubmit, entity.ActionApprove, entity.ActionApprove, entity.ActionApprove,
		entity.ActionAssign, entity.ActionAccept, entity.ActionStart, entity.ActionComplete,
		entity.ActionAutoComplete,
	}, f.store.LogActions(doc.ID))
}

func TestRejectAssignment_DoesNotCompleteWithoutCompletedWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.approved(t)
	assigned, err := f.engine.Assign(ctx, AssignRequest{DocumentID: doc.ID, Actor: rector, AssigneeID: executorID, Instruction: "do"})
	require.NoError(t, err)

	_, err = f.engine.RejectAssignment(ctx, DeclineRequest{AssignmentID: assigned.Assignment.ID, Actor: executor})
	require.ErrorIs(t, err, domainwf.ErrValidationFailed)

	res, err := f.engine.RejectAssignment(ctx, DeclineRequest{AssignmentID: assigned.Assignment.ID, Actor: executor, Reason: "out of office"})
	require.NoError(t, err)
	assert.False(t, res.DocumentCompleted)
	assert.Equal(t, "out of office", res.Assignment.RejectionReason)
	assert.Equal(t, entity.DocumentStatusInProgress, f.reload(t, doc.ID).Status)

	_, err = f.engine.CompleteAssignment(ctx, CompleteRequest{AssignmentID: assigned.Assignment.ID, Actor: executor, Response: "late"})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
}

func TestCompleteAssignment_FromPendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.approved(t)
	assigned, err := f.engine.Assign(ctx, AssignRequest{DocumentID: doc.ID, Actor: rector, AssigneeID: executorID, Instruction: "do"})
	require.NoError(t, err)

	_, err = f.engine.CompleteAssignment(ctx, CompleteRequest{AssignmentID: assigned.Assignment.ID, Actor: executor, Response: "done"})
	require.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	a, err := f.store.Assignments().GetByID(ctx, assigned.Assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AssignmentStatusPending, a.Status)
	assert.Nil(t, a.SignedAt)
}

type blockingTx struct{}

func (blockingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	<-ctx.Done()
	return fmt.Errorf("begin transaction: %w", ctx.Err())
}

func TestRun_TimeoutIsDependencyUnavailable(t *testing.T) {
	f := newFixture(t)
	e := f.engine.(*engineImpl)
	e.txManager = blockingTx{}
	e.timeout = 10 * time.Millisecond

	_, err := f.engine.Submit(context.Background(), SubmitRequest{DocumentID: 1, Actor: creator})
	require.ErrorIs(t, err, domainwf.ErrDependencyUnavailable)
	assert.True(t, domainwf.IsRetryable(err))
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveTransition(operation, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, operation+":"+outcome)
}

type staticSigner struct{}

func (staticSigner) Sign(parts ...string) string { return fmt.Sprint(len(parts)) }

func TestEngine_PublishesEventsAfterCommit(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()

	received := make(chan *event.Event, 4)
	d.Subscribe(event.TypeDocumentSubmitted, func(ctx context.Context, evt *event.Event) error {
		received <- evt
		return nil
	})

	observer := &recordingObserver{}
	f := newFixture(t, WithDispatcher(d), WithObserver(observer), WithSigner(staticSigner{}))
	ctx := context.Background()

	noRoute := f.draft(t, f.bareType)
	_, err := f.engine.Submit(ctx, SubmitRequest{DocumentID: noRoute.ID, Actor: creator})
	require.Error(t, err)

	doc := f.draft(t, f.typeID)
	_, err = f.engine.Submit(ctx, SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)

	select {
	case evt := <-received:
		assert.Equal(t, doc.ID, evt.DocumentID)
		assert.Equal(t, deptHeadID, evt.GetPayloadInt(event.KeyRecipientID))
	case <-time.After(time.Second):
		t.Fatal("submitted event not dispatched")
	}
	assert.Empty(t, received, "failed submit must not publish")

	logs, err := f.store.Logs().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "4", logs[0].Signature)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, []string{"submit:NO_ROUTE_CONFIGURED", "submit:success"}, observer.outcomes)
}
