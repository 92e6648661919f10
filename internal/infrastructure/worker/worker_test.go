package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/port/porttest"
	"github.com/garyjia/docflow/internal/domain/entity"
)

type fakeWorker struct {
	name    string
	stopErr error
	started bool
	stopped bool
	order   *[]string
}

func (w *fakeWorker) Start(context.Context) error { w.started = true; return nil }
func (w *fakeWorker) Stop() error {
	w.stopped = true
	*w.order = append(*w.order, w.name)
	return w.stopErr
}
func (w *fakeWorker) Name() string { return w.name }

func TestManager_Lifecycle(t *testing.T) {
	var order []string
	a := &fakeWorker{name: "a", order: &order}
	b := &fakeWorker{name: "b", order: &order, stopErr: errors.New("stuck")}

	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	assert.Error(t, m.Register(&fakeWorker{name: "a", order: &order}), "duplicate name")
	assert.Equal(t, 2, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.Running())
	assert.Error(t, m.StartAll(context.Background()))
	assert.Error(t, m.Register(&fakeWorker{name: "c", order: &order}), "register while running")
	assert.True(t, a.started && b.started)

	err := m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: stuck")
	assert.Equal(t, []string{"b", "a"}, order)
	assert.False(t, m.Running())
	assert.NoError(t, m.StopAll())
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*port.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg *port.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type gauge struct{ docs, assignments int }

func (g *gauge) SetOverdue(docs, assignments int) { g.docs, g.assignments = docs, assignments }

func TestOverdueScanner_NotifiesOnce(t *testing.T) {
	ctx := context.Background()
	store := porttest.NewStore()
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	doc := &entity.Document{Title: "late", Status: entity.DocumentStatusPending, Priority: entity.PriorityHigh, CreatorID: 1, Deadline: &past}
	require.NoError(t, store.Documents().Create(ctx, doc))
	done := &entity.Document{Title: "done", Status: entity.DocumentStatusCompleted, Priority: entity.PriorityLow, CreatorID: 1, Deadline: &past}
	require.NoError(t, store.Documents().Create(ctx, done))

	late := &entity.Assignment{DocumentID: doc.ID, AssigneeID: 5, AssignedByID: 2, Instruction: "x", Status: entity.AssignmentStatusInProgress, Deadline: &past}
	onTime := &entity.Assignment{DocumentID: doc.ID, AssigneeID: 6, AssignedByID: 2, Instruction: "y", Status: entity.AssignmentStatusPending, Deadline: &future}
	closed := &entity.Assignment{DocumentID: doc.ID, AssigneeID: 7, AssignedByID: 2, Instruction: "z", Status: entity.AssignmentStatusCompleted, Deadline: &past}
	for _, a := range []*entity.Assignment{late, onTime, closed} {
		require.NoError(t, store.Assignments().Create(ctx, a))
	}

	notifier := &recordingNotifier{}
	g := &gauge{}
	scanner := NewOverdueScanner(OverdueScannerConfig{}, store.Documents(), store.Assignments(), notifier, g, zap.NewNop())
	scanner.now = func() time.Time { return now }

	require.NoError(t, scanner.Scan(ctx))
	require.NoError(t, scanner.Scan(ctx))

	assert.Equal(t, 1, g.docs)
	assert.Equal(t, 1, g.assignments)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(5), notifier.sent[0].RecipientID)
	assert.Equal(t, late.ID, notifier.sent[0].AssignmentID)
}

func TestOverdueScanner_StartStop(t *testing.T) {
	store := porttest.NewStore()
	g := &gauge{}
	scanner := NewOverdueScanner(OverdueScannerConfig{Interval: time.Hour}, store.Documents(), store.Assignments(), nil, g, zap.NewNop())

	require.NoError(t, scanner.Start(context.Background()))
	assert.Error(t, scanner.Start(context.Background()))
	require.Eventually(t, func() bool { return scanner.Status().Runs == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, scanner.Stop())
	status := scanner.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.LastError)
}
