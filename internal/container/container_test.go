package container

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/config"
	"github.com/garyjia/docflow/internal/domain/entity"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "db", "docflow.db"), MaxOpenConns: 1, MaxIdleConns: 1},
		Auth:     config.AuthConfig{JWTSecret: "secret"},
		Workflow: config.WorkflowConfig{
			OperationTimeout: 5 * time.Second,
			SigningKey:       "key",
			SingletonRoles:   []string{entity.RoleRector, entity.RoleAdmin},
		},
		Storage: config.StorageConfig{AttachmentDir: filepath.Join(dir, "attachments")},
		Seed:    config.SeedConfig{Path: filepath.Join("..", "..", "configs", "seed.yaml")},
		Worker:  config.WorkerConfig{OverdueInterval: time.Hour, OverdueTimeout: time.Second},
	}
}

func TestNewContainer_RequiresConfig(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second start")

	health := c.Health(ctx)
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.NotContains(t, health.Components, "nats")

	routes, err := c.Registry().Routes(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, routes)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
}

func TestContainer_SubmitThroughWiring(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	repos := c.Repositories()
	memo, err := repos.DocumentTypes.GetByCode(ctx, "memo")
	require.NoError(t, err)
	employees, err := repos.Users.ListByRole(ctx, entity.RoleEmployee)
	require.NoError(t, err)
	require.NotEmpty(t, employees)
	creator := employees[0].Principal()

	doc, err := c.Services().Documents.Create(ctx, service.CreateDocumentRequest{
		Actor:          creator,
		Title:          "Lab equipment",
		Content:        "Request for two oscilloscopes",
		DocumentTypeID: memo.ID,
		Priority:       entity.PriorityMedium,
	})
	require.NoError(t, err)

	submitted, err := c.WorkflowEngine().Submit(ctx, workflow.SubmitRequest{DocumentID: doc.ID, Actor: creator})
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusPending, submitted.Status)
	assert.Equal(t, 1, submitted.CurrentStep)
	require.NotNil(t, submitted.CurrentApproverID)

	history, err := c.Services().Audit.History(ctx, doc.ID, creator)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	overview, err := c.Services().Statistics.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, overview.TotalDocuments)

	data, err := c.Workbook().Render(overview)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestContainer_ConcurrentApprovalsOnSQLite(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	repos := c.Repositories()
	memo, err := repos.DocumentTypes.GetByCode(ctx, "memo")
	require.NoError(t, err)
	employees, err := repos.Users.ListByRole(ctx, entity.RoleEmployee)
	require.NoError(t, err)
	require.NotEmpty(t, employees)
	creator := employees[0].Principal()
	admins, err := repos.Users.ListByRole(ctx, entity.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	submit := func(t *testing.T) *entity.Document {
		doc, err := c.Services().Documents.Create(ctx, service.CreateDocumentRequest{
			Actor:          creator,
			Title:          "Concurrent memo",
			DocumentTypeID: memo.ID,
			Priority:       entity.PriorityMedium,
		})
		require.NoError(t, err)
		submitted, err := c.WorkflowEngine().Submit(ctx, workflow.SubmitRequest{DocumentID: doc.ID, Actor: creator})
		require.NoError(t, err)
		return submitted
	}

	first := submit(t)
	approver, err := repos.Users.GetByID(ctx, *first.CurrentApproverID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor entity.Principal
	}{
		{name: "step approver", actor: approver.Principal()},
		{name: "admin override", actor: admins[0].Principal()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := submit(t)

			const racers = 4
			var wg sync.WaitGroup
			errs := make([]error, racers)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = c.WorkflowEngine().Approve(ctx, workflow.DecisionRequest{
						DocumentID: doc.ID,
						Actor:      tt.actor,
						Step:       doc.CurrentStep,
					})
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

			logs, err := repos.Logs.ListByDocument(ctx, doc.ID)
			require.NoError(t, err)
			approvals := 0
			for _, entry := range logs {
				if entry.Action == entity.ActionApprove {
					approvals++
				}
			}
			assert.Equal(t, 1, approvals)

			stored, err := repos.Documents.GetByID(ctx, doc.ID)
			require.NoError(t, err)
			assert.NotEqual(t, doc.CurrentStep, stored.CurrentStep, "exactly one step advance")
		})
	}
}
