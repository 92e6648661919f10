// Package container provides dependency injection and lifecycle management
// for the docflow service.
package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/route"
	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/statistics"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/config"
	"github.com/garyjia/docflow/internal/infrastructure/messaging"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/docflow/internal/infrastructure/resilience"
	"github.com/garyjia/docflow/internal/infrastructure/worker"
	"github.com/garyjia/docflow/internal/observability/metrics"
	"github.com/garyjia/docflow/pkg/database"
	"github.com/garyjia/docflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database, applies the embedded migrations
// and wraps the connection in a transaction manager.
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(conn, logger).Up(ctx, database.EmbeddedMigrations()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over one transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Documents:     repository.NewDocumentRepository(db, logger),
		DocumentTypes: repository.NewDocumentTypeRepository(db, logger),
		Routes:        repository.NewRouteRepository(db, logger),
		Assignments:   repository.NewAssignmentRepository(db, logger),
		Logs:          repository.NewLogRepository(db, logger),
		Versions:      repository.NewVersionRepository(db, logger),
		Users:         repository.NewUserRepository(db, logger),
		Departments:   repository.NewDepartmentRepository(db, logger),
		Sequences:     repository.NewSequenceRepository(db, logger),
	}, nil
}

// NotifierBundle holds the notifier and, when enabled, its broker connection.
type NotifierBundle struct {
	Notifier port.Notifier
	NATS     *messaging.NATSNotifier
}

// ProvideNotifier connects to NATS when notifications are enabled and falls
// back to the log notifier otherwise.
func ProvideNotifier(cfg config.NotificationConfig, rcfg config.ResilienceConfig, logger *zap.Logger) (*NotifierBundle, error) {
	if !cfg.Enabled {
		logger.Info("NATS notifications disabled, logging notifications instead")
		return &NotifierBundle{Notifier: messaging.NewLogNotifier(logger)}, nil
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    rcfg.RetryMaxAttempts,
		RetryInitialBackoff: rcfg.RetryInitialBackoff,
		RetryMaxBackoff:     rcfg.RetryMaxBackoff,
		BreakerEnabled:      rcfg.BreakerEnabled,
		BreakerMinRequests:  rcfg.BreakerMinRequests,
		BreakerFailureRatio: rcfg.BreakerFailureRatio,
		BreakerOpenTimeout:  rcfg.BreakerOpenTimeout,
	}, logger)

	nc, err := messaging.NewNATSNotifier(messaging.Options{
		URL:            cfg.NATSURL,
		SubjectPrefix:  cfg.SubjectPrefix,
		ConnectTimeout: cfg.ConnectTimeout,
		ReconnectWait:  cfg.ReconnectWait,
		MaxReconnects:  cfg.MaxReconnects,
		Executor:       executor,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &NotifierBundle{Notifier: nc, NATS: nc}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg config.WorkflowConfig, logger *zap.Logger) dispatcher.Dispatcher {
	opts := []dispatcher.Option{dispatcher.WithLogger(utils.NewKVLogger(logger))}
	if cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...)
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Resolver   port.ApproverResolver
	Dispatcher dispatcher.Dispatcher
	Signer     port.Signer
	Observer   port.TransitionObserver
	Config     config.WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("approver resolver is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithSigner(deps.Signer),
	}
	if deps.Observer != nil {
		opts = append(opts, workflow.WithObserver(deps.Observer))
	}
	if deps.Config.OperationTimeout > 0 {
		opts = append(opts, workflow.WithOperationTimeout(deps.Config.OperationTimeout))
	}

	return workflow.NewEngine(workflow.Deps{
		Documents:   deps.Repos.Documents,
		Assignments: deps.Repos.Assignments,
		Logs:        deps.Repos.Logs,
		Routes:      deps.Repos.Routes,
		Users:       deps.Repos.Users,
		Sequences:   deps.Repos.Sequences,
		TxManager:   deps.TxManager,
		Resolver:    deps.Resolver,
		Logger:      utils.NewKVLogger(deps.Logger.Named("workflow")),
	}, opts...), nil
}

// ProvideRegistry creates the route registry.
func ProvideRegistry(repos *RepositoryBundle, tx port.TransactionManager, logger *zap.Logger) *route.Registry {
	return route.NewRegistry(
		repos.Routes,
		repos.DocumentTypes,
		repos.Documents,
		tx,
		utils.NewKVLogger(logger.Named("route")),
	)
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Storage    port.FileStorage
	Signer     port.Signer
	Dispatcher dispatcher.Dispatcher
	Notifier   port.Notifier
	Config     config.WorkflowConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger.Named("service"))

	documents := service.NewDocumentService(service.DocumentServiceDeps{
		Documents:   deps.Repos.Documents,
		Types:       deps.Repos.DocumentTypes,
		Assignments: deps.Repos.Assignments,
		Logs:        deps.Repos.Logs,
		Versions:    deps.Repos.Versions,
		Users:       deps.Repos.Users,
		TxManager:   deps.TxManager,
		Storage:     deps.Storage,
		Signer:      deps.Signer,
		Dispatcher:  deps.Dispatcher,
		Logger:      serviceLogger,
	})

	return &ServiceBundle{
		Documents:    documents,
		Audit:        service.NewAuditService(documents, deps.Repos.Logs, deps.Repos.Users, serviceLogger),
		Notification: service.NewNotificationService(deps.Notifier, serviceLogger),
		Statistics: statistics.NewService(
			deps.Repos.Documents,
			deps.Repos.Assignments,
			deps.Repos.DocumentTypes,
			deps.Repos.Logs,
			deps.Repos.Users,
			statistics.Options{
				TrendMonths:    deps.Config.TrendMonths,
				TopExecutors:   deps.Config.TopExecutors,
				ActivityWindow: deps.Config.ActivityWindow,
			},
		),
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos    *RepositoryBundle
	Notifier port.Notifier
	Recorder worker.OverdueRecorder
	Config   config.WorkerConfig
	Logger   *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// The returned manager is not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	manager := worker.NewManager(deps.Logger)
	err := manager.Register(worker.NewOverdueScanner(
		worker.OverdueScannerConfig{
			Interval: deps.Config.OverdueInterval,
			Timeout:  deps.Config.OverdueTimeout,
		},
		deps.Repos.Documents,
		deps.Repos.Assignments,
		deps.Notifier,
		deps.Recorder,
		deps.Logger,
	))
	if err != nil {
		return nil, err
	}

	return manager, nil
}

// ProvideMetrics creates the prometheus collectors.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}
