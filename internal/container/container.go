package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/application/route"
	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/statistics"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/config"
	"github.com/garyjia/docflow/internal/infrastructure/messaging"
	"github.com/garyjia/docflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/docflow/internal/infrastructure/report"
	"github.com/garyjia/docflow/internal/infrastructure/seed"
	"github.com/garyjia/docflow/internal/infrastructure/signature"
	"github.com/garyjia/docflow/internal/infrastructure/storage"
	"github.com/garyjia/docflow/internal/infrastructure/worker"
	"github.com/garyjia/docflow/internal/observability/metrics"
	"github.com/garyjia/docflow/internal/observability/tracing"
	"github.com/garyjia/docflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are built in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Observability
	metrics         *metrics.Metrics
	tracingShutdown tracing.ShutdownFunc

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Storage and delivery
	fileStorage *storage.LocalFileStorage
	notifier    port.Notifier
	nats        *messaging.NATSNotifier
	signer      port.Signer
	workbook    *report.WorkbookWriter

	// Application
	resolver   port.ApproverResolver
	registry   *route.Registry
	dispatcher dispatcher.Dispatcher
	workflow   workflow.WorkflowEngine
	services   *ServiceBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Documents     port.DocumentRepository
	DocumentTypes port.DocumentTypeRepository
	Routes        port.RouteRepository
	Assignments   port.AssignmentRepository
	Logs          port.LogRepository
	Versions      port.DocumentVersionRepository
	Users         port.UserRepository
	Departments   port.DepartmentRepository
	Sequences     port.SequenceRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Documents    service.DocumentService
	Audit        service.AuditService
	Notification service.NotificationService
	Statistics   *statistics.Service
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Observability
// 2. Database and repositories
// 3. Storage and notifier
// 4. Directory resolver and route registry
// 5. Dispatcher and workflow engine
// 6. Application services and notification handlers
// 7. Seed data
// 8. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"observability", c.initObservability},
		{"database", c.initDatabase},
		{"storage", c.initStorage},
		{"notifier", c.initNotifier},
		{"directory", c.initDirectory},
		{"workflow", c.initDispatcherAndWorkflow},
		{"services", c.initServices},
		{"seed", c.initSeed},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Initialized component", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()
	c.closed.Store(true)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been built so far, in reverse order.
func (c *Container) teardown() []error {
	var errs []error
	c.ready.Store(false)

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.nats != nil {
		if err := c.nats.Close(); err != nil {
			c.logger.Error("Failed to close NATS connection", zap.Error(err))
			errs = append(errs, fmt.Errorf("close nats: %w", err))
		}
		c.nats = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.conn = nil
	}

	if c.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.tracingShutdown(ctx); err != nil {
			c.logger.Error("Failed to flush traces", zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		cancel()
		c.tracingShutdown = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	if c.conn != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.conn.PingContext(pingCtx)
		cancel()
		if err != nil {
			err = fmt.Errorf("ping failed: %w", err)
		}
		set("database", err)
	} else {
		set("database", fmt.Errorf("not initialized"))
	}

	if c.fileStorage != nil {
		set("storage", c.fileStorage.Ready())
	} else {
		set("storage", fmt.Errorf("not initialized"))
	}

	if c.nats != nil {
		set("nats", c.nats.Ready())
	}

	if c.workers != nil && c.workers.Running() {
		msg := fmt.Sprintf("worker count: %d", c.workers.Count())
		for _, ws := range c.workers.Statuses() {
			if ws.LastError != "" {
				msg += fmt.Sprintf("; %s: %s", ws.Name, ws.LastError)
			}
		}
		status.Components["workers"] = ComponentHealth{Healthy: true, Message: msg}
	} else {
		set("workers", fmt.Errorf("not running"))
	}

	return status
}

func (c *Container) initObservability() error {
	c.metrics = ProvideMetrics()

	shutdown, err := tracing.Init(tracing.Config{
		Enabled:     c.config.Tracing.Enabled,
		ServiceName: c.config.Tracing.ServiceName,
		OutputFile:  c.config.Tracing.OutputFile,
	})
	if err != nil {
		return err
	}
	c.tracingShutdown = shutdown
	return nil
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(c.ctx, c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.conn = bundle.Conn
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initStorage() error {
	fs, err := storage.NewLocalFileStorage(c.config.Storage.AttachmentDir, c.logger)
	if err != nil {
		return err
	}
	c.fileStorage = fs
	c.signer = signature.NewHMACSigner(c.config.Workflow.SigningKey)
	c.workbook = report.NewWorkbookWriter(c.logger)
	return nil
}

func (c *Container) initNotifier() error {
	bundle, err := ProvideNotifier(c.config.Notification, c.config.Resilience, c.logger)
	if err != nil {
		return err
	}
	c.notifier = bundle.Notifier
	c.nats = bundle.NATS
	return nil
}

func (c *Container) initDirectory() error {
	c.resolver = workflow.NewDirectoryResolver(
		c.repositories.Users,
		c.repositories.Departments,
		c.config.Workflow.SingletonRoles,
	)
	c.registry = ProvideRegistry(c.repositories, c.db, c.logger)
	return nil
}

func (c *Container) initDispatcherAndWorkflow() error {
	c.dispatcher = ProvideDispatcher(c.config.Workflow, c.logger)

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Resolver:   c.resolver,
		Dispatcher: c.dispatcher,
		Signer:     c.signer,
		Observer:   c.metrics,
		Config:     c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = engine
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Storage:    c.fileStorage,
		Signer:     c.signer,
		Dispatcher: c.dispatcher,
		Notifier:   c.notifier,
		Config:     c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	c.services.Notification.Register(c.dispatcher)
	return nil
}

func (c *Container) initSeed() error {
	if c.config.Seed.Path == "" {
		return nil
	}
	loader := seed.NewLoader(
		c.repositories.Departments,
		c.repositories.Users,
		c.repositories.DocumentTypes,
		c.db,
		c.registry,
		c.logger,
	)
	result, err := loader.LoadFile(c.ctx, c.config.Seed.Path)
	if err != nil {
		return err
	}
	c.logger.Info("Seed data loaded",
		zap.String("path", c.config.Seed.Path),
		zap.Int("principals", result.Principals),
		zap.Int("steps_added", result.StepsAdded))
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:    c.repositories,
		Notifier: c.notifier,
		Recorder: c.metrics,
		Config:   c.config.Worker,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Registry returns the route registry.
func (c *Container) Registry() *route.Registry {
	return c.registry
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the prometheus collectors.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// Workbook returns the statistics spreadsheet writer.
func (c *Container) Workbook() *report.WorkbookWriter {
	return c.workbook
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
