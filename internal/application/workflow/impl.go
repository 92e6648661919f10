package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/docflow/internal/application/dispatcher"
	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

const tracerName = "github.com/garyjia/docflow/workflow"

// Deps are the collaborators the engine requires
type Deps struct {
	Documents   port.DocumentRepository
	Assignments port.AssignmentRepository
	Logs        port.LogRepository
	Routes      port.RouteRepository
	Users       port.UserRepository
	Sequences   port.SequenceRepository
	TxManager   port.TransactionManager
	Resolver    port.ApproverResolver
	Logger      Logger
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	documents   port.DocumentRepository
	assignments port.AssignmentRepository
	logs        port.LogRepository
	routes      port.RouteRepository
	users       port.UserRepository
	sequences   port.SequenceRepository
	txManager   port.TransactionManager
	resolver    port.ApproverResolver
	logger      Logger

	dispatcher dispatcher.Dispatcher
	signer     port.Signer
	observer   port.TransitionObserver
	tracer     trace.Tracer
	now        func() time.Time
	timeout    time.Duration
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher used for post-commit events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithSigner sets the signer for audit log entries
func WithSigner(s port.Signer) EngineOption {
	return func(e *engineImpl) {
		e.signer = s
	}
}

// WithObserver sets a transition observer (metrics)
func WithObserver(o port.TransitionObserver) EngineOption {
	return func(e *engineImpl) {
		e.observer = o
	}
}

// WithTracer overrides the OpenTelemetry tracer
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = t
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithOperationTimeout bounds every operation including its persistence calls
func WithOperationTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.timeout = d
	}
}

// NewEngine creates a new workflow engine
func NewEngine(deps Deps, opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		documents:   deps.Documents,
		assignments: deps.Assignments,
		logs:        deps.Logs,
		routes:      deps.Routes,
		users:       deps.Users,
		sequences:   deps.Sequences,
		txManager:   deps.TxManager,
		resolver:    deps.Resolver,
		logger:      deps.Logger,
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		timeout:     5 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// txScope collects side effects of one transaction; events are published only after commit
type txScope struct {
	events []*event.Event
}

func (s *txScope) emit(eventType event.Type, documentID int64, payload map[string]interface{}) {
	s.events = append(s.events, event.NewEvent(eventType, documentID, payload))
}

// run executes fn in one bounded transaction, then publishes the collected events
func (e *engineImpl) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, scope *txScope) error) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var scope *txScope
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		scope = &txScope{}
		return fn(txCtx, scope)
	})
	if err != nil {
		err = classify(ctx, err)
	}

	outcome := "success"
	if err != nil {
		outcome = string(domainwf.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if e.observer != nil {
		e.observer.ObserveTransition(op, outcome, time.Since(start))
	}

	if err != nil {
		e.logger.Error("Workflow operation failed",
			"operation", op,
			"code", outcome,
			"error", err,
		)
		return err
	}

	if e.dispatcher != nil {
		for _, evt := range scope.events {
			e.dispatcher.DispatchAsync(ctx, evt)
		}
	}
	return nil
}

// classify maps timeouts and cancellations to the retryable dependency error
func classify(ctx context.Context, err error) error {
	if domainwf.CodeOf(err) != domainwf.CodeInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domainwf.ErrDependencyUnavailable, err)
	}
	return err
}

// appendLog writes one signed audit entry. A nil actor marks a system entry.
func (e *engineImpl) appendLog(ctx context.Context, entry *entity.WorkflowLog) error {
	actor := "system"
	if entry.ActorID != nil {
		actor = strconv.FormatInt(*entry.ActorID, 10)
	}
	if e.signer != nil {
		entry.Signature = e.signer.Sign(
			actor,
			strconv.FormatInt(entry.DocumentID, 10),
			entry.Action,
			entry.Timestamp.UTC().Format(time.RFC3339Nano),
		)
	}
	if err := e.logs.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append %s log entry: %w", entry.Action, err)
	}
	return nil
}

func (e *engineImpl) clock() time.Time {
	return e.now().UTC()
}

func documentAttrs(documentID int64, actor entity.Principal) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("document.id", documentID),
		attribute.Int64("actor.id", actor.ID),
		attribute.String("actor.role", actor.Role),
	}
}

func assignmentAttrs(assignmentID int64, actor entity.Principal) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("assignment.id", assignmentID),
		attribute.Int64("actor.id", actor.ID),
	}
}

func invalidTransition(trigger domainwf.Trigger, status string) error {
	return fmt.Errorf("%w: cannot %s from %s", domainwf.ErrInvalidTransition, trigger, status)
}

func int64Ptr(v int64) *int64 {
	return &v
}

// FormatRegistrationNumber renders the YYYY-NNNNN registration number
func FormatRegistrationNumber(year int, seq int64) string {
	return fmt.Sprintf("%d-%05d", year, seq)
}

func registrationSequence(year int) string {
	return fmt.Sprintf("registration:%d", year)
}
