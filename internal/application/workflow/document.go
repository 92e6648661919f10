package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/docflow/internal/application/route"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/event"
	domainwf "github.com/garyjia/docflow/internal/domain/workflow"
)

// expectation is the document state a request was issued against. Zero fields are not checked.
type expectation struct {
	version int64
	step    int
}

func (x expectation) check(doc *entity.Document) error {
	if x.version != 0 && doc.Version != x.version {
		return fmt.Errorf("%w: document %d is at version %d, request expected %d",
			domainwf.ErrConcurrentModification, doc.ID, doc.Version, x.version)
	}
	if x.step != 0 && doc.CurrentStep != x.step {
		return fmt.Errorf("%w: document %d is at step %d, request decides step %d",
			domainwf.ErrConcurrentModification, doc.ID, doc.CurrentStep, x.step)
	}
	return nil
}

func decisionExpectation(req DecisionRequest) expectation {
	return expectation{version: req.ExpectedVersion, step: req.Step}
}

// requireDecisionTarget rejects approve and reject requests that do not say which state they decide.
func requireDecisionTarget(req DecisionRequest) error {
	if req.Step < 0 || req.ExpectedVersion < 0 {
		return domainwf.Validation("step and version must not be negative")
	}
	if req.Step == 0 && req.ExpectedVersion == 0 {
		return domainwf.Validation("the decided step or the document version is required")
	}
	return nil
}

// loadDocument fetches a document, checks the request expectation, and positions its
// lifecycle machine, returning ErrInvalidTransition when trigger is not permitted from its status.
func (e *engineImpl) loadDocument(ctx context.Context, id int64, trigger domainwf.Trigger, expect expectation) (*entity.Document, domainwf.StateMachine, error) {
	doc, err := e.documents.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := expect.check(doc); err != nil {
		return nil, nil, err
	}
	m, err := domainwf.NewDocumentMachine(doc.Status)
	if err != nil {
		return nil, nil, err
	}
	if !m.CanFire(trigger) {
		return nil, nil, invalidTransition(trigger, doc.Status)
	}
	return doc, m, nil
}

// Submit moves a draft into the first approval step
func (e *engineImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.Document, error) {
	var result *entity.Document
	err := e.run(ctx, "submit", documentAttrs(req.DocumentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		doc, m, err := e.loadDocument(ctx, req.DocumentID, domainwf.TriggerSubmit, expectation{version: req.ExpectedVersion})
		if err != nil {
			return err
		}
		if doc.CreatorID != req.Actor.ID {
			return fmt.Errorf("%w: only the creator may submit document %d", domainwf.ErrUnauthorized, doc.ID)
		}

		steps, err := e.routes.ListByType(ctx, doc.DocumentTypeID)
		if err != nil {
			return fmt.Errorf("failed to load route: %w", err)
		}
		if len(steps) == 0 {
			return fmt.Errorf("%w: document type %d", domainwf.ErrNoRouteConfigured, doc.DocumentTypeID)
		}
		route.SortSteps(steps)
		first := steps[0]

		approver, err := e.resolver.ResolveApprover(ctx, doc, first.ApproverRole)
		if err != nil {
			return err
		}
		if err := m.Fire(ctx, domainwf.TriggerSubmit); err != nil {
			return err
		}

		now := e.clock()
		if doc.RegistrationNumber == "" {
			seq, err := e.sequences.Next(ctx, registrationSequence(now.Year()))
			if err != nil {
				return fmt.Errorf("failed to allocate registration number: %w", err)
			}
			doc.RegistrationNumber = FormatRegistrationNumber(now.Year(), seq)
		}
		doc.Status = m.State().String()
		doc.CurrentStep = first.StepOrder
		doc.CurrentApproverID = int64Ptr(approver.ID)

		if err := e.documents.Update(ctx, doc); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID: doc.ID,
			ActorID:    int64Ptr(req.Actor.ID),
			Action:     entity.ActionSubmit,
			Timestamp:  now,
		}); err != nil {
			return err
		}

		scope.emit(event.TypeDocumentSubmitted, doc.ID, map[string]interface{}{
			event.KeyActorID:     req.Actor.ID,
			event.KeyRecipientID: approver.ID,
			event.KeyStep:        first.StepOrder,
			event.KeyTitle:       doc.Title,
		})
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document submitted",
		"document_id", result.ID,
		"registration_number", result.RegistrationNumber,
		"approver_id", *result.CurrentApproverID,
	)
	return result, nil
}

// Approve records the current approver's approval and advances the route
func (e *engineImpl) Approve(ctx context.Context, req DecisionRequest) (*entity.Document, error) {
	var result *entity.Document
	err := e.run(ctx, "approve", documentAttrs(req.DocumentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		if err := requireDecisionTarget(req); err != nil {
			return err
		}
		doc, m, err := e.loadDocument(ctx, req.DocumentID, domainwf.TriggerApprove, decisionExpectation(req))
		if err != nil {
			return err
		}
		if !doc.IsCurrentApprover(req.Actor.ID) && !req.Actor.IsAdmin() {
			return fmt.Errorf("%w: actor %d is not the current approver of document %d",
				domainwf.ErrUnauthorized, req.Actor.ID, doc.ID)
		}

		steps, err := e.routes.ListByType(ctx, doc.DocumentTypeID)
		if err != nil {
			return fmt.Errorf("failed to load route: %w", err)
		}
		next := route.Next(steps, doc.CurrentStep)

		var approver *entity.User
		if next != nil {
			approver, err = e.resolver.ResolveApprover(ctx, doc, next.ApproverRole)
			if err != nil {
				return err
			}
		}
		if err := m.Fire(domainwf.WithNextStep(ctx, next != nil), domainwf.TriggerApprove); err != nil {
			return err
		}

		now := e.clock()
		doc.Status = m.State().String()
		if next != nil {
			doc.CurrentStep = next.StepOrder
			doc.CurrentApproverID = int64Ptr(approver.ID)
		} else {
			doc.CurrentStep = 0
			doc.CurrentApproverID = nil
		}

		if err := e.documents.Update(ctx, doc); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID: doc.ID,
			ActorID:    int64Ptr(req.Actor.ID),
			Action:     entity.ActionApprove,
			Comment:    req.Comment,
			FileRef:    req.FileRef,
			Timestamp:  now,
		}); err != nil {
			return err
		}

		if next != nil {
			scope.emit(event.TypeDocumentStepAdvanced, doc.ID, map[string]interface{}{
				event.KeyActorID:     req.Actor.ID,
				event.KeyRecipientID: approver.ID,
				event.KeyStep:        next.StepOrder,
				event.KeyTitle:       doc.Title,
			})
		} else {
			scope.emit(event.TypeDocumentApproved, doc.ID, map[string]interface{}{
				event.KeyActorID:     req.Actor.ID,
				event.KeyRecipientID: doc.CreatorID,
				event.KeyTitle:       doc.Title,
			})
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document approved",
		"document_id", result.ID,
		"status", result.Status,
		"step", result.CurrentStep,
	)
	return result, nil
}

// Reject ends the approval cycle. A comment is required.
func (e *engineImpl) Reject(ctx context.Context, req DecisionRequest) (*entity.Document, error) {
	var result *entity.Document
	err := e.run(ctx, "reject", documentAttrs(req.DocumentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		if err := requireDecisionTarget(req); err != nil {
			return err
		}
		doc, m, err := e.loadDocument(ctx, req.DocumentID, domainwf.TriggerReject, decisionExpectation(req))
		if err != nil {
			return err
		}
		if !doc.IsCurrentApprover(req.Actor.ID) && !req.Actor.IsAdmin() {
			return fmt.Errorf("%w: actor %d is not the current approver of document %d",
				domainwf.ErrUnauthorized, req.Actor.ID, doc.ID)
		}
		if strings.TrimSpace(req.Comment) == "" {
			return domainwf.Validation("a rejection comment is required")
		}
		if err := m.Fire(ctx, domainwf.TriggerReject); err != nil {
			return err
		}

		now := e.clock()
		doc.Status = m.State().String()
		doc.CurrentApproverID = nil
		doc.CurrentStep = 0

		if err := e.documents.Update(ctx, doc); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID: doc.ID,
			ActorID:    int64Ptr(req.Actor.ID),
			Action:     entity.ActionReject,
			Comment:    req.Comment,
			FileRef:    req.FileRef,
			Timestamp:  now,
		}); err != nil {
			return err
		}

		scope.emit(event.TypeDocumentRejected, doc.ID, map[string]interface{}{
			event.KeyActorID:     req.Actor.ID,
			event.KeyRecipientID: doc.CreatorID,
			event.KeyTitle:       doc.Title,
			event.KeyComment:     req.Comment,
		})
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document rejected", "document_id", result.ID, "actor_id", req.Actor.ID)
	return result, nil
}

// Reopen returns a rejected document to draft. The registration number is kept.
func (e *engineImpl) Reopen(ctx context.Context, req DecisionRequest) (*entity.Document, error) {
	var result *entity.Document
	err := e.run(ctx, "reopen", documentAttrs(req.DocumentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		doc, m, err := e.loadDocument(ctx, req.DocumentID, domainwf.TriggerReopen, decisionExpectation(req))
		if err != nil {
			return err
		}
		if doc.CreatorID != req.Actor.ID {
			return fmt.Errorf("%w: only the creator may reopen document %d", domainwf.ErrUnauthorized, doc.ID)
		}
		if err := m.Fire(ctx, domainwf.TriggerReopen); err != nil {
			return err
		}

		doc.Status = m.State().String()
		if err := e.documents.Update(ctx, doc); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID: doc.ID,
			ActorID:    int64Ptr(req.Actor.ID),
			Action:     entity.ActionReturned,
			Comment:    req.Comment,
			Timestamp:  e.clock(),
		}); err != nil {
			return err
		}

		scope.emit(event.TypeDocumentReopened, doc.ID, map[string]interface{}{
			event.KeyActorID: req.Actor.ID,
			event.KeyTitle:   doc.Title,
		})
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document reopened", "document_id", result.ID)
	return result, nil
}

// Archive retires a rejected or completed document. Admin only.
func (e *engineImpl) Archive(ctx context.Context, req DecisionRequest) (*entity.Document, error) {
	var result *entity.Document
	err := e.run(ctx, "archive", documentAttrs(req.DocumentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		doc, m, err := e.loadDocument(ctx, req.DocumentID, domainwf.TriggerArchive, decisionExpectation(req))
		if err != nil {
			return err
		}
		if !req.Actor.IsAdmin() {
			return fmt.Errorf("%w: archiving requires the admin role", domainwf.ErrUnauthorized)
		}
		if err := m.Fire(ctx, domainwf.TriggerArchive); err != nil {
			return err
		}

		doc.Status = m.State().String()
		if err := e.documents.Update(ctx, doc); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID: doc.ID,
			ActorID:    int64Ptr(req.Actor.ID),
			Action:     entity.ActionArchive,
			Comment:    req.Comment,
			Timestamp:  e.clock(),
		}); err != nil {
			return err
		}

		scope.emit(event.TypeDocumentArchived, doc.ID, map[string]interface{}{
			event.KeyActorID: req.Actor.ID,
		})
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document archived", "document_id", result.ID)
	return result, nil
}

// Assign delegates execution work on an approved or in-progress document
func (e *engineImpl) Assign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	var result *AssignResult
	err := e.run(ctx, "assign", documentAttrs(req.DocumentID, req.Actor), func(ctx context.Context, scope *txScope) error {
		doc, m, err := e.loadDocument(ctx, req.DocumentID, domainwf.TriggerAssign, expectation{version: req.ExpectedVersion})
		if err != nil {
			return err
		}
		if !req.Actor.IsManager() {
			return fmt.Errorf("%w: role %q may not assign work", domainwf.ErrUnauthorized, req.Actor.Role)
		}
		if strings.TrimSpace(req.Instruction) == "" {
			return domainwf.Validation("an instruction is required")
		}
		if req.AssigneeID <= 0 {
			return domainwf.Validation("an assignee is required")
		}
		assignee, err := e.users.GetByID(ctx, req.AssigneeID)
		if err != nil {
			return err
		}
		if err := m.Fire(ctx, domainwf.TriggerAssign); err != nil {
			return err
		}

		now := e.clock()
		a := &entity.Assignment{
			DocumentID:   doc.ID,
			AssigneeID:   assignee.ID,
			AssignedByID: req.Actor.ID,
			Instruction:  req.Instruction,
			Deadline:     req.Deadline,
			Status:       entity.AssignmentStatusPending,
			CreatedAt:    now,
		}
		if err := e.assignments.Create(ctx, a); err != nil {
			return fmt.Errorf("failed to create assignment: %w", err)
		}

		// Always written so that a concurrent assign on the same document conflicts.
		doc.Status = m.State().String()
		if err := e.documents.Update(ctx, doc); err != nil {
			return err
		}
		if err := e.appendLog(ctx, &entity.WorkflowLog{
			DocumentID:   doc.ID,
			AssignmentID: int64Ptr(a.ID),
			ActorID:      int64Ptr(req.Actor.ID),
			Action:       entity.ActionAssign,
			Comment:      req.Instruction,
			Timestamp:    now,
		}); err != nil {
			return err
		}

		scope.emit(event.TypeAssignmentCreated, doc.ID, map[string]interface{}{
			event.KeyAssignmentID: a.ID,
			event.KeyActorID:      req.Actor.ID,
			event.KeyRecipientID:  assignee.ID,
			event.KeyTitle:        doc.Title,
		})
		result = &AssignResult{Assignment: a, Document: doc}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Assignment created",
		"document_id", result.Document.ID,
		"assignment_id", result.Assignment.ID,
		"assignee_id", result.Assignment.AssigneeID,
	)
	return result, nil
}
