package workflow

import (
	"context"
	"fmt"
)

type contextKey string

const nextStepKey contextKey = "workflow.next_step"

// WithNextStep records whether the route has a step after the one being approved.
// The document machine reads it to choose between staying pending and approving.
func WithNextStep(ctx context.Context, hasNext bool) context.Context {
	return context.WithValue(ctx, nextStepKey, hasNext)
}

func hasNextStep(ctx context.Context) bool {
	v, _ := ctx.Value(nextStepKey).(bool)
	return v
}

func isFinalStep(ctx context.Context) bool {
	return !hasNextStep(ctx)
}

var (
	documentBuilder   StateMachineBuilder
	assignmentBuilder StateMachineBuilder
)

// Built in init: the builders validate states while configuring.
func init() {
	documentBuilder = newDocumentBuilder()
	assignmentBuilder = newAssignmentBuilder()
}

func newDocumentBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	b.Configure(StatePending).
		PermitIf(TriggerApprove, StatePending, hasNextStep).
		PermitIf(TriggerApprove, StateApproved, isFinalStep).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateApproved).
		Permit(TriggerAssign, StateInProgress)

	b.Configure(StateInProgress).
		Permit(TriggerAssign, StateInProgress).
		Permit(TriggerAutoComplete, StateCompleted)

	b.Configure(StateRejected).
		Permit(TriggerReopen, StateDraft).
		Permit(TriggerArchive, StateArchived)

	b.Configure(StateCompleted).
		Permit(TriggerArchive, StateArchived)

	return b
}

func newAssignmentBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerAccept, StateAccepted).
		Permit(TriggerDecline, StateRejected)

	b.Configure(StateAccepted).
		Permit(TriggerStart, StateInProgress).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerDecline, StateRejected)

	b.Configure(StateInProgress).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerDecline, StateRejected)

	return b
}

func isAssignmentState(s State) bool {
	switch s {
	case StatePending, StateAccepted, StateInProgress, StateCompleted, StateRejected:
		return true
	}
	return false
}

// NewDocumentMachine returns a document lifecycle machine positioned at status.
func NewDocumentMachine(status string) (StateMachine, error) {
	state := State(status)
	if !state.IsValid() || state == StateAccepted {
		return nil, fmt.Errorf("%w: document status %q", ErrInvalidState, status)
	}
	return documentBuilder.Build(state), nil
}

// NewAssignmentMachine returns an assignment lifecycle machine positioned at status.
func NewAssignmentMachine(status string) (StateMachine, error) {
	state := State(status)
	if !isAssignmentState(state) {
		return nil, fmt.Errorf("%w: assignment status %q", ErrInvalidState, status)
	}
	return assignmentBuilder.Build(state), nil
}
