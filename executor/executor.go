package executor

import (
	"context"
	"fmt"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
)

// ActionExecutor applies agent actions through the external collaborators and
// writes orchestration state. All writes to orchestratorStatus,
// conversationOwner and waitingForCustomer go through it so that the
// per-conversation serialization in the engine is the only ordering concern.
type ActionExecutor struct {
	conversations core.ConversationStore
	messenger     core.Messenger
	handoff       core.Handoff
	logger        logging.Logger
	metrics       *observe.Metrics
}

// Options configures an ActionExecutor.
type Options struct {
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// Metrics is optional. Nil disables recording.
	Metrics *observe.Metrics
}

// New constructs an ActionExecutor over the given collaborators.
func New(conversations core.ConversationStore, messenger core.Messenger, handoff core.Handoff, optFns ...func(o *Options)) *ActionExecutor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ActionExecutor{
		conversations: conversations,
		messenger:     messenger,
		handoff:       handoff,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
}

// Execute performs every action accumulated on the context, in order. The
// first failing action aborts the remainder and is returned to the caller,
// which typically escalates. Send failures are not retried here.
func (e *ActionExecutor) Execute(octx *core.OrchestratorContext) error {
	for _, action := range octx.DrainActions() {
		switch a := action.(type) {
		case core.SendMessage:
			res, err := e.messenger.Send(octx.Context, core.SendRequest{
				ConversationID:         octx.ConversationID,
				ExternalConversationID: octx.ExternalConversationID,
				Message:                a.Preview,
				SuggestionID:           a.SuggestionID,
				InResponseTo:           a.InResponseTo,
			})
			if err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			if !res.Sent {
				return fmt.Errorf("send message rejected: %s", res.Reason)
			}
			e.logger.Debug("message sent",
				"conversation_id", octx.ConversationID,
				"suggestion_id", a.SuggestionID)
		case core.TransferToHuman:
			if err := e.handoff.TransferToHuman(octx.Context, core.TransferRequest{
				ConversationID: octx.ConversationID,
				Reason:         a.Reason,
				Message:        a.Message,
			}); err != nil {
				return fmt.Errorf("transfer to human: %w", err)
			}
			e.logger.Info("conversation handed off",
				"conversation_id", octx.ConversationID,
				"reason", a.Reason)
		default:
			return fmt.Errorf("unknown action type %T", action)
		}
	}
	return nil
}

// UpdateState writes the (status, owner, waitingForCustomer) triple and then
// updates the context snapshot so that any logic later in the same dispatch
// observes the new state. An owner transition the state machine does not
// allow is a programming error and is rejected before anything is written.
func (e *ActionExecutor) UpdateState(octx *core.OrchestratorContext, status core.OrchestratorStatus, owner core.Owner, waiting bool) error {
	if !status.Valid() {
		return fmt.Errorf("invalid orchestrator status %q", status)
	}
	if octx.CurrentStatus.IsTerminal() {
		return fmt.Errorf("conversation %d is %s, no further state writes allowed",
			octx.ConversationID, octx.CurrentStatus)
	}
	if !core.ValidOwnerTransition(octx.CurrentOwner, owner) {
		return fmt.Errorf("invalid owner transition %q -> %q", octx.CurrentOwner, owner)
	}
	if err := e.conversations.UpdateOrchestration(octx.Context, octx.ConversationID, status, owner, waiting); err != nil {
		return fmt.Errorf("update orchestration state: %w", err)
	}
	e.logger.Debug("orchestration state updated",
		"conversation_id", octx.ConversationID,
		"status", status,
		"owner", owner,
		"waiting_for_customer", waiting)
	octx.CurrentStatus = status
	octx.CurrentOwner = owner
	octx.WaitingForCustomer = waiting
	return nil
}

// CloseConversation marks the conversation closed in both dimensions: the
// orchestration triple moves to CLOSED with no owner, and the lifecycle
// fields record when and why.
func (e *ActionExecutor) CloseConversation(ctx context.Context, octx *core.OrchestratorContext, reason core.ClosedReason) error {
	if err := e.UpdateState(octx, core.StatusClosed, core.OwnerNone, false); err != nil {
		return err
	}
	if err := e.conversations.Close(ctx, octx.ConversationID, reason); err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	e.logger.Info("conversation closed",
		"conversation_id", octx.ConversationID,
		"reason", reason)
	e.metrics.RecordConversationClosed(string(reason))
	return nil
}
