package orchestrator

import (
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/executor"
	"github.com/convomesh/convomesh/logging"
)

// DefaultApologyMessage is sent when an escalation is customer-visible and no
// custom message is configured.
const DefaultApologyMessage = "I'm sorry, I wasn't able to resolve this for you. A member of our team will take over from here."

// EscalateOptions controls the side effects of a single escalation.
type EscalateOptions struct {
	// SendApology makes the escalation customer-visible: an apology message
	// is sent before the handoff.
	SendApology bool
	// ApologyMessage overrides DefaultApologyMessage.
	ApologyMessage string
	// CaseStatus, when non-empty, marks the associated case record with a
	// terminal status for downstream reporting.
	CaseStatus string
}

// Escalator moves conversations out of automation and into human hands. It
// never propagates its own failures: escalation runs inside failure paths,
// so a second failure is logged and swallowed rather than crashing the
// dispatch loop.
type Escalator struct {
	exec   *executor.ActionExecutor
	cases  core.CaseMarker
	logger logging.Logger
}

// EscalatorOptions configures an Escalator.
type EscalatorOptions struct {
	// Cases, when set, lets escalations mark case records terminal.
	Cases core.CaseMarker
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewEscalator constructs an Escalator over the given executor.
func NewEscalator(exec *executor.ActionExecutor, optFns ...func(o *EscalatorOptions)) *Escalator {
	opts := EscalatorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Escalator{exec: exec, cases: opts.Cases, logger: opts.Logger}
}

// EscalateConversation transitions the conversation to ESCALATED with no
// owner, optionally sending an apology and handing off to a human first. A
// conversation that already reached a terminal status is left untouched, so
// an escalation can never overwrite a close.
func (e *Escalator) EscalateConversation(octx *core.OrchestratorContext, reason string, opts EscalateOptions) {
	log := e.logger
	log.Info("escalating conversation",
		"conversation_id", octx.ConversationID,
		"reason", reason,
		"status", octx.CurrentStatus)

	if octx.CurrentStatus.IsTerminal() {
		log.Debug("conversation already terminal, skipping escalation",
			"conversation_id", octx.ConversationID,
			"status", octx.CurrentStatus)
		return
	}

	message := opts.ApologyMessage
	if message == "" {
		message = DefaultApologyMessage
	}
	if opts.SendApology {
		octx.AddAction(core.SendMessage{Preview: message})
	}
	octx.AddAction(core.TransferToHuman{Reason: reason, Message: message})
	if err := e.exec.Execute(octx); err != nil {
		log.Error("escalation side effects failed",
			"conversation_id", octx.ConversationID, "error", err)
	}

	if err := e.exec.UpdateState(octx, core.StatusEscalated, core.OwnerNone, false); err != nil {
		log.Error("escalation state write failed",
			"conversation_id", octx.ConversationID, "error", err)
		return
	}

	if opts.CaseStatus != "" && e.cases != nil {
		if err := e.cases.MarkCaseTerminal(octx.Context, octx.ConversationID, opts.CaseStatus); err != nil {
			log.Warn("case terminal status write failed",
				"conversation_id", octx.ConversationID,
				"case_status", opts.CaseStatus,
				"error", err)
		}
	}
}

// HandleAgentError logs an agent failure and escalates with an apology.
func (e *Escalator) HandleAgentError(octx *core.OrchestratorContext, agentName string, err error) {
	e.logger.Error("agent failed",
		"conversation_id", octx.ConversationID,
		"agent", agentName,
		"error", err)
	e.EscalateConversation(octx, "agent error: "+agentName, EscalateOptions{
		SendApology: true,
		CaseStatus:  core.CaseStatusError,
	})
}
