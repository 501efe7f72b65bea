package agent

import (
	"fmt"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/reasoner"
)

// CloserName identifies the closer agent.
const CloserName = "closer"

// Closer runs after a solution has been delivered. It asks whether anything
// else is needed, and either loops the conversation back into demand finding
// or closes it out.
type Closer struct {
	base
}

var _ core.Agent = (*Closer)(nil)

// NewCloser constructs a Closer over the given reasoner.
func NewCloser(r reasoner.Reasoner, optFns ...func(o *Options)) *Closer {
	return &Closer{base: newBase(CloserName, core.OwnerCloser, r, optFns...)}
}

// Process runs one closing turn.
func (a *Closer) Process(octx *core.OrchestratorContext) core.AgentResult {
	if !a.spend(octx) {
		return core.AgentResult{Success: true, MaxInteractionsReached: true}
	}

	decision, err := a.consult(octx)
	if err != nil {
		return core.FailureResult(fmt.Errorf("closing: %w", err))
	}

	var result core.AgentResult
	result.Success = true

	switch decision.Outcome {
	case reasoner.OutcomeClose:
		result.ConversationClosed = true
		a.reply(octx, decision, &result)
	case reasoner.OutcomeNewDemand:
		// The customer raised something new. The findings from the resolved
		// demand no longer apply.
		result.NewDemand = true
		octx.Findings = core.Findings{Demand: decision.Demand}
		a.reply(octx, decision, &result)
	case reasoner.OutcomeContinue:
		a.reply(octx, decision, &result)
	case reasoner.OutcomeEscalate:
		return core.FailureResult(fmt.Errorf("reasoner requested escalation"))
	default:
		return core.FailureResult(fmt.Errorf("unexpected closer outcome %q", decision.Outcome))
	}
	return result
}
