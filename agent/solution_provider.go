package agent

import (
	"fmt"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/reasoner"
)

// SolutionProviderName identifies the solution provider agent.
const SolutionProviderName = "solution_provider"

// SolutionProvider takes a confirmed demand and decides whether a known
// solution fully resolves it, whether a customer-facing message should be
// assembled instead of closing directly, or whether a human is needed.
type SolutionProvider struct {
	base
}

var _ core.Agent = (*SolutionProvider)(nil)

// NewSolutionProvider constructs a SolutionProvider over the given reasoner.
func NewSolutionProvider(r reasoner.Reasoner, optFns ...func(o *Options)) *SolutionProvider {
	return &SolutionProvider{base: newBase(SolutionProviderName, core.OwnerSolutionProvider, r, optFns...)}
}

// Process runs one solution-providing turn.
func (a *SolutionProvider) Process(octx *core.OrchestratorContext) core.AgentResult {
	if !a.spend(octx) {
		return core.AgentResult{Success: true, MaxInteractionsReached: true}
	}

	decision, err := a.consult(octx)
	if err != nil {
		return core.FailureResult(fmt.Errorf("solution providing: %w", err))
	}

	var result core.AgentResult
	result.Success = true

	switch decision.Outcome {
	case reasoner.OutcomeResolved:
		result.Resolved = true
		if decision.MatchedCandidateID != "" {
			octx.Findings.SolutionID = decision.MatchedCandidateID
		}
		a.reply(octx, decision, &result)
	case reasoner.OutcomeProposed:
		result.SolutionProposed = true
		if decision.MatchedCandidateID != "" {
			octx.Findings.SolutionID = decision.MatchedCandidateID
		}
		a.reply(octx, decision, &result)
	case reasoner.OutcomeNeedsClarification:
		result.NeedsClarification = true
		a.reply(octx, decision, &result)
	case reasoner.OutcomeContinue:
		a.reply(octx, decision, &result)
	case reasoner.OutcomeEscalate:
		return core.FailureResult(fmt.Errorf("reasoner requested escalation"))
	default:
		return core.FailureResult(fmt.Errorf("unexpected solution provider outcome %q", decision.Outcome))
	}
	return result
}
