package agent

import (
	"fmt"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/reasoner"
)

// DefaultMatchThreshold is the minimum confidence a candidate match needs
// before the demand is considered confirmed. Below it the demand finder asks
// a clarifying question instead.
const DefaultMatchThreshold = 0.7

// DemandFinderName identifies the demand finder agent.
const DemandFinderName = "demand_finder"

// DemandFinder determines whether the customer's need is understood well
// enough to proceed to solution providing, or whether a clarifying question
// must be asked back.
type DemandFinder struct {
	base
	matchThreshold float64
}

var _ core.Agent = (*DemandFinder)(nil)

// DemandFinderOptions configures a DemandFinder.
type DemandFinderOptions struct {
	Options
	// MatchThreshold overrides DefaultMatchThreshold.
	MatchThreshold float64
}

// NewDemandFinder constructs a DemandFinder over the given reasoner.
func NewDemandFinder(r reasoner.Reasoner, optFns ...func(o *DemandFinderOptions)) *DemandFinder {
	opts := DemandFinderOptions{
		Options:        defaultOptions(),
		MatchThreshold: DefaultMatchThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DemandFinder{
		base:           newBase(DemandFinderName, core.OwnerDemandFinder, r, func(o *Options) { *o = opts.Options }),
		matchThreshold: opts.MatchThreshold,
	}
}

// Process runs one demand-finding turn.
func (a *DemandFinder) Process(octx *core.OrchestratorContext) core.AgentResult {
	if !a.spend(octx) {
		return core.AgentResult{Success: true, MaxInteractionsReached: true}
	}

	decision, err := a.consult(octx)
	if err != nil {
		return core.FailureResult(fmt.Errorf("demand finding: %w", err))
	}

	var result core.AgentResult
	result.Success = true

	switch decision.Outcome {
	case reasoner.OutcomeConfirmed:
		if decision.Confidence < a.matchThreshold {
			a.logger.Debug("match below threshold, asking clarification",
				"conversation_id", octx.ConversationID,
				"confidence", decision.Confidence,
				"threshold", a.matchThreshold)
			result.NeedsClarification = true
			a.reply(octx, decision, &result)
			return result
		}
		result.DemandConfirmed = true
		octx.Findings.Demand = decision.Demand
		octx.Findings.RootCauseID = decision.MatchedCandidateID
		a.reply(octx, decision, &result)
	case reasoner.OutcomeNeedsClarification:
		result.NeedsClarification = true
		a.reply(octx, decision, &result)
	case reasoner.OutcomeContinue:
		a.reply(octx, decision, &result)
	case reasoner.OutcomeEscalate:
		return core.FailureResult(fmt.Errorf("reasoner requested escalation"))
	default:
		return core.FailureResult(fmt.Errorf("unexpected demand finder outcome %q", decision.Outcome))
	}
	return result
}
