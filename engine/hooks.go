package engine

import (
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
	"github.com/convomesh/convomesh/orchestrator"
	"github.com/convomesh/convomesh/routing"
)

// Hooks are optional callbacks fired at the engine's observation points.
// They run on the worker goroutine processing the event and must not block.
type Hooks struct {
	// OnAdmission fires after the admission controller returns a decision.
	OnAdmission func(ev core.InboundEvent, decision routing.Decision)
	// OnDispatch fires after the dispatcher finishes one event.
	OnDispatch func(ev core.InboundEvent, outcome orchestrator.Outcome)
	// OnError fires when processing an event fails or panics.
	OnError func(ev core.InboundEvent, err error)
}

// MetricsHooks returns hooks that feed the given metrics. Compose with other
// hooks via Merge.
func MetricsHooks(m *observe.Metrics) Hooks {
	return Hooks{
		OnAdmission: func(_ core.InboundEvent, decision routing.Decision) {
			m.RecordAdmission(string(decision.Outcome))
		},
		OnDispatch: func(_ core.InboundEvent, outcome orchestrator.Outcome) {
			m.RecordDispatch(outcome.Agent, string(outcome.Status), outcome.Escalated, outcome.Duration)
		},
	}
}

// LoggingHooks returns hooks that record admission decisions and dispatches
// through the given ConvoLogger's domain helpers.
func LoggingHooks(l *logging.ConvoLogger) Hooks {
	return Hooks{
		OnAdmission: func(ev core.InboundEvent, decision routing.Decision) {
			l.WithConversation(ev.ExternalConversationID, ev.ID).
				LogAdmission(decision.RuleType, decision.Target, string(decision.Outcome))
		},
		OnDispatch: func(ev core.InboundEvent, outcome orchestrator.Outcome) {
			l.WithConversation(ev.ExternalConversationID, ev.ID).
				LogDispatch(string(outcome.Status), outcome.Agent, outcome.Duration, !outcome.Escalated, nil)
		},
		OnError: func(ev core.InboundEvent, err error) {
			l.WithConversation(ev.ExternalConversationID, ev.ID).
				ErrorWithStack(err, "event processing failed")
		},
	}
}

// Merge combines multiple hook sets. Every non-nil callback fires in the
// order given.
func Merge(hooks ...Hooks) Hooks {
	var merged Hooks
	for _, h := range hooks {
		h := h
		if h.OnAdmission != nil {
			prev := merged.OnAdmission
			merged.OnAdmission = func(ev core.InboundEvent, d routing.Decision) {
				if prev != nil {
					prev(ev, d)
				}
				h.OnAdmission(ev, d)
			}
		}
		if h.OnDispatch != nil {
			prev := merged.OnDispatch
			merged.OnDispatch = func(ev core.InboundEvent, o orchestrator.Outcome) {
				if prev != nil {
					prev(ev, o)
				}
				h.OnDispatch(ev, o)
			}
		}
		if h.OnError != nil {
			prev := merged.OnError
			merged.OnError = func(ev core.InboundEvent, err error) {
				if prev != nil {
					prev(ev, err)
				}
				h.OnError(ev, err)
			}
		}
	}
	return merged
}
