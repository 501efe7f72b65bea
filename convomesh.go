// Package convomesh provides a high-level façade over the routing admission
// controller and the conversation orchestration engine. Most applications
// interact with this package by:
//  1. Creating a ConvoMesh via New() (optionally overriding the default
//     in-memory stores and collaborators)
//  2. Starting it with Start()
//  3. Feeding inbound conversation events through Submit()
//
// The façade wires the admission controller, the three phase agents and the
// dispatcher together over a shared store set. All defaults are safe for
// local development and testing; production deployments typically supply the
// postgres-backed stores, a real messenger/handoff pair and a structured
// logger.
package convomesh

import (
	"context"
	"time"

	"github.com/convomesh/convomesh/agent"
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/engine"
	"github.com/convomesh/convomesh/executor"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
	"github.com/convomesh/convomesh/orchestrator"
	"github.com/convomesh/convomesh/reasoner"
	"github.com/convomesh/convomesh/routing"
	"github.com/convomesh/convomesh/store"
)

// Options configures a ConvoMesh instance.
type Options struct {
	// Reasoner backs the three phase agents. Defaults to a MockReasoner,
	// which is only useful for tests and local exploration.
	Reasoner reasoner.Reasoner

	// Stores default to a shared in-memory implementation.
	Conversations core.ConversationStore
	Rules         core.RuleStore
	Processed     core.ProcessedEventStore

	// Collaborators. Messenger and Handoff default to no-ops that report
	// success; Resolver defaults to resolving every target to itself.
	Messenger core.Messenger
	Handoff   core.Handoff
	Resolver  core.TargetResolver
	Cases     core.CaseMarker

	// Optional context sources for dispatches.
	Findings    core.FindingsSource
	Transcripts core.TranscriptSource

	// Routing behavior.
	DefaultTarget string
	LedgerTTL     time.Duration
	SweepInterval time.Duration

	// Engine behavior.
	Workers               int
	MaxInteractions       int
	AutomationHandlerName string
	Hooks                 engine.Hooks

	// Agent behavior.
	MatchThreshold float64
	CallTimeout    time.Duration

	// Metrics enables Prometheus instrumentation across every component
	// when set. Nil disables recording.
	Metrics *observe.Metrics

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ConvoMesh is the high-level façade aggregating the admission controller,
// the orchestration engine and their shared stores.
type ConvoMesh struct {
	opts      Options
	engine    *engine.Engine
	admission *routing.AdmissionController
	tracker   *routing.IdempotencyTracker
}

// New creates a ConvoMesh instance with optional overrides. Any unset store
// or collaborator is initialized with an in-memory or no-op implementation.
func New(optFns ...func(o *Options)) *ConvoMesh {
	mem := store.NewInMemoryStore()
	opts := Options{
		Reasoner:              reasoner.NewMockReasoner(),
		Conversations:         mem,
		Rules:                 mem,
		Processed:             mem,
		Messenger:             nopMessenger{},
		Handoff:               nopHandoff{},
		Resolver:              identityResolver{},
		LedgerTTL:             routing.DefaultLedgerTTL,
		SweepInterval:         routing.DefaultSweepInterval,
		Workers:               engine.DefaultWorkers,
		MaxInteractions:       engine.DefaultMaxInteractions,
		AutomationHandlerName: "convomesh",
		MatchThreshold:        agent.DefaultMatchThreshold,
		CallTimeout:           agent.DefaultCallTimeout,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	tracker := routing.NewIdempotencyTracker(opts.Processed, func(o *routing.TrackerOptions) {
		o.TTL = opts.LedgerTTL
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})
	admission := routing.NewAdmissionController(opts.Rules, opts.Conversations, tracker, opts.Resolver,
		func(o *routing.AdmissionControllerOptions) {
			o.DefaultTarget = opts.DefaultTarget
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		})

	exec := executor.New(opts.Conversations, opts.Messenger, opts.Handoff, func(o *executor.Options) {
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})
	escalator := orchestrator.NewEscalator(exec, func(o *orchestrator.EscalatorOptions) {
		o.Cases = opts.Cases
		o.Logger = opts.Logger
	})

	agentOpts := func(o *agent.Options) {
		o.CallTimeout = opts.CallTimeout
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	}
	demandFinder := agent.NewDemandFinder(opts.Reasoner, func(o *agent.DemandFinderOptions) {
		o.MatchThreshold = opts.MatchThreshold
		agentOpts(&o.Options)
	})
	solutionProvider := agent.NewSolutionProvider(opts.Reasoner, agentOpts)
	closer := agent.NewCloser(opts.Reasoner, agentOpts)

	dispatcher := orchestrator.NewDispatcher(demandFinder, solutionProvider, closer, exec, escalator,
		func(o *orchestrator.DispatcherOptions) {
			o.Logger = opts.Logger
		})

	hooks := opts.Hooks
	if opts.Metrics != nil {
		hooks = engine.Merge(engine.MetricsHooks(opts.Metrics), hooks)
	}

	eng := engine.New(opts.Conversations, admission, dispatcher, func(o *engine.Options) {
		o.Workers = opts.Workers
		o.MaxInteractions = opts.MaxInteractions
		o.AutomationHandlerName = opts.AutomationHandlerName
		o.Findings = opts.Findings
		o.Transcripts = opts.Transcripts
		o.Hooks = hooks
		o.Metrics = opts.Metrics
		o.Logger = opts.Logger
	})

	return &ConvoMesh{opts: opts, engine: eng, admission: admission, tracker: tracker}
}

// Start makes the instance accept events and launches the ledger sweeper.
func (m *ConvoMesh) Start(ctx context.Context) {
	m.engine.Start(ctx)
	m.tracker.StartSweeper(ctx, m.opts.SweepInterval)
}

// Submit enqueues one inbound event for processing.
func (m *ConvoMesh) Submit(ev core.InboundEvent) error { return m.engine.Submit(ev) }

// Shutdown stops accepting events and waits for queued work to finish.
func (m *ConvoMesh) Shutdown(ctx context.Context) error { return m.engine.Shutdown(ctx) }

// Admission exposes the admission controller for direct evaluation, useful
// when routing runs outside the engine's event flow.
func (m *ConvoMesh) Admission() *routing.AdmissionController { return m.admission }

type nopMessenger struct{}

func (nopMessenger) Send(context.Context, core.SendRequest) (core.SendResult, error) {
	return core.SendResult{Sent: true}, nil
}

type nopHandoff struct{}

func (nopHandoff) TransferToHuman(context.Context, core.TransferRequest) error { return nil }

// identityResolver treats every logical target name as its own handler id.
type identityResolver struct{}

func (identityResolver) ResolveTarget(_ context.Context, name string) (*core.HandlerRef, error) {
	return &core.HandlerRef{ID: name, Name: name}, nil
}
