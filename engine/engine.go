package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
	"github.com/convomesh/convomesh/orchestrator"
	"github.com/convomesh/convomesh/routing"
)

// ErrNotRunning is returned by Submit before Start or after Shutdown.
var ErrNotRunning = errors.New("engine is not running")

// DefaultWorkers is the default bound on concurrently processed events.
const DefaultWorkers = 8

// DefaultMaxInteractions is the default automation budget per event.
const DefaultMaxInteractions = 10

// DefaultHistoryLimit is how many recent transcript messages are loaded into
// each dispatch context.
const DefaultHistoryLimit = 20

// Options configures an Engine.
type Options struct {
	// Workers bounds how many events are processed concurrently across all
	// conversations. Defaults to DefaultWorkers.
	Workers int
	// MaxInteractions bounds the reasoner calls spent per event before the
	// conversation escalates. Zero means unlimited.
	MaxInteractions int
	// AutomationHandlerName is the handler name under which the orchestrator
	// runs. Events on conversations assigned to any other handler skip
	// dispatch.
	AutomationHandlerName string
	// HistoryLimit bounds the transcript slice loaded per dispatch.
	// Defaults to DefaultHistoryLimit.
	HistoryLimit int
	// Findings optionally supplies accumulated findings for the
	// conversation.
	Findings core.FindingsSource
	// Transcripts optionally supplies recent message history.
	Transcripts core.TranscriptSource
	// Hooks fire at the engine's observation points.
	Hooks Hooks
	// Metrics is optional. Nil disables queue instrumentation.
	Metrics *observe.Metrics
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine is the event intake for the routing and orchestration core. Each
// inbound event is queued under its conversation id; a per-conversation
// drain goroutine processes that queue strictly in order while a semaphore
// bounds total concurrency.
type Engine struct {
	conversations core.ConversationStore
	admission     *routing.AdmissionController
	dispatcher    *orchestrator.Dispatcher

	workers               int
	maxInteractions       int
	automationHandlerName string
	historyLimit          int
	findings              core.FindingsSource
	transcripts           core.TranscriptSource
	hooks                 Hooks
	metrics               *observe.Metrics
	logger                logging.Logger

	mu      sync.Mutex
	queues  map[string][]core.InboundEvent
	active  map[string]bool
	running bool
	ctx     context.Context
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New constructs an Engine over the admission controller and dispatcher.
func New(
	conversations core.ConversationStore,
	admission *routing.AdmissionController,
	dispatcher *orchestrator.Dispatcher,
	optFns ...func(o *Options),
) *Engine {
	opts := Options{
		Workers:               DefaultWorkers,
		MaxInteractions:       DefaultMaxInteractions,
		AutomationHandlerName: "convomesh",
		HistoryLimit:          DefaultHistoryLimit,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Engine{
		conversations:         conversations,
		admission:             admission,
		dispatcher:            dispatcher,
		workers:               opts.Workers,
		maxInteractions:       opts.MaxInteractions,
		automationHandlerName: opts.AutomationHandlerName,
		historyLimit:          opts.HistoryLimit,
		findings:              opts.Findings,
		transcripts:           opts.Transcripts,
		hooks:                 opts.Hooks,
		metrics:               opts.Metrics,
		logger:                opts.Logger,
		queues:                map[string][]core.InboundEvent{},
		active:                map[string]bool{},
		sem:                   make(chan struct{}, opts.Workers),
	}
}

// Start makes the engine accept events. ctx is the base context for all
// event processing; cancelling it aborts in-flight collaborator calls.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.ctx = ctx
	e.running = true
	e.logger.Info("engine started", "workers", e.workers)
}

// Submit enqueues one inbound event. Events with the same external
// conversation id are processed in submission order; events for different
// conversations proceed in parallel.
func (e *Engine) Submit(ev core.InboundEvent) error {
	if ev.ExternalConversationID == "" {
		return fmt.Errorf("event has no conversation id")
	}
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	key := ev.ExternalConversationID
	e.queues[key] = append(e.queues[key], ev)
	if !e.active[key] {
		e.active[key] = true
		e.wg.Add(1)
		go e.drain(key)
	}
	e.mu.Unlock()
	e.metrics.RecordEventQueued()
	return nil
}

// Shutdown stops accepting events and waits for the already-queued ones to
// finish, or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("engine drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

// drain processes one conversation's queue in order. It exits when the queue
// is empty; the next Submit for the key starts a fresh drain.
func (e *Engine) drain(key string) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		queue := e.queues[key]
		if len(queue) == 0 {
			delete(e.queues, key)
			e.active[key] = false
			e.mu.Unlock()
			return
		}
		ev := queue[0]
		e.queues[key] = queue[1:]
		e.mu.Unlock()

		e.sem <- struct{}{}
		e.metrics.RecordEventStarted()
		e.handle(ev)
		e.metrics.RecordEventFinished()
		<-e.sem
	}
}

// handle processes one event end to end: conversation lookup or creation,
// admission, then dispatch. A panic anywhere is converted into an escalation
// attempt so one bad event cannot take the worker down.
func (e *Engine) handle(ev core.InboundEvent) {
	var octx *core.OrchestratorContext
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing event: %v", r)
			e.logger.Error("event processing panicked",
				"external_conversation_id", ev.ExternalConversationID,
				"error", err)
			if e.hooks.OnError != nil {
				e.hooks.OnError(ev, err)
			}
			if octx != nil {
				e.dispatcher.Escalate(octx, "internal error")
			}
		}
	}()

	ctx := e.ctx
	conv, err := e.lookupOrCreate(ctx, ev)
	if err != nil {
		e.logger.Error("conversation lookup failed",
			"external_conversation_id", ev.ExternalConversationID,
			"error", err)
		if e.hooks.OnError != nil {
			e.hooks.OnError(ev, err)
		}
		return
	}
	if conv == nil {
		// A close signal for a conversation we never saw.
		return
	}

	if ev.Kind == core.EventMessage {
		decision, err := e.admission.Admit(ctx, conv, ev)
		if err != nil {
			e.logger.Error("admission failed",
				"external_conversation_id", ev.ExternalConversationID,
				"error", err)
			if e.hooks.OnError != nil {
				e.hooks.OnError(ev, err)
			}
		} else if e.hooks.OnAdmission != nil {
			e.hooks.OnAdmission(ev, decision)
		}
	}

	if ev.Kind != core.EventConversationClosed && !conv.OwnedByAutomation(e.automationHandlerName) {
		e.logger.Debug("conversation not owned by automation, skipping dispatch",
			"external_conversation_id", ev.ExternalConversationID,
			"handler", conv.CurrentHandlerName)
		return
	}

	octx = core.NewOrchestratorContext(ctx, conv, ev, e.logger)
	// The budget is cumulative across the conversation's whole life, not per
	// event: without the seed a chatty conversation could spin forever one
	// call at a time.
	octx.Interactions = core.NewInteractionLimiter(e.maxInteractions, conv.InteractionCount)
	e.loadContext(ctx, octx)

	outcome, err := e.dispatcher.Dispatch(octx)
	e.persistInteractions(ctx, conv, octx)
	if err != nil {
		e.logger.Error("dispatch failed",
			"external_conversation_id", ev.ExternalConversationID,
			"error", err)
		if e.hooks.OnError != nil {
			e.hooks.OnError(ev, err)
		}
		return
	}
	if e.hooks.OnDispatch != nil {
		e.hooks.OnDispatch(ev, outcome)
	}
}

// persistInteractions writes back the spent interaction budget after a
// dispatch, including dispatches that ended in an error or escalation.
func (e *Engine) persistInteractions(ctx context.Context, conv *core.Conversation, octx *core.OrchestratorContext) {
	count := octx.Interactions.Count()
	if count == conv.InteractionCount {
		return
	}
	if err := e.conversations.UpdateInteractions(ctx, conv.ID, count); err != nil {
		e.logger.Warn("interaction count update failed",
			"conversation_id", conv.ID, "error", err)
		return
	}
	conv.InteractionCount = count
}

func (e *Engine) lookupOrCreate(ctx context.Context, ev core.InboundEvent) (*core.Conversation, error) {
	conv, err := e.conversations.GetByExternalID(ctx, ev.ExternalConversationID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if ev.Kind == core.EventConversationClosed {
		return nil, nil
	}
	conv = core.NewConversation(ev.ExternalConversationID, ev.ExternalUserID)
	if err := e.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	e.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"external_conversation_id", conv.ExternalConversationID)
	return conv, nil
}

func (e *Engine) loadContext(ctx context.Context, octx *core.OrchestratorContext) {
	if e.findings != nil {
		findings, err := e.findings.Findings(ctx, octx.ConversationID)
		if err != nil {
			e.logger.Warn("findings load failed",
				"conversation_id", octx.ConversationID, "error", err)
		} else {
			octx.Findings = findings
		}
	}
	if e.transcripts != nil {
		history, err := e.transcripts.RecentMessages(ctx, octx.ConversationID, e.historyLimit)
		if err != nil {
			e.logger.Warn("transcript load failed",
				"conversation_id", octx.ConversationID, "error", err)
		} else {
			octx.History = history
		}
	}
}
