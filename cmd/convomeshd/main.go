// Command convomeshd runs the routing and orchestration core as a daemon. It
// accepts parsed conversation events over HTTP, evaluates them through the
// admission controller and drives the three phase agents until each
// conversation resolves, escalates or closes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convomesh/convomesh"
	"github.com/convomesh/convomesh/config"
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/engine"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/observe"
	"github.com/convomesh/convomesh/reasoner"
	"github.com/convomesh/convomesh/reasoner/anthropic"
	"github.com/convomesh/convomesh/reasoner/openai"
	"github.com/convomesh/convomesh/store"
	"github.com/convomesh/convomesh/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "convomeshd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewSlogLogger(parseLevel(cfg.LogLevel), cfg.LogFormat, !cfg.IsProduction())
	logger.Info("convomeshd starting",
		"env", cfg.Env,
		"provider", cfg.Reasoner.Provider,
		"workers", cfg.Engine.Workers)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The engine gets its own context so queued events still drain after a
	// signal; it is cancelled only once the drain finishes or times out.
	procCtx, cancelProc := context.WithCancel(context.Background())
	defer cancelProc()

	var (
		conversations core.ConversationStore
		rules         core.RuleStore
		processed     core.ProcessedEventStore
	)
	if cfg.UsesPostgres() {
		pg, err := postgres.Connect(sigCtx, cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.ClosePool()
		logger.Info("postgres connected")
		conversations, rules, processed = pg, pg, pg
	} else {
		logger.Warn("no database configured, using in-memory stores")
		mem := store.NewInMemoryStore()
		conversations, rules, processed = mem, mem, mem
	}

	r, err := buildReasoner(cfg.Reasoner)
	if err != nil {
		return err
	}

	metrics := observe.NewMetrics()

	mesh := convomesh.New(func(o *convomesh.Options) {
		o.Reasoner = r
		o.Conversations = conversations
		o.Rules = rules
		o.Processed = processed
		o.DefaultTarget = cfg.Routing.DefaultTarget
		o.LedgerTTL = cfg.Routing.LedgerTTL
		o.SweepInterval = cfg.Routing.SweepInterval
		o.Workers = cfg.Engine.Workers
		o.MaxInteractions = cfg.Engine.MaxInteractions
		o.AutomationHandlerName = cfg.Engine.AutomationHandlerName
		o.Hooks = engine.LoggingHooks(logger)
		o.Metrics = metrics
		o.Logger = logger
	})
	mesh.Start(procCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var ev core.InboundEvent
		if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
			http.Error(w, "invalid event payload", http.StatusBadRequest)
			return
		}
		if ev.ID == "" {
			ev.ID = core.NewID()
		}
		if ev.Kind == "" {
			ev.Kind = core.EventMessage
		}
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = time.Now().UTC()
		}
		if err := mesh.Submit(ev); err != nil {
			if errors.Is(err, engine.ErrNotRunning) {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := mesh.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine drain incomplete", "error", err)
		return err
	}
	logger.Info("convomeshd stopped")
	return nil
}

func buildReasoner(cfg config.ReasonerConfig) (reasoner.Reasoner, error) {
	switch cfg.Provider {
	case "openai":
		var clientOpts []option.RequestOption
		if cfg.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
		}
		client := openaisdk.NewClient(clientOpts...)
		return openai.NewFromClient(&client, func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported reasoner provider %q", cfg.Provider)
	}
}

func parseLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LogLevelDebug
	case "warn", "warning":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
