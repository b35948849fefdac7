package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/actions"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/ai"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/assistant"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/config"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/entityref"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/erp"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/session"
)

func serve(ctx context.Context, cfg *config.Config) error {
	log := observability.Logger()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Transcripts ---
	repo := session.NewMemoryRepo()
	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := session.Migrate(db); err != nil {
			return err
		}
		repo = session.NewRepo(db)
	} else {
		log.Warn("DATABASE_URL is not set, transcripts are kept in memory")
	}
	sessions := session.NewManager(repo, cfg.SessionTTL)
	if cfg.SessionTTL > 0 {
		go sessions.RunSweeper(ctx, time.Minute)
	}

	// --- ERP ---
	odoo := erp.NewOdooClient(cfg.Odoo.URL, cfg.Odoo.DB, cfg.Odoo.Username, cfg.Odoo.Password, cfg.DefaultTimeout)
	snapshots := erp.NewSnapshotter(odoo, cfg.ContextCacheTTL)

	// --- Operations ---
	policy := actions.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := actions.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
		policy = p
	}
	createPolicy, err := actions.ParseCreatePolicy(cfg.CreatePolicy)
	if err != nil {
		return err
	}
	pipeline := actions.NewPipeline(actions.NewGate(policy, createPolicy), actions.NewExecutor(odoo))

	// --- Model ---
	checks := map[string]assistant.HealthCheck{
		"erp": func(ctx context.Context) error {
			_, err := odoo.Version(ctx)
			return err
		},
	}
	model, err := newModel(cfg, snapshots, policy.MethodNames(), checks)
	if err != nil {
		return err
	}

	// --- Assistant ---
	hub := assistant.NewHub(assistant.OriginAllowed(cfg.CORSOrigins))
	svc := assistant.NewService(sessions, model, pipeline, hub)
	handler := assistant.NewHandler(svc, sessions, entityref.NewActivator(odoo, cfg.Odoo.WebURL), odoo, hub, checks)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(assistant.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(assistant.CORSOptions(cfg.CORSOrigins)))

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.Handler())

	limiter := assistant.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		assistant.RegisterRoutes(r, handler)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newModel builds the configured model provider. The agent provider also
// registers a health check.
func newModel(
	cfg *config.Config,
	snapshots *erp.Snapshotter,
	methods []string,
	checks map[string]assistant.HealthCheck,
) (ai.AI, error) {
	m := cfg.Model
	switch m.Provider {
	case config.ProviderAgent:
		agent := ai.NewAgentClient(m.AgentURL, cfg.DefaultTimeout, snapshots)
		checks["model"] = agent.Ping
		return ai.WithMetrics(string(m.Provider), agent), nil
	case config.ProviderOpenAI:
		prompt := ai.NewPromptBuilder(snapshots, methods)
		client := ai.NewOpenAIClient(m.OpenAIKey, m.OpenAIModel, m.OpenAIBaseURL, m.MaxTokens, cfg.DefaultTimeout, prompt)
		return ai.WithMetrics(string(m.Provider), client), nil
	case config.ProviderAnthropic:
		prompt := ai.NewPromptBuilder(snapshots, methods)
		client := ai.NewAnthropicClient(m.AnthropicKey, m.AnthropicModel, m.AnthropicURL, m.MaxTokens, cfg.DefaultTimeout, prompt)
		return ai.WithMetrics(string(m.Provider), client), nil
	}
	return nil, fmt.Errorf("unknown model provider %q", m.Provider)
}
