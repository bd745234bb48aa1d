package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"

	"github.com/chatcart/chatcart/db"
	"github.com/chatcart/chatcart/internal/audit"
	"github.com/chatcart/chatcart/internal/compose"
	"github.com/chatcart/chatcart/internal/config"
	"github.com/chatcart/chatcart/internal/conversation"
	"github.com/chatcart/chatcart/internal/database"
	"github.com/chatcart/chatcart/internal/engine"
	"github.com/chatcart/chatcart/internal/log"
	"github.com/chatcart/chatcart/internal/provider"
	"github.com/chatcart/chatcart/internal/provider/health"
	"github.com/chatcart/chatcart/internal/provider/router"
	"github.com/chatcart/chatcart/internal/reference"
	"github.com/chatcart/chatcart/internal/retrieval"
)

// Setup assembles the application. Returns an App with embedded cleanup —
// call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	a.Logger = log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				a.Logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := db.Migrate(cfg.PostgresURL(), a.Logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, dbCleanup, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	r, err := provideRouter(g, cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Router = r

	states := conversation.NewStore(cfg.MaxHistoryMessages, a.Logger)

	eng, err := provideEngine(a, g, cfg, states)
	if err != nil {
		return nil, err
	}
	a.Engine = eng

	appCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go sweepIdleConversations(appCtx, states, sweepInterval, conversationIdle, a.Logger)

	return a, nil
}

const (
	// conversationIdle is how long a conversation may sit inactive before
	// its in-memory state is dropped. The durable audit trail is unaffected.
	conversationIdle = 30 * time.Minute

	// sweepInterval is how often idle conversations are swept.
	sweepInterval = time.Minute
)

// sweepIdleConversations drops idle conversation state until ctx is
// canceled.
func sweepIdleConversations(ctx context.Context, states *conversation.Store, interval, idle time.Duration, logger log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := states.EvictIdle(idle, now); n > 0 {
				logger.Debug("idle conversations swept",
					"evicted", n,
					"resident", states.Len(),
				)
			}
		}
	}
}

// provideGenkit initializes Genkit with both model-provider plugins so that
// any configured "googleai/..." or "openai/..." model name resolves.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}, &openai.OpenAI{}),
	)
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// NewRouter builds the failover router from configuration alone. cmd uses it
// to show the routing lineup without standing up the full application.
func NewRouter(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*router.Router, error) {
	return provideRouter(g, cfg, logger)
}

// provideRouter builds the failover router over the configured providers in
// priority order.
func provideRouter(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*router.Router, error) {
	providers := make([]provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		var caps provider.Capability
		if pc.StructuredOutput {
			caps |= provider.CapStructuredOutput
		}
		desc := provider.Descriptor{
			Name:         pc.Name,
			Model:        pc.Model,
			CostPerToken: pc.CostPerToken,
			Capabilities: caps,
			Priority:     pc.Priority,
		}
		providers = append(providers, provider.NewGenkit(g, desc, logger.With("provider", pc.Name)))
	}

	tracker := health.New(health.Config{
		WindowSize:  cfg.HealthWindowSize,
		MinSamples:  cfg.HealthMinSamples,
		FailureRate: cfg.HealthFailureRate,
		Cooldown:    cfg.HealthCooldown,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return router.New(providers, tracker, logger.With("component", "router"), router.Config{
		AttemptTimeout: cfg.AttemptTimeout,
		Limiter:        limiter,
		Validate: func(resp *provider.Response) error {
			_, err := compose.ParseReply(resp)
			return err
		},
	})
}

// provideEngine assembles the turn engine and its retrieval sources.
func provideEngine(a *App, g *genkit.Genkit, cfg *config.Config, states *conversation.Store) (*engine.Engine, error) {
	logger := a.Logger

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	sources := []retrieval.Source{
		retrieval.NewDocumentIndex(a.DBPool, embedFunc(embedder), 0, logger.With("source", "documents")),
		retrieval.NewCatalog(a.DBPool, 0, logger.With("source", "catalog")),
	}

	return engine.New(engine.Deps{
		States:   states,
		Windows:  reference.NewStore(cfg.WindowTTL, logger),
		Merger:   retrieval.NewMerger(retrieval.MergerConfig{SourceTimeout: cfg.SourceTimeout, TopK: cfg.RetrievalTopK}, logger),
		Sources:  sources,
		Composer: compose.New(cfg.HistoryTokenBudget, logger),
		Router:   a.Router,
		Recorder: audit.NewPostgresRecorder(a.DBPool, logger.With("component", "audit")),
		Tenant: compose.TenantConfig{
			Persona:           cfg.Persona,
			MaxTokens:         cfg.MaxTokens,
			Temperature:       cfg.Temperature,
			RequireStructured: cfg.RequireStructured,
		},
		Logger: logger.With("component", "engine"),
	})
}

// embedFunc adapts a Genkit embedder to the retrieval package's EmbedFunc.
func embedFunc(embedder ai.Embedder) retrieval.EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
			Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		})
		if err != nil {
			return nil, fmt.Errorf("embed failed: %w", err)
		}
		if len(resp.Embeddings) == 0 {
			return nil, errors.New("no embeddings returned")
		}
		return resp.Embeddings[0].Embedding, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
