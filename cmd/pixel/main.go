package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antoniostano/pixel/internal/classify"
	"github.com/antoniostano/pixel/internal/config"
	"github.com/antoniostano/pixel/internal/engine"
	"github.com/antoniostano/pixel/internal/generate"
	"github.com/antoniostano/pixel/internal/history"
	"github.com/antoniostano/pixel/internal/httpapi"
	"github.com/antoniostano/pixel/internal/intent"
	"github.com/antoniostano/pixel/internal/memory"
	"github.com/antoniostano/pixel/internal/observability"
	"github.com/antoniostano/pixel/internal/persona"
	"github.com/antoniostano/pixel/internal/policy"
	"github.com/antoniostano/pixel/internal/prompt"
	"github.com/antoniostano/pixel/internal/validate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	p, err := persona.Load(cfg.PersonaDir)
	if err != nil {
		log.Fatalf("persona load failed: %v", err)
	}
	log.Printf("persona loaded: %s", p.Identity.Name)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	filter := policy.NewFilter(&p)

	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	memoryStore := memory.New(&p, filter, memory.NewRandPicker(seed), 0)
	defer memoryStore.Close()

	windows, err := history.NewWindows(cfg.ConversationCap, cfg.WindowTurnCap)
	if err != nil {
		log.Fatalf("history windows init failed: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	var store *history.Sharded
	if len(cfg.ShardURLs) > 0 {
		store = history.NewSharded(filter, cfg.ShardRetryAfter)
		results := store.RegisterShards(runCtx, cfg.ShardURLs, func(ctx context.Context, url string) (history.Backend, error) {
			return history.NewPostgresBackend(ctx, url)
		})
		registered := 0
		for _, res := range results {
			if res.Err != nil {
				log.Printf("shard %s unavailable: %v", res.URL, res.Err)
				continue
			}
			registered++
		}
		if registered == 0 {
			log.Fatalf("no storage shards could be registered")
		}
		metrics.ActiveShards.Set(float64(registered))
		log.Printf("registered %d/%d storage shards", registered, len(cfg.ShardURLs))
		defer store.Close()
	} else {
		// No shard URLs configured: fall back to ephemeral in-process
		// shards so the service still runs standalone.
		store = history.NewSharded(filter, cfg.ShardRetryAfter)
		urls := []string{"mem://0", "mem://1"}
		store.RegisterShards(runCtx, urls, func(_ context.Context, url string) (history.Backend, error) {
			return history.NewMemoryBackend(url), nil
		})
		metrics.ActiveShards.Set(float64(store.ShardCount()))
		log.Printf("no SHARD_URLS set, using %d in-memory shards", store.ShardCount())
	}

	var client generate.Client
	if cfg.GenerationURL != "" {
		client = generate.NewReliable(
			generate.NewHTTPClient(cfg.GenerationURL, cfg.GenerationTimeout),
			cfg.GenerationAttempts,
			cfg.GenerationBackoff,
			p.Templates.Fallback,
		)
	} else {
		log.Printf("GENERATION_URL not set, serving fallback replies only")
		client = generate.NewReliable(staticClient{reply: p.Templates.Fallback}, 1, 0, p.Templates.Fallback)
	}

	eng := engine.New(engine.Deps{
		Persona:    &p,
		Classifier: classify.New(&p),
		Resolver:   intent.NewResolver(),
		Memory:     memoryStore,
		Windows:    windows,
		Store:      store,
		Assembler:  prompt.New(&p),
		Validator:  validate.New(&p),
		Client:     client,
		Metrics:    metrics,
		Stages:     stages,
		RateLimit:  cfg.RateLimit,
		Retention:  cfg.RetentionPeriod,
	})
	eng.StartJanitor(runCtx, cfg.EvictionInterval)

	api := httpapi.New(cfg, eng, store, memoryStore, metrics, stages)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// staticClient answers every prompt with a fixed line. It stands in for
// the generation endpoint when none is configured.
type staticClient struct {
	reply string
}

func (c staticClient) Generate(_ context.Context, _ prompt.Payload, _ []history.Turn) (string, error) {
	if c.reply == "" {
		return "", fmt.Errorf("no static reply configured")
	}
	return c.reply, nil
}
