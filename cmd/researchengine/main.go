// Command researchengine is the research engine's process entrypoint: it
// wires configuration, the checkpoint store, the event bus, the LLM
// client (key rotation + response cache + prompt-cache tracking), search
// and scrape backends, the fixed pipeline scheduler, the worker pool, and
// the HTTP/MCP surfaces, then serves until signalled to stop.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/deepresearch-labs/agent/pkg/api"
	"github.com/deepresearch-labs/agent/pkg/apikeys"
	"github.com/deepresearch-labs/agent/pkg/checkpoint"
	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/keys"
	"github.com/deepresearch-labs/agent/pkg/llmcache"
	"github.com/deepresearch-labs/agent/pkg/llmclient"
	"github.com/deepresearch-labs/agent/pkg/mcpserver"
	"github.com/deepresearch-labs/agent/pkg/memory"
	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/notify"
	"github.com/deepresearch-labs/agent/pkg/graph"
	"github.com/deepresearch-labs/agent/pkg/promptcache"
	"github.com/deepresearch-labs/agent/pkg/queue"
	"github.com/deepresearch-labs/agent/pkg/scrape"
	"github.com/deepresearch-labs/agent/pkg/search"
	"github.com/deepresearch-labs/agent/pkg/session"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	stdioMode := flag.Bool("mcp-stdio", os.Getenv("MCP_STDIO") == "true", "Serve the MCP surface over stdio instead of HTTP")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL must be set")
	}
	store, err := checkpoint.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to open checkpoint store: %v", err)
	}
	defer store.Close()

	eventsLogDir := getEnv("EVENTS_LOG_DIR", "./data/events")
	if err := os.MkdirAll(eventsLogDir, 0o755); err != nil {
		log.Fatalf("failed to create events log dir: %v", err)
	}
	bus := events.NewBus(eventsLogDir)

	rotator := keys.NewRotator(0, slog.Default())
	cache := llmcache.New(getEnv("LLM_CACHE_DIR", "./data/llmcache"), time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxTemperatureToCache, slog.Default())
	tracker := &promptcache.Tracker{}
	llmBaseURL := getEnv("LLM_BASE_URL", "https://api.anthropic.com")
	llm := llmclient.New(llmBaseURL, &http.Client{Timeout: 120 * time.Second}, rotator, cache, tracker, slog.Default())

	var backend search.Backend = search.NewTavilyBackend(os.Getenv("TAVILY_API_KEY"), getEnv("TAVILY_BASE_URL", "https://api.tavily.com/search"), &http.Client{Timeout: 30 * time.Second}, slog.Default())
	primaryExtractor := scrape.NewHTTPExtractor(&http.Client{Timeout: cfg.Scrape.PerURLTimeout}, cfg.Scrape.MaxContentBytes, cfg.Scrape.PaywallThreshold, slog.Default())
	headlessExtractor := scrape.NewHeadlessExtractor(cfg.Scrape.HeadlessTimeout, slog.Default())
	extractor := scrape.NewFallbackExtractor(primaryExtractor, headlessExtractor, cfg.Scrape.MinQualityForFallback, slog.Default())

	memStore, err := newMemoryStore(ctx)
	if err != nil {
		log.Fatalf("failed to initialize memory store: %v", err)
	}

	scheduler := graph.New(llm, backend, extractor, *cfg, store, bus, memStore, slog.Default())

	var notifier *notify.Service
	if svc := notify.NewService(notify.ServiceConfig{
		Token:        os.Getenv("SLACK_BOT_TOKEN"),
		Channel:      os.Getenv("SLACK_CHANNEL"),
		DashboardURL: os.Getenv("DASHBOARD_URL"),
	}); svc != nil {
		notifier = svc
		slog.Info("slack notifications enabled")
	}

	podID := getEnv("POD_ID", uuid.New().String())
	if err := queue.RecoverStartupOrphans(ctx, store, podID); err != nil {
		slog.Error("startup orphan recovery failed", "error", err)
	}

	pool := queue.NewPool(podID, store, bus, notifier, &cfg.Queue, scheduler)
	pool.Start(ctx)
	defer pool.Stop()

	mgr := session.NewManager(store, pool)

	evaluator := nodes.NewJudgeEvaluator(llm, "")
	mcp := mcpserver.New(mgr, memStore, evaluator, cfg.Memory)

	keysPath := cfg.API.APIKeysPath
	apiKeys, err := apikeys.Load(keysPath)
	if err != nil {
		log.Fatalf("failed to load API keys from %s: %v", keysPath, err)
	}

	httpServer, err := api.NewServer(mgr, bus, apiKeys, notifier, cfg.API)
	if err != nil {
		log.Fatalf("failed to build API server: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpServer.Handler())
	mux.Handle("/mcp/", http.StripPrefix("/mcp", mcp.HTTPHandler()))

	addr := cfg.API.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	if *stdioMode {
		go func() {
			if err := mcp.ServeStdio(ctx); err != nil {
				slog.Error("mcp stdio server exited", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
}

// newMemoryStore builds the cross-session similarity store against
// Qdrant if QDRANT_HOST is set, otherwise an in-process store — letting a
// single-box deployment run without standing up Qdrant.
func newMemoryStore(ctx context.Context) (memory.SimilarityStore, error) {
	embedder := memory.NewHashEmbedder(256)

	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		return memory.NewInMemoryStore(embedder, 0.85), nil
	}

	port := 6334
	return memory.NewQdrantStore(ctx, memory.QdrantConfig{
		Host:           host,
		Port:           port,
		APIKey:         os.Getenv("QDRANT_API_KEY"),
		Collection:     getEnv("QDRANT_COLLECTION", "research_findings"),
		DedupThreshold: 0.85,
	}, embedder)
}
