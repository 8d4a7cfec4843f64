// Command synapsed runs the model orchestration daemon: it discovers local
// GGUF models, supervises one llama-server process per enabled model, indexes
// a document tree for retrieval and serves the query API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dlorp/synapse-engine-sub002/internal/config"
	"github.com/dlorp/synapse-engine-sub002/internal/httpapi"
	"github.com/dlorp/synapse-engine-sub002/internal/orchestrator"
	"github.com/dlorp/synapse-engine-sub002/internal/rag"
	"github.com/dlorp/synapse-engine-sub002/internal/registry"
	"github.com/dlorp/synapse-engine-sub002/internal/routing"
	"github.com/dlorp/synapse-engine-sub002/internal/selector"
	"github.com/dlorp/synapse-engine-sub002/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub002/internal/telemetry"
	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
)

const shutdownGrace = 10 * time.Second

var (
	flagConfig  string
	flagProfile string
	flagAddr    string
	flagModels  string
	flagDocs    string
)

func main() {
	root := &cobra.Command{
		Use:          "synapsed",
		Short:        "LLM orchestration daemon with complexity routing and corrective retrieval",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to config file (.yaml, .json or .toml)")
	root.Flags().StringVarP(&flagProfile, "profile", "p", "", "path to profile file overriding parts of the config")
	root.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address, e.g. :8090")
	root.Flags().StringVar(&flagModels, "models-dir", "", "directory to scan for *.gguf model files")
	root.Flags().StringVar(&flagDocs, "docs-dir", "", "directory to index for retrieval")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	// .env is optional; real deployments use a config file.
	_ = godotenv.Load()

	cfg, profile, err := loadConfig()
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Log)

	reg := registry.New(
		registry.Thresholds{FastMax: cfg.Routing.FastMax, BalancedMax: cfg.Routing.BalancedMax},
		cfg.PortRangeStart, cfg.PortRangeEnd,
	)
	if err := reg.ScanDir(cfg.ModelsDir); err != nil {
		return fmt.Errorf("scan models dir %s: %w", cfg.ModelsDir, err)
	}
	log.Info().Int("models", len(reg.List())).Str("dir", cfg.ModelsDir).Msg("model discovery complete")

	if profile != nil && len(profile.EnabledModels) > 0 {
		if err := reg.ApplyProfile(profile.EnabledModels); err != nil {
			log.Warn().Err(err).Str("profile", profile.Name).Msg("profile referenced unknown models")
		}
	}

	sup := supervisor.New(reg,
		supervisor.NewLlamaSpawner(cfg.ServerBin, log),
		supervisor.NewHTTPProber(),
		supervisor.Config{
			Interval:         cfg.Health.Interval(),
			ProbeTimeout:     cfg.Health.Timeout(),
			FailureThreshold: cfg.Health.FailureThreshold,
			AutoRestart:      cfg.Health.AutoRestart,
		}, log)
	sup.StartEnabled()

	decisions := routing.NewDecisionLog(128)
	assessor := routing.NewAssessor(routing.Thresholds{
		FastMax:     cfg.Routing.FastMax,
		BalancedMax: cfg.Routing.BalancedMax,
	}, decisions)

	counter := tokens.NewCounter()
	retrieval, index := buildRetrieval(ctx, cfg, counter, log)

	tracker := telemetry.NewLogTracker(log, 256)
	defer tracker.Close()

	deps := orchestrator.Deps{
		Registry:   reg,
		Supervisor: sup,
		Picker:     selector.New(reg, sup),
		Assessor:   assessor,
		Decisions:  decisions,
		Generator:  orchestrator.NewHTTPGenerator("127.0.0.1", 0.2, log),
		Counter:    counter,
		Tracker:    tracker,
		Index:      index,
	}
	if retrieval != nil {
		// Assign only when non-nil so the engine's nil check sees a nil
		// interface, not a typed nil pointer.
		deps.Retrieval = retrieval
	}
	engine := orchestrator.New(cfg, deps, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(engine, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("synapsed listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("supervisor shutdown incomplete")
	}
	return nil
}

// loadConfig layers file config, an optional profile and flag overrides on
// top of the defaults, then validates the result.
func loadConfig() (config.Config, *config.Profile, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return config.Config{}, nil, err
		}
	}
	var profile *config.Profile
	if flagProfile != "" {
		p, err := config.LoadProfile(flagProfile)
		if err != nil {
			return config.Config{}, nil, err
		}
		cfg = cfg.Merged(p)
		profile = &p
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagModels != "" {
		cfg.ModelsDir = flagModels
	}
	if flagDocs != "" {
		cfg.DocsDir = flagDocs
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, profile, nil
}

func setupLogger(lc config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if lc.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

// buildRetrieval assembles the retrieval stack, or returns nil when no docs
// directory is configured.
func buildRetrieval(ctx context.Context, cfg config.Config, counter tokens.Counter, log zerolog.Logger) (*rag.Controller, *rag.Index) {
	if cfg.DocsDir == "" {
		log.Info().Msg("no docs dir configured, retrieval disabled")
		return nil, nil
	}

	var embedder rag.Embedder
	switch cfg.Embedder.Kind {
	case "openai":
		embedder = rag.NewOpenAIEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Dimension)
	default:
		embedder = rag.NewHashEmbedder(cfg.Embedder.Dimension)
	}

	index := rag.NewIndex(embedder.Dimension())
	indexer := rag.NewIndexer(embedder, 0, 0, log)
	added, err := indexer.IndexDir(ctx, cfg.DocsDir, index)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.DocsDir).Msg("document indexing failed, retrieval disabled")
		return nil, nil
	}
	log.Info().Int("chunks", added).Str("dir", cfg.DocsDir).Msg("document index built")

	retriever := rag.NewVectorRetriever(index, embedder, counter, cfg.Retrieval.MinRelevance, cfg.Retrieval.TopK)

	var augmenter rag.WebAugmenter
	if cfg.Search.Enabled {
		searcher := rag.NewDuckDuckGoSearcher("", cfg.Search.Timeout())
		augmenter = rag.NewSearchAugmenter(searcher, cfg.Search.MaxResults)
	}

	controller := rag.NewController(retriever, rag.NewLocalExpander(), augmenter, counter,
		cfg.Retrieval.RelevantAbove, cfg.Retrieval.IrrelevantBelow, log)
	return controller, index
}
