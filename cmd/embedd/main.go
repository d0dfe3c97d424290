// Embedd is a standalone text embedding service.
//
// It serves two network channels over one inference backend: a binary
// protocol on TCP and a REST adapter on HTTP. Both apply identical
// validation, model resolution, and error semantics.
//
// Usage:
//
//	# Start with defaults
//	embedd
//
//	# Start with a config file
//	embedd -config /etc/embedd/config.yaml
//
//	# Configure via environment
//	EMBEDD_SERVER_TCP_BIND=0.0.0.0:9787 embedd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/embedd/internal/config"
	"github.com/fyrsmithlabs/embedd/internal/dispatch"
	"github.com/fyrsmithlabs/embedd/internal/engine"
	"github.com/fyrsmithlabs/embedd/internal/governor"
	"github.com/fyrsmithlabs/embedd/internal/httpapi"
	"github.com/fyrsmithlabs/embedd/internal/logging"
	"github.com/fyrsmithlabs/embedd/internal/registry"
	"github.com/fyrsmithlabs/embedd/internal/tcpserver"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  embedd           Start the embedding service\n")
			fmt.Fprintf(os.Stderr, "  embedd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("embedd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the service together and blocks until ctx is cancelled:
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Creates the inference engine and loads enabled models
//  4. Registers models and probes them to Ready in the background
//  5. Starts the TCP and HTTP channels
//  6. Drains both channels on shutdown
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting embedd",
		zap.String("version", version),
		zap.String("engine", cfg.Embedding.Engine),
		zap.String("default_model", cfg.Embedding.DefaultModel))

	enabled := cfg.EnabledModels()
	engineModels := make([]engine.Model, 0, len(enabled))
	for _, m := range enabled {
		engineModels = append(engineModels, engine.Model{
			Name:              m.Name,
			Dimension:         m.Dimension,
			MaxSequenceLength: m.MaxSequenceLength,
		})
	}

	eng, err := engine.New(engine.Config{
		Kind:     cfg.Embedding.Engine,
		Models:   engineModels,
		CacheDir: cfg.Embedding.CacheDir,
		Workers:  cfg.Embedding.Workers,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	reg := registry.New(cfg.Embedding.DefaultModel)
	for _, m := range cfg.Models {
		reg.Add(registry.Descriptor{
			Name:              m.Name,
			Dimension:         m.Dimension,
			MaxSequenceLength: m.MaxSequenceLength,
		})
		if !m.Enabled {
			reg.MarkDisabled(m.Name)
		}
	}

	// Warm-up runs in the background so the channels can bind immediately;
	// requests against a model still loading get MODEL_NOT_READY.
	go warmUp(ctx, eng, reg, enabled, logger)

	gov := governor.New(cfg.Server.MaxConnections, cfg.Server.MaxConcurrentTasks)
	disp := dispatch.New(dispatch.Config{
		MaxTextLength:  cfg.Embedding.MaxTextLength,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, reg, eng, gov, logger)

	tcpSrv := tcpserver.New(tcpserver.Config{
		Bind:            cfg.Server.TCPBind,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxPayloadBytes: cfg.Server.MaxPayloadBytes,
	}, disp, gov, logger)

	httpSrv := httpapi.New(httpapi.Config{
		Bind:    cfg.Server.HTTPBind,
		Version: version,
	}, disp, reg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tcpSrv.Start(gctx)
	})
	g.Go(func() error {
		return httpSrv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// warmUp probes each enabled model with a short inference and flips it to
// Ready on success or Disabled on failure. Each model transitions exactly
// once.
func warmUp(ctx context.Context, eng engine.Engine, reg *registry.Registry, models []config.ModelConfig, logger *zap.Logger) {
	for _, m := range models {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		_, err := eng.Embed(probeCtx, "warm-up probe", m.Name, engine.Options{})
		cancel()
		if err != nil {
			logger.Error("model warm-up failed, disabling",
				zap.String("model", m.Name),
				zap.Error(err))
			reg.MarkDisabled(m.Name)
			continue
		}
		reg.MarkReady(m.Name)
		logger.Info("model ready",
			zap.String("model", m.Name),
			zap.Int("dimension", m.Dimension),
			zap.Duration("warm_up", time.Since(start)))
	}
}
