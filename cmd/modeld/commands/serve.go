package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/modeld/modeld/pkg/config"
	"github.com/modeld/modeld/pkg/metadata"
	"github.com/modeld/modeld/pkg/orchestrator"
	"github.com/modeld/modeld/pkg/queue"
	"github.com/modeld/modeld/pkg/registry"
	"github.com/modeld/modeld/pkg/telemetry"
	"github.com/modeld/modeld/pkg/variant"
)

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the model lifecycle service",
		Long: `Serve loads the configuration, opens the metadata catalog, adopts any
model instances already present under the storage root, and runs the
job workers until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version)
		},
	}
}

func runServe(ctx context.Context, version string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	tcfg := cfg.Telemetry(version)
	log, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	if err := metrics.StartMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	var bridge orchestrator.Bridge
	if cfg.Metadata.Enabled {
		store, err := metadata.NewStore(metadata.Config{Path: cfg.Metadata.Path})
		if err != nil {
			return fmt.Errorf("failed to create catalog store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate catalog: %w", err)
		}
		bridge = metadata.NewBridge(store)
		log.Info().Str("path", cfg.Metadata.Path).Msg("metadata catalog ready")
	}

	table := variant.NewTable()
	if err := table.Register(variant.EchoRegistration()); err != nil {
		return fmt.Errorf("failed to register builtin variants: %w", err)
	}

	reg, err := registry.New(cfg.Storage.Folder, table, log)
	if err != nil {
		return fmt.Errorf("failed to open storage root: %w", err)
	}

	q := queue.NewLocal(cfg.Queue.Workers, cfg.Queue.Buffer, log)
	defer q.Close()

	orch := orchestrator.New(reg, table, q, bridge, metrics, tracer, log)
	metrics.SetInstances(len(orch.Names()))

	if cfg.Storage.Watch {
		watcher, err := registry.NewWatcher(reg, log)
		if err != nil {
			return fmt.Errorf("failed to watch storage root: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
	}

	log.Info().
		Str("folder", cfg.Storage.Folder).
		Int("workers", cfg.Queue.Workers).
		Strs("variants", table.Names()).
		Int("instances", len(orch.Names())).
		Msg("modeld ready")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}
